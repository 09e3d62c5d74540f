package ty

import "sort"

// UniSet collects distinct values per key, keeping first-seen order.
type UniSet[T comparable] map[string][]T

// Add records value under key unless it is already present.
func (us UniSet[T]) Add(key string, value T) bool {
	for _, v := range us[key] {
		if v == value {
			return false
		}
	}
	us[key] = append(us[key], value)
	return true
}

// Keys returns the sorted keys.
func (us UniSet[T]) Keys() []string {
	keys := make([]string, 0, len(us))
	for k := range us {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
