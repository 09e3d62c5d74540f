package ty

import (
	"fmt"
	"strconv"
	"strings"
)

// MI is a shorthand for map[string]interface{}
type MI map[string]interface{}

// MS is a shorthand for map[string]string
type MS map[string]string

// GetOr returns the value for the key if it exists, otherwise the default value.
func (mi MI) GetOr(key string, def interface{}) interface{} {
	if v, b := mi[key]; b {
		return v
	}
	return def
}

// GetString returns the value as a string, or "" when absent. Non-string
// scalars are formatted with fmt.
func (mi MI) GetString(key string) string {
	v, ok := mi[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// GetInt returns the value as an int when it is numeric or a numeric string.
func (mi MI) GetInt(key string, def int) int {
	switch v := mi[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// GetBool returns the value as a bool if it can be interpreted as boolean.
func (mi MI) GetBool(key string) bool {
	switch val := mi[key].(type) {
	case bool:
		return val
	case string:
		s := strings.ToLower(val)
		return s == "true" || s == "yes" || s == "1"
	}
	return false
}

// GetMS returns the value as a MS, converting nested generic maps.
func (mi MI) GetMS(key string) MS {
	v, ok := mi[key]
	if !ok {
		return MS{}
	}
	switch vv := v.(type) {
	case MS:
		return vv
	case map[string]string:
		return MS(vv)
	case MI:
		return toMS(vv)
	case map[string]interface{}:
		return toMS(vv)
	default:
		return MS{}
	}
}

func toMS(m map[string]interface{}) MS {
	res := MS{}
	for k, val := range m {
		res[k] = fmt.Sprint(val)
	}
	return res
}

// MergeM merges two maps and returns the parent map (modified).
func MergeM[T interface{}](parent map[string]T, child map[string]T) map[string]T {
	if parent == nil {
		parent = make(map[string]T, len(child))
	}
	for k, v := range child {
		parent[k] = v
	}

	return parent
}
