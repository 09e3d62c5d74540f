// Package ty provides small shared types: optional values, string-keyed maps,
// unique sets and time helpers used by config and the explorer engine.
package ty

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Opt is an optional value that distinguishes "absent" (Set=false) from an
// explicit null (Set=true, Valid=false). Config layers merge Opts so a
// context only overrides what it actually declares.
type Opt[T any] struct {
	Value T
	Set   bool
	Valid bool
}

// OptWrap returns a set and valid Opt holding value.
func OptWrap[T any](value T) Opt[T] {
	return Opt[T]{Value: value, Set: true, Valid: true}
}

// Merge takes or's value when or was set.
func (i *Opt[T]) Merge(or *Opt[T]) {
	if or.Set {
		i.Value = or.Value
		i.Set = or.Set
		i.Valid = or.Valid
	}
}

// S sets the value.
func (i *Opt[T]) S(v T) {
	i.Value = v
	i.Set = true
	i.Valid = true
}

// U unsets the value.
func (i *Opt[T]) U() {
	i.Set = false
	i.Valid = false
}

// OrElse returns the value if present, def otherwise.
func (i Opt[T]) OrElse(def T) T {
	if i.Set && i.Valid {
		return i.Value
	}
	return def
}

func (i *Opt[T]) UnmarshalJSON(data []byte) error {
	i.Set = true

	if string(data) == "null" {
		i.Valid = false
		return nil
	}

	if err := json.Unmarshal(data, &i.Value); err != nil {
		return err
	}

	i.Valid = true
	return nil
}

func (i Opt[T]) MarshalJSON() ([]byte, error) {
	if !i.Set || !i.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(i.Value)
}

// UnmarshalYAML implements yaml.Unmarshaler for Opt[T]
func (i *Opt[T]) UnmarshalYAML(value *yaml.Node) error {
	var v T
	if err := value.Decode(&v); err != nil {
		return err
	}
	i.Value = v
	i.Set = true
	i.Valid = true
	return nil
}

// MarshalYAML implements yaml.Marshaler for Opt[T]
func (i Opt[T]) MarshalYAML() (interface{}, error) {
	if !i.Set || !i.Valid {
		return nil, nil
	}
	return i.Value, nil
}

// IsZero lets yaml omitempty drop unset options.
func (i Opt[T]) IsZero() bool {
	return !i.Set
}
