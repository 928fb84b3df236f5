// Package config provides an immutable, validated configuration record,
// threaded through constructors instead of read from process globals
// (spec.md §9, "Dynamic configuration"). Mechanism adapted from the
// teacher's lxd/config package: a Schema of typed Keys, loaded into a Map
// that validates and stores raw string values.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Schema defines the available keys of a config Map, along with their
// types, defaults and validators.
type Schema struct {
	mu    sync.RWMutex
	types map[string]Key
}

// NewSchema returns a Schema populated with the given keys.
func NewSchema(keys map[string]Key) *Schema {
	return &Schema{types: keys}
}

// Keys returns all key names defined in the schema, sorted.
func (s *Schema) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.types))
	for key := range s.types {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys
}

// Defaults returns a map of all key names in the schema to their defaults.
func (s *Schema) Defaults() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]string, len(s.types))
	for name, key := range s.types {
		values[name] = key.Default
	}

	return values
}

func (s *Schema) mustGetKey(name string) Key {
	s.mu.RLock()
	key, ok := s.types[name]
	s.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("attempt to access unknown config key %q", name))
	}

	return key
}

func (s *Schema) assertKeyType(name string, code Type) {
	key := s.mustGetKey(name)
	if key.Type != code {
		panic(fmt.Sprintf("config key %q has type %d, not %d", name, key.Type, code))
	}
}

// Key defines the type, default and optional validator of one config
// value.
type Key struct {
	Type      Type
	Default   string
	Validator func(string) error
}

// Type identifies the value type of a config Key.
type Type int

// Possible Key types.
const (
	String Type = iota
	Bool
	Int64
	Duration
)

var booleans = []string{"true", "false", "yes", "no", "1", "0"}

func (k *Key) validate(value string) error {
	validator := k.Validator
	if validator == nil {
		validator = func(string) error { return nil }
	}

	if value == "" {
		return validator(k.Default)
	}

	switch k.Type {
	case String:
	case Bool:
		if !containsFold(booleans, value) {
			return errors.New("invalid boolean")
		}
	case Int64:
		_, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.New("invalid integer")
		}
	case Duration:
		_, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
	}

	return validator(value)
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}

	return false
}
