package config

import (
	"sort"
	"strconv"
	"time"
)

// Map is a set of config values validated against a Schema.
type Map struct {
	schema *Schema
	values map[string]string
}

// Load builds a new Map from the given schema and initial raw values. If
// one or more keys fail validation, an ErrorList describing the problems
// is returned alongside a Map that holds every other, valid key.
func Load(schema *Schema, values map[string]string) (Map, error) {
	m := Map{schema: schema, values: map[string]string{}}

	errs := ErrorList{}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		value := values[name]
		key := schema.mustGetKey(name)
		if err := key.validate(value); err != nil {
			errs.add(name, value, err.Error())
			continue
		}

		if value != "" {
			m.values[name] = value
		}
	}

	if errs.Len() > 0 {
		return m, errs
	}

	return m, nil
}

// GetRaw returns the raw string value of name, or its schema default.
func (m Map) GetRaw(name string) string {
	if value, ok := m.values[name]; ok {
		return value
	}

	return m.schema.mustGetKey(name).Default
}

// GetString returns the value of a String key.
func (m Map) GetString(name string) string {
	m.schema.assertKeyType(name, String)
	return m.GetRaw(name)
}

// GetBool returns the value of a Bool key.
func (m Map) GetBool(name string) bool {
	m.schema.assertKeyType(name, Bool)
	v := m.GetRaw(name)
	return v == "true" || v == "yes" || v == "1"
}

// GetInt64 returns the value of an Int64 key.
func (m Map) GetInt64(name string) int64 {
	m.schema.assertKeyType(name, Int64)
	n, err := strconv.ParseInt(m.GetRaw(name), 10, 64)
	if err != nil {
		panic("invalid int64 config value slipped past validation: " + err.Error())
	}

	return n
}

// GetDuration returns the value of a Duration key.
func (m Map) GetDuration(name string) time.Duration {
	m.schema.assertKeyType(name, Duration)
	d, err := parseDuration(m.GetRaw(name))
	if err != nil {
		panic("invalid duration config value slipped past validation: " + err.Error())
	}

	return d
}

// parseDuration accepts either a Go duration string ("10s") or a bare
// integer, interpreted as seconds — matching spec.md §6's options, which
// are specified in seconds (fixed_ip_disassociate_timeout).
func parseDuration(value string) (time.Duration, error) {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	return time.ParseDuration(value)
}
