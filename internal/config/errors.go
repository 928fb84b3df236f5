package config

import (
	"fmt"
	"sort"
)

// Error describes why a single config key failed to load.
type Error struct {
	Name   string
	Value  any
	Reason string
}

// Error implements the error interface.
func (e Error) Error() string {
	message := fmt.Sprintf("cannot set %q", e.Name)
	if e.Value != nil {
		message += fmt.Sprintf(" to %q", e.Value)
	}

	return message + ": " + e.Reason
}

// ErrorList collects the Errors that occurred while loading a Map.
type ErrorList []*Error

// Error implements the error interface.
func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}

	return fmt.Sprintf("%s (and %d more errors)", l[0], len(l)-1)
}

// Len implements sort.Interface.
func (l ErrorList) Len() int { return len(l) }

// Swap implements sort.Interface.
func (l ErrorList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less implements sort.Interface.
func (l ErrorList) Less(i, j int) bool { return l[i].Name < l[j].Name }

func (l *ErrorList) add(name string, value any, reason string) {
	*l = append(*l, &Error{Name: name, Value: value, Reason: reason})
}

var _ = sort.Interface(ErrorList{})
