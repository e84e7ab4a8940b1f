// Package domain defines the core scheduling entities: keys, job details,
// triggers and their schedule variants, and the records persisted by stores.
package domain

import (
	"errors"
	"fmt"
)

// DefaultGroup is the group applied when a key is created without one.
const DefaultGroup = "DEFAULT"

// ErrEmptyName is returned when a key is created with an empty name.
var ErrEmptyName = errors.New("key name cannot be empty")

// Key identifies a job or trigger by (name, group). Keys are value types;
// equality is structural.
type Key struct {
	Name  string
	Group string
}

// JobKey identifies a JobDetail.
type JobKey = Key

// TriggerKey identifies a Trigger.
type TriggerKey = Key

// NewKey builds a key, normalizing an empty group to DefaultGroup.
// The name must be non-empty.
func NewKey(name, group string) (Key, error) {
	if name == "" {
		return Key{}, ErrEmptyName
	}
	if group == "" {
		group = DefaultGroup
	}
	return Key{Name: name, Group: group}, nil
}

// MustKey is NewKey for statically-known inputs; it panics on an empty name.
func MustKey(name, group string) Key {
	k, err := NewKey(name, group)
	if err != nil {
		panic(err)
	}
	return k
}

// IsZero reports whether the key is the zero value.
func (k Key) IsZero() bool {
	return k.Name == "" && k.Group == ""
}

// String renders the key as "group.name".
func (k Key) String() string {
	return fmt.Sprintf("%s.%s", k.Group, k.Name)
}

// Less orders keys by group then name. Used for deterministic fire ordering
// of triggers due at the same instant.
func (k Key) Less(other Key) bool {
	if k.Group != other.Group {
		return k.Group < other.Group
	}
	return k.Name < other.Name
}
