// Package matcher provides the small predicates used to select jobs and
// triggers by key or by group, both for store group operations and for
// listener registrations.
package matcher

import (
	"strings"

	"github.com/jonesrussell/quartz/internal/domain"
)

// StringOp is a comparison operator over group names.
type StringOp string

const (
	OpEquals     StringOp = "EQUALS"
	OpStartsWith StringOp = "STARTS_WITH"
	OpEndsWith   StringOp = "ENDS_WITH"
	OpContains   StringOp = "CONTAINS"
	OpAnything   StringOp = "ANYTHING"
)

// GroupMatcher selects keys by their group name.
type GroupMatcher struct {
	Op    StringOp
	Value string
}

// GroupEquals matches keys in exactly the given group.
func GroupEquals(group string) GroupMatcher {
	return GroupMatcher{Op: OpEquals, Value: group}
}

// GroupStartsWith matches keys whose group has the given prefix.
func GroupStartsWith(prefix string) GroupMatcher {
	return GroupMatcher{Op: OpStartsWith, Value: prefix}
}

// GroupEndsWith matches keys whose group has the given suffix.
func GroupEndsWith(suffix string) GroupMatcher {
	return GroupMatcher{Op: OpEndsWith, Value: suffix}
}

// GroupContains matches keys whose group contains the given substring.
func GroupContains(sub string) GroupMatcher {
	return GroupMatcher{Op: OpContains, Value: sub}
}

// AnyGroup matches every key.
func AnyGroup() GroupMatcher {
	return GroupMatcher{Op: OpAnything}
}

// MatchesGroup applies the operator to a group name.
func (m GroupMatcher) MatchesGroup(group string) bool {
	switch m.Op {
	case OpEquals:
		return group == m.Value
	case OpStartsWith:
		return strings.HasPrefix(group, m.Value)
	case OpEndsWith:
		return strings.HasSuffix(group, m.Value)
	case OpContains:
		return strings.Contains(group, m.Value)
	case OpAnything:
		return true
	default:
		return false
	}
}

// Matches implements KeyMatcher over the key's group.
func (m GroupMatcher) Matches(k domain.Key) bool {
	return m.MatchesGroup(k.Group)
}

// IsExactGroup reports whether the matcher names one group exactly. Stores
// use this to make pausing a named group sticky.
func (m GroupMatcher) IsExactGroup() bool {
	return m.Op == OpEquals
}

// KeyMatcher selects keys for listener registrations.
type KeyMatcher interface {
	Matches(k domain.Key) bool
}

// KeyEquals matches exactly one key.
type KeyEquals struct {
	Key domain.Key
}

// Matches implements KeyMatcher.
func (m KeyEquals) Matches(k domain.Key) bool {
	return k == m.Key
}

// MatchKey builds a KeyEquals matcher.
func MatchKey(k domain.Key) KeyMatcher {
	return KeyEquals{Key: k}
}

// MatchAll returns true only when every matcher accepts the key; an empty
// list accepts everything.
func MatchAll(k domain.Key, matchers []KeyMatcher) bool {
	for _, m := range matchers {
		if !m.Matches(k) {
			return false
		}
	}
	return true
}
