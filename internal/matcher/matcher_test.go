package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/matcher"
)

func TestGroupMatcher_Operators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		m     matcher.GroupMatcher
		group string
		want  bool
	}{
		{"equals match", matcher.GroupEquals("reports"), "reports", true},
		{"equals mismatch", matcher.GroupEquals("reports"), "reports-eu", false},
		{"starts with match", matcher.GroupStartsWith("reports"), "reports-eu", true},
		{"starts with mismatch", matcher.GroupStartsWith("eu"), "reports-eu", false},
		{"ends with match", matcher.GroupEndsWith("-eu"), "reports-eu", true},
		{"ends with mismatch", matcher.GroupEndsWith("-us"), "reports-eu", false},
		{"contains match", matcher.GroupContains("port"), "reports-eu", true},
		{"contains mismatch", matcher.GroupContains("batch"), "reports-eu", false},
		{"anything matches", matcher.AnyGroup(), "whatever", true},
		{"anything matches empty", matcher.AnyGroup(), "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.m.MatchesGroup(tt.group))
		})
	}
}

func TestGroupMatcher_IsExactGroup(t *testing.T) {
	t.Parallel()

	assert.True(t, matcher.GroupEquals("g").IsExactGroup())
	assert.False(t, matcher.GroupStartsWith("g").IsExactGroup())
	assert.False(t, matcher.AnyGroup().IsExactGroup())
}

func TestKeyEquals(t *testing.T) {
	t.Parallel()

	k, err := domain.NewKey("job1", "g1")
	assert.NoError(t, err)
	other, err := domain.NewKey("job2", "g1")
	assert.NoError(t, err)

	m := matcher.MatchKey(k)
	assert.True(t, m.Matches(k))
	assert.False(t, m.Matches(other))
}

func TestMatchAll(t *testing.T) {
	t.Parallel()

	k, err := domain.NewKey("job1", "reports-eu")
	assert.NoError(t, err)

	assert.True(t, matcher.MatchAll(k, nil), "no matchers accepts everything")
	assert.True(t, matcher.MatchAll(k, []matcher.KeyMatcher{
		matcher.GroupStartsWith("reports"),
		matcher.GroupEndsWith("-eu"),
	}))
	assert.False(t, matcher.MatchAll(k, []matcher.KeyMatcher{
		matcher.GroupStartsWith("reports"),
		matcher.GroupEquals("other"),
	}))
}
