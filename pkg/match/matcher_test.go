package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		pattern  string
		expected bool
	}{
		{"prefix star match", "prod-logs-2024", "prod-*", true},
		{"prefix star no match", "dev-logs", "prod-*", false},
		{"empty pattern matches all", "anything", "", true},
		{"exact literal", "assets", "assets", true},
		{"exact literal mismatch", "assets-2", "assets", false},
		{"question mark single char", "logs-a", "logs-?", true},
		{"question mark needs one char", "logs-", "logs-?", false},
		{"bracket class", "logs-7", "logs-[0-9]", true},
		{"bracket class miss", "logs-x", "logs-[0-9]", false},
		{"negated bracket class", "logs-x", "logs-[!0-9]", true},
		{"suffix star", "team-a-backups", "*-backups", true},
		{"middle star", "prod-eu-data", "prod-*-data", true},
		{"case sensitive", "Prod-logs", "prod-*", false},
		{"invalid pattern never matches", "logs-1", "logs-[", false},
		{"braces do not alternate", "prod-a", "prod-{a,b}", false},
		{"braces match literally", "prod-{a,b}", "prod-{a,b}", true},
		{"backslash is literal", `logs\1`, `logs\1`, true},
		{"backslash does not escape", "logs*", `logs\*`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Matches(tt.bucket, tt.pattern))
		})
	}
}

func TestNewNameFilter(t *testing.T) {
	t.Run("valid pattern", func(t *testing.T) {
		f, err := NewNameFilter("prod-*")
		require.NoError(t, err)
		assert.True(t, f.Active())
		assert.Equal(t, "prod-*", f.Pattern())
		assert.True(t, f.Match("prod-a"))
		assert.False(t, f.Match("dev-a"))
	})

	t.Run("empty pattern disables filter", func(t *testing.T) {
		f, err := NewNameFilter("")
		require.NoError(t, err)
		assert.False(t, f.Active())
		assert.True(t, f.Match("whatever"))
	})

	t.Run("braces are literal", func(t *testing.T) {
		f, err := NewNameFilter("prod-{a,b}")
		require.NoError(t, err)
		assert.False(t, f.Match("prod-a"))
		assert.True(t, f.Match("prod-{a,b}"))
		assert.Equal(t, "prod-{a,b}", f.Pattern())
	})

	t.Run("invalid pattern", func(t *testing.T) {
		f, err := NewNameFilter("data-[")
		require.Error(t, err)
		assert.Nil(t, f)
		assert.True(t, errors.Is(err, ErrInvalidPattern))
		assert.IsType(t, &PatternError{}, err)
		assert.Contains(t, err.Error(), "data-[")
	})

	t.Run("nil filter matches everything", func(t *testing.T) {
		var f *NameFilter
		assert.False(t, f.Active())
		assert.True(t, f.Match("x"))
	})
}
