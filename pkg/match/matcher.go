// Package match implements shell-glob filtering of bucket names.
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Errors returned by NameFilter construction.
var (
	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// NameFilter selects buckets whose names match a glob pattern.
//
// Supported syntax is the usual shell set: '*', '?', and bracket classes
// such as [a-z] or [!0-9]. Braces and backslashes are ordinary characters,
// so "prod-{a,b}" matches only that literal name. A NameFilter with an empty pattern matches every
// name. The zero value and a nil *NameFilter both match everything.
//
// NameFilter is safe for concurrent use.
type NameFilter struct {
	pattern string
	glob    string
}

// NewNameFilter validates pattern and returns a filter for it.
func NewNameFilter(pattern string) (*NameFilter, error) {
	glob := shellGlob(pattern)
	if pattern != "" && !doublestar.ValidatePattern(glob) {
		return nil, &PatternError{Pattern: pattern, Err: ErrInvalidPattern}
	}
	return &NameFilter{pattern: pattern, glob: glob}, nil
}

// Pattern returns the raw pattern, or "" when the filter is disabled.
func (f *NameFilter) Pattern() string {
	if f == nil {
		return ""
	}
	return f.pattern
}

// Active reports whether the filter restricts anything.
func (f *NameFilter) Active() bool {
	return f.Pattern() != ""
}

// Match returns true if name passes the filter.
func (f *NameFilter) Match(name string) bool {
	if f == nil || f.pattern == "" {
		return true
	}
	return matchGlob(name, f.glob)
}

// Matches reports whether name matches the glob pattern.
//
// An empty pattern always matches. An invalid pattern never matches.
func Matches(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	return matchGlob(name, shellGlob(pattern))
}

func matchGlob(name, glob string) bool {
	matched, err := doublestar.Match(glob, name)
	if err != nil {
		return false
	}
	return matched
}

// globEscaper turns doublestar's extra metacharacters into literals.
var globEscaper = strings.NewReplacer(`\`, `\\`, `{`, `\{`, `}`, `\}`)

// shellGlob rewrites a shell glob into doublestar syntax.
func shellGlob(pattern string) string {
	return globEscaper.Replace(pattern)
}
