// Package filter implements the unpacker's file-selection shapes: accept
// everything, accept by folder prefix with optional path stripping, or
// accept by regular expression over the whole path. See spec section 4.10.
package filter

import "regexp"

// Filter decides whether a given inner path should be unpacked, and what
// path it should be emitted under.
type Filter interface {
	// Accept reports whether path passes the filter, and the path the
	// caller should use when emitting the matched entry.
	Accept(path string) (emitPath string, ok bool)
}

// All accepts every path unchanged.
type All struct{}

// Accept always returns path unchanged.
func (All) Accept(path string) (string, bool) { return path, true }

// Prefix accepts paths beginning with Path, optionally stripping that
// prefix from the emitted path.
type Prefix struct {
	Path  string
	Strip bool
}

// Accept reports a match when path has the configured prefix.
func (p Prefix) Accept(path string) (string, bool) {
	if len(path) < len(p.Path) || path[:len(p.Path)] != p.Path {
		return "", false
	}
	if p.Strip {
		return path[len(p.Path):], true
	}
	return path, true
}

// Regex accepts paths matching Pattern anywhere in the whole path.
type Regex struct {
	Pattern *regexp.Regexp
}

// NewRegex compiles pattern into a Regex filter.
func NewRegex(pattern string) (Regex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Regex{}, err
	}
	return Regex{Pattern: re}, nil
}

// Accept reports a match when path satisfies the compiled pattern.
func (r Regex) Accept(path string) (string, bool) {
	if r.Pattern.MatchString(path) {
		return path, true
	}
	return "", false
}
