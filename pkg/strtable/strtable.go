// Package strtable implements the name-section parser (spec section 4.2)
// and the interned string handle used throughout the BLK tree (spec section
// 3, "Strings").
package strtable

import (
	"strings"
	"unicode/utf8"
)

// Handle is a refcounted-by-value interned string. Two Handles built from
// identical bytes compare equal; Handles are hashable and orderable because
// the underlying Go string already is.
type Handle string

// String returns the handle's text.
func (h Handle) String() string { return string(h) }

// Less orders handles lexically by byte value, matching the source's
// byte-wise comparison (no locale).
func (h Handle) Less(other Handle) bool { return string(h) < string(other) }

// Intern returns a Handle for s. Go's string interning at the runtime level
// means repeated Intern calls with equal contents share the backing array
// when they originate from slicing the same buffer; callers that want that
// sharing should slice names directly out of the owned buffer rather than
// copying through fmt or string concatenation.
func Intern(s string) Handle { return Handle(s) }

// ParseNames splits a run of null-terminated strings into an ordered
// sequence of handles. A trailing zero byte need not end the buffer -
// parsing simply stops once count names have been read, or at the end of
// the buffer if count is negative (meaning "read until exhausted").
//
// Invalid UTF-8 is tolerated: offending bytes are replaced with the Unicode
// replacement character rather than raising an error, per spec section 4.2.
func ParseNames(data []byte, count int) []Handle {
	var names []Handle
	if count >= 0 {
		names = make([]Handle, 0, count)
	}

	start := 0
	for start < len(data) && (count < 0 || len(names) < count) {
		end := start
		for end < len(data) && data[end] != 0 {
			end++
		}
		names = append(names, Intern(sanitizeUTF8(data[start:end])))
		start = end + 1
	}
	return names
}

// sanitizeUTF8 returns s with every invalid byte sequence replaced by
// utf8.RuneError's string form (U+FFFD), leaving valid runs untouched.
func sanitizeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			sb.WriteRune(utf8.RuneError)
			b = b[1:]
			continue
		}
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
