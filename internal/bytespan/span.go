// Package bytespan provides non-owning views into byte slices (Span) and an
// owning, append-oriented buffer (Buffer) that hands out such views.
//
// A Span never owns its bytes. It stays valid only as long as the Buffer (or
// slice) it was taken from is not appended to or reset; callers must copy
// (Clone, String) anything they keep beyond that point.
package bytespan

import (
	"bytes"
	"errors"
)

// ErrOutOfRange is returned when an offset falls outside a span's window.
var ErrOutOfRange = errors.New("bytespan: out of range")

// Span is a read-only window [start, end) into a shared byte slice.
type Span struct {
	buf   []byte
	start int
	end   int
}

// New returns a span covering all of b.
func New(b []byte) Span {
	return Span{buf: b, start: 0, end: len(b)}
}

// FromString returns a span over a copy of s.
func FromString(s string) Span {
	return New([]byte(s))
}

// Len returns the number of bytes in the window.
func (s Span) Len() int { return s.end - s.start }

// IsEmpty reports whether the window holds no bytes.
func (s Span) IsEmpty() bool { return s.end == s.start }

// Bytes returns the window as a slice aliasing the underlying array. The
// capacity is clipped so appending to the result never overwrites bytes
// past the window.
func (s Span) Bytes() []byte { return s.buf[s.start:s.end:s.end] }

// String returns a copy of the window as a string.
func (s Span) String() string { return string(s.Bytes()) }

// Clone returns a copy of the window that no longer aliases the source.
func (s Span) Clone() []byte {
	out := make([]byte, s.Len())
	copy(out, s.Bytes())
	return out
}

// ByteAt returns the byte at offset i of the window.
func (s Span) ByteAt(i int) (byte, error) {
	if i < 0 || i >= s.Len() {
		return 0, ErrOutOfRange
	}
	return s.buf[s.start+i], nil
}

// First returns the first byte of the window, or 0 for an empty window.
func (s Span) First() byte {
	if s.IsEmpty() {
		return 0
	}
	return s.buf[s.start]
}

// Last returns the last byte of the window, or 0 for an empty window.
func (s Span) Last() byte {
	if s.IsEmpty() {
		return 0
	}
	return s.buf[s.end-1]
}

// Slice returns the sub-window [start, end) relative to this window.
func (s Span) Slice(start, end int) (Span, error) {
	if start < 0 || start > end || end > s.Len() {
		return Span{}, ErrOutOfRange
	}
	return Span{buf: s.buf, start: s.start + start, end: s.start + end}, nil
}

// SliceFrom returns the sub-window starting at start.
func (s Span) SliceFrom(start int) (Span, error) {
	return s.Slice(start, s.Len())
}

// head and tail are the unchecked forms used internally once bounds are known.
func (s Span) head(n int) Span { return Span{buf: s.buf, start: s.start, end: s.start + n} }
func (s Span) tail(n int) Span { return Span{buf: s.buf, start: s.start + n, end: s.end} }

// IndexByte returns the offset of the first c at or after from, or -1.
func (s Span) IndexByte(c byte, from int) int {
	if from < 0 {
		from = 0
	}
	if from >= s.Len() {
		return -1
	}
	i := bytes.IndexByte(s.buf[s.start+from:s.end], c)
	if i < 0 {
		return -1
	}
	return from + i
}

// LastIndexByte returns the offset of the last c strictly before the offset
// before, or -1. Pass Len() to search the whole window.
func (s Span) LastIndexByte(c byte, before int) int {
	if before > s.Len() {
		before = s.Len()
	}
	if before <= 0 {
		return -1
	}
	return bytes.LastIndexByte(s.buf[s.start:s.start+before], c)
}

// IndexFold returns the offset of the first ASCII case-insensitive match of
// pattern at or after from, or -1. An empty pattern matches at from.
func (s Span) IndexFold(pattern []byte, from int) int {
	if from < 0 {
		from = 0
	}
	n := len(pattern)
	if n == 0 {
		if from <= s.Len() {
			return from
		}
		return -1
	}
	w := s.Bytes()
	for i := from; i+n <= len(w); i++ {
		if equalFold(w[i:i+n], pattern) {
			return i
		}
	}
	return -1
}

// HasPrefixFold reports whether the window starts with prefix, ignoring
// ASCII case.
func (s Span) HasPrefixFold(prefix string) bool {
	if len(prefix) > s.Len() {
		return false
	}
	return equalFoldString(s.buf[s.start:s.start+len(prefix)], prefix)
}

// HasPrefix reports whether the window starts with prefix exactly.
func (s Span) HasPrefix(prefix []byte) bool {
	return bytes.HasPrefix(s.Bytes(), prefix)
}

// HasSuffix reports whether the window ends with suffix exactly.
func (s Span) HasSuffix(suffix []byte) bool {
	return bytes.HasSuffix(s.Bytes(), suffix)
}

// Equal reports whether the window holds exactly b.
func (s Span) Equal(b []byte) bool {
	return bytes.Equal(s.Bytes(), b)
}

// TrimRightN drops at most n trailing bytes that are space or tab.
func (s Span) TrimRightN(n int) Span {
	end := s.end
	for i := 0; i < n && end > s.start && isBlank(s.buf[end-1]); i++ {
		end--
	}
	return Span{buf: s.buf, start: s.start, end: end}
}

// TrimSpace drops leading and trailing spaces and tabs.
func (s Span) TrimSpace() Span {
	start, end := s.start, s.end
	for start < end && isBlank(s.buf[start]) {
		start++
	}
	for end > start && isBlank(s.buf[end-1]) {
		end--
	}
	return Span{buf: s.buf, start: start, end: end}
}

// IsBlank reports whether the window is empty or holds only spaces and tabs.
func (s Span) IsBlank() bool {
	return s.TrimSpace().IsEmpty()
}

// Cut splits the window around the first c. The separator is in neither
// half. ok is false when c does not occur.
func (s Span) Cut(c byte) (before, after Span, ok bool) {
	i := s.IndexByte(c, 0)
	if i < 0 {
		return s, Span{}, false
	}
	return s.head(i), s.tail(i + 1), true
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func equalFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if lower(a[i]) != lower(b[i]) {
			return false
		}
	}
	return true
}

func equalFoldString(a []byte, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if lower(a[i]) != lower(b[i]) {
			return false
		}
	}
	return true
}
