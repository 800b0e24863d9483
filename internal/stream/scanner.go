package stream

import "bytes"

// Matcher holds the per-session state of a Predicate. Feed is called with
// every forwarded chunk in order; Matched reports whether the condition has
// been observed so far. Once true it stays true.
type Matcher interface {
	Feed(chunk []byte)
	Matched() bool
}

// Predicate creates a fresh Matcher for each stream session.
type Predicate func() Matcher

// MarkerPredicate matches when marker occurs anywhere in the stream,
// including across chunk boundaries. Each matcher retains at most
// max(window, len(marker)) trailing bytes between chunks.
func MarkerPredicate(marker []byte, window int) Predicate {
	m := bytes.Clone(marker)
	return func() Matcher {
		return newScanner(m, window)
	}
}

// Scanner is the bounded substring matcher behind MarkerPredicate.
type Scanner struct {
	marker  []byte
	keep    int
	buf     []byte
	matched bool
}

func newScanner(marker []byte, window int) *Scanner {
	return &Scanner{
		marker: marker,
		keep:   max(window, len(marker)),
	}
}

func (s *Scanner) Feed(chunk []byte) {
	if s.matched || len(chunk) == 0 {
		return
	}
	if len(s.marker) == 0 {
		s.matched = true
		return
	}

	s.buf = append(s.buf, chunk...)
	if bytes.Contains(s.buf, s.marker) {
		s.matched = true
		s.buf = nil
		return
	}

	if over := len(s.buf) - s.keep; over > 0 {
		n := copy(s.buf, s.buf[over:])
		s.buf = s.buf[:n]
	}
}

func (s *Scanner) Matched() bool { return s.matched }

// Retained reports how many bytes are buffered between chunks.
func (s *Scanner) Retained() int { return len(s.buf) }

// Reset discards the window. A latched match is kept.
func (s *Scanner) Reset() { s.buf = nil }
