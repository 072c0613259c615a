package content

import (
	"strings"
	"unicode/utf8"
)

// scanner walks generated text looking for asterisk marker runs.
//
// Matching is positional: every extractor tries start offsets left to right
// and takes the first one whose markers close on the same line. Captures are
// lazy (shortest closing marker wins) and may not span a line terminator.
// Because single, double, triple and quadruple markers share one character,
// a title pair can be satisfied by the inside of a longer run; that
// behavior is intentional and relied upon by stored newsletters.
type scanner struct {
	text string
	// eol[i] is true when byte i belongs to a line terminator.
	eol []bool
}

func newScanner(text string) *scanner {
	eol := make([]bool, len(text))
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if isLineTerminator(r) {
			for k := i; k < i+size; k++ {
				eol[k] = true
			}
		}
		i += size
	}
	return &scanner{text: text, eol: eol}
}

func (s *scanner) hasMarker(at int, marker string) bool {
	return at >= 0 && at <= len(s.text) && strings.HasPrefix(s.text[at:], marker)
}

// closing finds the first offset q >= from where marker starts, such that
// text[from:q] holds no line terminator. Returns -1 when the line ends first.
func (s *scanner) closing(from int, marker string) int {
	for q := from; q <= len(s.text); q++ {
		if q > from && s.eol[q-1] {
			return -1
		}
		if s.hasMarker(q, marker) {
			return q
		}
	}
	return -1
}

// enclosed returns the first capture bracketed by marker on both sides.
func (s *scanner) enclosed(marker string) (string, bool) {
	for i := 0; i+len(marker) <= len(s.text); i++ {
		if !s.hasMarker(i, marker) {
			continue
		}
		from := i + len(marker)
		if q := s.closing(from, marker); q >= 0 {
			return s.text[from:q], true
		}
	}
	return "", false
}

type sectionMatch struct {
	subtitle  string
	paragraph string
	end       int
}

// sectionAt tries to match `**subtitle**`, optional whitespace, then
// `***paragraph***` starting exactly at offset i.
func (s *scanner) sectionAt(i int) (sectionMatch, bool) {
	if !s.hasMarker(i, "**") {
		return sectionMatch{}, false
	}
	subStart := i + 2
	// The subtitle grows one byte at a time until the remainder matches or
	// the subtitle would cross a line terminator.
	for j := subStart; j <= len(s.text); j++ {
		if j > subStart && s.eol[j-1] {
			break
		}
		if !s.hasMarker(j, "**") {
			continue
		}
		for _, w := range s.whitespaceStops(j + 2) {
			if !s.hasMarker(w, "***") {
				continue
			}
			paraStart := w + 3
			if q := s.closing(paraStart, "***"); q >= 0 {
				return sectionMatch{
					subtitle:  s.text[subStart:j],
					paragraph: s.text[paraStart:q],
					end:       q + 3,
				}, true
			}
		}
	}
	return sectionMatch{}, false
}

// whitespaceStops lists the offsets reachable by consuming whitespace from
// `from`, longest run first, so callers try greedy before backing off.
func (s *scanner) whitespaceStops(from int) []int {
	stops := []int{from}
	for at := from; at < len(s.text); {
		r, size := utf8.DecodeRuneInString(s.text[at:])
		if !isSpace(r) {
			break
		}
		at += size
		stops = append(stops, at)
	}
	for l, r := 0, len(stops)-1; l < r; l, r = l+1, r-1 {
		stops[l], stops[r] = stops[r], stops[l]
	}
	return stops
}

// sections collects every non-overlapping section match in order.
func (s *scanner) sections() []sectionMatch {
	var out []sectionMatch
	for i := 0; i < len(s.text); {
		m, ok := s.sectionAt(i)
		if !ok {
			i++
			continue
		}
		out = append(out, m)
		i = m.end
	}
	return out
}

func isLineTerminator(r rune) bool {
	switch r {
	case '\n', '\r', '\u2028', '\u2029':
		return true
	}
	return false
}

// isSpace matches the ECMAScript whitespace and line terminator set.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', '\u00a0', '\u1680',
		'\u2028', '\u2029', '\u202f', '\u205f', '\u3000', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200a'
}

func trim(s string) string { return strings.TrimFunc(s, isSpace) }
