package rules

import (
	"fmt"
	"strings"

	"github.com/quiterss/adblock/internal/ufnet"
)

// Special characters of the basic rule pattern syntax.
const (
	// MaskStartURL is the "||" domain anchor.
	MaskStartURL = "||"

	// MaskPipe is the "|" start or end anchor.
	MaskPipe = "|"

	// MaskSeparator matches any character that is not a letter, a digit, or
	// one of "_.%-", and also the end of the string.
	MaskSeparator = "^"

	// MaskAnyCharacter matches any run of characters.
	MaskAnyCharacter = "*"
)

// partKind is the kind of a pattern part.
type partKind uint8

// partKind values.
const (
	partLiteral partKind = iota
	partWildcard
	partSeparator
)

// part is a single element of a compiled pattern.
type part struct {
	text string
	kind partKind
}

// pattern is a compiled basic (non-regex) rule pattern.
type pattern struct {
	// text is the pattern with the anchors removed.
	text string

	// domain is the literal hostname that follows a "||" anchor, if the
	// pattern continues with a separator, a path, a port, or a query.  It is
	// empty otherwise.
	domain string

	parts []part

	// segments are the parts between the wildcards.
	segments [][]part

	anchorStart  bool
	anchorDomain bool
	anchorEnd    bool
}

// parsePattern compiles text into a pattern.  If matchCase is false, literal
// parts are lowercased and must be matched against a lowercased URL.
func parsePattern(text string, matchCase bool) (p *pattern, err error) {
	p = &pattern{}

	switch {
	case strings.HasPrefix(text, MaskStartURL):
		p.anchorDomain = true
		text = text[len(MaskStartURL):]
	case strings.HasPrefix(text, MaskPipe):
		p.anchorStart = true
		text = text[len(MaskPipe):]
	}

	if strings.HasSuffix(text, MaskPipe) {
		p.anchorEnd = true
		text = text[:len(text)-len(MaskPipe)]
	}

	if p.anchorDomain {
		p.domain, err = domainToken(text, p.anchorEnd)
		if err != nil {
			return nil, err
		}
	}

	p.text = text
	if !matchCase {
		text = strings.ToLower(text)
	}

	p.parts = splitParts(text)
	p.segments = splitSegments(p.parts)

	return p, nil
}

// domainToken returns the literal hostname at the beginning of a
// domain-anchored pattern text.  It returns an error if the hostname contains
// characters that cannot appear in a hostname.  anchorEnd tells if the text is
// followed by an end anchor.
func domainToken(text string, anchorEnd bool) (domain string, err error) {
	end := strings.IndexAny(text, "^/*|:?")
	if end == -1 {
		end = len(text)
	}

	token := text[:end]
	for i := range len(token) {
		if !ufnet.IsHostnameByte(token[i]) {
			return "", fmt.Errorf("invalid character %q in the anchored domain", token[i])
		}
	}

	// Only a token followed by something that cannot continue a hostname
	// denotes a complete hostname.  "||example" also matches "example.org".
	if (end == len(text) && !anchorEnd) || (end < len(text) && text[end] == '*') {
		return "", nil
	}

	return strings.ToLower(token), nil
}

// splitParts splits the pattern text into literals, wildcards, and separators.
// Adjacent wildcards are collapsed into one.
func splitParts(text string) (parts []part) {
	start := 0
	for i := range len(text) {
		var kind partKind
		switch text[i] {
		case '*':
			kind = partWildcard
		case '^':
			kind = partSeparator
		default:
			continue
		}

		if i > start {
			parts = append(parts, part{text: text[start:i], kind: partLiteral})
		}

		start = i + 1
		if kind == partWildcard && len(parts) > 0 && parts[len(parts)-1].kind == partWildcard {
			continue
		}

		parts = append(parts, part{kind: kind})
	}

	if start < len(text) {
		parts = append(parts, part{text: text[start:], kind: partLiteral})
	}

	return parts
}

// isMatchAll returns true if the pattern matches any URL.
func (p *pattern) isMatchAll() (ok bool) {
	for _, pt := range p.parts {
		if pt.kind != partWildcard {
			return false
		}
	}

	return true
}

// match returns true if the pattern matches the URL s.  hostStart and hostEnd
// are the bounds of the hostname inside s.
func (p *pattern) match(s string, hostStart, hostEnd int) (ok bool) {
	switch {
	case p.anchorStart:
		return p.matchFrom(s, 0, false)
	case p.anchorDomain:
		if hostEnd <= hostStart {
			return false
		}

		// The pattern must start at a label boundary of the hostname, never
		// in the middle of a label.
		if p.matchFrom(s, hostStart, false) {
			return true
		}

		for i := hostStart; i < hostEnd; i++ {
			if s[i] == '.' && p.matchFrom(s, i+1, false) {
				return true
			}
		}

		return false
	default:
		return p.matchFrom(s, 0, true)
	}
}

// matchFrom returns true if the pattern matches s starting at position i.  If
// floating is true, the match may also start at any position after i.
//
// The segments between wildcards are matched left to right, each at the
// leftmost position where it fits.  An earlier match never ends later than a
// subsequent one, so the leftmost choice never loses a match, and the time is
// bounded by the length of s times the length of the pattern.
func (p *pattern) matchFrom(s string, i int, floating bool) (ok bool) {
	last := len(p.segments) - 1
	for k, seg := range p.segments {
		floating = floating || k > 0
		if k == last && p.anchorEnd {
			return matchLastSegment(s, i, seg, floating)
		}

		var end int
		if floating {
			end, ok = findSegment(s, i, seg)
		} else {
			end, ok = matchSegment(s, i, seg)
		}

		if !ok {
			return false
		}

		i = end
	}

	return true
}

// matchLastSegment returns true if seg matches s at position i, or at any
// later position if floating is true, and ends exactly at the end of s.
func matchLastSegment(s string, i int, seg []part, floating bool) (ok bool) {
	if !floating {
		end, matched := matchSegment(s, i, seg)

		return matched && end == len(s)
	}

	if len(seg) == 0 {
		// A trailing wildcard absorbs the rest of the string.
		return true
	}

	for j := max(i, len(s)-segmentLen(seg)); j <= len(s); j++ {
		if end, matched := matchSegment(s, j, seg); matched && end == len(s) {
			return true
		}
	}

	return false
}

// findSegment searches for the leftmost match of seg in s starting at position
// i or later.  end is the position right after the match.
func findSegment(s string, i int, seg []part) (end int, ok bool) {
	if len(seg) == 0 {
		return i, true
	}

	if seg[0].kind != partLiteral {
		for j := i; j <= len(s); j++ {
			if end, ok = matchSegment(s, j, seg); ok {
				return end, true
			}
		}

		return 0, false
	}

	lit := seg[0].text
	for j := i; j <= len(s)-len(lit); j++ {
		idx := strings.Index(s[j:], lit)
		if idx == -1 {
			return 0, false
		}

		j += idx
		if end, ok = matchSegment(s, j, seg); ok {
			return end, true
		}
	}

	return 0, false
}

// matchSegment matches the literals and separators of seg against s exactly at
// position i.  end is the position right after the match.
func matchSegment(s string, i int, seg []part) (end int, ok bool) {
	for _, pt := range seg {
		switch pt.kind {
		case partLiteral:
			if !strings.HasPrefix(s[i:], pt.text) {
				return 0, false
			}

			i += len(pt.text)
		case partSeparator:
			if i == len(s) {
				// The separator also matches the end of the string.
				continue
			}

			if !isSeparator(s[i]) {
				return 0, false
			}

			i++
		}
	}

	return i, true
}

// segmentLen returns the maximum number of bytes that seg can match.
func segmentLen(seg []part) (n int) {
	for _, pt := range seg {
		if pt.kind == partLiteral {
			n += len(pt.text)
		} else {
			n++
		}
	}

	return n
}

// splitSegments splits parts into the runs of literals and separators between
// wildcards.  There is always one more segment than there are wildcards, so a
// leading or a trailing wildcard produces an empty segment.
func splitSegments(parts []part) (segments [][]part) {
	start := 0
	for i, pt := range parts {
		if pt.kind == partWildcard {
			segments = append(segments, parts[start:i])
			start = i + 1
		}
	}

	return append(segments, parts[start:])
}

// isSeparator returns true if c matches the "^" separator.
func isSeparator(c byte) (ok bool) {
	switch {
	case
		c >= 'a' && c <= 'z',
		c >= 'A' && c <= 'Z',
		c >= '0' && c <= '9',
		c == '_', c == '.', c == '%', c == '-':
		return false
	default:
		return true
	}
}

// findShortcut searches for the longest substring of the pattern that does not
// contain any of the special characters which are:
//
//	*
//	^
//	|
func findShortcut(pattern string) (shortcut string) {
	for pattern != "" {
		i := strings.IndexAny(pattern, "*^|")
		if i == -1 {
			if len(pattern) > len(shortcut) {
				return pattern
			}

			break
		}

		if i > len(shortcut) {
			shortcut = pattern[:i]
		}

		pattern = pattern[i+1:]
	}

	return shortcut
}
