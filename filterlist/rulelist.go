// Package filterlist compiles filter list text into rule arenas and combines
// the arenas into a storage addressed by rule indexes.
package filterlist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/quiterss/adblock/rules"
)

// DefaultMaxErrors is the default number of the parse errors kept for display.
const DefaultMaxErrors = 20

// MaxLineLength is the maximum length of a single line of a filter list.
const MaxLineLength = 64 * 1024

// utf8BOM is the UTF-8 byte order mark that some editors put at the beginning
// of text files.
const utf8BOM = "\uFEFF"

// Config is the configuration structure for a rule list.
type Config struct {
	// Disabled contains the texts of the rules that must be excluded from the
	// list.  It may be nil.
	Disabled *container.MapSet[string]

	// MaxErrors is the number of parse errors kept in the list.  If it is
	// zero, [DefaultMaxErrors] is used.  The total number of errors is always
	// counted.
	MaxErrors int
}

// Metadata is the information about a filter list taken from its header and
// special comments.
type Metadata struct {
	// Header is the "[Adblock Plus 2.0]" line, if any.
	Header string

	// Title is the value of the "! Title:" comment.
	Title string

	// Version is the value of the "! Version:" comment.
	Version string

	// Expires is the value of the "! Expires:" comment, for example
	// "4 days (update frequency)".
	Expires string

	// Homepage is the value of the "! Homepage:" comment.
	Homepage string
}

// RuleList is the arena of the rules of a single filter list.  Rules are kept
// in the source order and addressed by their offset.  A RuleList is immutable
// after it is created and is safe for concurrent use.
type RuleList struct {
	rules  []rules.Rule
	errors []error

	meta Metadata

	id int

	errorCount  int
	unsupported int
	disabled    int
}

// NewRuleList compiles text into a new rule list with the given ID.  conf may
// be nil.  Malformed lines are counted and skipped.
func NewRuleList(id int, text string, conf *Config) (l *RuleList) {
	l, err := ParseReader(id, strings.NewReader(text), conf)
	if err != nil {
		// Only a line longer than [MaxLineLength] can stop the scanner on a
		// string reader, so keep what has been parsed so far.
		l.addError(err, conf)
	}

	return l
}

// ParseReader compiles the text read from r into a new rule list with the
// given ID.  conf may be nil.  The returned list is never nil, and err is only
// returned if reading fails, in which case the list contains the rules parsed
// up to that point.
func ParseReader(id int, r io.Reader, conf *Config) (l *RuleList, err error) {
	l = &RuleList{
		id: id,
	}

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), MaxLineLength)

	first := true
	for s.Scan() {
		line := s.Text()
		if first {
			line = strings.TrimPrefix(line, utf8BOM)
			first = false
		}

		l.parseLine(line, conf)
	}

	err = s.Err()
	if err != nil {
		return l, fmt.Errorf("reading list %d: %w", id, err)
	}

	return l, nil
}

// parseLine parses a single line and adds the result to the list.
func (l *RuleList) parseLine(line string, conf *Config) {
	line = strings.TrimSpace(line)
	if l.parseMetadata(line) {
		return
	}

	r, err := rules.NewRule(line, l.id)
	switch {
	case errors.Is(err, rules.ErrUnsupportedRule):
		l.unsupported++
	case err != nil:
		l.addError(err, conf)
	case r == nil:
		// Comment or empty line.
	case conf != nil && conf.Disabled != nil && conf.Disabled.Has(r.Text()):
		l.disabled++
	default:
		l.rules = append(l.rules, r)
	}
}

// parseMetadata records the list metadata and returns true if line is a
// header or a metadata comment.
func (l *RuleList) parseMetadata(line string) (ok bool) {
	if rules.IsHeader(line) {
		if l.meta.Header == "" {
			l.meta.Header = line
		}

		return true
	}

	comment, ok := strings.CutPrefix(line, "!")
	if !ok {
		return false
	}

	key, val, ok := strings.Cut(comment, ":")
	if !ok {
		return true
	}

	val = strings.TrimSpace(val)
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "title":
		l.meta.Title = val
	case "version":
		l.meta.Version = val
	case "expires":
		l.meta.Expires = val
	case "homepage":
		l.meta.Homepage = val
	default:
		// Other comments.
	}

	return true
}

// addError counts err and keeps it if there is still room.
func (l *RuleList) addError(err error, conf *Config) {
	l.errorCount++

	maxErrors := DefaultMaxErrors
	if conf != nil && conf.MaxErrors > 0 {
		maxErrors = conf.MaxErrors
	}

	if len(l.errors) < maxErrors {
		l.errors = append(l.errors, err)
	}
}

// ID returns the rule list identifier.
func (l *RuleList) ID() (id int) {
	return l.id
}

// Len returns the number of rules in the list.
func (l *RuleList) Len() (n int) {
	return len(l.rules)
}

// Rule returns the rule at offset.
func (l *RuleList) Rule(offset int) (r rules.Rule, err error) {
	if offset < 0 || offset >= len(l.rules) {
		return nil, fmt.Errorf("list %d: offset %d: %w", l.id, offset, errors.ErrOutOfRange)
	}

	return l.rules[offset], nil
}

// Rules returns the rules of the list in the source order.  The caller must
// not modify the returned slice.
func (l *RuleList) Rules() (rs []rules.Rule) {
	return l.rules
}

// Metadata returns the information from the list header.
func (l *RuleList) Metadata() (m Metadata) {
	return l.meta
}

// ParseErrors returns the total number of malformed lines.
func (l *RuleList) ParseErrors() (n int) {
	return l.errorCount
}

// Errors returns the first parse errors of the list.
func (l *RuleList) Errors() (errs []error) {
	return l.errors
}

// Unsupported returns the number of skipped rules of unsupported kinds.
func (l *RuleList) Unsupported() (n int) {
	return l.unsupported
}

// Disabled returns the number of rules excluded because they are disabled.
func (l *RuleList) Disabled() (n int) {
	return l.disabled
}

// IsAdblockHeader returns true if the first meaningful line of text, after any
// byte order mark and blank lines, is an "[Adblock …]" header.
func IsAdblockHeader(text []byte) (ok bool) {
	text = bytes.TrimPrefix(text, []byte(utf8BOM))
	text = bytes.TrimLeft(text, " \t\r\n")

	return bytes.HasPrefix(text, []byte("[Adblock"))
}
