// Package rules contains the filtering rule types and the parser that turns a
// single filter list line into a rule.
package rules

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/quiterss/adblock/internal/ufnet"
)

// ErrMalformed is the error that all rule syntax errors unwrap to.  A malformed
// line must be skipped and counted, but it never aborts compilation of the
// remaining list.
const ErrMalformed errors.Error = "malformed rule"

// ErrUnsupportedRule signals that this might be a valid rule of a syntax
// extension that is not supported here, for example an extended CSS cosmetic
// rule.  Unsupported rules are skipped without being counted as malformed.
const ErrUnsupportedRule errors.Error = "this type of rules is unsupported"

// ErrTooWideRule is returned if the rule matches all URLs but has no domain
// restrictions.  Such rules are skipped as unsupported.
const ErrTooWideRule errors.Error = "the rule is too wide, add domain restrictions " +
	"or make it more specific"

// RuleSyntaxError represents an error while parsing a filtering rule.
type RuleSyntaxError struct {
	// err is the underlying error, if any.
	err error

	msg      string
	ruleText string
}

// newSyntaxError returns a new *RuleSyntaxError for ruleText.
func newSyntaxError(ruleText, msg string) (err *RuleSyntaxError) {
	return &RuleSyntaxError{
		msg:      msg,
		ruleText: ruleText,
	}
}

// type check
var _ error = (*RuleSyntaxError)(nil)

// Error implements the error interface for *RuleSyntaxError.
func (e *RuleSyntaxError) Error() (msg string) {
	if e.err != nil {
		return fmt.Sprintf("syntax error: %s: %s, rule: %s", e.msg, e.err, e.ruleText)
	}

	return fmt.Sprintf("syntax error: %s, rule: %s", e.msg, e.ruleText)
}

// type check
var _ errors.Wrapper = (*RuleSyntaxError)(nil)

// Unwrap implements the [errors.Wrapper] interface for *RuleSyntaxError.  It
// always returns an error that matches [ErrMalformed] with [errors.Is].
func (e *RuleSyntaxError) Unwrap() (unwrapped error) {
	if e.err != nil {
		return errors.Join(ErrMalformed, e.err)
	}

	return ErrMalformed
}

// RuleText returns the text of the rule that failed to parse.
func (e *RuleSyntaxError) RuleText() (text string) {
	return e.ruleText
}

// Kind is the kind of a filtering rule.
type Kind uint8

// Kind values.
const (
	// KindBlock is a rule that suppresses the matching request or element.
	KindBlock Kind = iota

	// KindException is an "@@" or "#@#" rule that vetoes a matching block
	// rule.
	KindException
)

// String implements the [fmt.Stringer] interface for Kind.
func (k Kind) String() (s string) {
	switch k {
	case KindBlock:
		return "block"
	case KindException:
		return "exception"
	default:
		return fmt.Sprintf("!bad_kind_%d", uint8(k))
	}
}

// Rule is a base interface for all filtering rules.
type Rule interface {
	// Text returns the original rule text.
	Text() (text string)

	// ListID returns ID of the filter list this rule belongs to.
	ListID() (id int)

	// Kind returns the kind of the rule.
	Kind() (k Kind)
}

// NewRule creates a new filtering rule from the specified line.  It returns
// nil and no error if the line is empty, a comment, or a list header.  The
// error for a malformed line matches [ErrMalformed].  The error for a rule
// that is valid but cannot be used matches [ErrUnsupportedRule] instead.
func NewRule(line string, listID int) (r Rule, err error) {
	line = strings.TrimSpace(line)

	if line == "" || isComment(line) || IsHeader(line) {
		return nil, nil
	}

	if isCosmetic(line) {
		cr, cErr := NewCosmeticRule(line, listID)
		if cErr != nil {
			return nil, cErr
		}

		return cr, nil
	}

	nr, err := NewNetworkRule(line, listID)
	if err != nil {
		return nil, err
	}

	return nr, nil
}

// IsHeader returns true if line is a list header, such as "[Adblock Plus 2.0]".
func IsHeader(line string) (ok bool) {
	return len(line) > 1 && line[0] == '[' && line[len(line)-1] == ']'
}

// isComment checks if the line is a comment.
func isComment(line string) (ok bool) {
	if line == "" {
		return false
	}

	switch line[0] {
	case '!':
		return true
	case '#':
		// "##banner" and "#@#banner" are cosmetic rules, not comments.
		_, marker := findCosmeticRuleMarker(line)

		return marker == "" || !strings.HasPrefix(line, string(marker))
	default:
		return false
	}
}

// loadDomains loads $domain modifier or cosmetic rules domains.  sep is the
// separator character; for network rules it is "|", for cosmetic it is ",".
// The domains are returned in lower case.
func loadDomains(domains, sep string) (permitted, restricted []string, err error) {
	if domains == "" {
		return nil, nil, errors.Error("no domains specified")
	}

	for _, d := range strings.Split(domains, sep) {
		d = strings.ToLower(strings.TrimSpace(d))
		isRestricted := strings.HasPrefix(d, "~")
		if isRestricted {
			d = d[1:]
		}

		if !ufnet.IsDomainName(d) && !isWildcardTLDDomain(d) {
			return nil, nil, fmt.Errorf("invalid domain %q", d)
		}

		if isRestricted {
			restricted = append(restricted, d)
		} else {
			permitted = append(permitted, d)
		}
	}

	return permitted, restricted, nil
}

// isWildcardTLDDomain returns true if d is a pattern like "google.*".
func isWildcardTLDDomain(d string) (ok bool) {
	base, found := strings.CutSuffix(d, ".*")

	return found && ufnet.IsDomainLabel(base[strings.LastIndexByte(base, '.')+1:])
}
