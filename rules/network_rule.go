package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/quiterss/adblock/internal/ufnet"
)

const (
	maskWhiteList    = "@@"
	maskRegexRule    = "/"
	optionsDelimiter = '$'
	escapeCharacter  = '\\'
)

// NetworkRuleOption is the enumeration of various rule options.  In order to
// save memory, we store some options as a flag.
type NetworkRuleOption uint32

// NetworkRuleOption enumeration.
const (
	OptionThirdParty NetworkRuleOption = 1 << iota // $third-party modifier
	OptionMatchCase                                // $match-case modifier

	// Exception rules modifiers.  Each of them disables a part of the
	// filtering on the matching pages.

	OptionDocument    // $document modifier
	OptionElemhide    // $elemhide modifier
	OptionGenerichide // $generichide modifier

	// OptionWhitelistOnly are the options that only make sense in exception
	// rules.
	OptionWhitelistOnly = OptionElemhide | OptionGenerichide
)

// Count returns the count of enabled options.
func (o NetworkRuleOption) Count() (n int) {
	return RequestType(o).Count()
}

// NetworkRule is a basic filtering rule, either a blocking rule or an "@@"
// exception.
type NetworkRule struct {
	// RuleText is the original rule text.
	RuleText string

	// Shortcut is the longest substring of the rule pattern with no special
	// characters, in lower case.  It is empty for regex rules.
	Shortcut string

	// regex is the compiled regular expression of a "/…/" rule.
	regex *regexp.Regexp

	// pattern is the compiled basic pattern of a non-regex rule.
	pattern *pattern

	// regexText is the verbatim interior of a regex rule.
	regexText string

	permittedDomains  []string // a list of permitted domains from the $domain modifier
	restrictedDomains []string // a list of restricted domains from the $domain modifier

	// unknownOptions are the option names that are not recognized.  They are
	// kept for diagnostics and do not affect matching.
	unknownOptions []string

	listID int

	enabledOptions  NetworkRuleOption // Flag with all enabled rule options
	disabledOptions NetworkRuleOption // Flag with all disabled rule options

	permittedRequestTypes  RequestType // Flag with all permitted request types. 0 means ALL.
	restrictedRequestTypes RequestType // Flag with all restricted request types. 0 means NONE.

	exception bool
}

// type check
var _ Rule = (*NetworkRule)(nil)

// NewNetworkRule parses the rule text and returns a filter rule.  An error for
// a malformed rule is a *RuleSyntaxError.  A rule that matches every URL and
// has no domain restrictions is rejected with an error that matches both
// [ErrUnsupportedRule] and [ErrTooWideRule].
func NewNetworkRule(ruleText string, listID int) (r *NetworkRule, err error) {
	patternText, options, exception, err := parseRuleText(ruleText)
	if err != nil {
		return nil, err
	}

	r = &NetworkRule{
		RuleText:  ruleText,
		exception: exception,
		listID:    listID,
	}

	err = r.loadOptions(options)
	if err != nil {
		return nil, &RuleSyntaxError{err: err, msg: "bad options", ruleText: ruleText}
	}

	if isRegexPattern(patternText) {
		err = r.compileRegex(patternText)
	} else {
		err = r.compilePattern(patternText)
	}
	if err != nil {
		return nil, &RuleSyntaxError{err: err, msg: "bad pattern", ruleText: ruleText}
	}

	if r.isTooWide() {
		return nil, fmt.Errorf("%w: %w: %q", ErrUnsupportedRule, ErrTooWideRule, ruleText)
	}

	return r, nil
}

// compileRegex compiles the interior of a "/…/" pattern.  Regular expressions
// are case-insensitive unless the $match-case modifier is set.
func (f *NetworkRule) compileRegex(patternText string) (err error) {
	f.regexText = patternText[len(maskRegexRule) : len(patternText)-len(maskRegexRule)]
	if f.regexText == "" {
		return fmt.Errorf("empty regular expression")
	}

	expr := f.regexText
	if !f.IsOptionEnabled(OptionMatchCase) {
		expr = "(?i)" + expr
	}

	f.regex, err = regexp.Compile(expr)

	return err
}

// compilePattern compiles a basic pattern and loads its shortcut.
func (f *NetworkRule) compilePattern(patternText string) (err error) {
	f.pattern, err = parsePattern(patternText, f.IsOptionEnabled(OptionMatchCase))
	if err != nil {
		return err
	}

	if shortcut := findShortcut(f.pattern.text); len(shortcut) > 1 {
		f.Shortcut = strings.ToLower(shortcut)
	}

	return nil
}

// isTooWide returns true if the rule matches every URL and has no domain
// restrictions.
func (f *NetworkRule) isTooWide() (ok bool) {
	if f.regex != nil || len(f.permittedDomains) > 0 {
		return false
	}

	return f.pattern.isMatchAll()
}

// Text implements the [Rule] interface for *NetworkRule.
func (f *NetworkRule) Text() (text string) {
	return f.RuleText
}

// ListID implements the [Rule] interface for *NetworkRule.
func (f *NetworkRule) ListID() (id int) {
	return f.listID
}

// Kind implements the [Rule] interface for *NetworkRule.
func (f *NetworkRule) Kind() (k Kind) {
	if f.exception {
		return KindException
	}

	return KindBlock
}

// String returns original rule text.
func (f *NetworkRule) String() (s string) {
	return f.RuleText
}

// IsException returns true if this is an "@@" rule.
func (f *NetworkRule) IsException() (ok bool) {
	return f.exception
}

// IsRegexRule returns true if rule's pattern is a regular expression.
func (f *NetworkRule) IsRegexRule() (ok bool) {
	return f.regex != nil
}

// Pattern returns the normalized pattern: the interior of a regex rule or the
// basic pattern with the anchors removed.
func (f *NetworkRule) Pattern() (p string) {
	if f.regex != nil {
		return f.regexText
	}

	return f.pattern.text
}

// Anchors returns the anchoring flags of a basic pattern.
func (f *NetworkRule) Anchors() (start, domain, end bool) {
	if f.pattern == nil {
		return false, false, false
	}

	return f.pattern.anchorStart, f.pattern.anchorDomain, f.pattern.anchorEnd
}

// DomainToken returns the complete literal hostname of a "||" rule, for
// example "example.org" for "||example.org^".  It is empty if the rule has no
// such hostname.
func (f *NetworkRule) DomainToken() (domain string) {
	if f.pattern == nil {
		return ""
	}

	return f.pattern.domain
}

// PermittedDomains returns the domains this rule is allowed on.
func (f *NetworkRule) PermittedDomains() (domains []string) {
	return f.permittedDomains
}

// RestrictedDomains returns the domains this rule is disabled on.
func (f *NetworkRule) RestrictedDomains() (domains []string) {
	return f.restrictedDomains
}

// RequestTypes returns the permitted and restricted request type masks.
func (f *NetworkRule) RequestTypes() (permitted, restricted RequestType) {
	return f.permittedRequestTypes, f.restrictedRequestTypes
}

// UnknownOptions returns the unrecognized option names in source order.
func (f *NetworkRule) UnknownOptions() (names []string) {
	return f.unknownOptions
}

// IsOptionEnabled returns true if the specified option is enabled.
func (f *NetworkRule) IsOptionEnabled(option NetworkRuleOption) (ok bool) {
	return (f.enabledOptions & option) == option
}

// IsOptionDisabled returns true if the specified option is disabled.
func (f *NetworkRule) IsOptionDisabled(option NetworkRuleOption) (ok bool) {
	return (f.disabledOptions & option) == option
}

// IsDocumentException returns true if the rule is an exception that applies to
// the whole page the request was made from, for example
// "@@||example.org^$document".
func (f *NetworkRule) IsDocumentException() (ok bool) {
	return f.exception && f.IsOptionEnabled(OptionDocument)
}

// IsCosmeticException returns true if the rule is an exception that only
// disables element hiding on the matching pages, for example
// "@@||example.org^$elemhide".
func (f *NetworkRule) IsCosmeticException() (ok bool) {
	return f.exception &&
		!f.IsOptionEnabled(OptionDocument) &&
		f.enabledOptions&OptionWhitelistOnly != 0
}

// IsGeneric returns true if the rule is not restricted to a limited set of
// domains.
func (f *NetworkRule) IsGeneric() (ok bool) {
	return len(f.permittedDomains) == 0
}

// Match checks if this filtering rule matches the specified request.  The
// cheap option checks come first, the pattern test is the last one.
func (f *NetworkRule) Match(r *Request) (ok bool) {
	switch {
	case
		!f.matchSourceDomain(r.SourceHostname),
		f.IsOptionEnabled(OptionThirdParty) && !r.ThirdParty,
		f.IsOptionDisabled(OptionThirdParty) && r.ThirdParty,
		!f.matchRequestType(r.RequestType),
		!f.matchShortcut(r),
		!f.matchPattern(r):
		return false
	}

	return true
}

// matchShortcut simply checks if shortcut is a substring of the URL.
func (f *NetworkRule) matchShortcut(r *Request) (ok bool) {
	return strings.Contains(r.URLLowerCase, f.Shortcut)
}

// matchPattern tests the pattern or the regular expression against the URL.
func (f *NetworkRule) matchPattern(r *Request) (ok bool) {
	if f.regex != nil {
		return f.regex.MatchString(r.URL)
	}

	if !f.IsOptionEnabled(OptionMatchCase) {
		return f.pattern.match(r.URLLowerCase, r.hostStart, r.hostEnd)
	}

	start, end := ufnet.HostnameBounds(r.URL)

	return f.pattern.match(r.URL, start, end)
}

// matchSourceDomain checks if the specified filtering rule is allowed on this
// domain e.g. it checks the domain against what's specified in the $domain
// modifier.
func (f *NetworkRule) matchSourceDomain(domain string) (ok bool) {
	if len(f.permittedDomains) == 0 && len(f.restrictedDomains) == 0 {
		return true
	}

	if len(f.restrictedDomains) > 0 && isDomainOrSubdomainOfAny(domain, f.restrictedDomains) {
		// Domain or host is restricted, i.e. $domain=~example.org.
		return false
	}

	if len(f.permittedDomains) > 0 && !isDomainOrSubdomainOfAny(domain, f.permittedDomains) {
		// Domain is not among permitted, i.e. $domain=example.org and we're
		// checking example.com.
		return false
	}

	return true
}

// matchRequestType checks if the specified request type matches the rule
// properties.
func (f *NetworkRule) matchRequestType(requestType RequestType) (ok bool) {
	if f.permittedRequestTypes != 0 && (f.permittedRequestTypes&requestType) != requestType {
		return false
	}

	if f.restrictedRequestTypes != 0 && (f.restrictedRequestTypes&requestType) == requestType {
		return false
	}

	return true
}

// setRequestType permits or forbids the specified request type.
func (f *NetworkRule) setRequestType(requestType RequestType, permitted bool) {
	if permitted {
		f.permittedRequestTypes |= requestType
	} else {
		f.restrictedRequestTypes |= requestType
	}
}

// setOptionEnabled enables or disables the specified option.  It returns an
// error if this option cannot be used with this type of rules.
func (f *NetworkRule) setOptionEnabled(option NetworkRuleOption, enabled bool) (err error) {
	if !f.exception && (option&OptionWhitelistOnly) == option {
		return fmt.Errorf("modifier cannot be used in a blocking rule: %d", option)
	}

	if enabled {
		f.enabledOptions |= option
	} else {
		f.disabledOptions |= option
	}

	return nil
}

// loadOptions loads all the filtering rule options.  Options are
// comma-separated "name", "~name", or "name=value" entries.
func (f *NetworkRule) loadOptions(options string) (err error) {
	if options == "" {
		return nil
	}

	for _, option := range splitWithEscapeCharacter(options, ',', escapeCharacter, true) {
		name, value, hasValue := strings.Cut(strings.TrimSpace(option), "=")
		name = strings.ToLower(name)
		if name == "" || name == "~" {
			return fmt.Errorf("empty option in %q", options)
		}

		if hasValue {
			err = f.loadValueOption(name, value)
		} else {
			err = f.loadFlagOption(name)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// loadValueOption loads an option that has a value.
func (f *NetworkRule) loadValueOption(name, value string) (err error) {
	switch name {
	case "domain":
		f.permittedDomains, f.restrictedDomains, err = loadDomains(value, "|")

		return err
	default:
		if _, isFlag := flagOptionName(name); isFlag {
			return fmt.Errorf("modifier %q does not accept a value", name)
		}

		f.unknownOptions = append(f.unknownOptions, name)

		return nil
	}
}

// flagOptionName returns the option name without the negation and true if the
// option is a known flag option.
func flagOptionName(name string) (base string, ok bool) {
	base = strings.TrimPrefix(name, "~")
	switch base {
	case
		"third-party", "first-party", "3p", "1p",
		"match-case",
		"elemhide", "generichide":
		return base, true
	default:
		_, ok = requestTypeNames[base]

		return base, ok
	}
}

// loadFlagOption loads an option without a value.
func (f *NetworkRule) loadFlagOption(name string) (err error) {
	base, negated := strings.CutPrefix(name, "~")

	switch base {
	case "third-party", "3p":
		return f.setOptionEnabled(OptionThirdParty, !negated)
	case "first-party", "1p":
		return f.setOptionEnabled(OptionThirdParty, negated)
	case "match-case":
		return f.setOptionEnabled(OptionMatchCase, !negated)
	case "elemhide":
		return f.setOptionEnabled(OptionElemhide, !negated)
	case "generichide":
		return f.setOptionEnabled(OptionGenerichide, !negated)
	case "document":
		f.setRequestType(TypeDocument, !negated)
		if f.exception && !negated {
			return f.setOptionEnabled(OptionDocument, true)
		}

		return nil
	}

	if t, ok := requestTypeNames[base]; ok {
		f.setRequestType(t, !negated)

		return nil
	}

	f.unknownOptions = append(f.unknownOptions, name)

	return nil
}

// isRegexPattern returns true if the pattern is delimited by slashes.
func isRegexPattern(pattern string) (ok bool) {
	return len(pattern) > 1 &&
		strings.HasPrefix(pattern, maskRegexRule) &&
		strings.HasSuffix(pattern, maskRegexRule)
}

// parseRuleText splits the rule text in multiple parts:
//
//   - pattern is a basic rule pattern or a regular expression;
//   - options is a string with all rule options;
//   - exception tells if the rule is an "@@" rule.
func parseRuleText(ruleText string) (pattern, options string, exception bool, err error) {
	startIndex := 0
	if strings.HasPrefix(ruleText, maskWhiteList) {
		exception = true
		startIndex = len(maskWhiteList)
	}

	if len(ruleText) <= startIndex {
		return "", "", false, newSyntaxError(ruleText, "the rule is too short")
	}

	pattern = ruleText[startIndex:]

	// Avoid parsing options inside of a regex rule.
	if isRegexPattern(pattern) {
		return pattern, "", exception, nil
	}

	for i := len(ruleText) - 1; i >= startIndex; i-- {
		if ruleText[i] != optionsDelimiter || (i > startIndex && ruleText[i-1] == escapeCharacter) {
			continue
		}

		pattern = ruleText[startIndex:i]
		options = ruleText[i+1:]
		if options == "" {
			return "", "", false, newSyntaxError(ruleText, "empty options")
		}

		break
	}

	pattern = strings.ReplaceAll(pattern, `\$`, "$")

	return pattern, options, exception, nil
}
