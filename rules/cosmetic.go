package rules

import (
	"cmp"
	"slices"
	"strings"
)

// cosmeticRuleMarker is a special marker that defines what type of cosmetic
// rule we are dealing with.
type cosmeticRuleMarker string

// cosmeticRuleMarker enumeration.  Only the element hiding markers are
// supported, the rest are recognized so that such rules are not mistaken for
// network rules.
const (
	markerElementHiding                cosmeticRuleMarker = "##"
	markerElementHidingException       cosmeticRuleMarker = "#@#"
	markerElementHidingExtCSS          cosmeticRuleMarker = "#?#"
	markerElementHidingExtCSSException cosmeticRuleMarker = "#@?#"

	markerCSS                cosmeticRuleMarker = "#$#"
	markerCSSException       cosmeticRuleMarker = "#@$#"
	markerCSSExtCSS          cosmeticRuleMarker = "#$?#"
	markerCSSExtCSSException cosmeticRuleMarker = "#@$?#"

	markerJS          cosmeticRuleMarker = "#%#"
	markerJSException cosmeticRuleMarker = "#@%#"

	markerHTML          cosmeticRuleMarker = "$$"
	markerHTMLException cosmeticRuleMarker = "$@$"
)

// cosmeticRuleMarkers contains all possible cosmetic rule markers, the longest
// first so that "#@#" is never taken for "##" by findCosmeticRuleMarker.
var cosmeticRuleMarkers = func() (markers []cosmeticRuleMarker) {
	markers = []cosmeticRuleMarker{
		markerElementHiding, markerElementHidingException,
		markerElementHidingExtCSS, markerElementHidingExtCSSException,
		markerCSS, markerCSSException,
		markerCSSExtCSS, markerCSSExtCSSException,
		markerJS, markerJSException,
		markerHTML, markerHTMLException,
	}

	slices.SortStableFunc(markers, func(a, b cosmeticRuleMarker) (res int) {
		return cmp.Compare(len(b), len(a))
	})

	return markers
}()

// cosmeticRuleMarkersFirstChars are the distinct first characters of the
// markers.
var cosmeticRuleMarkersFirstChars = []byte{'#', '$'}

// CosmeticRule is an element hiding rule: "domains##selector" or, for an
// exception, "domains#@#selector".
type CosmeticRule struct {
	// RuleText is the original rule text.
	RuleText string

	// Selector is the CSS selector of the elements to hide.
	Selector string

	permittedDomains  []string // a list of permitted domains for this rule
	restrictedDomains []string // a list of restricted domains for this rule

	listID int

	// exception means that this rule disables rules with the same selector
	// on the specified domains.
	exception bool
}

// type check
var _ Rule = (*CosmeticRule)(nil)

// NewCosmeticRule parses the rule text and creates a new cosmetic rule.  It
// returns [ErrUnsupportedRule] for extended CSS, CSS injection, scriptlet, and
// HTML filtering rules.
func NewCosmeticRule(ruleText string, listID int) (r *CosmeticRule, err error) {
	index, m := findCosmeticRuleMarker(ruleText)
	if index == -1 {
		return nil, newSyntaxError(ruleText, "cannot find cosmetic marker")
	}

	r = &CosmeticRule{
		RuleText: ruleText,
		listID:   listID,
	}

	switch m {
	case markerElementHiding:
		// Go on.
	case markerElementHidingException:
		r.exception = true
	default:
		return nil, ErrUnsupportedRule
	}

	if index > 0 {
		// The marker is preceded by the list of domains.
		r.permittedDomains, r.restrictedDomains, err = loadDomains(ruleText[:index], ",")
		if err != nil {
			return nil, &RuleSyntaxError{err: err, msg: "cannot load domains", ruleText: ruleText}
		}
	}

	r.Selector = strings.TrimSpace(ruleText[index+len(m):])
	if r.Selector == "" {
		return nil, newSyntaxError(ruleText, "empty selector")
	}

	if r.exception && len(r.permittedDomains) == 0 {
		return nil, newSyntaxError(ruleText, "exception must have at least one domain specified")
	}

	return r, nil
}

// Text implements the [Rule] interface for *CosmeticRule.
func (r *CosmeticRule) Text() (text string) {
	return r.RuleText
}

// ListID implements the [Rule] interface for *CosmeticRule.
func (r *CosmeticRule) ListID() (id int) {
	return r.listID
}

// Kind implements the [Rule] interface for *CosmeticRule.
func (r *CosmeticRule) Kind() (k Kind) {
	if r.exception {
		return KindException
	}

	return KindBlock
}

// String returns original rule text.
func (r *CosmeticRule) String() (s string) {
	return r.RuleText
}

// IsException returns true if this is a "#@#" rule.
func (r *CosmeticRule) IsException() (ok bool) {
	return r.exception
}

// IsGeneric returns true if the rule is not limited to specific domains.
func (r *CosmeticRule) IsGeneric() (ok bool) {
	return len(r.permittedDomains) == 0
}

// PermittedDomains returns the domains this rule is limited to.
func (r *CosmeticRule) PermittedDomains() (domains []string) {
	return r.permittedDomains
}

// RestrictedDomains returns the domains this rule is disabled on.
func (r *CosmeticRule) RestrictedDomains() (domains []string) {
	return r.restrictedDomains
}

// Match returns true if this rule can be used on the specified hostname.
func (r *CosmeticRule) Match(hostname string) (ok bool) {
	if len(r.restrictedDomains) > 0 && isDomainOrSubdomainOfAny(hostname, r.restrictedDomains) {
		return false
	}

	return len(r.permittedDomains) == 0 || isDomainOrSubdomainOfAny(hostname, r.permittedDomains)
}

// isCosmetic checks if this is a cosmetic filtering rule.
func isCosmetic(line string) (ok bool) {
	index, _ := findCosmeticRuleMarker(line)

	return index != -1
}

// findCosmeticRuleMarker looks for a cosmetic rule marker in the rule text and
// returns the start index and the marker found.  The marker must come before
// any options delimiter, so "||example.org^$domain=a##b" stays a network rule.
// If nothing is found, it returns -1.
func findCosmeticRuleMarker(ruleText string) (index int, m cosmeticRuleMarker) {
	dollar := strings.IndexByte(ruleText, optionsDelimiter)

	for _, firstMarkerChar := range cosmeticRuleMarkersFirstChars {
		startIndex := strings.IndexByte(ruleText, firstMarkerChar)
		if startIndex == -1 || (dollar != -1 && startIndex > dollar) {
			continue
		}

		// Handling false positives while looking for cosmetic rules in host
		// files, for instance:
		//
		//	0.0.0.0 jackbootedroom.com  ## phishing
		if startIndex > 0 && ruleText[startIndex-1] == ' ' {
			continue
		}

		for _, marker := range cosmeticRuleMarkers {
			if strings.HasPrefix(ruleText[startIndex:], string(marker)) {
				return startIndex, marker
			}
		}
	}

	return -1, ""
}
