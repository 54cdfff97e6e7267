package adblock

import (
	"strings"

	"github.com/AdguardTeam/golibs/container"
	"github.com/quiterss/adblock/rules"
)

// cosmeticRules is a lookup structure for one class of element hiding rules.
type cosmeticRules struct {
	// byDomain contains the rules keyed by their permitted domains.  A rule
	// with several permitted domains is added under each of them.
	byDomain map[string][]*rules.CosmeticRule

	// wildcard contains the rules with a "domain.*" permitted domain.  These
	// can't be keyed by the request hostname, so they are scanned.
	wildcard []*rules.CosmeticRule

	// generic contains the rules without permitted domains.  Exceptions are
	// never generic.
	generic []*rules.CosmeticRule
}

// add puts r into the structure.
func (c *cosmeticRules) add(r *rules.CosmeticRule) {
	if r.IsGeneric() {
		c.generic = append(c.generic, r)

		return
	}

	addedWildcard := false
	for _, d := range r.PermittedDomains() {
		if strings.HasSuffix(d, ".*") {
			if !addedWildcard {
				c.wildcard = append(c.wildcard, r)
				addedWildcard = true
			}

			continue
		}

		c.byDomain[d] = append(c.byDomain[d], r)
	}
}

// merge appends the rules of other to c.
func (c *cosmeticRules) merge(other *cosmeticRules) {
	for d, rs := range other.byDomain {
		c.byDomain[d] = append(c.byDomain[d], rs...)
	}

	c.wildcard = append(c.wildcard, other.wildcard...)
	c.generic = append(c.generic, other.generic...)
}

// appendSelectors appends the selectors of the rules applicable to hostname to
// sels, skipping the ones already in seen.  Generic rules are only used if
// withGeneric is true.
func (c *cosmeticRules) appendSelectors(
	sels []string,
	seen *container.MapSet[string],
	hostname string,
	withGeneric bool,
) (res []string) {
	res = sels
	add := func(r *rules.CosmeticRule) {
		if !seen.Has(r.Selector) && r.Match(hostname) {
			seen.Add(r.Selector)
			res = append(res, r.Selector)
		}
	}

	if withGeneric {
		for _, r := range c.generic {
			add(r)
		}
	}

	for _, d := range rules.Subdomains(hostname) {
		for _, r := range c.byDomain[d] {
			add(r)
		}
	}

	for _, r := range c.wildcard {
		add(r)
	}

	return res
}

// CosmeticIndex contains the element hiding rules and answers which CSS
// selectors apply to a page.  It is immutable once it is published in an
// [Index].
type CosmeticIndex struct {
	hide       *cosmeticRules
	exceptions *cosmeticRules

	count int
}

// NewCosmeticIndex returns a new empty *CosmeticIndex.
func NewCosmeticIndex() (c *CosmeticIndex) {
	return &CosmeticIndex{
		hide: &cosmeticRules{
			byDomain: map[string][]*rules.CosmeticRule{},
		},
		exceptions: &cosmeticRules{
			byDomain: map[string][]*rules.CosmeticRule{},
		},
	}
}

// MergeCosmeticIndexes returns a new index with the rules of all indexes in
// their order.
func MergeCosmeticIndexes(indexes ...*CosmeticIndex) (c *CosmeticIndex) {
	c = NewCosmeticIndex()
	for _, other := range indexes {
		c.hide.merge(other.hide)
		c.exceptions.merge(other.exceptions)
		c.count += other.count
	}

	return c
}

// Add puts r into the index.  It must not be called after the index has been
// published.
func (c *CosmeticIndex) Add(r *rules.CosmeticRule) {
	if r.IsException() {
		c.exceptions.add(r)
	} else {
		c.hide.add(r)
	}

	c.count++
}

// Len returns the number of rules in the index.
func (c *CosmeticIndex) Len() (n int) {
	return c.count
}

// Selectors returns the CSS selectors of the elements that must be hidden on
// the page with the given hostname, in the order of the rules.  Selectors
// disabled by "#@#" exceptions for the hostname are excluded.  Generic
// selectors, the ones without domain restrictions, are only included if
// withGeneric is true.
func (c *CosmeticIndex) Selectors(hostname string, withGeneric bool) (sels []string) {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))

	disabled := container.NewMapSet[string]()
	c.exceptions.appendSelectors(nil, disabled, hostname, false)

	// Treat the disabled selectors as already seen so that they're skipped.
	return c.hide.appendSelectors(nil, disabled, hostname, withGeneric)
}
