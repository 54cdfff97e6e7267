package lookup

import (
	"github.com/quiterss/adblock/filterlist"
	"github.com/quiterss/adblock/internal/fasthash"
	"github.com/quiterss/adblock/rules"
)

// DomainsTable is a lookup table that uses the literal hostnames of the
// domain-anchored rules, like "example.org" in "||example.org^", to speed up
// the rules search.  The request hostname and all its parent domains are
// looked up.
type DomainsTable struct {
	// ruleStorage is the storage for the network filtering rules.
	ruleStorage *filterlist.RuleStorage

	// domainsLookupTable is the domain lookup table.  Key is the domain name
	// hash.
	domainsLookupTable map[uint32][]int64

	count int
}

// type check
var _ Table = (*DomainsTable)(nil)

// NewDomainsTable creates a new instance of the DomainsTable.
func NewDomainsTable(rs *filterlist.RuleStorage) (d *DomainsTable) {
	return &DomainsTable{
		ruleStorage:        rs,
		domainsLookupTable: map[uint32][]int64{},
	}
}

// MergeDomainsTables returns a new table that contains the rules of all
// tables.  rs must contain the rule lists of all tables.
func MergeDomainsTables(rs *filterlist.RuleStorage, tables ...*DomainsTable) (d *DomainsTable) {
	d = NewDomainsTable(rs)
	for _, t := range tables {
		appendIndexes(d.domainsLookupTable, t.domainsLookupTable)
		d.count += t.count
	}

	return d
}

// TryAdd implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) TryAdd(f *rules.NetworkRule, storageIdx int64) (ok bool) {
	domain := f.DomainToken()
	if domain == "" {
		return false
	}

	hash := fasthash.String(domain)
	d.domainsLookupTable[hash] = append(d.domainsLookupTable[hash], storageIdx)
	d.count++

	return true
}

// MatchAll implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) MatchAll(r *rules.Request) (result []*rules.NetworkRule) {
	d.match(r, func(rule *rules.NetworkRule) (cont bool) {
		result = append(result, rule)

		return true
	})

	return result
}

// MatchFirst implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) MatchFirst(r *rules.Request) (rule *rules.NetworkRule) {
	d.match(r, func(matched *rules.NetworkRule) (cont bool) {
		rule = matched

		return false
	})

	return rule
}

// Len implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) Len() (n int) {
	return d.count
}

// match calls f for every rule that matches r until f returns false.
func (d *DomainsTable) match(r *rules.Request, f func(rule *rules.NetworkRule) (cont bool)) {
	if r.Hostname == "" {
		return
	}

	for _, domain := range rules.Subdomains(r.Hostname) {
		matchingRules, ok := d.domainsLookupTable[fasthash.String(domain)]
		if !ok {
			continue
		}

		for _, ruleIdx := range matchingRules {
			rule := d.ruleStorage.RetrieveNetworkRule(ruleIdx)
			if rule != nil && rule.Match(r) && !f(rule) {
				return
			}
		}
	}
}
