// Package lookup implements index structures that we use to improve matching
// speed in the matcher.
package lookup

import "github.com/quiterss/adblock/rules"

// Table is a common interface for all lookup tables.
type Table interface {
	// TryAdd attempts to add the rule to the lookup table.  It returns
	// true/false depending on whether the rule is eligible for this lookup
	// table.
	TryAdd(f *rules.NetworkRule, storageIdx int64) (ok bool)

	// MatchAll finds all matching rules from this lookup table.
	MatchAll(r *rules.Request) (result []*rules.NetworkRule)

	// MatchFirst returns the first matching rule from this lookup table in the
	// order the rules were added, or nil if there is none.
	MatchFirst(r *rules.Request) (rule *rules.NetworkRule)

	// Len returns the number of rules in the table.
	Len() (n int)
}

// appendIndexes adds the values of src to dst, keeping the order of the
// indexes for each key.
func appendIndexes[K comparable](dst, src map[K][]int64) {
	for k, v := range src {
		dst[k] = append(dst[k], v...)
	}
}

// ruleIn checks if the particular rule instance is contained by the slice of
// pointers.
func ruleIn(rule *rules.NetworkRule, rs []*rules.NetworkRule) (ok bool) {
	for _, r := range rs {
		if r == rule {
			return true
		}
	}

	return false
}
