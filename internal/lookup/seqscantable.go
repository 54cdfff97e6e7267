package lookup

import (
	"slices"

	"github.com/quiterss/adblock/rules"
)

// SeqScanTable is basically just a list of network rules that are scanned
// sequentially.  Here we put the rules that are not eligible for other tables,
// for example the regular expression rules.
type SeqScanTable struct {
	rules []*rules.NetworkRule
}

// type check
var _ Table = (*SeqScanTable)(nil)

// MergeSeqScanTables returns a new table that contains the rules of all
// tables in order.
func MergeSeqScanTables(tables ...*SeqScanTable) (s *SeqScanTable) {
	s = &SeqScanTable{}
	for _, t := range tables {
		s.rules = append(s.rules, t.rules...)
	}

	return s
}

// TryAdd implements the [Table] interface for *SeqScanTable.  It always adds
// the rule.
func (s *SeqScanTable) TryAdd(f *rules.NetworkRule, _ int64) (ok bool) {
	s.rules = append(s.rules, f)

	return true
}

// MatchAll implements the [Table] interface for *SeqScanTable.
func (s *SeqScanTable) MatchAll(r *rules.Request) (result []*rules.NetworkRule) {
	for _, rule := range s.rules {
		if rule.Match(r) {
			result = append(result, rule)
		}
	}

	return result
}

// MatchFirst implements the [Table] interface for *SeqScanTable.
func (s *SeqScanTable) MatchFirst(r *rules.Request) (rule *rules.NetworkRule) {
	i := slices.IndexFunc(s.rules, func(rule *rules.NetworkRule) (ok bool) {
		return rule.Match(r)
	})
	if i == -1 {
		return nil
	}

	return s.rules[i]
}

// Len implements the [Table] interface for *SeqScanTable.
func (s *SeqScanTable) Len() (n int) {
	return len(s.rules)
}
