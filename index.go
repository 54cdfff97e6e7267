// Package adblock is the core of the ad-blocking filter: it compiles parsed
// filter lists into immutable indexes and classifies web requests against the
// currently published index.
package adblock

import (
	"fmt"

	"github.com/quiterss/adblock/filterlist"
	"github.com/quiterss/adblock/internal/lookup"
	"github.com/quiterss/adblock/rules"
)

// ruleTables is a set of lookup tables for one class of network rules.  The
// order of the tables is important: a rule is added to the first, fastest,
// table that accepts it.
type ruleTables struct {
	domains   *lookup.DomainsTable
	shortcuts *lookup.ShortcutsTable
	seqScan   *lookup.SeqScanTable
}

// newRuleTables returns empty tables that retrieve rules from s.
func newRuleTables(s *filterlist.RuleStorage) (t *ruleTables) {
	return &ruleTables{
		domains:   lookup.NewDomainsTable(s),
		shortcuts: lookup.NewShortcutsTable(s),
		seqScan:   &lookup.SeqScanTable{},
	}
}

// mergeRuleTables returns tables containing the rules of all ts in their
// order.  s must contain the rule lists of all ts.
func mergeRuleTables(s *filterlist.RuleStorage, ts ...*ruleTables) (t *ruleTables) {
	domains := make([]*lookup.DomainsTable, 0, len(ts))
	shortcuts := make([]*lookup.ShortcutsTable, 0, len(ts))
	seqScan := make([]*lookup.SeqScanTable, 0, len(ts))
	for _, other := range ts {
		domains = append(domains, other.domains)
		shortcuts = append(shortcuts, other.shortcuts)
		seqScan = append(seqScan, other.seqScan)
	}

	return &ruleTables{
		domains:   lookup.MergeDomainsTables(s, domains...),
		shortcuts: lookup.MergeShortcutsTables(s, shortcuts...),
		seqScan:   lookup.MergeSeqScanTables(seqScan...),
	}
}

// tables returns the lookup tables in the order they must be tried.
func (t *ruleTables) tables() (tables []lookup.Table) {
	return []lookup.Table{t.domains, t.shortcuts, t.seqScan}
}

// add puts the rule into the first lookup table that accepts it.
func (t *ruleTables) add(f *rules.NetworkRule, storageIdx int64) {
	for _, table := range t.tables() {
		if table.TryAdd(f, storageIdx) {
			return
		}
	}
}

// matchFirst returns the first rule matching r or nil.
func (t *ruleTables) matchFirst(r *rules.Request) (rule *rules.NetworkRule) {
	for _, table := range t.tables() {
		if rule = table.MatchFirst(r); rule != nil {
			return rule
		}
	}

	return nil
}

// matchAll returns all rules matching r.
func (t *ruleTables) matchAll(r *rules.Request) (result []*rules.NetworkRule) {
	for _, table := range t.tables() {
		result = append(result, table.MatchAll(r)...)
	}

	return result
}

// len returns the number of rules in all tables.
func (t *ruleTables) len() (n int) {
	for _, table := range t.tables() {
		n += table.Len()
	}

	return n
}

// Index is the compiled, immutable form of one or several filter lists.  It
// keeps the block rules and the exception rules in separate lookup tables, so
// that the exceptions are only checked after a block rule has matched.  An
// Index is safe for concurrent use.
type Index struct {
	// storage resolves the storage indexes kept in the lookup tables.  Merged
	// indexes share the rule lists of their parts.
	storage *filterlist.RuleStorage

	// block contains the blocking network rules.
	block *ruleTables

	// allow contains the regular exception rules.
	allow *ruleTables

	// document contains the "$document" exceptions, which are also checked
	// against the page that issued the request.
	document *ruleTables

	// page contains the "$elemhide" and "$generichide" exceptions.  They only
	// affect element hiding and never unblock network requests.
	page *ruleTables

	// cosmetic contains the element hiding rules.
	cosmetic *CosmeticIndex
}

// Build compiles the rules of list into a new index.  list may be nil, in
// which case the index is empty.
func Build(list *filterlist.RuleList) (idx *Index) {
	var lists []*filterlist.RuleList
	if list != nil {
		lists = append(lists, list)
	}

	// A single list can't have a duplicate ID.
	s, _ := filterlist.NewRuleStorage(lists...)
	idx = newIndex(s)
	if list == nil {
		return idx
	}

	for offset, r := range list.Rules() {
		idx.addRule(r, filterlist.StorageIdx(list.ID(), offset))
	}

	return idx
}

// newIndex returns an empty index over s.
func newIndex(s *filterlist.RuleStorage) (idx *Index) {
	return &Index{
		storage:  s,
		block:    newRuleTables(s),
		allow:    newRuleTables(s),
		document: newRuleTables(s),
		page:     newRuleTables(s),
		cosmetic: NewCosmeticIndex(),
	}
}

// addRule routes r into the table for its class.
func (idx *Index) addRule(r rules.Rule, storageIdx int64) {
	switch r := r.(type) {
	case *rules.NetworkRule:
		switch {
		case !r.IsException():
			idx.block.add(r, storageIdx)
		case r.IsDocumentException():
			idx.document.add(r, storageIdx)
		case r.IsCosmeticException():
			idx.page.add(r, storageIdx)
		default:
			idx.allow.add(r, storageIdx)
		}
	case *rules.CosmeticRule:
		idx.cosmetic.Add(r)
	default:
		// Other kinds of rules aren't produced by the parser.
	}
}

// Merge combines the indexes into a new one without recompiling or copying
// any rules.  Nil indexes are skipped.  It returns an error if two indexes
// contain rule lists with the same ID.
func Merge(indexes ...*Index) (idx *Index, err error) {
	var storages []*filterlist.RuleStorage
	var block, allow, document, page []*ruleTables
	var cosmetic []*CosmeticIndex
	for _, other := range indexes {
		if other == nil {
			continue
		}

		storages = append(storages, other.storage)
		block = append(block, other.block)
		allow = append(allow, other.allow)
		document = append(document, other.document)
		page = append(page, other.page)
		cosmetic = append(cosmetic, other.cosmetic)
	}

	s, err := filterlist.Merge(storages...)
	if err != nil {
		return nil, fmt.Errorf("merging storages: %w", err)
	}

	return &Index{
		storage:  s,
		block:    mergeRuleTables(s, block...),
		allow:    mergeRuleTables(s, allow...),
		document: mergeRuleTables(s, document...),
		page:     mergeRuleTables(s, page...),
		cosmetic: MergeCosmeticIndexes(cosmetic...),
	}, nil
}

// Match classifies the request.  block is the first blocking rule that
// matches r, and exception is the first exception that cancels it.  Both are
// nil if no blocking rule matches.  documentDomain is the hostname of the page
// that issued the request, it may be empty.
func (idx *Index) Match(
	r *rules.Request,
	documentDomain string,
) (block, exception *rules.NetworkRule) {
	block = idx.block.matchFirst(r)
	if block == nil {
		return nil, nil
	}

	if exception = idx.allow.matchFirst(r); exception != nil {
		return block, exception
	}

	return block, idx.matchDocument(r, documentDomain)
}

// matchDocument returns the first "$document" exception that matches either
// the request itself or the page with the given domain.
func (idx *Index) matchDocument(r *rules.Request, documentDomain string) (rule *rules.NetworkRule) {
	if rule = idx.document.matchFirst(r); rule != nil || documentDomain == "" {
		return rule
	}

	return idx.document.matchFirst(rules.NewDocumentRequest(documentDomain))
}

// pageExceptions returns the "$document", "$elemhide", and "$generichide"
// options that the exceptions matching the page on hostname enable.
func (idx *Index) pageExceptions(hostname string) (document, elemhide, generichide bool) {
	r := rules.NewDocumentRequest(hostname)
	if idx.document.matchFirst(r) != nil {
		return true, false, false
	}

	for _, rule := range idx.page.matchAll(r) {
		elemhide = elemhide || rule.IsOptionEnabled(rules.OptionElemhide)
		generichide = generichide || rule.IsOptionEnabled(rules.OptionGenerichide)
	}

	return false, elemhide, generichide
}

// Cosmetic returns the element hiding rules of the index.
func (idx *Index) Cosmetic() (c *CosmeticIndex) {
	return idx.cosmetic
}

// Storage returns the storage of the rule lists of the index.
func (idx *Index) Storage() (s *filterlist.RuleStorage) {
	return idx.storage
}

// NetworkRulesCount returns the number of network rules in the index.
func (idx *Index) NetworkRulesCount() (n int) {
	return idx.block.len() + idx.allow.len() + idx.document.len() + idx.page.len()
}

// RulesCount returns the total number of rules in the index.
func (idx *Index) RulesCount() (n int) {
	return idx.NetworkRulesCount() + idx.cosmetic.Len()
}
