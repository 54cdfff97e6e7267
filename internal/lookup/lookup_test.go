package lookup_test

import (
	"testing"

	"github.com/quiterss/adblock/filterlist"
	"github.com/quiterss/adblock/internal/lookup"
	"github.com/quiterss/adblock/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testListID is the rule list ID for tests.
const testListID = 1

// Common domains for tests.
const (
	testDomain      = "domain.example"
	testDomainNoMod = "nomod.domain.example"
	testDomainSub   = "sub.domain.example"
)

// Common rules for tests.
const (
	testRule                = "||" + testDomain + "^"
	testRuleNoDomain        = "||" + testDomainNoMod + "^"
	testRuleNoShortcutsTiny = "||tiny^"
	testRuleNoShortcutsURL  = "|ws://^"
	testRuleWithDomain      = "||" + testDomainSub + "^$domain=" + testDomain
	testRuleRegex           = "/domain\\.example\\/[a-z]+\\.js/"
)

// Common text rules for tests.
const (
	testRuleText                = testRule + "\n"
	testRuleTextNoDomain        = testRuleNoDomain + "\n"
	testRuleTextNoShortcutsTiny = testRuleNoShortcutsTiny + "\n"
	testRuleTextNoShortcutsURL  = testRuleNoShortcutsURL + "\n"
	testRuleTextWithDomain      = testRuleWithDomain + "\n"

	testRuleTextAll = testRuleText +
		testRuleTextNoDomain +
		testRuleTextNoShortcutsTiny +
		testRuleTextNoShortcutsURL +
		testRuleTextWithDomain
)

// Common URL strings for tests.
const (
	testURLStrNoDomain      = "https://" + testDomainNoMod + "/"
	testURLStrNoMatch       = "https://no-match.example/"
	testURLStrWithDomain    = "https://" + testDomain + "/"
	testURLStrWithSubdomain = "https://" + testDomainSub + "/"
)

// newStorage is a helper that creates a rule storage for tests with the given
// rule text.
func newStorage(tb testing.TB, text string) (s *filterlist.RuleStorage) {
	tb.Helper()

	return newStorageWithID(tb, testListID, text)
}

// newStorageWithID is a helper that creates a rule storage with a single list
// with the given ID and rule text.
func newStorageWithID(tb testing.TB, id int, text string) (s *filterlist.RuleStorage) {
	tb.Helper()

	l := filterlist.NewRuleList(id, text, nil)
	require.Zero(tb, l.ParseErrors())

	s, err := filterlist.NewRuleStorage(l)
	require.NoError(tb, err)

	return s
}

// ruleTexts returns the texts of rs.
func ruleTexts(rs []*rules.NetworkRule) (texts []string) {
	for _, r := range rs {
		texts = append(texts, r.Text())
	}

	return texts
}

// assertMatch is a helper for matching rules in the table.  If wantRuleTexts
// is empty, it asserts that no rules are returned.
func assertMatch(
	tb testing.TB,
	tbl lookup.Table,
	r *rules.Request,
	wantRuleTexts ...string,
) {
	tb.Helper()

	gotRules := tbl.MatchAll(r)
	first := tbl.MatchFirst(r)

	if len(wantRuleTexts) == 0 {
		assert.Empty(tb, gotRules)
		assert.Nil(tb, first)

		return
	}

	assert.Equal(tb, wantRuleTexts, ruleTexts(gotRules))

	require.NotNil(tb, first)
	assert.Contains(tb, wantRuleTexts, first.Text())
}

// assertRuleIsAdded is a helper to assert if a single rule has been added to
// tbl.
func assertRuleIsAdded(
	tb testing.TB,
	tbl lookup.Table,
	s *filterlist.RuleStorage,
	want assert.BoolAssertionFunc,
) {
	tb.Helper()

	var num int
	for _, l := range s.Lists() {
		for i, r := range l.Rules() {
			num++

			want(tb, tbl.TryAdd(r.(*rules.NetworkRule), filterlist.StorageIdx(l.ID(), i)))
		}
	}

	assert.Equal(tb, 1, num)
}

// loadTable is a helper that loads rules from s to tbl.
func loadTable(tb testing.TB, tbl lookup.Table, s *filterlist.RuleStorage) {
	tb.Helper()

	for _, l := range s.Lists() {
		for i, r := range l.Rules() {
			if nr, ok := r.(*rules.NetworkRule); ok {
				_ = tbl.TryAdd(nr, filterlist.StorageIdx(l.ID(), i))
			}
		}
	}
}
