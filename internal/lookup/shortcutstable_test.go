package lookup_test

import (
	"testing"

	"github.com/quiterss/adblock/filterlist"
	"github.com/quiterss/adblock/internal/lookup"
	"github.com/quiterss/adblock/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortcutsTable_TryAdd(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want assert.BoolAssertionFunc
		name string
		text string
	}{{
		want: assert.False,
		name: "no_shortcuts",
		text: testRuleTextNoShortcutsTiny,
	}, {
		want: assert.False,
		name: "no_shortcuts_url",
		text: testRuleTextNoShortcutsURL,
	}, {
		want: assert.False,
		name: "regex",
		text: testRuleRegex + "\n",
	}, {
		want: assert.True,
		name: "success",
		text: testRuleText,
	}, {
		want: assert.True,
		name: "plain",
		text: "/banner/ads\n",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newStorage(t, tc.text)
			tbl := lookup.NewShortcutsTable(s)
			assertRuleIsAdded(t, tbl, s, tc.want)
		})
	}
}

func TestShortcutsTable_MatchAll(t *testing.T) {
	t.Parallel()

	s := newStorage(t, testRuleTextAll)
	tbl := lookup.NewShortcutsTable(s)
	loadTable(t, tbl, s)

	assert.Equal(t, 3, tbl.Len())

	testCases := []struct {
		name          string
		urlStr        string
		wantRuleTexts []string
	}{{
		name:          "no_match",
		urlStr:        testURLStrNoMatch,
		wantRuleTexts: nil,
	}, {
		name:          "match",
		urlStr:        testURLStrWithDomain,
		wantRuleTexts: []string{testRule},
	}, {
		name:          "repeating_pattern",
		urlStr:        testURLStrWithDomain + "?r=https://" + testDomain + "/",
		wantRuleTexts: []string{testRule},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := rules.NewRequest(tc.urlStr, "", rules.TypeOther)
			assertMatch(t, tbl, r, tc.wantRuleTexts...)
		})
	}
}

func TestMergeShortcutsTables(t *testing.T) {
	t.Parallel()

	s1 := newStorageWithID(t, 1, "/banner/ads\n")
	s2 := newStorageWithID(t, 2, "-advert-\n")

	tbl1 := lookup.NewShortcutsTable(s1)
	loadTable(t, tbl1, s1)

	tbl2 := lookup.NewShortcutsTable(s2)
	loadTable(t, tbl2, s2)

	s, err := filterlist.Merge(s1, s2)
	require.NoError(t, err)

	tbl := lookup.MergeShortcutsTables(s, tbl1, tbl2)
	assert.Equal(t, 2, tbl.Len())

	r := rules.NewRequest("https://example.org/banner/ads/-advert-.png", "", rules.TypeImage)
	assert.ElementsMatch(t, []string{"/banner/ads", "-advert-"}, ruleTexts(tbl.MatchAll(r)))
}

func BenchmarkShortcutsTable_MatchAll(b *testing.B) {
	s := newStorage(b, testRuleTextAll)
	tbl := lookup.NewShortcutsTable(s)
	loadTable(b, tbl, s)

	r := rules.NewRequest(testURLStrWithDomain, "", rules.TypeOther)

	var gotRules []*rules.NetworkRule

	b.ReportAllocs()
	for b.Loop() {
		gotRules = tbl.MatchAll(r)
	}

	require.Len(b, gotRules, 1)
}
