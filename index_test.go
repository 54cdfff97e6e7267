package adblock_test

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/filterlist"
	"github.com/quiterss/adblock/rules"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(
		t,
		testListID,
		"! Title: Test",
		"||example.org^",
		"/banner/*/img^",
		`/ad\d+\.js/`,
		"@@||example.org/ok^",
		"@@||example.org^$document",
		"@@||example.org^$elemhide",
		"##.ad",
		"example.org#@#.ad",
	)

	assert.Equal(t, 6, idx.NetworkRulesCount())
	assert.Equal(t, 8, idx.RulesCount())
	assert.Equal(t, 2, idx.Cosmetic().Len())
	require.Len(t, idx.Storage().Lists(), 1)
}

func TestBuild_empty(t *testing.T) {
	t.Parallel()

	for name, l := range map[string]*filterlist.RuleList{
		"nil":      nil,
		"empty":    filterlist.NewRuleList(testListID, "", nil),
		"comments": filterlist.NewRuleList(testListID, "! a\n[Adblock Plus 2.0]\n", nil),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			idx := adblock.Build(l)
			require.NotNil(t, idx)

			assert.Zero(t, idx.RulesCount())

			r := rules.NewRequest("http://example.org/", "", rules.TypeDocument)
			block, exception := idx.Match(r, "")
			assert.Nil(t, block)
			assert.Nil(t, exception)
			assert.Empty(t, idx.Cosmetic().Selectors("example.org", true))
		})
	}
}

func TestIndex_Match_order(t *testing.T) {
	t.Parallel()

	// All three rules match the request, the domain table is tried first.
	idx := newTestIndex(t, testListID, `/ad[s]\//`, "ads/1", "||example.org/ads/")

	r := rules.NewRequest("http://example.org/ads/1.png", "", rules.TypeImage)
	block, exception := idx.Match(r, "")
	require.NotNil(t, block)

	assert.Equal(t, "||example.org/ads/", block.Text())
	assert.Nil(t, exception)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	first := newTestIndex(t, 1, "||ads.test^", "##.ad")
	second := newTestIndex(t, 2, "@@||ads.test^$domain=news.test", "news.test#@#.ad")

	merged, err := adblock.Merge(first, nil, second)
	require.NoError(t, err)

	assert.Equal(t, first.RulesCount()+second.RulesCount(), merged.RulesCount())
	assert.Len(t, merged.Storage().Lists(), 2)

	r := rules.NewRequest("http://ads.test/x.js", "news.test", rules.TypeScript)

	block, exception := first.Match(r, r.SourceHostname)
	require.NotNil(t, block)
	assert.Nil(t, exception)

	mergedBlock, mergedException := merged.Match(r, r.SourceHostname)
	require.NotNil(t, mergedException)

	// The rules are shared, not copied.
	assert.Same(t, block, mergedBlock)
	assert.Equal(t, 2, mergedException.ListID())

	assert.Equal(t, []string{".ad"}, first.Cosmetic().Selectors("news.test", true))
	assert.Empty(t, merged.Cosmetic().Selectors("news.test", true))
	assert.Equal(t, []string{".ad"}, merged.Cosmetic().Selectors("other.test", true))
}

func TestMerge_empty(t *testing.T) {
	t.Parallel()

	idx, err := adblock.Merge()
	require.NoError(t, err)

	assert.Zero(t, idx.RulesCount())
}

func TestMerge_duplicateID(t *testing.T) {
	t.Parallel()

	first := newTestIndex(t, 1, "||ads.test^")
	second := newTestIndex(t, 1, "||tracker.test^")

	_, err := adblock.Merge(first, second)
	assert.ErrorIs(t, err, errors.ErrDuplicated)
}

func TestMerge_matchesLikeBuild(t *testing.T) {
	t.Parallel()

	lines := []string{
		"||ads.test^",
		"/banner/",
		"-ad-unit-",
		`/track\d+/`,
		"@@||ads.test/ok/",
		"@@||news.test^$document",
	}

	// Compile every rule into its own list and merge the results.
	parts := make([]*adblock.Index, 0, len(lines))
	for i, l := range lines {
		parts = append(parts, newTestIndex(t, i+1, l))
	}

	merged, err := adblock.Merge(parts...)
	require.NoError(t, err)

	whole := newTestIndex(t, testListID, lines...)

	testCases := []struct {
		url       string
		docDomain string
	}{{
		url:       "http://ads.test/x.js",
		docDomain: "",
	}, {
		url:       "http://ads.test/ok/x.js",
		docDomain: "",
	}, {
		url:       "http://cdn.test/banner/1.gif",
		docDomain: "blog.test",
	}, {
		url:       "http://cdn.test/a-ad-unit-b",
		docDomain: "news.test",
	}, {
		url:       "http://cdn.test/track12",
		docDomain: "blog.test",
	}, {
		url:       "http://cdn.test/clean.js",
		docDomain: "blog.test",
	}}

	for _, tc := range testCases {
		r := rules.NewRequest(tc.url, tc.docDomain, rules.TypeScript)

		wantBlock, wantException := whole.Match(r, tc.docDomain)
		gotBlock, gotException := merged.Match(r, tc.docDomain)

		assert.Equal(t, ruleText(wantBlock), ruleText(gotBlock), tc.url)
		assert.Equal(t, ruleText(wantException), ruleText(gotException), tc.url)
	}
}

// ruleText returns the text of r or an empty string if r is nil.
func ruleText(r *rules.NetworkRule) (text string) {
	if r == nil {
		return ""
	}

	return r.Text()
}

func TestIndex_memory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping memory test in short mode")
	}

	const n = 50_000

	b := &strings.Builder{}
	for i := range n {
		switch i % 4 {
		case 0:
			_, _ = fmt.Fprintf(b, "||ads%d.example^\n", i)
		case 1:
			_, _ = fmt.Fprintf(b, "/banner%d/*$image\n", i)
		case 2:
			_, _ = fmt.Fprintf(b, "@@||cdn%d.example^$script\n", i)
		default:
			_, _ = fmt.Fprintf(b, "site%d.example##.ad-%d\n", i, i)
		}
	}

	heapBefore, rssBefore := alloc(t)

	l := filterlist.NewRuleList(testListID, b.String(), nil)
	require.Equal(t, n, l.Len())

	idx := adblock.Build(l)
	require.Equal(t, n, idx.RulesCount())

	heapAfter, rssAfter := alloc(t)
	t.Logf(
		"rules: %d, heap: %d KiB -> %d KiB, rss: %d KiB -> %d KiB",
		n,
		heapBefore,
		heapAfter,
		rssBefore,
		rssAfter,
	)

	r := rules.NewRequest("http://ads400.example/x.js", "", rules.TypeScript)
	block, _ := idx.Match(r, "")
	require.NotNil(t, block)

	assert.Equal(t, "||ads400.example^", block.Text())

	runtime.KeepAlive(idx)
}

// alloc returns the heap and RSS memory sizes, in kibibytes.
func alloc(tb testing.TB) (heap, rss uint64) {
	tb.Helper()

	runtime.GC()

	p, err := process.NewProcess(int32(os.Getpid()))
	require.NoError(tb, err)

	mi, err := p.MemoryInfo()
	require.NoError(tb, err)

	ms := &runtime.MemStats{}
	runtime.ReadMemStats(ms)

	return ms.Alloc / 1024, mi.RSS / 1024
}

func BenchmarkMatcher_Classify(b *testing.B) {
	lines := make([]string, 0, 10_000)
	for i := range 10_000 {
		lines = append(lines, fmt.Sprintf("||ads%d.example^", i), fmt.Sprintf("/path%d/banner", i))
	}

	m := newTestMatcher(b, nil, lines...)
	ctx := testContext(b)
	fc := &adblock.FilterContext{
		URL:            "http://cdn.example/path42/banner.gif",
		DocumentDomain: "news.example",
		ResourceType:   rules.TypeImage,
	}

	var d adblock.Decision

	b.ReportAllocs()
	for b.Loop() {
		d = m.Classify(ctx, fc)
	}

	require.Equal(b, adblock.DecisionBlock, d)
}
