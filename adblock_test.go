package adblock_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/filterlist"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testListID is the ID of the rule list used in tests.
const testListID = 1

// testLogger is the common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// newTestIndex compiles the lines into an index of the list with the given
// ID.
func newTestIndex(tb testing.TB, id int, lines ...string) (idx *adblock.Index) {
	tb.Helper()

	l := filterlist.NewRuleList(id, strings.Join(lines, "\n"), nil)
	require.Zero(tb, l.ParseErrors(), "errors: %v", l.Errors())

	return adblock.Build(l)
}

// newTestMatcher returns a matcher with the index compiled from lines.
func newTestMatcher(tb testing.TB, conf *adblock.MatcherConfig, lines ...string) (m *adblock.Matcher) {
	tb.Helper()

	if conf == nil {
		conf = &adblock.MatcherConfig{}
	}

	if conf.Logger == nil {
		conf.Logger = testLogger
	}

	m = adblock.NewMatcher(conf)
	m.SetIndex(testContext(tb), newTestIndex(tb, testListID, lines...))

	return m
}

// testContext returns a context that is cancelled after [testTimeout].
func testContext(tb testing.TB) (ctx context.Context) {
	tb.Helper()

	return testutil.ContextWithTimeout(tb, testTimeout)
}
