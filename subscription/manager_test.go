package subscription_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/rules"
	"github.com/quiterss/adblock/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAdURL is the URL of a request blocked by [testListText].
const testAdURL = "https://ads.example/banner.js"

// newTestManager returns a started manager keeping its data in dataDir.  The
// manager is shut down on cleanup.
func newTestManager(
	t *testing.T,
	dataDir string,
	defaults ...subscription.CatalogEntry,
) (m *subscription.Manager, matcher *adblock.Matcher) {
	t.Helper()

	matcher = adblock.NewMatcher(&adblock.MatcherConfig{
		Logger: testLogger,
	})

	m, err := subscription.NewManager(&subscription.ManagerConfig{
		Logger:          testLogger,
		Matcher:         matcher,
		HTTPClient:      newTestClient(),
		DataDir:         dataDir,
		Defaults:        defaults,
		RefreshInterval: time.Hour,
		RefreshTimeout:  testTimeout,
		MaxSize:         subscription.DefaultMaxSize,
	})
	require.NoError(t, err)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, m.Start(ctx))

	testutil.CleanupAndRequireSuccess(t, func() (err error) {
		return m.Shutdown(context.Background())
	})

	return m, matcher
}

// classify returns the decision of matcher for a script request to rawURL
// made by a page on news.example.
func classify(t *testing.T, matcher *adblock.Matcher, rawURL string) (d adblock.Decision) {
	t.Helper()

	return matcher.Classify(testutil.ContextWithTimeout(t, testTimeout), &adblock.FilterContext{
		URL:            rawURL,
		DocumentDomain: "news.example",
		ResourceType:   rules.TypeScript,
	})
}

// requireLoaded waits until s has a published rule list.
func requireLoaded(t *testing.T, s *subscription.Subscription) {
	t.Helper()

	require.Eventually(t, func() (ok bool) {
		return s.List() != nil
	}, testTimeout, testTimeout/100)
}

func TestNewManager_badConfig(t *testing.T) {
	t.Parallel()

	_, err := subscription.NewManager(&subscription.ManagerConfig{})
	require.Error(t, err)

	assert.ErrorContains(t, err, "Matcher")
	assert.ErrorContains(t, err, "DataDir")
}

func TestManager(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testListText)
	m, matcher := newTestManager(t, t.TempDir())
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	statuses := m.Subscriptions()
	require.Len(t, statuses, 1)

	custom := statuses[0]
	assert.True(t, custom.Custom)
	assert.Equal(t, 2, custom.RulesCount)

	assert.Equal(t, adblock.DecisionAllow, classify(t, matcher, testAdURL))

	s, err := m.Add(ctx, srv.url(t, "/list.txt").String(), "Test")
	require.NoError(t, err)

	requireLoaded(t, s)
	assert.Eventually(t, func() (ok bool) {
		return classify(t, matcher, testAdURL) == adblock.DecisionBlock
	}, testTimeout, testTimeout/100)

	t.Run("duplicate", func(t *testing.T) {
		_, err = m.Add(ctx, srv.url(t, "/list.txt").String(), "Again")
		assert.ErrorIs(t, err, subscription.ErrDuplicate)
	})

	t.Run("bad_url", func(t *testing.T) {
		_, err = m.Add(ctx, "ftp://lists.example/list.txt", "")
		assert.ErrorIs(t, err, errors.ErrBadEnumValue)

		_, err = m.Add(ctx, "https:///list.txt", "")
		assert.ErrorIs(t, err, errors.ErrEmptyValue)
	})

	t.Run("set_enabled", func(t *testing.T) {
		require.NoError(t, m.SetEnabled(ctx, s.UID(), false))
		assert.Equal(t, adblock.DecisionAllow, classify(t, matcher, testAdURL))

		require.NoError(t, m.SetEnabled(ctx, s.UID(), true))
		assert.Equal(t, adblock.DecisionBlock, classify(t, matcher, testAdURL))
	})

	t.Run("custom_rules", func(t *testing.T) {
		const (
			trackerURL  = "https://tracker.example/pixel.gif"
			trackerRule = "||tracker.example^"
		)

		assert.Equal(t, adblock.DecisionAllow, classify(t, matcher, trackerURL))

		require.NoError(t, m.AddCustomRule(ctx, trackerRule))
		assert.Equal(t, adblock.DecisionBlock, classify(t, matcher, trackerURL))

		require.NoError(t, m.RemoveCustomRule(ctx, trackerRule))
		assert.Equal(t, adblock.DecisionAllow, classify(t, matcher, trackerURL))

		err = m.RemoveCustomRule(ctx, trackerRule)
		assert.ErrorIs(t, err, subscription.ErrRuleNotFound)
	})

	t.Run("disabled_rules", func(t *testing.T) {
		require.NoError(t, m.DisableRule(ctx, "||ads.example^"))
		assert.Equal(t, adblock.DecisionAllow, classify(t, matcher, testAdURL))
		assert.Equal(t, []string{"||ads.example^"}, m.DisabledRules())

		require.NoError(t, m.EnableRule(ctx, "||ads.example^"))
		assert.Equal(t, adblock.DecisionBlock, classify(t, matcher, testAdURL))
		assert.Empty(t, m.DisabledRules())

		err = m.EnableRule(ctx, "||ads.example^")
		assert.ErrorIs(t, err, subscription.ErrRuleNotFound)
	})

	t.Run("overrides", func(t *testing.T) {
		require.NoError(t, m.DisableDomain(ctx, "news.example"))
		assert.Equal(t, adblock.DecisionAllow, classify(t, matcher, testAdURL))

		require.NoError(t, m.EnableDomain(ctx, "news.example"))
		require.NoError(t, m.SetGlobalEnabled(ctx, false))
		assert.Equal(t, adblock.DecisionAllow, classify(t, matcher, testAdURL))

		require.NoError(t, m.SetGlobalEnabled(ctx, true))
		assert.Equal(t, adblock.DecisionBlock, classify(t, matcher, testAdURL))
	})

	t.Run("update_all", func(t *testing.T) {
		text := testListTextNew
		srv.text.Store(&text)

		require.NoError(t, m.UpdateAll(ctx))
		assert.Equal(t, adblock.DecisionBlock, classify(t, matcher, "https://tracker.example/a.js"))

		statuses = m.Subscriptions()
		require.Len(t, statuses, 2)

		assert.Equal(t, 3, statuses[1].RulesCount)
		assert.NoError(t, statuses[1].LastError)
	})

	t.Run("update_all_failure", func(t *testing.T) {
		srv.code.Store(500)
		t.Cleanup(func() { srv.code.Store(0) })

		err = m.UpdateAll(ctx)
		require.Error(t, err)

		refrErr := &subscription.RefreshError{}
		require.ErrorAs(t, err, &refrErr)

		assert.Equal(t, subscription.RefreshErrorKindNetwork, refrErr.Kind)
		assert.Equal(t, adblock.DecisionBlock, classify(t, matcher, testAdURL))

		statuses = m.Subscriptions()
		require.Len(t, statuses, 2)

		assert.Equal(t, 3, statuses[1].RulesCount)
		assert.Error(t, statuses[1].LastError)
	})

	t.Run("remove", func(t *testing.T) {
		err = m.Remove(ctx, custom.UID)
		assert.ErrorIs(t, err, subscription.ErrCustomListImmutable)

		require.NoError(t, m.Remove(ctx, s.UID()))
		assert.Equal(t, adblock.DecisionAllow, classify(t, matcher, testAdURL))
		assert.Len(t, m.Subscriptions(), 1)

		err = m.Remove(ctx, s.UID())
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})
}

func TestManager_restart(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testListText)
	dataDir := t.TempDir()
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	m, _ := newTestManager(t, dataDir, subscription.CatalogEntry{
		Title: "Default",
		URL:   srv.url(t, "/list.txt").String(),
	})

	statuses := m.Subscriptions()
	require.Len(t, statuses, 2)

	s, ok := m.Subscription(statuses[1].UID)
	require.True(t, ok)

	requireLoaded(t, s)

	require.NoError(t, m.DisableDomain(ctx, "shop.example"))
	require.NoError(t, m.Shutdown(ctx))

	_, err := os.Stat(filepath.Join(dataDir, "state.yaml"))
	require.NoError(t, err)

	// Stop the server to make sure the list is loaded from the cache.
	srv.srv.Close()

	restarted, matcher := newTestManager(t, dataDir)

	statuses = restarted.Subscriptions()
	require.Len(t, statuses, 2)

	assert.Equal(t, "Default", statuses[1].Title)
	assert.Equal(t, 2, statuses[1].RulesCount)
	assert.Equal(t, s.LastUpdated().Unix(), statuses[1].LastUpdated.Unix())
	assert.True(t, matcher.Overrides().IsDomainDisabled("shop.example"))
	assert.Equal(t, adblock.DecisionBlock, classify(t, matcher, testAdURL))
}

func TestManager_restart_noCache(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testListText)
	dataDir := t.TempDir()
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	m, _ := newTestManager(t, dataDir)

	s, err := m.Add(ctx, srv.url(t, "/list.txt").String(), "Test")
	require.NoError(t, err)

	requireLoaded(t, s)
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, os.RemoveAll(filepath.Join(dataDir, "subscriptions")))

	restarted, matcher := newTestManager(t, dataDir)

	restored, ok := restarted.Subscription(s.UID())
	require.True(t, ok)

	// The list was updated recently, but its cache is gone, so it is
	// downloaded again.
	requireLoaded(t, restored)
	assert.Eventually(t, func() (ok bool) {
		return classify(t, matcher, testAdURL) == adblock.DecisionBlock
	}, testTimeout, testTimeout/100)
	assert.Equal(t, int32(2), srv.requests.Load())
}
