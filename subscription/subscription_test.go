package subscription_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/testutil/faketime"
	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"github.com/quiterss/adblock/internal/ufhttp"
	"github.com/quiterss/adblock/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testLogger is the common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// Common filter list texts for tests.
const (
	testListText = "[Adblock Plus 2.0]\n" +
		"! Title: Test list\n" +
		"||ads.example^\n" +
		"##.banner\n"

	testListTextNew = "[Adblock Plus 2.0]\n" +
		"||ads.example^\n" +
		"||tracker.example^\n" +
		"##.banner\n"
)

// etagOf returns the entity tag the test servers return for text.  Texts of
// the same length have different tags.
func etagOf(text string) (etag string) {
	sum := sha256.Sum256([]byte(text))

	return strconv.Quote(hex.EncodeToString(sum[:8]))
}

// testServer is a filter list server for tests.  Its response can be changed
// while it is running.
type testServer struct {
	srv *httptest.Server

	// text is the body of the response.
	text atomic.Pointer[string]

	// code is the status code of the response.  If it is zero, the server
	// responds with 200, or with 304 if If-None-Match is the entity tag of the
	// text.
	code atomic.Int32

	// requests is the number of the requests received.
	requests atomic.Int32
}

// newTestServer returns a new running server responding with text.
func newTestServer(t *testing.T, text string) (s *testServer) {
	t.Helper()

	s = &testServer{}
	s.text.Store(&text)

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)

		if code := int(s.code.Load()); code != 0 {
			w.WriteHeader(code)

			return
		}

		text := *s.text.Load()
		etag := etagOf(text)
		if r.Header.Get(ufhttp.HdrIfNoneMatch) == etag {
			w.WriteHeader(http.StatusNotModified)

			return
		}

		w.Header().Set(ufhttp.HdrETag, etag)
		_, _ = w.Write([]byte(text))
	}))
	t.Cleanup(s.srv.Close)

	return s
}

// url returns the URL of the list with the given path.
func (s *testServer) url(t *testing.T, path string) (u *url.URL) {
	t.Helper()

	u, err := url.Parse(s.srv.URL + path)
	require.NoError(t, err)

	return u
}

// newTestClient returns an HTTP client for tests.
func newTestClient() (c *ufhttp.Client) {
	return ufhttp.NewClient(&ufhttp.ClientConfig{
		Timeout: testTimeout,
	})
}

// newTestConfig returns a valid subscription configuration for u with the
// cache in a temporary directory.
func newTestConfig(t *testing.T, u *url.URL) (c *subscription.Config) {
	t.Helper()

	return &subscription.Config{
		Logger:     testLogger,
		HTTPClient: newTestClient(),
		URL:        u,
		Title:      "Test",
		CachePath:  filepath.Join(t.TempDir(), "cache.txt"),
		UID:        uuid.Must(uuid.NewV7()),
		ID:         2,
		MaxSize:    subscription.DefaultMaxSize,
		Enabled:    true,
	}
}

// newTestSubscription returns a new subscription with c.
func newTestSubscription(t *testing.T, c *subscription.Config) (s *subscription.Subscription) {
	t.Helper()

	s, err := subscription.New(c)
	require.NoError(t, err)

	return s
}

// newStepClock returns a clock that advances by a second on each call.
func newStepClock() (c *faketime.Clock) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := &atomic.Int64{}

	return &faketime.Clock{
		OnNow: func() (now time.Time) {
			return start.Add(time.Duration(n.Add(1)) * time.Second)
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	u := &url.URL{Scheme: "ftp", Host: "lists.example"}
	_, err := subscription.New(&subscription.Config{
		URL: u,
	})
	require.Error(t, err)

	assert.ErrorContains(t, err, "Logger")
	assert.ErrorContains(t, err, "CachePath")
	assert.ErrorContains(t, err, `bad scheme "ftp"`)

	var c *subscription.Config
	assert.Error(t, c.Validate())
}

func TestSubscription_Refresh(t *testing.T) {
	t.Parallel()

	require.NotEqual(t, etagOf(testListText), etagOf(testListTextNew))

	srv := newTestServer(t, testListText)
	c := newTestConfig(t, srv.url(t, "/list.txt"))
	c.Clock = newStepClock()

	updated := make(chan struct{}, 1)
	c.OnUpdate = func(_ context.Context, _ *subscription.Subscription) {
		updated <- struct{}{}
	}

	s := newTestSubscription(t, c)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	assert.True(t, s.IsStale(time.Now(), time.Hour))

	err := s.Refresh(ctx)
	require.NoError(t, err)

	testutil.RequireReceive(t, updated, testTimeout)

	idx := s.Index()
	require.NotNil(t, idx)

	assert.Equal(t, 2, idx.RulesCount())

	st := s.Status()
	assert.Equal(t, 2, st.RulesCount)
	assert.Zero(t, st.ParseErrors)
	assert.NoError(t, st.LastError)
	assert.Equal(t, "Test", st.Title)

	firstUpdate := s.LastUpdated()
	require.False(t, firstUpdate.IsZero())

	cached, err := os.ReadFile(c.CachePath)
	require.NoError(t, err)

	assert.Equal(t, testListText, string(cached))

	t.Run("not_modified", func(t *testing.T) {
		err = s.Refresh(ctx)
		require.NoError(t, err)

		assert.True(t, s.LastUpdated().After(firstUpdate))
		assert.Same(t, idx, s.Index())
		assert.Empty(t, updated)
		assert.Equal(t, int32(2), srv.requests.Load())
	})

	t.Run("disabled", func(t *testing.T) {
		s.SetEnabled(false)
		t.Cleanup(func() { s.SetEnabled(true) })

		err = s.Refresh(ctx)
		require.NoError(t, err)

		assert.Equal(t, int32(2), srv.requests.Load())
	})
}

func TestSubscription_Refresh_failure(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		text     string
		code     int
		maxSize  datasize.ByteSize
		wantKind subscription.RefreshErrorKind
	}{{
		name:     "server_error",
		text:     testListText,
		code:     http.StatusInternalServerError,
		wantKind: subscription.RefreshErrorKindNetwork,
	}, {
		name:     "not_found",
		text:     testListText,
		code:     http.StatusNotFound,
		wantKind: subscription.RefreshErrorKindNetwork,
	}, {
		name:     "no_header",
		text:     "<html>Not a list</html>",
		code:     0,
		wantKind: subscription.RefreshErrorKindUnreadable,
	}, {
		name:     "empty",
		text:     "",
		code:     0,
		wantKind: subscription.RefreshErrorKindUnreadable,
	}, {
		name:     "too_large",
		text:     testListText + strings.Repeat("||ads.example^\n", 100),
		code:     0,
		maxSize:  1 * datasize.KB,
		wantKind: subscription.RefreshErrorKindUnreadable,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, testListText)
			c := newTestConfig(t, srv.url(t, "/list.txt"))
			if tc.maxSize != 0 {
				c.MaxSize = tc.maxSize
			}

			s := newTestSubscription(t, c)

			ctx := testutil.ContextWithTimeout(t, testTimeout)
			require.NoError(t, s.Refresh(ctx))

			idx := s.Index()
			lastUpdated := s.LastUpdated()

			srv.text.Store(&tc.text)
			srv.code.Store(int32(tc.code))

			err := s.Refresh(ctx)
			require.Error(t, err)

			refrErr := &subscription.RefreshError{}
			require.ErrorAs(t, err, &refrErr)

			assert.Equal(t, tc.wantKind, refrErr.Kind)

			assert.Same(t, idx, s.Index())

			st := s.Status()
			assert.Equal(t, 2, st.RulesCount)
			assert.Equal(t, lastUpdated, st.LastUpdated)
			assert.ErrorIs(t, st.LastError, refrErr)
		})
	}
}

func TestSubscription_Refresh_outdated(t *testing.T) {
	t.Parallel()

	firstReceived := make(chan struct{})
	releaseFirst := make(chan struct{})
	n := &atomic.Int32{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if n.Add(1) == 1 {
			close(firstReceived)
			<-releaseFirst
			_, _ = w.Write([]byte(testListText))

			return
		}

		_, _ = w.Write([]byte(testListTextNew))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c := newTestConfig(t, u)
	c.Clock = newStepClock()

	s := newTestSubscription(t, c)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- s.Refresh(ctx)
	}()

	testutil.RequireReceive(t, firstReceived, testTimeout)

	require.NoError(t, s.Refresh(ctx))

	newUpdated := s.LastUpdated()
	require.Equal(t, 3, s.List().Len())

	close(releaseFirst)

	err, _ = testutil.RequireReceive(t, firstErr, testTimeout)
	require.NoError(t, err)

	assert.Equal(t, 3, s.List().Len())
	assert.Equal(t, newUpdated, s.LastUpdated())

	cached, err := os.ReadFile(c.CachePath)
	require.NoError(t, err)

	assert.Equal(t, testListTextNew, string(cached))
}

func TestSubscription_Load(t *testing.T) {
	t.Parallel()

	u := &url.URL{Scheme: "https", Host: "lists.example", Path: "/list.txt"}
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	t.Run("no_cache", func(t *testing.T) {
		t.Parallel()

		s := newTestSubscription(t, newTestConfig(t, u))

		ok, err := s.Load(ctx)
		require.NoError(t, err)

		assert.False(t, ok)
		assert.Nil(t, s.Index())
		assert.True(t, s.IsStale(time.Now(), time.Hour))
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		c := newTestConfig(t, u)
		require.NoError(t, os.WriteFile(c.CachePath, []byte("garbage\n"), 0o600))

		s := newTestSubscription(t, c)

		ok, err := s.Load(ctx)
		require.NoError(t, err)

		assert.False(t, ok)
	})

	t.Run("cached", func(t *testing.T) {
		t.Parallel()

		c := newTestConfig(t, u)
		c.LastUpdated = time.Now().Add(-time.Minute)
		c.Disabled = func() (set *container.MapSet[string]) {
			return container.NewMapSet("##.banner")
		}

		require.NoError(t, os.WriteFile(c.CachePath, []byte(testListText), 0o600))

		s := newTestSubscription(t, c)

		ok, err := s.Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, 1, s.List().Len())
		assert.Equal(t, 1, s.List().Disabled())
		assert.False(t, s.IsStale(time.Now(), time.Hour))
		assert.True(t, s.IsStale(time.Now(), time.Second))
	})
}

func TestRefreshError(t *testing.T) {
	t.Parallel()

	err := &subscription.RefreshError{
		Err:  assert.AnError,
		Kind: subscription.RefreshErrorKindUnreadable,
	}

	testutil.AssertErrorMsg(t, "unreadable error: "+assert.AnError.Error(), err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "!bad_refresh_error_kind_0", subscription.RefreshErrorKind(0).String())
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	entries := subscription.Catalog()
	require.NotEmpty(t, entries)

	assert.Equal(t, subscription.EasyListURL, entries[0].URL)

	entries[0].URL = ""
	assert.Equal(t, subscription.EasyListURL, subscription.Catalog()[0].URL)

	for _, e := range entries[1:] {
		u, err := url.Parse(e.URL)
		require.NoError(t, err)

		assert.NotEmpty(t, e.Title)
		assert.NotEmpty(t, u.Host)
	}
}
