package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/internal/ufhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_newBlockedResponse(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	r := httptest.NewRequest(http.MethodGet, "https://ads.example/banner.js", nil)
	r.Header.Set(ufhttp.HdrReferer, "https://news.example/")

	session := NewSession("1", r)
	session.Result = s.matcher.ClassifyResult(ctx, session.Filter)
	require.Equal(t, adblock.DecisionBlock, session.Result.Decision)

	res := s.newBlockedResponse(ctx, session)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", res.Header.Get("Content-Type"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "ads.example")
	assert.Contains(t, string(body), "||ads.example^")
}

func TestServer_classify_exception(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	r := httptest.NewRequest(http.MethodGet, "https://ads.example/allowed/a.js", nil)
	r.Header.Set(ufhttp.HdrReferer, "https://news.example/")

	session := NewSession("1", r)
	session.Result = s.matcher.ClassifyResult(ctx, session.Filter)

	assert.Equal(t, adblock.DecisionAllow, session.Result.Decision)
	require.NotNil(t, session.Result.ExceptionRule)

	assert.Equal(t, "@@||ads.example/allowed/", session.Result.ExceptionRule.Text())
}
