package proxy

import (
	"fmt"
	"net/http"
	"time"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/quiterss/adblock/rules"
)

// suppressCachePeriod is the period after the start during which the browser
// cache of the pages is suppressed, so that the content script of the new
// server is injected.
const suppressCachePeriod = 1 * time.Minute

// contentScriptMaxAge is the time the browser may cache the content script.
const contentScriptMaxAge = 1 * time.Hour

// staticTypes are the types of the resources which are never rewritten.
const staticTypes = rules.TypeImage |
	rules.TypeFont |
	rules.TypeScript |
	rules.TypeStylesheet |
	rules.TypeMedia

// shouldSuppressCache returns true if the browser cache must be suppressed for
// the request of session.
func (s *Server) shouldSuppressCache(session *Session) (ok bool) {
	if s.clock.Now().Sub(s.createdAt) > suppressCachePeriod {
		return false
	}

	return session.Filter.ResourceType&staticTypes == 0
}

// suppressCache removes the cache headers from the HTTP request.
func suppressCache(r *http.Request) {
	// Last modified time based caching.
	r.Header.Del("If-Modified-Since")
	r.Header.Del("If-Unmodified-Since")

	// ETag based caching.
	r.Header.Del("If-None-Match")
	r.Header.Del("If-Match")
	r.Header.Del("If-Range")
}

// enableCache sets the caching headers on the HTTP response.
func (s *Server) enableCache(r *http.Response) {
	expires := s.clock.Now().Add(contentScriptMaxAge)

	r.Header.Del("Pragma")
	r.Header.Set("Last-Modified", "Wed, 01 Jan 2010 01:00:00 GMT")
	r.Header.Set(httphdr.CacheControl, fmt.Sprintf("public, max-age=%d", int(contentScriptMaxAge.Seconds())))
	r.Header.Set("Expires", expires.UTC().Format(http.TimeFormat))
}
