// Package ufhttp contains common constants, functions, and types for working
// with HTTP.
package ufhttp

// HTTP header name constants missing from package httphdr.
const (
	HdrETag        = "Etag"
	HdrIfNoneMatch = "If-None-Match"
	HdrReferer     = "Referer"
)

// HTTP header value constants.
const (
	HdrValTextHTML  = "text/html"
	HdrValTextPlain = "text/plain"
)

// DefaultUserAgent is the User-Agent string used when none is configured.
const DefaultUserAgent = "quiterss-adblock/1.0"
