package ufhttp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/AdguardTeam/golibs/httphdr"
)

// Client is a wrapper around http.Client.
type Client struct {
	http      *http.Client
	userAgent string
}

// ClientConfig is the configuration structure for Client.
type ClientConfig struct {
	// Transport is the round tripper used for the requests.  If nil,
	// [http.DefaultTransport] is used.
	Transport http.RoundTripper

	// UserAgent is the value of the User-Agent header.  If empty,
	// [DefaultUserAgent] is used.
	UserAgent string

	// Timeout is the timeout for all requests.
	Timeout time.Duration
}

// NewClient returns a new client.  c must not be nil.
func NewClient(conf *ClientConfig) (c *Client) {
	ua := conf.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &Client{
		http: &http.Client{
			Transport: conf.Transport,
			Timeout:   conf.Timeout,
		},
		userAgent: ua,
	}
}

// Get is a wrapper around http.Client.Get.  If etag is not empty, it is sent
// in the If-None-Match header, so the server may respond with
// [http.StatusNotModified].
//
// When err is nil, resp always contains a non-nil resp.Body.  Caller should
// close resp.Body when done reading from it.
//
// See also go doc http.Client.Get.
func (c *Client) Get(ctx context.Context, u *url.URL, etag string) (resp *http.Response, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", http.MethodGet, err)
	}

	req.Header.Set(httphdr.UserAgent, c.userAgent)
	if etag != "" {
		req.Header.Set(HdrIfNoneMatch, etag)
	}

	resp, err = c.http.Do(req)
	if err != nil && resp != nil && resp.Header != nil {
		// A non-nil Response with a non-nil error only occurs when CheckRedirect
		// fails.
		return resp, WrapServerError(err, resp)
	}

	return resp, err
}
