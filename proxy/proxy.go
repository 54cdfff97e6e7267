// Package proxy implements a MITM proxy that blocks the requests classified by
// an [adblock.Matcher] and hides the page elements matched by element hiding
// rules.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/AdguardTeam/gomitmproxy"
	"github.com/quiterss/adblock"
)

// Session property keys.
const (
	sessionPropKey    = "session"
	requestBlockedKey = "blocked"
)

// DefaultInjectionHost is the host used to serve the content script when
// [Config.InjectionHost] is empty.
const DefaultInjectionHost = "injections.adblock.invalid"

// Config contains the MITM proxy configuration.
type Config struct {
	// Logger is used to log the filtering.  It must not be nil.
	Logger *slog.Logger

	// Matcher classifies the requests.  It must not be nil.
	Matcher *adblock.Matcher

	// Clock is used to decide whether the browser cache should be
	// suppressed.  If nil, [timeutil.SystemClock] is used.
	Clock timeutil.Clock

	// ProxyConfig is the configuration of the underlying MITM proxy.  The
	// handlers are set by [NewServer].
	ProxyConfig gomitmproxy.Config

	// InjectionHost is used for injecting the element hiding style sheet
	// into the web pages.
	//
	// Here's how it works:
	//   - The proxy injects
	//     `<script src="//INJECTION_HOST/content-script.js?hostname=HOSTNAME&ts=TS"></script>`
	//     into the pages that have elements to hide.
	//   - The proxy handles the requests to this host itself.
	//   - The content script adds the style sheet for HOSTNAME to the page.
	InjectionHost string

	// CompressContentScript makes the proxy serve the content script
	// compressed.  This is useful when the proxy is on a public server.
	CompressContentScript bool
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.NotNil("Logger", c.Logger),
		validate.NotNil("Matcher", c.Matcher),
	)
}

// Server is a filtering MITM proxy server.
type Server struct {
	logger  *slog.Logger
	matcher *adblock.Matcher
	clock   timeutil.Clock

	// proxy is the MITM proxy server instance.
	proxy *gomitmproxy.Proxy

	// createdAt is the time when the server was created.  It is also used to
	// invalidate the cached content scripts.
	createdAt time.Time

	injectionHost string
	compress      bool
}

// NewServer creates a new instance of the filtering MITM server.  c must not
// be nil.
func NewServer(c *Config) (s *Server, err error) {
	err = c.Validate()
	if err != nil {
		return nil, fmt.Errorf("proxy config: %w", err)
	}

	clock := c.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	s = &Server{
		logger:        c.Logger,
		matcher:       c.Matcher,
		clock:         clock,
		createdAt:     clock.Now(),
		injectionHost: c.InjectionHost,
		compress:      c.CompressContentScript,
	}

	if s.injectionHost == "" {
		s.injectionHost = DefaultInjectionHost
	}

	proxyConf := c.ProxyConfig
	proxyConf.OnRequest = s.onRequest
	proxyConf.OnResponse = s.onResponse
	proxyConf.OnConnect = s.onConnect
	s.proxy = gomitmproxy.NewProxy(proxyConf)

	s.logger.Info(
		"initialized proxy",
		"listen_addr", proxyConf.ListenAddr,
		"mitm", proxyConf.MITMConfig != nil,
		"https", proxyConf.TLSConfig != nil,
		"auth", proxyConf.Username != "",
		"injection_host", s.injectionHost,
	)

	return s, nil
}

// type check
var _ service.Interface = (*Server)(nil)

// Start implements the [service.Interface] interface for *Server.
func (s *Server) Start(ctx context.Context) (err error) {
	s.logger.InfoContext(ctx, "starting")

	err = s.proxy.Start()
	if err != nil {
		return fmt.Errorf("starting proxy: %w", err)
	}

	return nil
}

// Shutdown implements the [service.Interface] interface for *Server.
func (s *Server) Shutdown(ctx context.Context) (err error) {
	s.logger.InfoContext(ctx, "shutting down")
	s.proxy.Close()

	return nil
}
