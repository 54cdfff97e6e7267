package main

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/gomitmproxy"
	"github.com/AdguardTeam/gomitmproxy/mitm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quiterss/adblock/proxy"
)

// shutdownTimeout is the timeout for the shutdown of the services.
const shutdownTimeout = 30 * time.Second

// proxyCommand runs the filtering proxy.
type proxyCommand struct {
	opts *options

	// ListenAddr is the server listen address.
	ListenAddr string `short:"l" long:"listen" description:"Listen address." default:"127.0.0.1"`

	// TLSCertPath is the path to the .crt with the certificate chain.
	TLSCertPath string `short:"c" long:"ca-cert" description:"Path to a file with the root certificate." required:"true"`

	// TLSKeyPath is the path to the file with the private key.
	TLSKeyPath string `short:"k" long:"ca-key" description:"Path to a file with the CA private key." required:"true"`

	// ProxyUser is the proxy username.
	ProxyUser string `short:"u" long:"username" description:"Proxy auth username. If specified, proxy authorization is required."`

	// ProxyPassword is the proxy password.
	ProxyPassword string `short:"a" long:"password" description:"Proxy auth password. If specified, proxy authorization is required."`

	// HTTPSHostname is the server name for the HTTPS proxy.
	HTTPSHostname string `short:"n" long:"https-name" description:"Server name or IP address of the HTTPS proxy."`

	// ListenPort is the server listen port.
	ListenPort int `short:"p" long:"port" description:"Listen port." default:"8080"`

	// HTTPSProxy, if true, makes the proxy an HTTPS one.
	HTTPSProxy bool `short:"t" long:"https" description:"Run an HTTPS proxy (otherwise, it runs plain HTTP proxy)." optional:"yes" optional-value:"true"`
}

// Execute implements the [goFlags.Commander] interface for *proxyCommand.
func (c *proxyCommand) Execute(_ []string) (err error) {
	envs, logger, closeLog, err := c.opts.setup()
	if err != nil {
		return err
	}
	defer func() { err = closeWithLog(err, closeLog) }()

	ctx := context.Background()
	proxyConf, err := c.proxyConfig()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	f, err := newFiltering(logger, envs, reg)
	if err != nil {
		return err
	}

	srv, err := proxy.NewServer(&proxy.Config{
		Logger:                logger.With(slogutil.KeyPrefix, "proxy"),
		Matcher:               f.matcher,
		ProxyConfig:           *proxyConf,
		CompressContentScript: true,
	})
	if err != nil {
		return err
	}

	sigHdlr := service.NewSignalHandler(&service.SignalHandlerConfig{
		Logger:          logger.With(slogutil.KeyPrefix, service.SignalHandlerPrefix),
		ShutdownTimeout: shutdownTimeout,
	})

	services := []service.Interface{f.manager, srv}
	if envs.MetricsAddr != "" {
		services = append(services, newMetricsServer(logger, envs.MetricsAddr, reg))
	}

	for _, svc := range services {
		err = svc.Start(ctx)
		if err != nil {
			return fmt.Errorf("starting service: %w", err)
		}

		sigHdlr.AddService(svc)
	}

	code := sigHdlr.Handle(ctx)
	if code != osutil.ExitCodeSuccess {
		return fmt.Errorf("shutting down: exit code %d", code)
	}

	return nil
}

// proxyConfig returns the configuration of the MITM proxy.
func (c *proxyCommand) proxyConfig() (conf *gomitmproxy.Config, err error) {
	listenIP := net.ParseIP(c.ListenAddr)
	if listenIP == nil {
		return nil, fmt.Errorf("listen address: bad ip %q", c.ListenAddr)
	}

	mitmConfig, err := c.mitmConfig()
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if c.HTTPSProxy {
		if c.HTTPSHostname == "" {
			return nil, fmt.Errorf("https hostname: %w", errors.ErrEmptyValue)
		}

		var proxyCert *tls.Certificate
		proxyCert, err = mitmConfig.GetOrCreateCert(c.HTTPSHostname)
		if err != nil {
			return nil, fmt.Errorf("generating https proxy certificate for %s: %w", c.HTTPSHostname, err)
		}

		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{*proxyCert},
			ServerName:   c.HTTPSHostname,
		}
	}

	return &gomitmproxy.Config{
		ListenAddr: &net.TCPAddr{IP: listenIP, Port: c.ListenPort},
		TLSConfig:  tlsConfig,

		Username: c.ProxyUser,
		Password: c.ProxyPassword,

		MITMConfig: mitmConfig,
	}, nil
}

// mitmConfig loads the root CA and creates the MITM configuration.
func (c *proxyCommand) mitmConfig() (conf *mitm.Config, err error) {
	tlsCert, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading root ca: %w", err)
	}

	privateKey, ok := tlsCert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("root ca: private key: %w: %T", errors.ErrBadEnumValue, tlsCert.PrivateKey)
	}

	x509c, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}

	conf, err = mitm.NewConfig(x509c, privateKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating mitm config: %w", err)
	}

	conf.SetValidity(7 * timeutil.Day)
	conf.SetOrganization("QuiteRSS AdBlock")

	return conf, nil
}

// metricsServer serves the metrics over HTTP.
type metricsServer struct {
	logger *slog.Logger
	srv    *http.Server
}

// newMetricsServer returns a server of the metrics gathered from reg on addr.
func newMetricsServer(baseLogger *slog.Logger, addr string, reg *prometheus.Registry) (s *metricsServer) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &metricsServer{
		logger: baseLogger.With(slogutil.KeyPrefix, "metrics"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: time.Minute,
		},
	}
}

// type check
var _ service.Interface = (*metricsServer)(nil)

// Start implements the [service.Interface] interface for *metricsServer.
func (s *metricsServer) Start(ctx context.Context) (err error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	s.logger.InfoContext(ctx, "serving", "addr", ln.Addr())

	go func() {
		defer slogutil.RecoverAndLog(ctx, s.logger)

		serveErr := s.srv.Serve(ln)
		if !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.ErrorContext(ctx, "serving", slogutil.KeyError, serveErr)
		}
	}()

	return nil
}

// Shutdown implements the [service.Interface] interface for *metricsServer.
func (s *metricsServer) Shutdown(ctx context.Context) (err error) {
	err = s.srv.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutting down metrics server: %w", err)
	}

	return nil
}
