package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/internal/metrics"
	"github.com/quiterss/adblock/internal/ufhttp"
	"github.com/quiterss/adblock/subscription"
)

// metricsNamespace is the namespace of all metrics of the tool.
const metricsNamespace = "adblock"

// filtering contains the matcher and the subscription manager feeding it.
type filtering struct {
	matcher *adblock.Matcher
	manager *subscription.Manager
}

// newFiltering creates the matcher and the manager keeping the subscriptions
// in the data directory from envs.  The metrics are registered in reg.
func newFiltering(
	baseLogger *slog.Logger,
	envs *environment,
	reg prometheus.Registerer,
) (f *filtering, err error) {
	matcherMtrc, err := metrics.NewMatcher(metricsNamespace, reg)
	if err != nil {
		return nil, fmt.Errorf("matcher metrics: %w", err)
	}

	subMtrc, err := metrics.NewSubscription(metricsNamespace, reg)
	if err != nil {
		return nil, fmt.Errorf("subscription metrics: %w", err)
	}

	matcher := adblock.NewMatcher(&adblock.MatcherConfig{
		Logger:    baseLogger.With(slogutil.KeyPrefix, "matcher"),
		Metrics:   matcherMtrc,
		CacheSize: envs.CacheSize,
	})

	manager, err := subscription.NewManager(&subscription.ManagerConfig{
		Logger:  baseLogger,
		Matcher: matcher,
		HTTPClient: ufhttp.NewClient(&ufhttp.ClientConfig{
			UserAgent: envs.UserAgent,
			Timeout:   time.Duration(envs.HTTPTimeout),
		}),
		Metrics:         subMtrc,
		DataDir:         envs.DataDir,
		Defaults:        subscription.Catalog()[:1],
		RefreshInterval: time.Duration(envs.RefreshIvl),
		RefreshTimeout:  time.Duration(envs.HTTPTimeout),
		MaxSize:         envs.MaxListSize,
		LimitedEasyList: bool(envs.LimitedEasyList),
	})
	if err != nil {
		return nil, fmt.Errorf("subscription manager: %w", err)
	}

	return &filtering{
		matcher: matcher,
		manager: manager,
	}, nil
}

// printStatuses writes the statuses of the subscriptions of m to the log.
func printStatuses(logger *slog.Logger, m *subscription.Manager) {
	for _, st := range m.Subscriptions() {
		args := []any{
			"title", st.Title,
			"url", st.URL,
			"enabled", st.Enabled,
			"rules", st.RulesCount,
			"parse_errors", st.ParseErrors,
			"updated", st.LastUpdated,
		}

		if st.LastError != nil {
			args = append(args, slogutil.KeyError, st.LastError)
		}

		logger.Info("subscription", args...)
	}
}

// closeWithLog is a helper for closing the log file in a deferred call.
func closeWithLog(err error, closeLog func() (err error)) (res error) {
	return errors.WithDeferred(err, closeLog())
}
