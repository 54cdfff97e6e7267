package metrics

import (
	"context"

	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quiterss/adblock"
)

// Matcher is the Prometheus-based implementation of the [adblock.Metrics]
// interface.
type Matcher struct {
	// decisions is a counter of the classified requests by the decision.
	decisions *prometheus.CounterVec

	// cacheLookups is a counter of the result cache lookups.
	cacheLookups *prometheus.CounterVec
}

// NewMatcher registers the request classification metrics in reg and returns
// a properly initialized *Matcher.
func NewMatcher(namespace string, reg prometheus.Registerer) (m *Matcher, err error) {
	const (
		decisions    = "decisions_total"
		cacheLookups = "cache_lookups_total"
	)

	m = &Matcher{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      decisions,
			Subsystem: subsystemMatcher,
			Namespace: namespace,
			Help:      "The number of classified requests by the decision.",
		}, []string{"decision"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      cacheLookups,
			Subsystem: subsystemMatcher,
			Namespace: namespace,
			Help: "The number of the result cache lookups.  " +
				"Label hit is the lookup result, either 1 for hit or 0 for miss.",
		}, []string{"hit"}),
	}

	err = register(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   decisions,
		Value: m.decisions,
	}, {
		Key:   cacheLookups,
		Value: m.cacheLookups,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// type check
var _ adblock.Metrics = (*Matcher)(nil)

// IncrementDecisions implements the [adblock.Metrics] interface for *Matcher.
func (m *Matcher) IncrementDecisions(_ context.Context, d adblock.Decision) {
	m.decisions.WithLabelValues(d.String()).Inc()
}

// IncrementCacheLookups implements the [adblock.Metrics] interface for
// *Matcher.
func (m *Matcher) IncrementCacheLookups(_ context.Context, hit bool) {
	m.cacheLookups.WithLabelValues(BoolString(hit)).Inc()
}
