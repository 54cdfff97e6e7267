package metrics

import (
	"context"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quiterss/adblock/subscription"
)

// Subscription is the Prometheus-based implementation of the
// [subscription.Metrics] interface.
type Subscription struct {
	// rulesTotal is a gauge with the number of rules loaded by each
	// subscription.
	rulesTotal *prometheus.GaugeVec

	// parseErrors is a gauge with the number of lines of each subscription
	// that could not be parsed.
	parseErrors *prometheus.GaugeVec

	// updatedTime is a gauge with the time when the subscription was last
	// time updated.
	updatedTime *prometheus.GaugeVec

	// updateStatus is a gauge with the status of the last subscription update.
	// "0" means error, "1" means success.
	updateStatus *prometheus.GaugeVec
}

// NewSubscription registers the subscription metrics in reg and returns a
// properly initialized *Subscription.
func NewSubscription(namespace string, reg prometheus.Registerer) (m *Subscription, err error) {
	const (
		rulesTotal   = "rules_total"
		parseErrors  = "parse_errors"
		updatedTime  = "updated_time"
		updateStatus = "update_status"
	)

	labels := []string{"subscription"}
	m = &Subscription{
		rulesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      rulesTotal,
			Subsystem: subsystemSubscription,
			Namespace: namespace,
			Help:      "The number of rules loaded by subscriptions.",
		}, labels),
		parseErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      parseErrors,
			Subsystem: subsystemSubscription,
			Namespace: namespace,
			Help:      "The number of lines of subscriptions that could not be parsed.",
		}, labels),
		updatedTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      updatedTime,
			Subsystem: subsystemSubscription,
			Namespace: namespace,
			Help:      "Time when the subscription was last time updated.",
		}, labels),
		updateStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      updateStatus,
			Subsystem: subsystemSubscription,
			Namespace: namespace,
			Help:      "Status of the subscription update.  1 means success.",
		}, labels),
	}

	err = register(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   rulesTotal,
		Value: m.rulesTotal,
	}, {
		Key:   parseErrors,
		Value: m.parseErrors,
	}, {
		Key:   updatedTime,
		Value: m.updatedTime,
	}, {
		Key:   updateStatus,
		Value: m.updateStatus,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// type check
var _ subscription.Metrics = (*Subscription)(nil)

// SetRuleStats implements the [subscription.Metrics] interface for
// *Subscription.
func (m *Subscription) SetRuleStats(_ context.Context, id string, rulesNum, parseErrors int) {
	m.rulesTotal.WithLabelValues(id).Set(float64(rulesNum))
	m.parseErrors.WithLabelValues(id).Set(float64(parseErrors))
}

// SetUpdateStatus implements the [subscription.Metrics] interface for
// *Subscription.
func (m *Subscription) SetUpdateStatus(_ context.Context, id string, updTime time.Time, err error) {
	SetStatusGauge(m.updateStatus.WithLabelValues(id), err)
	if err == nil {
		m.updatedTime.WithLabelValues(id).Set(float64(updTime.Unix()))
	}
}
