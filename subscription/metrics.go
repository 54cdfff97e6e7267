package subscription

import (
	"context"
	"time"
)

// Metrics is the interface for metrics of the subscriptions.
type Metrics interface {
	// SetRuleStats sets the number of the loaded rules and the number of the
	// malformed lines of the subscription with the given ID.
	SetRuleStats(ctx context.Context, id string, rulesNum, parseErrors int)

	// SetUpdateStatus sets the status of the last update of the subscription
	// with the given ID.  updTime is only meaningful if err is nil.
	SetUpdateStatus(ctx context.Context, id string, updTime time.Time, err error)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// SetRuleStats implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetRuleStats(_ context.Context, _ string, _, _ int) {}

// SetUpdateStatus implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetUpdateStatus(_ context.Context, _ string, _ time.Time, _ error) {}
