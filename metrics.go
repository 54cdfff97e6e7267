package adblock

import "context"

// Metrics is the interface for metrics of the request classification.
type Metrics interface {
	// IncrementDecisions increments the number of classified requests with
	// the given decision.
	IncrementDecisions(ctx context.Context, d Decision)

	// IncrementCacheLookups increments the number of result cache lookups.
	// hit is true if the result was found in the cache.
	IncrementCacheLookups(ctx context.Context, hit bool)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// IncrementDecisions implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementDecisions(_ context.Context, _ Decision) {}

// IncrementCacheLookups implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementCacheLookups(_ context.Context, _ bool) {}
