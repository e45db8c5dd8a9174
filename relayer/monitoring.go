package relayer

import (
	"context"
	"time"
)

// Monitoring provides all core monitoring functionality for the relayer.
// Also can be implemented as a no-op.
type Monitoring interface {
	// Metrics returns the metrics labeler for the relayer.
	Metrics() MetricLabeler
}

// MetricLabeler provides all metric recording functionality for the relayer.
type MetricLabeler interface {
	// With returns a new metrics labeler with the given key-value pairs.
	With(keyValues ...string) MetricLabeler
	// IncrementMessagesDelivered counts envelopes executed successfully.
	IncrementMessagesDelivered(ctx context.Context)
	// IncrementReplaysRejected counts deliveries rejected as already executed.
	IncrementReplaysRejected(ctx context.Context)
	// IncrementAuthRejected counts deliveries failing the provenance check.
	IncrementAuthRejected(ctx context.Context)
	// IncrementCallsFailed counts deliveries aborted on a failing call.
	IncrementCallsFailed(ctx context.Context)
	// RecordDeliveryLatency records the duration of one full delivery.
	RecordDeliveryLatency(ctx context.Context, duration time.Duration)
}

// NoopMonitoring discards all metrics.
type NoopMonitoring struct{}

var _ Monitoring = NoopMonitoring{}

func (NoopMonitoring) Metrics() MetricLabeler { return noopLabeler{} }

type noopLabeler struct{}

func (n noopLabeler) With(...string) MetricLabeler                    { return n }
func (noopLabeler) IncrementMessagesDelivered(context.Context)        {}
func (noopLabeler) IncrementReplaysRejected(context.Context)          {}
func (noopLabeler) IncrementAuthRejected(context.Context)             {}
func (noopLabeler) IncrementCallsFailed(context.Context)              {}
func (noopLabeler) RecordDeliveryLatency(context.Context, time.Duration) {}
