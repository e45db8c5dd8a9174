package relayer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OtelMonitoring records relayer metrics through the global otel meter
// provider. Callers wire an sdk/metric reader elsewhere.
type OtelMonitoring struct {
	labeler *otelLabeler
}

var _ Monitoring = (*OtelMonitoring)(nil)

type relayerMetrics struct {
	delivered       metric.Int64Counter
	replaysRejected metric.Int64Counter
	authRejected    metric.Int64Counter
	callsFailed     metric.Int64Counter
	deliveryLatency metric.Float64Histogram
}

// InitOtelMonitoring creates the relayer metric instruments.
func InitOtelMonitoring() (*OtelMonitoring, error) {
	meter := otel.Meter("relay")

	delivered, err := meter.Int64Counter("relay_messages_delivered",
		metric.WithDescription("Envelopes executed successfully"))
	if err != nil {
		return nil, fmt.Errorf("failed to create delivered counter: %w", err)
	}
	replays, err := meter.Int64Counter("relay_replays_rejected",
		metric.WithDescription("Deliveries rejected as already executed"))
	if err != nil {
		return nil, fmt.Errorf("failed to create replays counter: %w", err)
	}
	auth, err := meter.Int64Counter("relay_auth_rejected",
		metric.WithDescription("Deliveries failing the provenance check"))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth counter: %w", err)
	}
	calls, err := meter.Int64Counter("relay_calls_failed",
		metric.WithDescription("Deliveries aborted on a failing call"))
	if err != nil {
		return nil, fmt.Errorf("failed to create calls counter: %w", err)
	}
	latency, err := meter.Float64Histogram("relay_delivery_latency_seconds",
		metric.WithDescription("Duration of one full delivery"))
	if err != nil {
		return nil, fmt.Errorf("failed to create latency histogram: %w", err)
	}

	return &OtelMonitoring{labeler: &otelLabeler{
		metrics: &relayerMetrics{
			delivered:       delivered,
			replaysRejected: replays,
			authRejected:    auth,
			callsFailed:     calls,
			deliveryLatency: latency,
		},
	}}, nil
}

func (m *OtelMonitoring) Metrics() MetricLabeler { return m.labeler }

type otelLabeler struct {
	metrics *relayerMetrics
	attrs   []attribute.KeyValue
}

func (l *otelLabeler) With(keyValues ...string) MetricLabeler {
	next := &otelLabeler{metrics: l.metrics, attrs: append([]attribute.KeyValue{}, l.attrs...)}
	for i := 0; i+1 < len(keyValues); i += 2 {
		next.attrs = append(next.attrs, attribute.String(keyValues[i], keyValues[i+1]))
	}
	return next
}

func (l *otelLabeler) IncrementMessagesDelivered(ctx context.Context) {
	l.metrics.delivered.Add(ctx, 1, metric.WithAttributes(l.attrs...))
}

func (l *otelLabeler) IncrementReplaysRejected(ctx context.Context) {
	l.metrics.replaysRejected.Add(ctx, 1, metric.WithAttributes(l.attrs...))
}

func (l *otelLabeler) IncrementAuthRejected(ctx context.Context) {
	l.metrics.authRejected.Add(ctx, 1, metric.WithAttributes(l.attrs...))
}

func (l *otelLabeler) IncrementCallsFailed(ctx context.Context) {
	l.metrics.callsFailed.Add(ctx, 1, metric.WithAttributes(l.attrs...))
}

func (l *otelLabeler) RecordDeliveryLatency(ctx context.Context, duration time.Duration) {
	l.metrics.deliveryLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(l.attrs...))
}
