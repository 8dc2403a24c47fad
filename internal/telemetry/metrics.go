package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RefreshMetricsMeterName is the name used for the class database metrics meter
	RefreshMetricsMeterName = "github.com/pinehappi/argon/classdb"
)

// RefreshMetrics holds the OpenTelemetry instruments for class database refreshes
type RefreshMetrics struct {
	refreshDuration metric.Float64Histogram
	refreshTotal    metric.Int64Counter
	classesTotal    metric.Int64Gauge
}

// NewRefreshMetrics creates a new RefreshMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRefreshMetrics(provider metric.MeterProvider) (*RefreshMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RefreshMetricsMeterName)

	refreshDuration, err := meter.Float64Histogram(
		"argon_classdb_refresh_duration_seconds",
		metric.WithDescription("Duration of class database refreshes that contacted the remote source"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	refreshTotal, err := meter.Int64Counter(
		"argon_classdb_refresh_total",
		metric.WithDescription("Number of refresh requests by outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	classesTotal, err := meter.Int64Gauge(
		"argon_classdb_classes_total",
		metric.WithDescription("Number of classes in the class database"),
		metric.WithUnit("{class}"),
	)
	if err != nil {
		return nil, err
	}

	return &RefreshMetrics{
		refreshDuration: refreshDuration,
		refreshTotal:    refreshTotal,
		classesTotal:    classesTotal,
	}, nil
}

// RecordRefresh counts a refresh request with its outcome
func (m *RefreshMetrics) RecordRefresh(ctx context.Context, outcome string) {
	if m == nil || m.refreshTotal == nil {
		return
	}
	m.refreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRefreshDuration records how long a remote refresh took
func (m *RefreshMetrics) RecordRefreshDuration(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil || m.refreshDuration == nil {
		return
	}
	m.refreshDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordClassCount records the current size of the class database
func (m *RefreshMetrics) RecordClassCount(ctx context.Context, count int) {
	if m == nil || m.classesTotal == nil {
		return
	}
	m.classesTotal.Record(ctx, int64(count))
}
