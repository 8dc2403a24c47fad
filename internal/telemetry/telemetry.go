package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/metric"

	"github.com/pinehappi/argon/internal/config"
)

// Telemetry owns the meter provider and the instruments built from it
type Telemetry struct {
	provider *MeterProvider
	refresh  *RefreshMetrics
	http     *HTTPMetrics
}

// New creates telemetry from the argon configuration. Metrics that are not
// enabled resolve to a no-op provider, so callers never need nil checks.
// The caller is responsible for calling Shutdown when the application exits.
func New(ctx context.Context, cfg *config.Config, version string, opts ...MeterProviderOption) (*Telemetry, error) {
	metricsCfg := cfg.GetMetrics()
	base := []MeterProviderOption{
		WithMeterServiceName(cfg.GetServiceName()),
		WithMeterServiceVersion(version),
		WithMetricsConfig(metricsCfg),
	}

	provider, err := NewMeterProvider(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}

	refresh, err := NewRefreshMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create refresh metrics: %w", err)
	}

	httpMetrics, err := NewHTTPMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	if metricsCfg != nil && metricsCfg.Enabled {
		logr.FromContextOrDiscard(ctx).Info("Metrics initialized",
			"serviceName", cfg.GetServiceName(),
			"otlpEndpoint", metricsCfg.Endpoint,
			"prometheus", metricsCfg.Prometheus)
	}

	return &Telemetry{provider: provider, refresh: refresh, http: httpMetrics}, nil
}

// MeterProvider returns the configured meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.provider
}

// RefreshMetrics returns the class database instruments
func (t *Telemetry) RefreshMetrics() *RefreshMetrics {
	return t.refresh
}

// HTTPMetrics returns the session server instruments
func (t *Telemetry) HTTPMetrics() *HTTPMetrics {
	return t.http
}

// Handler returns the Prometheus scrape handler, nil when Prometheus is not enabled
func (t *Telemetry) Handler() http.Handler {
	return t.provider.Handler()
}

// Shutdown flushes pending metrics
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	return nil
}
