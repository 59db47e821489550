package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "erp-sync-service"

// Metrics records sync attempts through OpenTelemetry and exposes them in
// Prometheus text format. A nil *Metrics records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	syncs    metric.Int64Counter
	pages    metric.Int64Counter
	records  metric.Int64Counter
	duration metric.Float64Histogram
}

// New builds a meter provider backed by a Prometheus exporter on its own
// registry and installs it as the global provider.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(meterName)

	m := &Metrics{provider: provider, registry: registry}

	if m.syncs, err = meter.Int64Counter(
		"erpsync_syncs",
		metric.WithDescription("Sync attempts by entity and outcome"),
	); err != nil {
		return nil, err
	}
	if m.pages, err = meter.Int64Counter(
		"erpsync_pages_fetched",
		metric.WithDescription("ERP pages fetched"),
	); err != nil {
		return nil, err
	}
	if m.records, err = meter.Int64Counter(
		"erpsync_records_synced",
		metric.WithDescription("Records written to the store"),
	); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram(
		"erpsync_sync_duration",
		metric.WithDescription("Duration of claimed sync attempts"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSync counts one attempt. Only claimed attempts carry a duration.
func (m *Metrics) RecordSync(ctx context.Context, entity, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("status", status),
	)
	m.syncs.Add(ctx, 1, attrs)
	if d > 0 {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordPage counts one fetched page and the records it produced.
func (m *Metrics) RecordPage(ctx context.Context, entity string, records int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("entity", entity))
	m.pages.Add(ctx, 1, attrs)
	m.records.Add(ctx, int64(records), attrs)
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
