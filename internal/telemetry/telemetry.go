// Package telemetry initializes OpenTelemetry metrics (metrics only, no
// tracing) for the Supervisor's health gauges: ingest rate, poll rate, and
// subscriber count. Grounded on the teacher's internal/telemetry/telemetry.go
// provider, trimmed to drop the trace SDK and semconv/view machinery the
// spec has no component to drive (no tracing or latency-histogram surface
// is specified; gauges alone serve the health snapshot in spec.md §4.7).
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config is the declared telemetry policy (spec.md §6, SPEC_FULL §2.1).
type Config struct {
	Enabled      bool
	OTLPEndpoint string
	OTLPInsecure bool
	ServiceName  string
}

// Provider owns the meter provider lifecycle; nil-safe when disabled.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
}

// NewProvider constructs a metrics-only telemetry provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceNameOrDefault(cfg.ServiceName)),
	), resource.WithProcessRuntimeName(), resource.WithHost())
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(stripScheme(cfg.OTLPEndpoint))}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(mp)
	return &Provider{meterProvider: mp}, nil
}

// Shutdown flushes and stops metric export.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}

// Meter returns a named meter, falling back to the global no-op meter when
// telemetry is disabled.
func (p *Provider) Meter(name string) metric.Meter {
	if p.meterProvider == nil {
		return otel.Meter(name)
	}
	return p.meterProvider.Meter(name)
}

func serviceNameOrDefault(name string) string {
	if name == "" {
		return "spreadwatch"
	}
	return name
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return endpoint
}

// Gauges holds the Supervisor's observable instruments. Each is backed by a
// callback reading the Supervisor's live health snapshot at collection time
// rather than being pushed to on every update, matching the teacher's
// async-gauge usage in internal/telemetry/metrics.go.
type Gauges struct {
	ingestRate      metric.Int64ObservableGauge
	pollRate        metric.Int64ObservableGauge
	subscriberCount metric.Int64ObservableGauge
}

// HealthSource supplies the current values the gauges report.
type HealthSource interface {
	IngestRate() int64
	PollRate() int64
	SubscriberCount() int64
}

// RegisterGauges wires the Supervisor's health snapshot into three
// observable gauges on meter.
func RegisterGauges(meter metric.Meter, source HealthSource) (*Gauges, error) {
	g := &Gauges{}
	var err error

	g.ingestRate, err = meter.Int64ObservableGauge("spreadwatch.ingest.rate",
		metric.WithDescription("book store slots currently held (a point-in-time count, not a per-second rate)"))
	if err != nil {
		return nil, fmt.Errorf("register ingest rate gauge: %w", err)
	}
	g.pollRate, err = meter.Int64ObservableGauge("spreadwatch.poll.rate",
		metric.WithDescription("polling assignments currently armed (a point-in-time count, not a per-second rate)"))
	if err != nil {
		return nil, fmt.Errorf("register poll rate gauge: %w", err)
	}
	g.subscriberCount, err = meter.Int64ObservableGauge("spreadwatch.fanout.subscribers",
		metric.WithDescription("live Fan-out Bus subscriptions"))
	if err != nil {
		return nil, fmt.Errorf("register subscriber count gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(g.ingestRate, source.IngestRate())
		o.ObserveInt64(g.pollRate, source.PollRate())
		o.ObserveInt64(g.subscriberCount, source.SubscriberCount())
		return nil
	}, g.ingestRate, g.pollRate, g.subscriberCount)
	if err != nil {
		return nil, fmt.Errorf("register health callback: %w", err)
	}
	return g, nil
}
