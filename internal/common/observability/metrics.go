package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter and tracer providers for the process.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerShutdown func(context.Context) error
	meter          otelmetric.Meter
	runCounter     otelmetric.Int64Counter
	runDuration    otelmetric.Float64Histogram
	moduleCounter  otelmetric.Int64Counter
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	JaegerEndpoint string
	SampleRatio    float64
}

// New registers the prometheus-backed meter provider and the tracer provider. Failures
// degrade to a partially initialised value whose recorders are no-ops.
func New(cfg Config, log Logger) *Observability {
	o := &Observability{tracerShutdown: func(context.Context) error { return nil }}

	shutdown, err := initTracing(context.Background(), cfg)
	if err != nil {
		log.Warn("tracing disabled", map[string]interface{}{"error": err.Error()})
	} else {
		o.tracerShutdown = shutdown
		if cfg.JaegerEndpoint != "" {
			log.Info("jaeger exporter configured", map[string]interface{}{"endpoint": cfg.JaegerEndpoint})
		}
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err.Error()})
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	o.meterProvider = provider
	o.meter = provider.Meter(cfg.ServiceName)

	o.runCounter, _ = o.meter.Int64Counter(
		"advisor.runs",
		otelmetric.WithDescription("Number of orchestration runs"),
	)
	o.runDuration, _ = o.meter.Float64Histogram(
		"advisor.run.duration",
		otelmetric.WithDescription("Orchestration run duration"),
		otelmetric.WithUnit("ms"),
	)
	o.moduleCounter, _ = o.meter.Int64Counter(
		"advisor.module.calls",
		otelmetric.WithDescription("Advisory module calls"),
	)
	return o
}

func (o *Observability) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordModuleCall(ctx context.Context, module, status string) {
	if o.moduleCounter != nil {
		o.moduleCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("module", module),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerShutdown != nil {
		_ = o.tracerShutdown(ctx)
	}
}
