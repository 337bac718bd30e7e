// Package observability bundles the logger, metrics registerer and tracer
// every long-lived component of this module is constructed with, mirroring
// the Observability interface the teacher codebase threads through its
// node configuration.
package observability

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/bftbank/core/internal/logger"
)

// Observability is the capability set passed down to every node-scoped
// component: acceptors, proposers and the reputation controller.
type Observability interface {
	Logger() *slog.Logger
	Tracer(name string) trace.Tracer
	Meter(name string) metric.Meter
	PrometheusRegisterer() prometheus.Registerer
}

type factory struct {
	log      *slog.Logger
	registry *prometheus.Registry
	tracer   trace.TracerProvider
	meter    metric.MeterProvider
}

// Option configures a Factory.
type Option func(*factory)

// WithLogWriter directs log output to w instead of stderr.
func WithLogWriter(w io.Writer) Option {
	return func(f *factory) {
		f.log = logger.New(w, slog.LevelInfo, false)
	}
}

// WithJSONLogs selects the JSON slog handler.
func WithJSONLogs(w io.Writer) Option {
	return func(f *factory) {
		f.log = logger.New(w, slog.LevelInfo, true)
	}
}

// WithLogger overrides the logger entirely.
func WithLogger(log *slog.Logger) Option {
	return func(f *factory) { f.log = log }
}

// NewFactory builds the default Observability: text logging to stderr, a
// fresh Prometheus registry, and no-op tracing/metering (wiring a real OTel
// exporter is an operational concern left to the deployment, matching the
// teacher's pattern of an Observability interface the CLI layer satisfies
// differently per environment).
func NewFactory(opts ...Option) Observability {
	f := &factory{
		log:      logger.Default(),
		registry: prometheus.NewRegistry(),
		tracer:   nooptrace.NewTracerProvider(),
		meter:    noopmetric.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Default is the Observability used by tests: a discarding logger, a fresh
// registry, no-op tracer/meter.
func Default() Observability {
	return &factory{
		log:      logger.Discard(),
		registry: prometheus.NewRegistry(),
		tracer:   nooptrace.NewTracerProvider(),
		meter:    noopmetric.NewMeterProvider(),
	}
}

func (f *factory) Logger() *slog.Logger                        { return f.log }
func (f *factory) PrometheusRegisterer() prometheus.Registerer { return f.registry }
func (f *factory) Tracer(name string) trace.Tracer             { return f.tracer.Tracer(name) }
func (f *factory) Meter(name string) metric.Meter              { return f.meter.Meter(name) }

// WithLogger returns a copy of obs using log in place of its logger, used
// whenever a component needs to enrich the logger with fixed attributes
// (node id, peer id) before handing it further down.
func WithLogger(obs Observability, log *slog.Logger) Observability {
	return &factory{
		log:      log,
		registry: obs.PrometheusRegisterer().(*prometheus.Registry),
		tracer:   otelTracerProviderOf(obs),
		meter:    otelMeterProviderOf(obs),
	}
}

func otelTracerProviderOf(obs Observability) trace.TracerProvider {
	if f, ok := obs.(*factory); ok {
		return f.tracer
	}
	return otel.GetTracerProvider()
}

func otelMeterProviderOf(obs Observability) metric.MeterProvider {
	if f, ok := obs.(*factory); ok {
		return f.meter
	}
	return otel.GetMeterProvider()
}
