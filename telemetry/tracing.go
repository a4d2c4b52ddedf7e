package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by every span in this module.
const TracerName = "github.com/onnwee/pomodorotteux"

const tracingSetupTimeout = 5 * time.Second

// TracingSettings are the OTLP exporter settings read from the environment.
type TracingSettings struct {
	// Endpoint is host:port of the collector; empty disables tracing.
	Endpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	// SampleRatio is the fraction of root spans kept, 1 keeps all.
	SampleRatio float64 `envconfig:"OTEL_TRACES_SAMPLER_ARG" default:"1"`
}

var tracingEnabled atomic.Bool

// InitTracing installs an OTLP/gRPC tracer provider configured from the environment. Without
// OTEL_EXPORTER_OTLP_ENDPOINT it does nothing and returns a no-op shutdown.
func InitTracing(serviceName, serviceVersion string) (func(), error) {
	var ts TracingSettings
	if err := envconfig.Process("", &ts); err != nil {
		return nil, fmt.Errorf("tracing env: %w", err)
	}
	if ts.Endpoint == "" {
		slog.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), tracingSetupTimeout)
	defer cancel()

	tp, err := newTracerProvider(ctx, ts, serviceName, serviceVersion)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	tracingEnabled.Store(true)
	slog.Info("tracing initialized",
		slog.String("service", serviceName),
		slog.String("endpoint", ts.Endpoint),
		slog.Float64("sample_ratio", ts.SampleRatio),
	)

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), tracingSetupTimeout)
		defer shutdownCancel()
		tracingEnabled.Store(false)
		if err := tp.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			slog.Error("tracer provider shutdown", slog.Any("err", err))
		}
	}, nil
}

func newTracerProvider(ctx context.Context, ts TracingSettings, serviceName, serviceVersion string) (*sdktrace.TracerProvider, error) {
	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(ts.Endpoint)}
	if ts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(ts.SampleRatio)),
	), nil
}

// samplerFor keeps child decisions of the parent and samples roots by ratio.
func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// IsTracingEnabled reports whether InitTracing installed an exporter.
func IsTracingEnabled() bool {
	return tracingEnabled.Load()
}

// StartSpan starts a span on the module tracer, tagging it with the correlation id when present.
// With no provider configured the global no-op tracer is used.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
