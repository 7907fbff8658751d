package observability

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/obsidian/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Span names used by the forward-model engine.
const (
	SpanGenerateCache = "fwdmodel.GenerateCache"
	SpanBuildCache    = "fwdmodel.BuildCache"
	SpanForward       = "fwdmodel.Forward"
	SpanForwardSensor = "fwdmodel.ForwardSensor"
)

const tracerName = "github.com/signalsfoundry/obsidian"

// TracingConfig governs how forward-model tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	// SampleRatio applies to forward evaluations. Cache builds happen once
	// per run and are always kept.
	SampleRatio  float64
	FlushTimeout time.Duration
}

// TracingConfigFromEnv reads OBSIDIAN_TRACING_* and OBSIDIAN_OTLP_ENDPOINT.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Enabled:      strings.EqualFold(os.Getenv("OBSIDIAN_TRACING_ENABLED"), "true"),
		ServiceName:  os.Getenv("OBSIDIAN_TRACING_SERVICE_NAME"),
		Exporter:     strings.ToLower(os.Getenv("OBSIDIAN_TRACING_EXPORTER")),
		Endpoint:     os.Getenv("OBSIDIAN_OTLP_ENDPOINT"),
		SampleRatio:  1,
		FlushTimeout: 5 * time.Second,
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "obsidian-fwd"
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}
	if raw := os.Getenv("OBSIDIAN_TRACING_SAMPLE_RATIO"); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}
	return cfg
}

// evaluationSampler keeps every cache build and samples the rest by ratio.
// A sampler driving Forward thousands of times would otherwise flood the
// exporter.
type evaluationSampler struct {
	ratio sdktrace.Sampler
}

func newEvaluationSampler(ratio float64) sdktrace.Sampler {
	return sdktrace.ParentBased(evaluationSampler{ratio: sdktrace.TraceIDRatioBased(ratio)})
}

func (s evaluationSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if p.Name == SpanGenerateCache {
		return sdktrace.AlwaysSample().ShouldSample(p)
	}
	return s.ratio.ShouldSample(p)
}

func (s evaluationSampler) Description() string {
	return "EvaluationSampler{" + s.ratio.Description() + "}"
}

// InitTracing installs the global tracer provider for one run. The run ID
// carried by ctx, if any, is attached to the trace resource. The returned
// function flushes and stops the exporter.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "obsidian"),
	}
	if id := logging.RunIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("obsidian.run_id", id))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := newEvaluationSampler(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("sampler", sampler.Description()),
		logging.Bool("run_id_attached", logging.RunIDFromContext(ctx) != ""),
	)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		// Results go to stdout, so spans go to stderr.
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithoutTimestamps())
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// StartSpan starts a span named after an engine stage, tagged with the
// sensor key when one applies.
func StartSpan(ctx context.Context, name, sensor string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(extra)+1)
	if sensor != "" {
		attrs = append(attrs, attribute.String("sensor", sensor))
	}
	attrs = append(attrs, extra...)
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// ShutdownWithTimeout flushes spans, giving up after timeout. Errors are
// logged and dropped.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, timeout time.Duration, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
