// Package observability builds the OpenTelemetry pipeline that carries
// instrumented LLM calls out of the process.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ongoingai/llmotel/config"
	"github.com/ongoingai/llmotel/instrument"
)

// Runtime owns the tracer and meter providers built from configuration.
// A nil or disabled Runtime hands out no-op providers.
type Runtime struct {
	enabled bool

	tracerProvider oteltrace.TracerProvider
	meterProvider  metric.MeterProvider

	prometheusHandler http.Handler
	prometheusPath    string

	shutdownFns []func(context.Context) error
}

// Option customizes Setup.
type Option func(*setupOptions)

type setupOptions struct {
	console io.Writer
}

// WithConsoleWriter sets where the console exporters write. Defaults to
// os.Stdout.
func WithConsoleWriter(w io.Writer) Option {
	return func(o *setupOptions) {
		o.console = w
	}
}

// Setup initializes the providers described by cfg. Globals are only
// replaced when cfg.SetGlobal is true.
func Setup(ctx context.Context, cfg config.OTelConfig, serviceVersion string, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	options := setupOptions{console: os.Stdout}
	for _, opt := range opts {
		opt(&options)
	}

	runtime := &Runtime{}
	if !cfg.Enabled {
		return runtime, nil
	}

	protocol := strings.TrimSpace(cfg.Protocol)
	if protocol == "" {
		protocol = config.ProtocolHTTP
	}
	exportTimeout := time.Duration(cfg.ExportTimeoutMS) * time.Millisecond
	metricInterval := time.Duration(cfg.MetricExportIntervalMS) * time.Millisecond

	var (
		otlpEndpoint string
		insecure     = cfg.Insecure
	)
	if protocol != config.ProtocolConsole && (cfg.TracesEnabled || cfg.MetricsEnabled) {
		endpoint, inferredInsecure, err := normalizeOTLPEndpoint(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		otlpEndpoint = endpoint
		if strings.Contains(strings.TrimSpace(cfg.Endpoint), "://") {
			// An explicit scheme wins over the insecure toggle.
			insecure = inferredInsecure
		}
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", strings.TrimSpace(cfg.ServiceName)),
		attribute.String("service.version", strings.TrimSpace(serviceVersion)),
	)

	exporters := exporterFactory{
		protocol: protocol,
		endpoint: otlpEndpoint,
		insecure: insecure,
		timeout:  exportTimeout,
		console:  options.console,
	}

	if cfg.TracesEnabled {
		traceExporter, err := exporters.traces(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize otel trace exporter: %w", err)
		}
		tracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
			sdktrace.WithBatcher(newScrubbingExporter(traceExporter)),
			sdktrace.WithResource(res),
		)
		runtime.tracerProvider = tracerProvider
		runtime.shutdownFns = append(runtime.shutdownFns, tracerProvider.Shutdown)
	}

	var readers []sdkmetric.Reader
	if cfg.MetricsEnabled {
		metricExporter, err := exporters.metrics(ctx)
		if err != nil {
			_ = runtime.Shutdown(context.Background())
			return nil, fmt.Errorf("initialize otel metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(metricInterval),
			sdkmetric.WithTimeout(exportTimeout),
		))
	}
	if cfg.PrometheusEnabled {
		registry := prometheus.NewRegistry()
		promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			_ = runtime.Shutdown(context.Background())
			return nil, fmt.Errorf("initialize prometheus exporter: %w", err)
		}
		readers = append(readers, promExporter)
		runtime.prometheusHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		runtime.prometheusPath = strings.TrimSpace(cfg.PrometheusPath)
	}
	if len(readers) > 0 {
		meterOptions := []sdkmetric.Option{sdkmetric.WithResource(res)}
		for _, reader := range readers {
			meterOptions = append(meterOptions, sdkmetric.WithReader(reader))
		}
		meterProvider := sdkmetric.NewMeterProvider(meterOptions...)
		runtime.meterProvider = meterProvider
		runtime.shutdownFns = append(runtime.shutdownFns, meterProvider.Shutdown)
	}

	if cfg.SetGlobal {
		if runtime.tracerProvider != nil {
			otel.SetTracerProvider(runtime.tracerProvider)
		}
		if runtime.meterProvider != nil {
			otel.SetMeterProvider(runtime.meterProvider)
		}
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	runtime.enabled = true
	logger.Info(
		"opentelemetry enabled",
		"otel_protocol", protocol,
		"otel_endpoint", otlpEndpoint,
		"otel_traces_enabled", cfg.TracesEnabled,
		"otel_metrics_enabled", cfg.MetricsEnabled,
		"otel_prometheus_enabled", cfg.PrometheusEnabled,
		"otel_sampling_ratio", cfg.SamplingRatio,
		"otel_set_global", cfg.SetGlobal,
	)

	return runtime, nil
}

type exporterFactory struct {
	protocol string
	endpoint string
	insecure bool
	timeout  time.Duration
	console  io.Writer
}

func (f exporterFactory) traces(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch f.protocol {
	case config.ProtocolConsole:
		return stdouttrace.New(stdouttrace.WithWriter(f.console))
	case config.ProtocolGRPC:
		options := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(f.endpoint),
			otlptracegrpc.WithTimeout(f.timeout),
		}
		if f.insecure {
			options = append(options, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, options...)
	case config.ProtocolHTTP:
		options := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(f.endpoint),
			otlptracehttp.WithTimeout(f.timeout),
		}
		if f.insecure {
			options = append(options, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, options...)
	default:
		return nil, fmt.Errorf("unsupported otel protocol %q", f.protocol)
	}
}

func (f exporterFactory) metrics(ctx context.Context) (sdkmetric.Exporter, error) {
	switch f.protocol {
	case config.ProtocolConsole:
		return stdoutmetric.New(stdoutmetric.WithWriter(f.console))
	case config.ProtocolGRPC:
		options := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(f.endpoint),
			otlpmetricgrpc.WithTimeout(f.timeout),
		}
		if f.insecure {
			options = append(options, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, options...)
	case config.ProtocolHTTP:
		options := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(f.endpoint),
			otlpmetrichttp.WithTimeout(f.timeout),
		}
		if f.insecure {
			options = append(options, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, options...)
	default:
		return nil, fmt.Errorf("unsupported otel protocol %q", f.protocol)
	}
}

// Enabled reports whether OpenTelemetry export is active.
func (r *Runtime) Enabled() bool {
	return r != nil && r.enabled
}

// TracerProvider returns the configured provider, or a no-op one when
// tracing is off.
func (r *Runtime) TracerProvider() oteltrace.TracerProvider {
	if r == nil || r.tracerProvider == nil {
		return tracenoop.NewTracerProvider()
	}
	return r.tracerProvider
}

// MeterProvider returns the configured provider, or a no-op one when no
// metric reader is configured.
func (r *Runtime) MeterProvider() metric.MeterProvider {
	if r == nil || r.meterProvider == nil {
		return metricnoop.NewMeterProvider()
	}
	return r.meterProvider
}

// Tracer returns the tracer used for LLM call spans.
func (r *Runtime) Tracer() oteltrace.Tracer {
	return r.TracerProvider().Tracer(instrument.ScopeName)
}

// Meter returns the meter used for LLM call metrics.
func (r *Runtime) Meter() metric.Meter {
	return r.MeterProvider().Meter(instrument.ScopeName)
}

// WrapHTTPTransport wraps a vendor SDK transport so each HTTP round trip
// becomes a child span of the LLM call that issued it.
func (r *Runtime) WrapHTTPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if !r.Enabled() {
		return base
	}
	return otelhttp.NewTransport(
		base,
		otelhttp.WithTracerProvider(r.TracerProvider()),
		otelhttp.WithMeterProvider(r.MeterProvider()),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return clientSpanName(req)
		}),
	)
}

// HTTPClient returns a copy of base whose transport is wrapped by
// WrapHTTPTransport. A nil base starts from an empty client.
func (r *Runtime) HTTPClient(base *http.Client) *http.Client {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	client.Transport = r.WrapHTTPTransport(client.Transport)
	return client
}

// PrometheusHandler returns the scrape handler, or nil when the Prometheus
// reader is disabled.
func (r *Runtime) PrometheusHandler() http.Handler {
	if r == nil {
		return nil
	}
	return r.prometheusHandler
}

// PrometheusPath is the configured scrape path.
func (r *Runtime) PrometheusPath() string {
	if r == nil {
		return ""
	}
	return r.prometheusPath
}

// Shutdown flushes and stops the providers in reverse creation order.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil || len(r.shutdownFns) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i := len(r.shutdownFns) - 1; i >= 0; i-- {
		if err := r.shutdownFns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func normalizeOTLPEndpoint(raw string) (string, bool, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", false, errors.New("observability.otel.endpoint must not be empty")
	}

	if !strings.Contains(endpoint, "://") {
		return endpoint, false, nil
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse observability.otel.endpoint: %w", err)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", false, fmt.Errorf("observability.otel.endpoint must include host (got %q)", raw)
	}

	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return parsed.Host, true, nil
	case "https":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("observability.otel.endpoint scheme must be http or https when provided (got %q)", parsed.Scheme)
	}
}

// clientSpanName names an outbound request after the LLM endpoint that
// issued it, falling back to the host.
func clientSpanName(req *http.Request) string {
	method := normalizedMethod(req.Method)
	if call, ok := instrument.CallFromContext(req.Context()); ok && call.Endpoint != "" {
		return method + " " + call.Endpoint
	}
	if req.URL != nil && req.URL.Host != "" {
		return method + " " + req.URL.Host
	}
	return method
}

func normalizedMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet
	}
	return method
}
