// Package instrument wraps LLM client calls so each call produces exactly
// one span and one set of metric records, whatever the call's shape.
package instrument

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ongoingai/llmotel/pricing"
)

// ScopeName is the instrumentation scope used for tracers and meters.
const ScopeName = "github.com/ongoingai/llmotel/instrument"

// DefaultContentMaxBytes bounds each captured prompt or completion.
const DefaultContentMaxBytes = 64 << 10

// Config is the static configuration shared by every wrapped call. It is
// read-only once passed to New.
type Config struct {
	// Tracer receives one span per call. Nil disables tracing.
	Tracer trace.Tracer
	// Meter receives metric records. Nil disables metrics.
	Meter metric.Meter
	// Pricing prices calls. Nil marks every call's cost as unavailable.
	Pricing *pricing.Table

	// CaptureContent attaches prompt and completion text as span events.
	CaptureContent bool
	// ContentMaxBytes bounds each captured text; 0 means DefaultContentMaxBytes.
	ContentMaxBytes int
	// Redact is applied to captured text before it is attached.
	Redact func(string) string

	DisableMetrics bool
	// EstimateTokens fills in token counts from text when a call reports
	// no usage at all.
	EstimateTokens bool

	Environment     string
	ApplicationName string

	Logger *slog.Logger
}

// Instrumenter holds the configuration and instruments shared by wrapped
// calls. It is safe for concurrent use.
type Instrumenter struct {
	tracer          trace.Tracer
	metrics         *instruments
	pricing         *pricing.Table
	captureContent  bool
	contentMaxBytes int
	redact          func(string) string
	estimateTokens  bool
	tokens          *tokenCounter
	environment     string
	applicationName string
	logger          *slog.Logger
}

// New builds an Instrumenter. Metric instrument creation failures are
// logged and the affected instrument is skipped.
func New(cfg Config) *Instrumenter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(ScopeName)
	}

	maxBytes := cfg.ContentMaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultContentMaxBytes
	}

	in := &Instrumenter{
		tracer:          tracer,
		pricing:         cfg.Pricing,
		captureContent:  cfg.CaptureContent,
		contentMaxBytes: maxBytes,
		redact:          cfg.Redact,
		estimateTokens:  cfg.EstimateTokens,
		environment:     cfg.Environment,
		applicationName: cfg.ApplicationName,
		logger:          logger,
	}
	if cfg.EstimateTokens {
		in.tokens = &tokenCounter{}
	}
	if !cfg.DisableMetrics && cfg.Meter != nil {
		in.metrics = newInstruments(cfg.Meter, logger)
	}
	return in
}

// CaptureContent reports whether prompt and completion text is recorded.
func (in *Instrumenter) CaptureContent() bool {
	return in != nil && in.captureContent
}

// MetricsEnabled reports whether metric records are emitted.
func (in *Instrumenter) MetricsEnabled() bool {
	return in != nil && in.metrics != nil
}
