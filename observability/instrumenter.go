package observability

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ongoingai/llmotel/config"
	"github.com/ongoingai/llmotel/instrument"
	"github.com/ongoingai/llmotel/pricing"
)

// LoadPricing returns the built-in table, overlaid with the document at
// path when one is given.
func LoadPricing(path string) (*pricing.Table, error) {
	table := pricing.Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return table, nil
	}
	custom, err := pricing.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return table.Merge(custom), nil
}

// Instrumenter builds the shared instrumenter for cfg on top of the
// runtime's providers. Captured text is credential-scrubbed.
func (r *Runtime) Instrumenter(cfg config.Config, logger *slog.Logger) (*instrument.Instrumenter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table, err := LoadPricing(cfg.Pricing.Path)
	if err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}

	applicationName := strings.TrimSpace(cfg.Instrumentation.ApplicationName)
	if applicationName == "" {
		applicationName = strings.TrimSpace(cfg.Observability.OTel.ServiceName)
	}

	return instrument.New(instrument.Config{
		Tracer:          r.Tracer(),
		Meter:           r.Meter(),
		Pricing:         table,
		CaptureContent:  cfg.Instrumentation.CaptureContent,
		ContentMaxBytes: cfg.Instrumentation.ContentMaxBytes,
		Redact:          ScrubCredentials,
		DisableMetrics:  cfg.Instrumentation.DisableMetrics,
		EstimateTokens:  cfg.Instrumentation.EstimateTokens,
		Environment:     cfg.Instrumentation.Environment,
		ApplicationName: applicationName,
		Logger:          logger,
	}), nil
}
