package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ongoingai/llmotel/config"
	"github.com/ongoingai/llmotel/internal/version"
	"github.com/ongoingai/llmotel/observability"
)

const (
	defaultDoctorFormat  = "text"
	defaultDoctorTimeout = 5 * time.Second
)

const (
	doctorStatusPass = "pass"
	doctorStatusWarn = "warn"
	doctorStatusFail = "fail"
	doctorStatusSkip = "skip"
)

type doctorDocument struct {
	GeneratedAt   time.Time     `json:"generated_at"`
	ConfigPath    string        `json:"config_path"`
	Version       string        `json:"version"`
	OverallStatus string        `json:"overall_status"`
	Checks        []doctorCheck `json:"checks"`
}

type doctorCheck struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Summary string   `json:"summary"`
	Details []string `json:"details,omitempty"`
}

func runDoctor(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("doctor", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultDoctorFormat, "Output format: text or json")
	timeout := flagSet.Duration("timeout", defaultDoctorTimeout, "Time allowed for the telemetry export check")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "doctor does not accept positional arguments")
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("doctor", *format, defaultDoctorFormat)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if *timeout <= 0 {
		fmt.Fprintf(errOut, "invalid doctor timeout %s: must be > 0\n", *timeout)
		return 2
	}

	document := buildDoctorDocument(strings.TrimSpace(*configPath), *timeout, errOut)
	if err := writeDoctor(out, normalizedFormat, document); err != nil {
		fmt.Fprintf(errOut, "failed to write doctor output: %v\n", err)
		return 1
	}
	if document.OverallStatus == doctorStatusFail {
		return 1
	}
	return 0
}

func buildDoctorDocument(configPath string, timeout time.Duration, logOut io.Writer) doctorDocument {
	doc := doctorDocument{
		GeneratedAt: time.Now().UTC(),
		ConfigPath:  configPath,
		Version:     version.Short(),
		Checks:      make([]doctorCheck, 0, 4),
	}

	cfg, stage, err := loadAndValidateConfig(configPath)
	if err != nil {
		summary := "config is invalid"
		reason := "skipped: config validation failed"
		if stage == configStageLoad {
			summary = "failed to load config"
			reason = "skipped: config failed to load"
		}
		doc.Checks = append(doc.Checks,
			doctorCheck{
				Name:    "config",
				Status:  doctorStatusFail,
				Summary: summary,
				Details: []string{err.Error()},
			},
			doctorSkippedCheck("pricing", reason),
			doctorSkippedCheck("telemetry", reason),
			doctorSkippedCheck("content_capture", reason),
		)
		doc.OverallStatus = doctorOverallStatus(doc.Checks)
		return doc
	}

	doc.Checks = append(doc.Checks, doctorCheck{
		Name:    "config",
		Status:  doctorStatusPass,
		Summary: "loaded and validated configuration",
		Details: []string{fmt.Sprintf("config path: %s", nonEmpty(configPath, "(default lookup)"))},
	})
	doc.Checks = append(doc.Checks, runDoctorPricingCheck(cfg))
	doc.Checks = append(doc.Checks, runDoctorTelemetryCheck(cfg, timeout, logOut))
	doc.Checks = append(doc.Checks, runDoctorContentCheck(cfg))
	doc.OverallStatus = doctorOverallStatus(doc.Checks)
	return doc
}

func doctorSkippedCheck(name, summary string) doctorCheck {
	return doctorCheck{
		Name:    name,
		Status:  doctorStatusSkip,
		Summary: summary,
	}
}

func runDoctorPricingCheck(cfg config.Config) doctorCheck {
	table, err := observability.LoadPricing(cfg.Pricing.Path)
	if err != nil {
		return doctorCheck{
			Name:    "pricing",
			Status:  doctorStatusFail,
			Summary: "failed to load pricing table",
			Details: []string{err.Error()},
		}
	}
	return doctorCheck{
		Name:    "pricing",
		Status:  doctorStatusPass,
		Summary: fmt.Sprintf("%d model rates, %d prefix rules", table.Len(), len(table.Prefixes())),
		Details: []string{fmt.Sprintf("pricing path: %s", nonEmpty(cfg.Pricing.Path, "(built-in table)"))},
	}
}

func runDoctorTelemetryCheck(cfg config.Config, timeout time.Duration, logOut io.Writer) doctorCheck {
	otelCfg := cfg.Observability.OTel
	if !otelCfg.Enabled {
		return doctorCheck{
			Name:    "telemetry",
			Status:  doctorStatusWarn,
			Summary: "opentelemetry export is disabled; instrumented calls record to no-op providers",
			Details: []string{"set observability.otel.enabled=true or OTEL_EXPORTER_OTLP_ENDPOINT to export"},
		}
	}

	details := []string{
		fmt.Sprintf("protocol: %s", nonEmpty(otelCfg.Protocol, config.ProtocolHTTP)),
		fmt.Sprintf("traces=%t metrics=%t prometheus=%t", otelCfg.TracesEnabled, otelCfg.MetricsEnabled, otelCfg.PrometheusEnabled),
	}
	if otelCfg.Protocol != config.ProtocolConsole && (otelCfg.TracesEnabled || otelCfg.MetricsEnabled) {
		details = append(details, fmt.Sprintf("endpoint: %s", otelCfg.Endpoint))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger := newLogger(cfg.Logging, logOut)
	runtime, err := observability.Setup(ctx, otelCfg, version.Short(), logger, observability.WithConsoleWriter(logOut))
	if err != nil {
		return doctorCheck{
			Name:    "telemetry",
			Status:  doctorStatusFail,
			Summary: "failed to initialize opentelemetry",
			Details: append(details, err.Error()),
		}
	}

	_, span := runtime.Tracer().Start(ctx, "llmotel.doctor")
	span.End()

	if err := runtime.Shutdown(ctx); err != nil {
		return doctorCheck{
			Name:    "telemetry",
			Status:  doctorStatusWarn,
			Summary: "telemetry pipeline initialized but export did not complete",
			Details: append(details, err.Error()),
		}
	}
	return doctorCheck{
		Name:    "telemetry",
		Status:  doctorStatusPass,
		Summary: "telemetry pipeline initialized and flushed",
		Details: details,
	}
}

func runDoctorContentCheck(cfg config.Config) doctorCheck {
	if !cfg.Instrumentation.CaptureContent {
		return doctorCheck{
			Name:    "content_capture",
			Status:  doctorStatusPass,
			Summary: "prompt and completion text is not recorded",
		}
	}
	maxBytes := cfg.Instrumentation.ContentMaxBytes
	return doctorCheck{
		Name:    "content_capture",
		Status:  doctorStatusWarn,
		Summary: "prompt and completion text is exported as span events",
		Details: []string{
			"instrumentation.capture_content=true",
			fmt.Sprintf("captured text is credential-scrubbed and bounded to %d bytes", maxBytes),
		},
	}
}

func doctorOverallStatus(checks []doctorCheck) string {
	hasWarn := false
	for _, check := range checks {
		switch check.Status {
		case doctorStatusFail:
			return doctorStatusFail
		case doctorStatusWarn:
			hasWarn = true
		}
	}
	if hasWarn {
		return doctorStatusWarn
	}
	return doctorStatusPass
}

func writeDoctor(out io.Writer, format string, doc doctorDocument) error {
	switch format {
	case "json":
		return writeDoctorJSON(out, doc)
	default:
		return writeDoctorText(out, doc)
	}
}

func writeDoctorJSON(out io.Writer, doc doctorDocument) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func writeDoctorText(out io.Writer, doc doctorDocument) error {
	fmt.Fprintln(out, "llmotel doctor")

	meta := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(meta, "Generated at\t%s\n", doc.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(meta, "Version\t%s\n", doc.Version)
	fmt.Fprintf(meta, "Config path\t%s\n", nonEmpty(doc.ConfigPath, defaultConfigPath))
	fmt.Fprintf(meta, "Overall status\t%s\n", strings.ToUpper(doc.OverallStatus))
	if err := meta.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nChecks")
	for _, check := range doc.Checks {
		fmt.Fprintf(out, "- [%s] %s: %s\n", strings.ToUpper(check.Status), check.Name, check.Summary)
		for _, detail := range check.Details {
			fmt.Fprintf(out, "  %s\n", detail)
		}
	}
	return nil
}
