// Package config loads the settings that drive instrumentation and the
// telemetry pipeline: a YAML file overlaid with LLMOTEL_* and OTEL_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Instrumentation InstrumentationConfig `yaml:"instrumentation"`
	Pricing         PricingConfig         `yaml:"pricing"`
	Logging         LoggingConfig         `yaml:"logging"`
	Observability   ObservabilityConfig   `yaml:"observability"`
}

type InstrumentationConfig struct {
	Environment     string `yaml:"environment"`
	ApplicationName string `yaml:"application_name"`
	CaptureContent  bool   `yaml:"capture_content"`
	ContentMaxBytes int    `yaml:"content_max_bytes"`
	DisableMetrics  bool   `yaml:"disable_metrics"`
	EstimateTokens  bool   `yaml:"estimate_tokens"`
}

// PricingConfig points at an optional pricing document overlaid on the
// built-in table.
type PricingConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled                bool    `yaml:"enabled"`
	Endpoint               string  `yaml:"endpoint"`
	Protocol               string  `yaml:"protocol"`
	Insecure               bool    `yaml:"insecure"`
	ServiceName            string  `yaml:"service_name"`
	TracesEnabled          bool    `yaml:"traces_enabled"`
	MetricsEnabled         bool    `yaml:"metrics_enabled"`
	PrometheusEnabled      bool    `yaml:"prometheus_enabled"`
	PrometheusPath         string  `yaml:"prometheus_path"`
	SamplingRatio          float64 `yaml:"sampling_ratio"`
	ExportTimeoutMS        int     `yaml:"export_timeout_ms"`
	MetricExportIntervalMS int     `yaml:"metric_export_interval_ms"`
	// SetGlobal installs the providers and propagator as the otel globals.
	SetGlobal bool `yaml:"set_global"`
}

const (
	ProtocolHTTP    = "http/protobuf"
	ProtocolGRPC    = "grpc"
	ProtocolConsole = "console"
)

const (
	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "llmotel"
	defaultOTELSamplingRatio          = 1.0
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
	defaultPrometheusPath             = "/metrics"
	defaultContentMaxBytes            = 64 << 10
)

func Default() Config {
	return Config{
		Instrumentation: InstrumentationConfig{
			Environment:     "development",
			ContentMaxBytes: defaultContentMaxBytes,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				Protocol:               ProtocolHTTP,
				Insecure:               true,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				PrometheusPath:         defaultPrometheusPath,
				SamplingRatio:          defaultOTELSamplingRatio,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
	}
}

// Load reads path over Default and then applies environment overrides. A
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
			var trailing any
			trailingErr := decoder.Decode(&trailing)
			if trailingErr != nil && !errors.Is(trailingErr, io.EOF) {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, trailingErr)
			}
			if trailing != nil {
				return Config{}, fmt.Errorf("parse yaml %q: multiple yaml documents are not supported", path)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration invariants required at runtime.
func Validate(cfg Config) error {
	if cfg.Instrumentation.ContentMaxBytes < 0 {
		return fmt.Errorf("instrumentation.content_max_bytes must be >= 0 (got %d)", cfg.Instrumentation.ContentMaxBytes)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", cfg.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of text, json (got %q)", cfg.Logging.Format)
	}

	if err := validateOTelConfig(cfg.Observability.OTel); err != nil {
		return err
	}

	return nil
}

func validateOTelConfig(cfg OTelConfig) error {
	if !cfg.Enabled {
		return nil
	}
	protocol := strings.TrimSpace(cfg.Protocol)
	switch protocol {
	case "", ProtocolHTTP, ProtocolGRPC, ProtocolConsole:
	default:
		return fmt.Errorf("observability.otel.protocol must be one of %s, %s, %s (got %q)", ProtocolHTTP, ProtocolGRPC, ProtocolConsole, cfg.Protocol)
	}
	pushing := cfg.TracesEnabled || cfg.MetricsEnabled
	if pushing && protocol != ProtocolConsole && strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("observability.otel.endpoint is required when observability.otel.enabled=true")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return errors.New("observability.otel.service_name is required when observability.otel.enabled=true")
	}
	if !pushing && !cfg.PrometheusEnabled {
		return errors.New("observability.otel requires traces_enabled, metrics_enabled and/or prometheus_enabled when enabled")
	}
	if cfg.PrometheusEnabled && !strings.HasPrefix(strings.TrimSpace(cfg.PrometheusPath), "/") {
		return fmt.Errorf("observability.otel.prometheus_path must start with '/' (got %q)", cfg.PrometheusPath)
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		return fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %f)", cfg.SamplingRatio)
	}
	if cfg.ExportTimeoutMS <= 0 {
		return fmt.Errorf("observability.otel.export_timeout_ms must be > 0 (got %d)", cfg.ExportTimeoutMS)
	}
	if cfg.MetricExportIntervalMS <= 0 {
		return fmt.Errorf("observability.otel.metric_export_interval_ms must be > 0 (got %d)", cfg.MetricExportIntervalMS)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if environment := strings.TrimSpace(os.Getenv("LLMOTEL_ENVIRONMENT")); environment != "" {
		cfg.Instrumentation.Environment = environment
	} else if environment := strings.TrimSpace(os.Getenv("OTEL_DEPLOYMENT_ENVIRONMENT")); environment != "" {
		cfg.Instrumentation.Environment = environment
	}
	if appName := strings.TrimSpace(os.Getenv("LLMOTEL_APPLICATION_NAME")); appName != "" {
		cfg.Instrumentation.ApplicationName = appName
	}
	if err := envBool("LLMOTEL_CAPTURE_CONTENT", &cfg.Instrumentation.CaptureContent); err != nil {
		return err
	}
	if err := envInt("LLMOTEL_CONTENT_MAX_BYTES", &cfg.Instrumentation.ContentMaxBytes); err != nil {
		return err
	}
	if err := envBool("LLMOTEL_DISABLE_METRICS", &cfg.Instrumentation.DisableMetrics); err != nil {
		return err
	}
	if err := envBool("LLMOTEL_ESTIMATE_TOKENS", &cfg.Instrumentation.EstimateTokens); err != nil {
		return err
	}
	if pricingPath := strings.TrimSpace(os.Getenv("LLMOTEL_PRICING_PATH")); pricingPath != "" {
		cfg.Pricing.Path = pricingPath
	}
	if level := strings.TrimSpace(os.Getenv("LLMOTEL_LOG_LEVEL")); level != "" {
		cfg.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LLMOTEL_LOG_FORMAT")); format != "" {
		cfg.Logging.Format = format
	}

	otel := &cfg.Observability.OTel
	otelConfigured := false
	otelSDKDisabledSet := false
	if sdkDisabled := strings.TrimSpace(os.Getenv("OTEL_SDK_DISABLED")); sdkDisabled != "" {
		v, err := strconv.ParseBool(sdkDisabled)
		if err != nil {
			return fmt.Errorf("invalid OTEL_SDK_DISABLED: %w", err)
		}
		otel.Enabled = !v
		otelSDKDisabledSet = true
		otelConfigured = true
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		otel.Endpoint = endpoint
		otelConfigured = true
	}
	if protocol := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")); protocol != "" {
		switch strings.ToLower(protocol) {
		case ProtocolHTTP:
			otel.Protocol = ProtocolHTTP
		case ProtocolGRPC:
			otel.Protocol = ProtocolGRPC
		default:
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_PROTOCOL: must be one of %s, %s (got %q)", ProtocolHTTP, ProtocolGRPC, protocol)
		}
		otelConfigured = true
	}
	if insecure := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); insecure != "" {
		v, err := strconv.ParseBool(insecure)
		if err != nil {
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_INSECURE: %w", err)
		}
		otel.Insecure = v
		otelConfigured = true
	}
	if serviceName := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); serviceName != "" {
		otel.ServiceName = serviceName
		otelConfigured = true
	}
	if tracesExporter := strings.TrimSpace(os.Getenv("OTEL_TRACES_EXPORTER")); tracesExporter != "" {
		kind, err := parseExporter(tracesExporter, false)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_EXPORTER: %w", err)
		}
		otel.TracesEnabled = kind != exporterNone
		if kind == exporterConsole {
			otel.Protocol = ProtocolConsole
		}
		otelConfigured = true
	}
	if metricsExporter := strings.TrimSpace(os.Getenv("OTEL_METRICS_EXPORTER")); metricsExporter != "" {
		kind, err := parseExporter(metricsExporter, true)
		if err != nil {
			return fmt.Errorf("invalid OTEL_METRICS_EXPORTER: %w", err)
		}
		switch kind {
		case exporterPrometheus:
			otel.PrometheusEnabled = true
			otel.MetricsEnabled = false
		case exporterConsole:
			otel.Protocol = ProtocolConsole
			otel.MetricsEnabled = true
		default:
			otel.MetricsEnabled = kind == exporterOTLP
		}
		otelConfigured = true
	}
	if samplingRatio := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); samplingRatio != "" {
		v, err := strconv.ParseFloat(samplingRatio, 64)
		if err != nil {
			return fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG: %w", err)
		}
		otel.SamplingRatio = v
		otelConfigured = true
	}
	if exportTimeout := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TIMEOUT")); exportTimeout != "" {
		v, err := strconv.Atoi(exportTimeout)
		if err != nil {
			return fmt.Errorf("invalid OTEL_EXPORTER_OTLP_TIMEOUT: %w", err)
		}
		otel.ExportTimeoutMS = v
		otelConfigured = true
	}
	if metricExportInterval := strings.TrimSpace(os.Getenv("OTEL_METRIC_EXPORT_INTERVAL")); metricExportInterval != "" {
		v, err := strconv.Atoi(metricExportInterval)
		if err != nil {
			return fmt.Errorf("invalid OTEL_METRIC_EXPORT_INTERVAL: %w", err)
		}
		otel.MetricExportIntervalMS = v
		otelConfigured = true
	}
	if prometheusEnabled := strings.TrimSpace(os.Getenv("LLMOTEL_PROMETHEUS_ENABLED")); prometheusEnabled != "" {
		v, err := strconv.ParseBool(prometheusEnabled)
		if err != nil {
			return fmt.Errorf("invalid LLMOTEL_PROMETHEUS_ENABLED: %w", err)
		}
		otel.PrometheusEnabled = v
		otelConfigured = true
	}
	if prometheusPath := strings.TrimSpace(os.Getenv("LLMOTEL_PROMETHEUS_PATH")); prometheusPath != "" {
		otel.PrometheusPath = prometheusPath
		otelConfigured = true
	}
	if otelConfigured && !otelSDKDisabledSet {
		otel.Enabled = true
	}

	return nil
}

func envBool(name string, dst *bool) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func envInt(name string, dst *int) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

type exporterKind int

const (
	exporterNone exporterKind = iota
	exporterOTLP
	exporterConsole
	exporterPrometheus
)

func parseExporter(value string, allowPrometheus bool) (exporterKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "otlp":
		return exporterOTLP, nil
	case "none":
		return exporterNone, nil
	case "console":
		return exporterConsole, nil
	case "prometheus":
		if allowPrometheus {
			return exporterPrometheus, nil
		}
	}
	if allowPrometheus {
		return exporterNone, fmt.Errorf("must be one of otlp, console, prometheus, none (got %q)", value)
	}
	return exporterNone, fmt.Errorf("must be one of otlp, console, none (got %q)", value)
}
