package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

const doctorPrometheusConfig = `observability:
  otel:
    enabled: true
    traces_enabled: false
    metrics_enabled: false
    prometheus_enabled: true
`

func TestRunDoctorPassesWithPrometheusOnly(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, "llmotel.yaml", doctorPrometheusConfig)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runDoctor([]string{"--config", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("runDoctor() code=%d, want 0 (stderr=%q)", code, stderr.String())
	}
	body := stdout.String()
	if !strings.Contains(body, "llmotel doctor") {
		t.Fatalf("stdout=%q, want doctor header", body)
	}
	for _, want := range []string{"[PASS] config", "[PASS] pricing", "[PASS] telemetry", "[PASS] content_capture"} {
		if !strings.Contains(body, want) {
			t.Fatalf("stdout=%q, want %q", body, want)
		}
	}
	if !strings.Contains(body, "prometheus=true") {
		t.Fatalf("stdout=%q, want telemetry detail", body)
	}
}

func TestRunDoctorWarnsWhenTelemetryDisabled(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, "llmotel.yaml", "instrumentation:\n  capture_content: true\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runDoctor([]string{"--config", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("runDoctor() code=%d, want 0 (stderr=%q)", code, stderr.String())
	}
	body := stdout.String()
	if !strings.Contains(body, "Overall status") || !strings.Contains(body, "WARN") {
		t.Fatalf("stdout=%q, want overall WARN", body)
	}
	if !strings.Contains(body, "[WARN] telemetry") || !strings.Contains(body, "[WARN] content_capture") {
		t.Fatalf("stdout=%q, want telemetry and content warnings", body)
	}
	if !strings.Contains(body, "instrumentation.capture_content=true") {
		t.Fatalf("stdout=%q, want capture detail", body)
	}
}

func TestRunDoctorFailsOnBadPricing(t *testing.T) {
	t.Parallel()

	pricingPath := writeTestFile(t, "pricing.yaml", "models:\n  broken: {input: -1, output: 1}\n")
	path := writeTestFile(t, "llmotel.yaml", "pricing:\n  path: "+pricingPath+"\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runDoctor([]string{"--config", path}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("runDoctor() code=%d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "[FAIL] pricing") {
		t.Fatalf("stdout=%q, want pricing failure", stdout.String())
	}
}

func TestRunDoctorSkipsChecksWhenConfigInvalid(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t, "llmotel.yaml", "logging:\n  format: xml\n")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := runDoctor([]string{"--config", path, "--format", "json"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("runDoctor() code=%d, want 1", code)
	}

	var doc doctorDocument
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		t.Fatalf("decode doctor json: %v (body=%q)", err, stdout.String())
	}
	if doc.OverallStatus != doctorStatusFail {
		t.Fatalf("overall_status=%q, want fail", doc.OverallStatus)
	}
	if len(doc.Checks) != 4 {
		t.Fatalf("checks=%d, want 4", len(doc.Checks))
	}
	if doc.Checks[0].Name != "config" || doc.Checks[0].Summary != "config is invalid" {
		t.Fatalf("first check=%+v, want config invalid", doc.Checks[0])
	}
	for _, check := range doc.Checks[1:] {
		if check.Status != doctorStatusSkip {
			t.Fatalf("check %s status=%q, want skip", check.Name, check.Status)
		}
	}
}

func TestRunDoctorRejectsBadFlags(t *testing.T) {
	t.Parallel()

	tests := [][]string{
		{"--format", "yaml"},
		{"--timeout", "0s"},
		{"extra"},
	}
	for _, args := range tests {
		var stdout bytes.Buffer
		var stderr bytes.Buffer
		if code := runDoctor(args, &stdout, &stderr); code != 2 {
			t.Fatalf("runDoctor(%v) code=%d, want 2", args, code)
		}
	}
}

func TestDoctorOverallStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		statuses []string
		want     string
	}{
		{statuses: []string{doctorStatusPass, doctorStatusSkip}, want: doctorStatusPass},
		{statuses: []string{doctorStatusPass, doctorStatusWarn}, want: doctorStatusWarn},
		{statuses: []string{doctorStatusWarn, doctorStatusFail}, want: doctorStatusFail},
	}
	for _, tt := range tests {
		checks := make([]doctorCheck, 0, len(tt.statuses))
		for _, status := range tt.statuses {
			checks = append(checks, doctorCheck{Status: status})
		}
		if got := doctorOverallStatus(checks); got != tt.want {
			t.Fatalf("doctorOverallStatus(%v)=%q, want %q", tt.statuses, got, tt.want)
		}
	}
}
