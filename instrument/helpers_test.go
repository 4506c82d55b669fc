package instrument

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ongoingai/llmotel/normalize"
	"github.com/ongoingai/llmotel/pricing"
)

type harness struct {
	in       *Instrumenter
	recorder *tracetest.SpanRecorder
	reader   *sdkmetric.ManualReader
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tracerProvider.Shutdown(context.Background())
		_ = meterProvider.Shutdown(context.Background())
	})

	cfg := Config{
		Tracer:          tracerProvider.Tracer(ScopeName),
		Meter:           meterProvider.Meter(ScopeName),
		Pricing:         pricing.NewTable(map[string]pricing.Price{"gpt-x": pricing.NewPrice(0.001, 0.002)}),
		Environment:     "test",
		ApplicationName: "llmotel-test",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &harness{in: New(cfg), recorder: recorder, reader: reader}
}

func (h *harness) onlySpan(t *testing.T) sdktrace.ReadOnlySpan {
	t.Helper()

	spans := h.recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans=%d, want 1", len(spans))
	}
	return spans[0]
}

func (h *harness) collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	return rm
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func int64Sum(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()

	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s data type=%T, want metricdata.Sum[int64]", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func float64Sum(t *testing.T, rm metricdata.ResourceMetrics, name string) float64 {
	t.Helper()

	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[float64])
	if !ok {
		t.Fatalf("metric %s data type=%T, want metricdata.Sum[float64]", name, m.Data)
	}
	var total float64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()

	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %s data type=%T, want metricdata.Histogram[float64]", name, m.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	return count
}

// chatResponse mimics a vendor SDK response type.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatRequest struct {
	Model  string
	Prompt string
}

func newChatResponse(model, content string, in, out int) chatResponse {
	return chatResponse{
		ID:      "resp-1",
		Model:   model,
		Choices: []chatChoice{{Message: chatMessage{Content: content}, FinishReason: "stop"}},
		Usage:   chatUsage{PromptTokens: in, CompletionTokens: out},
	}
}

var chatEndpoint = Endpoint[chatRequest]{
	System:    "openai",
	Operation: normalize.OperationChat,
	Method:    "chat.completions",
	Request: func(req chatRequest) normalize.Request {
		return normalize.Request{Model: req.Model, Prompt: req.Prompt}
	},
}

// chunk mimics a streamed vendor chunk.
type chunk struct {
	Model   string `json:"model,omitempty"`
	Content string `json:"content,omitempty"`
	Input   int    `json:"input_tokens,omitempty"`
	Output  int    `json:"output_tokens,omitempty"`
	Finish  string `json:"finish_reason,omitempty"`
}

var chunkSchema = normalize.Schema{
	Model:        []string{"model"},
	InputTokens:  []string{"input_tokens"},
	OutputTokens: []string{"output_tokens"},
	FinishReason: []string{"finish_reason"},
	Content:      []string{"content"},
}
