package instrument

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ongoingai/llmotel/normalize"
)

// rejectingSpan panics on every attribute write after start.
type rejectingSpan struct {
	trace.Span
}

func (rejectingSpan) SetAttributes(...attribute.KeyValue) {
	panic("attribute sink unavailable")
}

type rejectingTracer struct {
	trace.Tracer
}

func (t rejectingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, span := t.Tracer.Start(ctx, name, opts...)
	return ctx, rejectingSpan{Span: span}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitPanickingRedactStillEndsSpan(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) {
		cfg.CaptureContent = true
		cfg.Redact = func(string) string { panic("redact broken") }
		cfg.Logger = quietLogger()
	})
	call := Wrap(h.in, chatEndpoint, normalize.OpenAIChat, func(context.Context, chatRequest) (chatResponse, error) {
		return newChatResponse("gpt-x", "hello", 10, 5), nil
	})

	got, err := call(context.Background(), chatRequest{Model: "gpt-x", Prompt: "hi"})
	if err != nil || got.ID != "resp-1" {
		t.Fatalf("call()=%+v, %v; want response unchanged", got, err)
	}

	if started, ended := len(h.recorder.Started()), len(h.recorder.Ended()); started != 1 || ended != 1 {
		t.Fatalf("started=%d ended=%d, want 1 and 1", started, ended)
	}
	span := h.onlySpan(t)
	if span.Status().Code != codes.Ok {
		t.Fatalf("status=%v, want Ok", span.Status().Code)
	}
	if len(span.Events()) != 0 {
		t.Fatalf("events=%d, want captured content dropped", len(span.Events()))
	}
	if value, ok := spanAttr(span, AttrUsageTotalTokens); !ok || value.AsInt64() != 15 {
		t.Fatalf("total tokens=%v, want 15", value)
	}

	rm := h.collect(t)
	if got := int64Sum(t, rm, MetricRequests); got != 1 {
		t.Fatalf("requests=%d, want 1", got)
	}
}

func TestEmitRejectingSpanStillEndsWithErrorStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) {
		cfg.Tracer = rejectingTracer{Tracer: cfg.Tracer}
		cfg.Logger = quietLogger()
	})
	call := Wrap(h.in, chatEndpoint, normalize.OpenAIChat, func(context.Context, chatRequest) (chatResponse, error) {
		return newChatResponse("gpt-x", "hello", 1, 1), nil
	})

	if _, err := call(context.Background(), chatRequest{Model: "gpt-x"}); err != nil {
		t.Fatalf("call() error: %v", err)
	}

	span := h.onlySpan(t)
	if span.Status().Code != codes.Error {
		t.Fatalf("status=%v, want Error after annotation failure", span.Status().Code)
	}
	rm := h.collect(t)
	if got := int64Sum(t, rm, MetricRequests); got != 1 {
		t.Fatalf("requests=%d, want 1", got)
	}
}

func TestEmitRejectingSpanKeepsCallError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) {
		cfg.Tracer = rejectingTracer{Tracer: cfg.Tracer}
		cfg.Logger = quietLogger()
	})
	callErr := errors.New("upstream unavailable")
	call := Wrap(h.in, chatEndpoint, nil, func(context.Context, chatRequest) (chatResponse, error) {
		return chatResponse{}, callErr
	})

	if _, err := call(context.Background(), chatRequest{Model: "gpt-x"}); !errors.Is(err, callErr) {
		t.Fatalf("call() error=%v, want %v", err, callErr)
	}
	span := h.onlySpan(t)
	if span.Status().Code != codes.Error || span.Status().Description != callErr.Error() {
		t.Fatalf("status=%+v, want Error %q", span.Status(), callErr.Error())
	}
}

func TestStreamPanickingRedactStillEndsSpan(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) {
		cfg.CaptureContent = true
		cfg.Redact = func(string) string { panic("redact broken") }
		cfg.Logger = quietLogger()
	})
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(&scriptedSource{chunks: fiveChunks()}))

	stream, err := open(context.Background(), chatRequest{Model: "gpt-x", Prompt: "greet"})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	for _, err := range stream.All() {
		if err != nil {
			t.Fatalf("All() error: %v", err)
		}
	}

	span := h.onlySpan(t)
	if span.Status().Code != codes.Ok {
		t.Fatalf("status=%v, want Ok", span.Status().Code)
	}
	if value, ok := spanAttr(span, AttrUsageOutputTokens); !ok || value.AsInt64() != 5 {
		t.Fatalf("output tokens=%v, want 5", value)
	}
}
