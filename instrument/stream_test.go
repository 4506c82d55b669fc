package instrument

import (
	"context"
	"errors"
	"io"
	"iter"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/ongoingai/llmotel/normalize"
)

// scriptedSource yields chunks, then err (io.EOF when nil).
type scriptedSource struct {
	mu     sync.Mutex
	chunks []chunk
	err    error
	pos    int
	closed bool
}

func (s *scriptedSource) Recv() (chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return chunk{}, io.EOF
	}
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.err != nil {
		return chunk{}, s.err
	}
	return chunk{}, io.EOF
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func fiveChunks() []chunk {
	return []chunk{
		{Model: "gpt-x", Content: "Hel", Input: 10},
		{Content: "lo"},
		{Content: ", "},
		{Content: "world"},
		{Finish: "stop", Input: 10, Output: 5},
	}
}

func streamCall(src Source[chunk]) StreamCall[chatRequest, chunk] {
	return func(context.Context, chatRequest) (Source[chunk], error) {
		return src, nil
	}
}

func TestStreamFullConsumption(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.CaptureContent = true })
	src := &scriptedSource{chunks: fiveChunks()}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(src))

	stream, err := open(context.Background(), chatRequest{Model: "gpt-x", Prompt: "greet"})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}

	var got []chunk
	for {
		c, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error: %v", err)
		}
		got = append(got, c)
	}
	if len(got) != 5 {
		t.Fatalf("chunks=%d, want 5", len(got))
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	span := h.onlySpan(t)
	if span.Status().Code != codes.Ok {
		t.Fatalf("status=%v, want Ok", span.Status().Code)
	}
	if _, ok := spanAttr(span, AttrResponseIncomplete); ok {
		t.Fatal("fully consumed stream should not be marked incomplete")
	}
	checks := map[string]int64{
		string(AttrResponseChunks):    5,
		string(AttrUsageInputTokens):  10,
		string(AttrUsageOutputTokens): 5,
		string(AttrUsageTotalTokens):  15,
	}
	for _, kv := range span.Attributes() {
		if want, ok := checks[string(kv.Key)]; ok {
			if kv.Value.AsInt64() != want {
				t.Fatalf("%s=%d, want %d", kv.Key, kv.Value.AsInt64(), want)
			}
			delete(checks, string(kv.Key))
		}
	}
	if len(checks) != 0 {
		t.Fatalf("missing attributes: %v", checks)
	}
	if value, ok := spanAttr(span, AttrRequestIsStream); !ok || !value.AsBool() {
		t.Fatal("is_stream should be true")
	}
	if value, _ := spanAttr(span, AttrUsageCost); value.AsFloat64() != 0.00002 {
		t.Fatalf("cost=%v, want 0.00002", value.AsFloat64())
	}
	if _, ok := spanAttr(span, AttrServerTimeToFirstToken); !ok {
		t.Fatal("missing time to first token")
	}
	if _, ok := spanAttr(span, AttrServerTimePerOutputToken); !ok {
		t.Fatal("missing time per output token")
	}

	var completion string
	for _, event := range span.Events() {
		if event.Name == EventCompletion {
			completion = event.Attributes[0].Value.AsString()
		}
	}
	if completion != "Hello, world" {
		t.Fatalf("completion=%q, want %q", completion, "Hello, world")
	}

	rm := h.collect(t)
	if got := histogramCount(t, rm, MetricTimeToFirstToken); got != 1 {
		t.Fatalf("%s count=%d, want 1", MetricTimeToFirstToken, got)
	}
	if got := histogramCount(t, rm, MetricTimePerOutput); got != 1 {
		t.Fatalf("%s count=%d, want 1", MetricTimePerOutput, got)
	}
	if got := int64Sum(t, rm, MetricRequests); got != 1 {
		t.Fatalf("%s=%d, want 1", MetricRequests, got)
	}
}

func TestStreamAbandonedAfterTwoChunks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	src := &scriptedSource{chunks: fiveChunks()}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(src))

	stream, err := open(context.Background(), chatRequest{Model: "gpt-x"})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := stream.Recv(); err != nil {
			t.Fatalf("Recv() error: %v", err)
		}
	}
	if spans := h.recorder.Ended(); len(spans) != 0 {
		t.Fatalf("ended spans=%d before abandonment, want 0", len(spans))
	}
	_ = stream.Close()
	_ = stream.Close()

	if !src.isClosed() {
		t.Fatal("source should be closed")
	}
	span := h.onlySpan(t)
	if span.Status().Code != codes.Ok {
		t.Fatalf("status=%v, want Ok", span.Status().Code)
	}
	if value, ok := spanAttr(span, AttrResponseIncomplete); !ok || !value.AsBool() {
		t.Fatal("abandoned stream should be marked incomplete")
	}
	if value, _ := spanAttr(span, AttrResponseChunks); value.AsInt64() != 2 {
		t.Fatalf("chunks=%d, want 2", value.AsInt64())
	}
	if value, _ := spanAttr(span, AttrUsageInputTokens); value.AsInt64() != 10 {
		t.Fatalf("partial input tokens=%d, want 10", value.AsInt64())
	}
}

func TestStreamAllBreakFinalizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	src := &scriptedSource{chunks: fiveChunks()}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(src))

	stream, err := open(context.Background(), chatRequest{Model: "gpt-x"})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	seen := 0
	for _, err := range stream.All() {
		if err != nil {
			t.Fatalf("All() error: %v", err)
		}
		seen++
		if seen == 3 {
			break
		}
	}

	span := h.onlySpan(t)
	if value, ok := spanAttr(span, AttrResponseIncomplete); !ok || !value.AsBool() {
		t.Fatal("broken-out stream should be marked incomplete")
	}
	if !src.isClosed() {
		t.Fatal("source should be closed after leaving the loop")
	}

	// A second pass observes exhaustion of the remaining source.
	rest := 0
	for range stream.All() {
		rest++
	}
	if rest != 0 {
		t.Fatalf("second pass yielded %d chunks, want 0", rest)
	}
	if spans := h.recorder.Ended(); len(spans) != 1 {
		t.Fatalf("ended spans=%d, want 1", len(spans))
	}
}

func TestStreamMidStreamError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	streamErr := errors.New("connection reset")
	src := &scriptedSource{chunks: fiveChunks()[:2], err: streamErr}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(src))

	stream, err := open(context.Background(), chatRequest{Model: "gpt-x"})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	var gotErr error
	count := 0
	for _, err := range stream.All() {
		if err != nil {
			gotErr = err
			continue
		}
		count++
	}
	if gotErr != streamErr {
		t.Fatalf("error=%v, want original stream error", gotErr)
	}
	if count != 2 {
		t.Fatalf("chunks=%d, want 2", count)
	}

	span := h.onlySpan(t)
	if span.Status().Code != codes.Error || span.Status().Description != "connection reset" {
		t.Fatalf("status=%v %q, want Error connection reset", span.Status().Code, span.Status().Description)
	}
	if value, ok := spanAttr(span, AttrResponseIncomplete); !ok || !value.AsBool() {
		t.Fatal("failed stream should be marked incomplete")
	}
}

func TestStreamOpenError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	openErr := errors.New("bad request")
	open := WrapStream(h.in, chatEndpoint, chunkSchema, func(context.Context, chatRequest) (Source[chunk], error) {
		return nil, openErr
	})

	stream, err := open(context.Background(), chatRequest{Model: "gpt-x"})
	if err != openErr || stream != nil {
		t.Fatalf("open()=%v, %v; want nil, original error", stream, err)
	}
	if span := h.onlySpan(t); span.Status().Code != codes.Error {
		t.Fatalf("status=%v, want Error", span.Status().Code)
	}
}

func TestStreamContextCancelFinalizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	src := &scriptedSource{chunks: fiveChunks()}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(src))

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := open(ctx, chatRequest{Model: "gpt-x"})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	if _, err := stream.Recv(); err != nil {
		t.Fatalf("Recv() error: %v", err)
	}
	cancel()

	waitFor(t, time.Second, func() bool { return len(h.recorder.Ended()) == 1 })
	span := h.onlySpan(t)
	if value, ok := spanAttr(span, AttrResponseIncomplete); !ok || !value.AsBool() {
		t.Fatal("canceled stream should be marked incomplete")
	}

	// Reading after finalization still forwards chunks without new telemetry.
	if c, err := stream.Recv(); err != nil || c.Content != "lo" {
		t.Fatalf("Recv() after cancel=%+v, %v", c, err)
	}
	_ = stream.Close()
	if spans := h.recorder.Ended(); len(spans) != 1 {
		t.Fatalf("ended spans=%d, want 1", len(spans))
	}
}

func TestStreamNextCurrentErr(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	src := &scriptedSource{chunks: fiveChunks()}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(src))
	stream, err := open(context.Background(), chatRequest{Model: "gpt-x"})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}

	var text string
	for stream.Next() {
		text += stream.Current().Content
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("Err()=%v, want nil", err)
	}
	if text != "Hello, world" {
		t.Fatalf("text=%q, want %q", text, "Hello, world")
	}
	if span := h.onlySpan(t); span.Status().Code != codes.Ok {
		t.Fatalf("status=%v, want Ok", span.Status().Code)
	}
}

func TestStreamSuppressedPassesThrough(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	src := &scriptedSource{chunks: fiveChunks()}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(src))
	stream, err := open(Suppress(context.Background()), chatRequest{Model: "gpt-x"})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	n := 0
	for range stream.All() {
		n++
	}
	if n != 5 {
		t.Fatalf("chunks=%d, want 5", n)
	}
	if spans := h.recorder.Ended(); len(spans) != 0 {
		t.Fatalf("ended spans=%d, want 0", len(spans))
	}
}

func TestStreamEstimatesTokensWithoutUsage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.EstimateTokens = true })
	src := &scriptedSource{chunks: []chunk{{Content: "Hello there, "}, {Content: "how are you today?"}}}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(src))
	stream, err := open(context.Background(), chatRequest{Model: "gpt-x", Prompt: "Say hello."})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	for range stream.All() {
	}

	span := h.onlySpan(t)
	if value, ok := spanAttr(span, AttrUsageTokensEstimated); !ok || !value.AsBool() {
		t.Fatal("tokens_estimated should be set")
	}
	if value, _ := spanAttr(span, AttrUsageOutputTokens); value.AsInt64() <= 0 {
		t.Fatalf("output tokens=%d, want positive", value.AsInt64())
	}
}

func TestStreamForwardsChunksUnchanged(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		contents := rapid.SliceOfN(rapid.String(), 0, 20).Draw(t, "contents")
		stopAfter := rapid.IntRange(0, 25).Draw(t, "stopAfter")

		chunks := make([]chunk, len(contents))
		for i, content := range contents {
			chunks[i] = chunk{Content: content, Output: i}
		}

		recorder := tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		in := New(Config{Tracer: provider.Tracer(ScopeName)})
		open := WrapStream(in, chatEndpoint, chunkSchema, streamCall(FromSlice(chunks)))
		stream, err := open(context.Background(), chatRequest{Model: "m"})
		if err != nil {
			t.Fatalf("open() error: %v", err)
		}

		var got []chunk
		for c, err := range stream.All() {
			if err != nil {
				t.Fatalf("All() error: %v", err)
			}
			if len(got) == stopAfter {
				break
			}
			got = append(got, c)
		}

		want := chunks
		if stopAfter < len(want) {
			want = want[:stopAfter]
		}
		if len(got) != len(want) {
			t.Fatalf("chunks=%d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("chunk %d=%+v, want %+v", i, got[i], want[i])
			}
		}
		if spans := recorder.Ended(); len(spans) != 1 {
			t.Fatalf("ended spans=%d, want 1", len(spans))
		}
	})
}

func TestFromSeq2(t *testing.T) {
	t.Parallel()

	seqErr := errors.New("stream broke")
	var seq iter.Seq2[int, error] = func(yield func(int, error) bool) {
		for i := 1; i <= 3; i++ {
			if !yield(i, nil) {
				return
			}
		}
		yield(0, seqErr)
	}

	src := FromSeq2(seq)
	for want := 1; want <= 3; want++ {
		got, err := src.Recv()
		if err != nil || got != want {
			t.Fatalf("Recv()=%d, %v; want %d", got, err, want)
		}
	}
	if _, err := src.Recv(); err != seqErr {
		t.Fatalf("Recv() error=%v, want %v", err, seqErr)
	}
	if _, err := src.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("Recv() after error=%v, want io.EOF", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

type sliceIterator struct {
	items  []string
	pos    int
	err    error
	closed bool
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Current() string { return it.items[it.pos-1] }
func (it *sliceIterator) Err() error      { return it.err }
func (it *sliceIterator) Close() error {
	it.closed = true
	return nil
}

func TestFromIterator(t *testing.T) {
	t.Parallel()

	iterErr := errors.New("decode failed")
	it := &sliceIterator{items: []string{"a", "b"}, err: iterErr}
	src := FromIterator[string](it)

	for _, want := range []string{"a", "b"} {
		got, err := src.Recv()
		if err != nil || got != want {
			t.Fatalf("Recv()=%q, %v; want %q", got, err, want)
		}
	}
	if _, err := src.Recv(); err != iterErr {
		t.Fatalf("Recv() error=%v, want %v", err, iterErr)
	}
	if err := src.Close(); err != nil || !it.closed {
		t.Fatalf("Close()=%v closed=%v", err, it.closed)
	}
}

func TestAccumulatorKeepsLargestUsageSnapshot(t *testing.T) {
	t.Parallel()

	start := time.Now()
	acc := accumulator{start: start, content: newTextBuffer(64), keep: true}
	acc.add(normalize.Result{Model: "m1", InputTokens: 7, OutputTokens: 1, Content: "a"}, start.Add(10*time.Millisecond))
	acc.add(normalize.Result{OutputTokens: 9, Content: "b"}, start.Add(30*time.Millisecond))
	acc.add(normalize.Result{Model: "m2", OutputTokens: 4, FinishReason: "length"}, start.Add(40*time.Millisecond))

	outcome := acc.outcome()
	outcome.Finalize()
	if outcome.Model != "m2" || outcome.FinishReason != "length" {
		t.Fatalf("outcome=%+v", outcome)
	}
	if outcome.InputTokens != 7 || outcome.OutputTokens != 9 || outcome.TotalTokens != 16 {
		t.Fatalf("usage=(%d,%d,%d), want (7,9,16)", outcome.InputTokens, outcome.OutputTokens, outcome.TotalTokens)
	}
	if outcome.Content != "ab" {
		t.Fatalf("content=%q, want %q", outcome.Content, "ab")
	}
	if outcome.TimeToFirstToken != 10*time.Millisecond {
		t.Fatalf("ttft=%v, want 10ms", outcome.TimeToFirstToken)
	}
	if outcome.Intervals.Count != 2 || outcome.Intervals.Min != 10*time.Millisecond || outcome.Intervals.Max != 20*time.Millisecond {
		t.Fatalf("intervals=%+v", outcome.Intervals)
	}
	if outcome.TimeBetweenTokens != 15*time.Millisecond {
		t.Fatalf("tbt=%v, want 15ms", outcome.TimeBetweenTokens)
	}
}

func waitFor(t *testing.T, timeout time.Duration, predicate func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// countingSource counts Close calls.
type countingSource struct {
	scriptedSource
	closes atomic.Int32
}

func (s *countingSource) Close() error {
	s.closes.Add(1)
	return s.scriptedSource.Close()
}

func TestStreamCloseReleasesSourceOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	src := &countingSource{scriptedSource: scriptedSource{chunks: fiveChunks()}}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, func(context.Context, chatRequest) (Source[chunk], error) {
		return src, nil
	})

	stream, err := open(context.Background(), chatRequest{Model: "gpt-x"})
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	for range 2 {
		if _, err := stream.Recv(); err != nil {
			t.Fatalf("Recv() error: %v", err)
		}
	}
	for range 3 {
		if err := stream.Close(); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
	}
	if got := src.closes.Load(); got != 1 {
		t.Fatalf("source closes=%d, want 1", got)
	}
	h.onlySpan(t)
}

func TestStreamDroppedReleasesSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	src := &scriptedSource{chunks: fiveChunks()}
	open := WrapStream(h.in, chatEndpoint, chunkSchema, streamCall(src))

	func() {
		stream, err := open(context.Background(), chatRequest{Model: "gpt-x"})
		if err != nil {
			t.Fatalf("open() error: %v", err)
		}
		if _, err := stream.Recv(); err != nil {
			t.Fatalf("Recv() error: %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !src.isClosed() || len(h.recorder.Ended()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("dropped stream: source closed=%v ended spans=%d, want closed and 1 span", src.isClosed(), len(h.recorder.Ended()))
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	span := h.onlySpan(t)
	if value, ok := spanAttr(span, AttrResponseIncomplete); !ok || !value.AsBool() {
		t.Fatal("dropped stream should be marked incomplete")
	}
}
