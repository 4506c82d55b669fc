package instrument

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"runtime"
	"sync"
	"time"

	"github.com/ongoingai/llmotel/normalize"
)

// Source is a pull-based stream of chunks. Recv returns io.EOF once the
// stream is exhausted.
type Source[T any] interface {
	Recv() (T, error)
	Close() error
}

// StreamCall is the streaming call shape.
type StreamCall[Req, Chunk any] func(ctx context.Context, req Req) (Source[Chunk], error)

// WrapStream wraps a streaming call. The returned Stream forwards every
// chunk unchanged and emits telemetry exactly once, when the source is
// exhausted, fails, is closed early, or the call's context is canceled.
func WrapStream[Req, Chunk any](in *Instrumenter, endpoint Endpoint[Req], norm normalize.ChunkNormalizer, call StreamCall[Req, Chunk]) func(ctx context.Context, req Req) (*Stream[Chunk], error) {
	return func(ctx context.Context, req Req) (*Stream[Chunk], error) {
		if in == nil || IsSuppressed(ctx) {
			src, err := call(ctx, req)
			if err != nil {
				return nil, err
			}
			return &Stream[Chunk]{src: src}, nil
		}

		info := endpoint.request(req)
		info.Stream = true
		inv := in.begin(ctx, endpoint.System, endpoint.Operation, endpoint.Method, info)
		src, err := openStream(inv, call, req)
		if err != nil {
			inv.end(CallOutcome{Streaming: true, Incomplete: true}, err)
			return nil, err
		}
		return newStream(ctx, inv, norm, src), nil
	}
}

func openStream[Req, Chunk any](inv *invocation, call StreamCall[Req, Chunk], req Req) (Source[Chunk], error) {
	defer func() {
		if r := recover(); r != nil {
			inv.end(CallOutcome{Streaming: true, Incomplete: true}, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	return call(inv.ctx, req)
}

// Stream forwards chunks from a Source while measuring them. It supports
// three consumption styles: Recv/Close, Next/Current/Err, and All.
// Recv and Next must not be called concurrently with each other.
//
// A Stream that is dropped without being exhausted or closed is finalized
// as incomplete and its source released once it is garbage collected.
type Stream[T any] struct {
	src   Source[T]
	norm  normalize.ChunkNormalizer
	state *streamState

	cur T
	err error
}

// streamState is everything finalization needs. It is kept apart from
// Stream so cleanup hooks do not keep the Stream reachable.
type streamState struct {
	inv *invocation

	mu        sync.Mutex
	acc       accumulator
	finalized bool
	stop      func() bool

	closeOnce sync.Once
	closeSrc  func() error
	closeErr  error
}

func newStream[T any](ctx context.Context, inv *invocation, norm normalize.ChunkNormalizer, src Source[T]) *Stream[T] {
	if norm == nil {
		norm = normalize.Generic
	}
	state := &streamState{
		inv: inv,
		acc: accumulator{
			start:   inv.cc.StartTime,
			content: newTextBuffer(inv.in.contentMaxBytes),
			keep:    inv.in.captureContent,
			tokens:  inv.in.tokens,
		},
	}
	state.closeSrc = src.Close
	s := &Stream[T]{src: src, norm: norm, state: state}
	if ctx != nil && ctx.Done() != nil {
		state.mu.Lock()
		state.stop = context.AfterFunc(ctx, func() {
			state.finish(nil, true)
		})
		state.mu.Unlock()
	}
	runtime.AddCleanup(s, func(st *streamState) {
		st.finish(nil, true)
		_ = st.release()
	}, state)
	return s
}

// Recv returns the next chunk, or io.EOF when the source is exhausted.
func (s *Stream[T]) Recv() (T, error) {
	if s.src == nil {
		var zero T
		s.state.finish(nil, false)
		return zero, io.EOF
	}

	chunk, err := s.src.Recv()
	if s.state == nil {
		return chunk, err
	}
	at := time.Now()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.state.finish(nil, false)
		} else {
			s.state.finish(err, true)
		}
		return chunk, err
	}
	s.state.observe(s.normalizeChunk(chunk), at)
	return chunk, nil
}

// Close releases the source. Closing before exhaustion records the call as
// incomplete.
func (s *Stream[T]) Close() error {
	if s.state != nil {
		s.state.finish(nil, true)
		return s.state.release()
	}
	if s.src == nil {
		return nil
	}
	return s.src.Close()
}

// Next advances to the next chunk, mirroring SDK stream iterators.
func (s *Stream[T]) Next() bool {
	chunk, err := s.Recv()
	if err != nil {
		var zero T
		s.cur = zero
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		return false
	}
	s.cur = chunk
	return true
}

// Current returns the chunk read by the last successful Next.
func (s *Stream[T]) Current() T {
	return s.cur
}

// Err returns the first non-EOF error seen by Next.
func (s *Stream[T]) Err() error {
	return s.err
}

// All iterates over the remaining chunks. A source error is yielded once
// as the final element. Leaving the loop early closes the stream.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(chunk, err)
				}
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Outcome returns the outcome accumulated so far, before pricing.
func (s *Stream[T]) Outcome() CallOutcome {
	if s.state == nil {
		return CallOutcome{Streaming: true}
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.acc.outcome()
}

func (s *Stream[T]) normalizeChunk(chunk T) (delta normalize.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.state.inv.in.logger.Warn("failed to normalize llm stream chunk", "endpoint", s.state.inv.cc.Endpoint, "panic", fmt.Sprint(r))
			delta = normalize.Result{}
		}
	}()
	return s.norm.NormalizeChunk(chunk)
}

func (st *streamState) observe(delta normalize.Result, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.finalized {
		return
	}
	st.acc.add(delta, at)
}

// finish emits the accumulated outcome once. Later calls are no-ops.
func (st *streamState) finish(err error, incomplete bool) {
	if st == nil {
		return
	}
	st.mu.Lock()
	if st.finalized {
		st.mu.Unlock()
		return
	}
	st.finalized = true
	outcome := st.acc.outcome()
	stop := st.stop
	st.mu.Unlock()

	if stop != nil {
		stop()
	}
	outcome.Incomplete = incomplete
	st.inv.end(outcome, err)
}

// release closes the source once.
func (st *streamState) release() error {
	st.closeOnce.Do(func() {
		if st.closeSrc != nil {
			st.closeErr = st.closeSrc()
		}
	})
	return st.closeErr
}

// accumulator folds chunk deltas into an outcome. Usage counts are treated
// as cumulative snapshots and the largest value seen wins; content deltas
// are appended; the last non-empty model, id and finish reason win.
type accumulator struct {
	start   time.Time
	first   time.Time
	last    time.Time
	chunks  int
	result  normalize.Result
	content textBuffer
	keep    bool
	tokens  *tokenCounter
	tokEst  int
	gaps    IntervalStats
}

func (a *accumulator) add(delta normalize.Result, at time.Time) {
	a.chunks++
	if a.chunks == 1 {
		a.first = at
	} else {
		a.gaps.Observe(at.Sub(a.last))
	}
	a.last = at

	if delta.Model != "" {
		a.result.Model = delta.Model
	}
	if delta.ResponseID != "" {
		a.result.ResponseID = delta.ResponseID
	}
	if delta.FinishReason != "" {
		a.result.FinishReason = delta.FinishReason
	}
	a.result.InputTokens = max(a.result.InputTokens, delta.InputTokens)
	a.result.OutputTokens = max(a.result.OutputTokens, delta.OutputTokens)
	a.result.TotalTokens = max(a.result.TotalTokens, delta.TotalTokens)

	if delta.Content != "" {
		if a.keep {
			a.content.Add(delta.Content)
		}
		if a.tokens != nil {
			a.tokEst += a.tokens.Count(delta.Content)
		}
	}
}

func (a *accumulator) outcome() CallOutcome {
	outcome := CallOutcome{
		Result:           a.result,
		Streaming:        true,
		Chunks:           a.chunks,
		Intervals:        a.gaps,
		ContentTruncated: a.content.Truncated(),
		estimatedOutput:  a.tokEst,
	}
	outcome.Content = a.content.String()
	if a.chunks > 0 {
		outcome.TimeToFirstToken = a.first.Sub(a.start)
	}
	outcome.TimeBetweenTokens = a.gaps.Mean()
	return outcome
}
