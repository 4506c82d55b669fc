package instrument

import (
	"context"
	"fmt"

	"github.com/ongoingai/llmotel/normalize"
)

// Call is the synchronous call shape: one request, one response or error.
type Call[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Wrap returns a Call with the same behavior as call that records one span
// and one set of metrics per invocation. The response and error are
// returned unchanged. A nil Instrumenter or a suppressed context passes
// straight through to call.
//
// call receives a context carrying the call's span and the suppression mark,
// so wrapping an already wrapped Call records once.
func Wrap[Req, Resp any](in *Instrumenter, endpoint Endpoint[Req], norm normalize.Normalizer, call Call[Req, Resp]) Call[Req, Resp] {
	return func(ctx context.Context, req Req) (Resp, error) {
		if in == nil || IsSuppressed(ctx) {
			return call(ctx, req)
		}
		inv := in.begin(ctx, endpoint.System, endpoint.Operation, endpoint.Method, endpoint.request(req))
		return invoke(inv, norm, call, req)
	}
}

// invoke runs call under inv. A panic in call is recorded as an error and
// re-raised.
func invoke[Req, Resp any](inv *invocation, norm normalize.Normalizer, call Call[Req, Resp], req Req) (resp Resp, err error) {
	defer func() {
		if r := recover(); r != nil {
			inv.end(CallOutcome{}, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	resp, err = call(inv.ctx, req)
	if err != nil {
		inv.end(CallOutcome{Result: inv.in.normalizeResponse(norm, resp, inv.cc)}, err)
		return resp, err
	}
	inv.end(CallOutcome{Result: inv.in.normalizeResponse(norm, resp, inv.cc)}, nil)
	return resp, nil
}

// normalizeResponse runs norm, falling back to the generic schema. A
// panicking normalizer yields an empty result.
func (in *Instrumenter) normalizeResponse(norm normalize.Normalizer, resp any, cc *CallContext) (result normalize.Result) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Warn("failed to normalize llm response", "endpoint", cc.Endpoint, "panic", fmt.Sprint(r))
			result = normalize.Result{}
		}
	}()
	if norm == nil {
		norm = normalize.Generic
	}
	return norm.Normalize(resp)
}

// Future is the pending result of an asynchronous call.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx is done. Giving up on
// the wait does not cancel the call; its telemetry is still emitted.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the result is available.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

// WrapAsync is the asynchronous form of Wrap: the returned function starts
// call on its own goroutine and returns immediately. The call's start time
// is taken at invocation; telemetry is emitted when the call returns.
func WrapAsync[Req, Resp any](in *Instrumenter, endpoint Endpoint[Req], norm normalize.Normalizer, call Call[Req, Resp]) func(ctx context.Context, req Req) *Future[Resp] {
	return func(ctx context.Context, req Req) *Future[Resp] {
		future := newFuture[Resp]()
		if in == nil || IsSuppressed(ctx) {
			go func() {
				future.resolve(call(ctx, req))
			}()
			return future
		}

		inv := in.begin(ctx, endpoint.System, endpoint.Operation, endpoint.Method, endpoint.request(req))
		go func() {
			future.resolve(invoke(inv, norm, call, req))
		}()
		return future
	}
}
