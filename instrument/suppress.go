package instrument

import "context"

type suppressKey struct{}

type callKey struct{}

// Suppress marks ctx so instrumented calls made with it emit no telemetry.
// Wrappers apply it to the context they hand to the wrapped call, which
// keeps nested or double-wrapped calls from recording twice.
func Suppress(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, suppressKey{}, true)
}

// IsSuppressed reports whether ctx was marked by Suppress.
func IsSuppressed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	suppressed, _ := ctx.Value(suppressKey{}).(bool)
	return suppressed
}

func withCall(ctx context.Context, cc *CallContext) context.Context {
	return context.WithValue(ctx, callKey{}, cc)
}

// CallFromContext returns the in-flight call a context belongs to.
func CallFromContext(ctx context.Context) (CallContext, bool) {
	if ctx == nil {
		return CallContext{}, false
	}
	cc, ok := ctx.Value(callKey{}).(*CallContext)
	if !ok || cc == nil {
		return CallContext{}, false
	}
	return *cc, true
}
