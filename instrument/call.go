package instrument

import (
	"time"

	"github.com/ongoingai/llmotel/normalize"
)

// Endpoint identifies a vendor operation and how to read its request.
type Endpoint[Req any] struct {
	// System is the gen_ai.system value, e.g. "openai".
	System string
	// Operation is the gen_ai.operation.name value, e.g. "chat".
	Operation string
	// Method names the vendor method, e.g. "chat.completions". Defaults to
	// Operation.
	Method string
	// Request extracts span attributes from the request. Optional.
	Request func(Req) normalize.Request
}

// Name returns the logical endpoint identifier, "<system>.<method>".
func (e Endpoint[Req]) Name() string {
	return endpointName(e.System, e.Method, e.Operation)
}

func endpointName(system, method, operation string) string {
	if method == "" {
		method = operation
	}
	switch {
	case system == "":
		return method
	case method == "":
		return system
	default:
		return system + "." + method
	}
}

// request runs the extractor; a panicking extractor yields an empty request.
func (e Endpoint[Req]) request(req Req) (info normalize.Request) {
	if e.Request == nil {
		return normalize.Request{}
	}
	defer func() {
		if recover() != nil {
			info = normalize.Request{}
		}
	}()
	return e.Request(req)
}

// CallContext is the per-invocation record built at call entry. It is not
// modified after construction.
type CallContext struct {
	Endpoint        string
	System          string
	Operation       string
	StartTime       time.Time
	Request         normalize.Request
	Environment     string
	ApplicationName string
}

// RequestModel returns the requested model name.
func (cc CallContext) RequestModel() string {
	return cc.Request.Model
}

// SpanName is "<operation> <model>", or just the operation when the model
// is unknown.
func (cc CallContext) SpanName() string {
	operation := cc.Operation
	if operation == "" {
		operation = cc.Endpoint
	}
	if cc.Request.Model == "" {
		return operation
	}
	return operation + " " + cc.Request.Model
}
