// Package anthropic instruments the Messages service of
// github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/ongoingai/llmotel/instrument"
	"github.com/ongoingai/llmotel/normalize"
)

// MessagesAPI is the method set of *sdk.MessageService that is instrumented.
type MessagesAPI interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

var _ MessagesAPI = (*sdk.MessageService)(nil)

type messageCall struct {
	body sdk.MessageNewParams
	opts []option.RequestOption
}

var messagesEndpoint = instrument.Endpoint[messageCall]{
	System:    normalize.Anthropic.System,
	Operation: normalize.Anthropic.Operation,
	Method:    "messages",
	Request: func(c messageCall) normalize.Request {
		return normalize.Anthropic.Request.Extract(c.body)
	},
}

// Messages is an instrumented MessagesAPI. Streams are returned as
// *instrument.Stream, which keeps the SDK's Next/Current/Err/Close shape.
type Messages struct {
	api    MessagesAPI
	create instrument.Call[messageCall, *sdk.Message]
	stream func(context.Context, messageCall) (*instrument.Stream[sdk.MessageStreamEventUnion], error)
}

// Wrap instruments api with in. Pass &client.Messages for an SDK client.
func Wrap(api MessagesAPI, in *instrument.Instrumenter) *Messages {
	return &Messages{
		api: api,
		create: instrument.Wrap(in, messagesEndpoint, normalize.Anthropic, func(ctx context.Context, c messageCall) (*sdk.Message, error) {
			return api.New(ctx, c.body, c.opts...)
		}),
		stream: instrument.WrapStream(in, messagesEndpoint, normalize.Anthropic, func(ctx context.Context, c messageCall) (instrument.Source[sdk.MessageStreamEventUnion], error) {
			return instrument.FromIterator[sdk.MessageStreamEventUnion](api.NewStreaming(ctx, c.body, c.opts...)), nil
		}),
	}
}

func (m *Messages) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return m.create(ctx, messageCall{body: body, opts: opts})
}

// NewStreaming opens a recorded event stream. Input tokens come from the
// message_start event and output tokens from the last message_delta.
func (m *Messages) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *instrument.Stream[sdk.MessageStreamEventUnion] {
	// The stream call itself never fails; transport errors surface through Err.
	stream, _ := m.stream(ctx, messageCall{body: body, opts: opts})
	return stream
}

// Unwrap returns the wrapped service.
func (m *Messages) Unwrap() MessagesAPI {
	return m.api
}
