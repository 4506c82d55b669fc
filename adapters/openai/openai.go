// Package openai instruments services of github.com/openai/openai-go/v3.
//
// Each Wrap function takes the SDK service by its method set, so
// &client.Chat.Completions, &client.Embeddings and &client.Responses can be
// passed directly:
//
//	client := sdk.NewClient(option.WithAPIKey(key))
//	chat := openai.WrapChatCompletions(&client.Chat.Completions, in)
//	completion, err := chat.New(ctx, params)
package openai

import (
	"context"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/responses"

	"github.com/ongoingai/llmotel/instrument"
	"github.com/ongoingai/llmotel/normalize"
)

// ChatCompletionsAPI is the method set of *sdk.ChatCompletionService that is
// instrumented.
type ChatCompletionsAPI interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	NewStreaming(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.ChatCompletionChunk]
}

// EmbeddingsAPI is the method set of *sdk.EmbeddingService that is instrumented.
type EmbeddingsAPI interface {
	New(ctx context.Context, body sdk.EmbeddingNewParams, opts ...option.RequestOption) (*sdk.CreateEmbeddingResponse, error)
}

// ResponsesAPI is the method set of *responses.ResponseService that is
// instrumented.
type ResponsesAPI interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
	NewStreaming(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) *ssestream.Stream[responses.ResponseStreamEventUnion]
}

var (
	_ ChatCompletionsAPI = (*sdk.ChatCompletionService)(nil)
	_ EmbeddingsAPI      = (*sdk.EmbeddingService)(nil)
	_ ResponsesAPI       = (*responses.ResponseService)(nil)
)

// call bundles a request body with its per-request options.
type call[P any] struct {
	body P
	opts []option.RequestOption
}

func endpoint[P any](vendor normalize.Vendor, method string) instrument.Endpoint[call[P]] {
	return instrument.Endpoint[call[P]]{
		System:    vendor.System,
		Operation: vendor.Operation,
		Method:    method,
		Request: func(c call[P]) normalize.Request {
			return vendor.Request.Extract(c.body)
		},
	}
}

// ChatCompletions is an instrumented ChatCompletionsAPI.
type ChatCompletions struct {
	api    ChatCompletionsAPI
	create instrument.Call[call[sdk.ChatCompletionNewParams], *sdk.ChatCompletion]
	stream func(context.Context, call[sdk.ChatCompletionNewParams]) (*instrument.Stream[sdk.ChatCompletionChunk], error)
}

// WrapChatCompletions instruments api with in.
func WrapChatCompletions(api ChatCompletionsAPI, in *instrument.Instrumenter) *ChatCompletions {
	ep := endpoint[sdk.ChatCompletionNewParams](normalize.OpenAIChat, "chat.completions")
	return &ChatCompletions{
		api: api,
		create: instrument.Wrap(in, ep, normalize.OpenAIChat, func(ctx context.Context, c call[sdk.ChatCompletionNewParams]) (*sdk.ChatCompletion, error) {
			return api.New(ctx, c.body, c.opts...)
		}),
		stream: instrument.WrapStream(in, ep, normalize.OpenAIChat, func(ctx context.Context, c call[sdk.ChatCompletionNewParams]) (instrument.Source[sdk.ChatCompletionChunk], error) {
			return instrument.FromIterator[sdk.ChatCompletionChunk](api.NewStreaming(ctx, c.body, c.opts...)), nil
		}),
	}
}

func (c *ChatCompletions) New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error) {
	return c.create(ctx, call[sdk.ChatCompletionNewParams]{body: body, opts: opts})
}

// NewStreaming opens a recorded stream. Transport errors surface through
// the stream's Err, as with the SDK. Set StreamOptions.IncludeUsage to
// record vendor token counts.
func (c *ChatCompletions) NewStreaming(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) *instrument.Stream[sdk.ChatCompletionChunk] {
	// The stream call itself never fails.
	stream, _ := c.stream(ctx, call[sdk.ChatCompletionNewParams]{body: body, opts: opts})
	return stream
}

// Unwrap returns the wrapped service.
func (c *ChatCompletions) Unwrap() ChatCompletionsAPI {
	return c.api
}

// Embeddings is an instrumented EmbeddingsAPI.
type Embeddings struct {
	create instrument.Call[call[sdk.EmbeddingNewParams], *sdk.CreateEmbeddingResponse]
}

var _ EmbeddingsAPI = (*Embeddings)(nil)

// WrapEmbeddings instruments api with in. An api that is already an
// *Embeddings is returned unchanged.
func WrapEmbeddings(api EmbeddingsAPI, in *instrument.Instrumenter) EmbeddingsAPI {
	if wrapped, ok := api.(*Embeddings); ok {
		return wrapped
	}
	ep := endpoint[sdk.EmbeddingNewParams](normalize.OpenAIEmbeddings, "embeddings")
	return &Embeddings{
		create: instrument.Wrap(in, ep, normalize.OpenAIEmbeddings, func(ctx context.Context, c call[sdk.EmbeddingNewParams]) (*sdk.CreateEmbeddingResponse, error) {
			return api.New(ctx, c.body, c.opts...)
		}),
	}
}

func (e *Embeddings) New(ctx context.Context, body sdk.EmbeddingNewParams, opts ...option.RequestOption) (*sdk.CreateEmbeddingResponse, error) {
	return e.create(ctx, call[sdk.EmbeddingNewParams]{body: body, opts: opts})
}

// Responses is an instrumented ResponsesAPI.
type Responses struct {
	create instrument.Call[call[responses.ResponseNewParams], *responses.Response]
	stream func(context.Context, call[responses.ResponseNewParams]) (*instrument.Stream[responses.ResponseStreamEventUnion], error)
}

// WrapResponses instruments api with in.
func WrapResponses(api ResponsesAPI, in *instrument.Instrumenter) *Responses {
	ep := endpoint[responses.ResponseNewParams](normalize.OpenAIResponses, "responses")
	return &Responses{
		create: instrument.Wrap(in, ep, normalize.OpenAIResponses, func(ctx context.Context, c call[responses.ResponseNewParams]) (*responses.Response, error) {
			return api.New(ctx, c.body, c.opts...)
		}),
		stream: instrument.WrapStream(in, ep, normalize.OpenAIResponses, func(ctx context.Context, c call[responses.ResponseNewParams]) (instrument.Source[responses.ResponseStreamEventUnion], error) {
			return instrument.FromIterator[responses.ResponseStreamEventUnion](api.NewStreaming(ctx, c.body, c.opts...)), nil
		}),
	}
}

func (r *Responses) New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error) {
	return r.create(ctx, call[responses.ResponseNewParams]{body: body, opts: opts})
}

// NewStreaming opens a recorded event stream. Usage is read from the
// response.completed event.
func (r *Responses) NewStreaming(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) *instrument.Stream[responses.ResponseStreamEventUnion] {
	stream, _ := r.stream(ctx, call[responses.ResponseNewParams]{body: body, opts: opts})
	return stream
}
