// Package goopenai instruments clients built with github.com/sashabaranov/go-openai.
package goopenai

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ongoingai/llmotel/instrument"
	"github.com/ongoingai/llmotel/normalize"
)

// Client is the part of *openai.Client that is instrumented.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
	CreateCompletion(ctx context.Context, request openai.CompletionRequest) (openai.CompletionResponse, error)
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

var _ Client = (*openai.Client)(nil)

var (
	chatEndpoint = instrument.Endpoint[openai.ChatCompletionRequest]{
		System:    normalize.OpenAIChat.System,
		Operation: normalize.OperationChat,
		Method:    "chat.completions",
		Request: func(req openai.ChatCompletionRequest) normalize.Request {
			return normalize.OpenAIChat.Request.Extract(req)
		},
	}
	completionEndpoint = instrument.Endpoint[openai.CompletionRequest]{
		System:    normalize.OpenAIChat.System,
		Operation: normalize.OperationCompletion,
		Method:    "completions",
		Request: func(req openai.CompletionRequest) normalize.Request {
			return normalize.OpenAIChat.Request.Extract(req)
		},
	}
	embeddingsEndpoint = instrument.Endpoint[openai.EmbeddingRequestConverter]{
		System:    normalize.OpenAIEmbeddings.System,
		Operation: normalize.OperationEmbeddings,
		Method:    "embeddings",
		Request: func(conv openai.EmbeddingRequestConverter) normalize.Request {
			return normalize.OpenAIEmbeddings.Request.Extract(conv.Convert())
		},
	}
)

// InstrumentedClient mirrors Client with every method recorded. Streams are
// returned as *instrument.Stream, which has the same Recv/Close methods as
// *openai.ChatCompletionStream.
type InstrumentedClient struct {
	client Client

	chat       instrument.Call[openai.ChatCompletionRequest, openai.ChatCompletionResponse]
	chatStream func(context.Context, openai.ChatCompletionRequest) (*instrument.Stream[openai.ChatCompletionStreamResponse], error)
	completion instrument.Call[openai.CompletionRequest, openai.CompletionResponse]
	embeddings instrument.Call[openai.EmbeddingRequestConverter, openai.EmbeddingResponse]
}

// Wrap instruments client with in. A nil in returns a client that passes
// every call through.
func Wrap(client Client, in *instrument.Instrumenter) *InstrumentedClient {
	return &InstrumentedClient{
		client:     client,
		chat:       instrument.Wrap(in, chatEndpoint, normalize.OpenAIChat, client.CreateChatCompletion),
		chatStream: instrument.WrapStream(in, chatEndpoint, normalize.OpenAIChat, openStream(client)),
		completion: instrument.Wrap(in, completionEndpoint, normalize.OpenAIChat, client.CreateCompletion),
		embeddings: instrument.Wrap(in, embeddingsEndpoint, normalize.OpenAIEmbeddings, client.CreateEmbeddings),
	}
}

func openStream(client Client) instrument.StreamCall[openai.ChatCompletionRequest, openai.ChatCompletionStreamResponse] {
	return func(ctx context.Context, req openai.ChatCompletionRequest) (instrument.Source[openai.ChatCompletionStreamResponse], error) {
		stream, err := client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// Unwrap returns the wrapped client.
func (c *InstrumentedClient) Unwrap() Client {
	return c.client
}

func (c *InstrumentedClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return c.chat(ctx, request)
}

// CreateChatCompletionStream opens a recorded stream. Set
// StreamOptions.IncludeUsage on the request to record vendor token counts.
func (c *InstrumentedClient) CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*instrument.Stream[openai.ChatCompletionStreamResponse], error) {
	return c.chatStream(ctx, request)
}

func (c *InstrumentedClient) CreateCompletion(ctx context.Context, request openai.CompletionRequest) (openai.CompletionResponse, error) {
	return c.completion(ctx, request)
}

func (c *InstrumentedClient) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return c.embeddings(ctx, conv)
}
