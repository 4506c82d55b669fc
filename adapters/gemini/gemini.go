// Package gemini instruments the Models service of google.golang.org/genai.
// The instrumented service satisfies the same ModelsAPI interface as the
// SDK's *genai.Models, so it can replace it in place.
package gemini

import (
	"context"
	"iter"

	"google.golang.org/genai"

	"github.com/ongoingai/llmotel/instrument"
	"github.com/ongoingai/llmotel/normalize"
)

// ModelsAPI is the method set of *genai.Models that is instrumented.
type ModelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

var _ ModelsAPI = (*genai.Models)(nil)

type generateCall struct {
	Model    string                       `json:"model"`
	Contents []*genai.Content             `json:"contents,omitempty"`
	Config   *genai.GenerateContentConfig `json:"config,omitempty"`
}

var generateEndpoint = instrument.Endpoint[generateCall]{
	System:    normalize.Gemini.System,
	Operation: normalize.Gemini.Operation,
	Method:    "generate_content",
	Request: func(c generateCall) normalize.Request {
		return normalize.Gemini.Request.Extract(c)
	},
}

// Models is an instrumented ModelsAPI.
type Models struct {
	api      ModelsAPI
	generate instrument.Call[generateCall, *genai.GenerateContentResponse]
	stream   func(context.Context, generateCall) (*instrument.Stream[*genai.GenerateContentResponse], error)
}

var _ ModelsAPI = (*Models)(nil)

// instrumented marks services that already record their calls.
type instrumented interface {
	instrumentedModels()
}

func (*Models) instrumentedModels() {}

// Wrap instruments api with in. Pass client.Models for an SDK client. An
// api that is already instrumented is returned unchanged.
func Wrap(api ModelsAPI, in *instrument.Instrumenter) ModelsAPI {
	if _, ok := api.(instrumented); ok {
		return api
	}
	return &Models{
		api: api,
		generate: instrument.Wrap(in, generateEndpoint, normalize.Gemini, func(ctx context.Context, c generateCall) (*genai.GenerateContentResponse, error) {
			return api.GenerateContent(ctx, c.Model, c.Contents, c.Config)
		}),
		stream: instrument.WrapStream(in, generateEndpoint, normalize.Gemini, func(ctx context.Context, c generateCall) (instrument.Source[*genai.GenerateContentResponse], error) {
			return instrument.FromSeq2(api.GenerateContentStream(ctx, c.Model, c.Contents, c.Config)), nil
		}),
	}
}

func (m *Models) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.generate(ctx, generateCall{Model: model, Contents: contents, Config: config})
}

// GenerateContentStream records one span per iteration of the returned
// sequence. Breaking out of the loop records the call as incomplete.
func (m *Models) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		stream, err := m.stream(ctx, generateCall{Model: model, Contents: contents, Config: config})
		if err != nil {
			yield(nil, err)
			return
		}
		for resp, err := range stream.All() {
			if !yield(resp, err) {
				return
			}
		}
	}
}

// Unwrap returns the wrapped service.
func (m *Models) Unwrap() ModelsAPI {
	return m.api
}
