package normalize

// Vendor pairs the response and request schemas of one vendor endpoint.
type Vendor struct {
	Name      string
	System    string
	Operation string
	Response  Schema
	Request   RequestSchema
}

// Normalize implements Normalizer.
func (v Vendor) Normalize(raw any) Result { return v.Response.Normalize(raw) }

// NormalizeChunk implements ChunkNormalizer.
func (v Vendor) NormalizeChunk(raw any) Result { return v.Response.NormalizeChunk(raw) }

// Operation names recorded as gen_ai.operation.name.
const (
	OperationChat       = "chat"
	OperationCompletion = "text_completion"
	OperationEmbeddings = "embeddings"
	OperationResponses  = "responses"
)

var openAIChatRequest = RequestSchema{
	Model:       []string{"model"},
	MaxTokens:   []string{"max_completion_tokens", "max_tokens"},
	Temperature: []string{"temperature"},
	TopP:        []string{"top_p"},
	Seed:        []string{"seed"},
	Stop:        []string{"stop"},
	Stream:      []string{"stream"},
	Prompt:      []string{"messages.#.content", "prompt"},
}

var openAIChatResponse = Schema{
	Model:        []string{"model"},
	ResponseID:   []string{"id"},
	InputTokens:  []string{"usage.prompt_tokens", "usage.input_tokens"},
	OutputTokens: []string{"usage.completion_tokens", "usage.output_tokens"},
	TotalTokens:  []string{"usage.total_tokens"},
	FinishReason: []string{"choices.0.finish_reason"},
	Content:      []string{"choices.0.message.content", "choices.0.text"},
	ChunkContent: []string{"choices.0.delta.content", "choices.0.text"},
}

// OpenAIChat covers /v1/chat/completions and OpenAI-compatible servers.
var OpenAIChat = Vendor{
	Name:      "openai.chat",
	System:    "openai",
	Operation: OperationChat,
	Response:  openAIChatResponse,
	Request:   openAIChatRequest,
}

// OpenAIResponses covers /v1/responses, including its streamed events.
var OpenAIResponses = Vendor{
	Name:      "openai.responses",
	System:    "openai",
	Operation: OperationResponses,
	Response: Schema{
		Model:        []string{"model", "response.model"},
		ResponseID:   []string{"id", "response.id"},
		InputTokens:  []string{"usage.input_tokens", "response.usage.input_tokens"},
		OutputTokens: []string{"usage.output_tokens", "response.usage.output_tokens"},
		TotalTokens:  []string{"usage.total_tokens", "response.usage.total_tokens"},
		FinishReason: []string{"status", "response.status"},
		Content:      []string{"output_text", "output.#.content"},
		ChunkContent: []string{"delta"},
	},
	Request: RequestSchema{
		Model:       []string{"model"},
		MaxTokens:   []string{"max_output_tokens"},
		Temperature: []string{"temperature"},
		TopP:        []string{"top_p"},
		Stream:      []string{"stream"},
		Prompt:      []string{"input", "input.#.content"},
	},
}

// OpenAIEmbeddings covers /v1/embeddings.
var OpenAIEmbeddings = Vendor{
	Name:      "openai.embeddings",
	System:    "openai",
	Operation: OperationEmbeddings,
	Response: Schema{
		Model:       []string{"model"},
		InputTokens: []string{"usage.prompt_tokens"},
		TotalTokens: []string{"usage.total_tokens"},
	},
	Request: RequestSchema{
		Model:  []string{"model"},
		Prompt: []string{"input"},
	},
}

// Anthropic covers the Messages API and its SSE events.
var Anthropic = Vendor{
	Name:      "anthropic.messages",
	System:    "anthropic",
	Operation: OperationChat,
	Response: Schema{
		Model:        []string{"model", "message.model"},
		ResponseID:   []string{"id", "message.id"},
		InputTokens:  []string{"usage.input_tokens", "message.usage.input_tokens"},
		OutputTokens: []string{"usage.output_tokens", "message.usage.output_tokens"},
		FinishReason: []string{"stop_reason", "delta.stop_reason", "message.stop_reason"},
		Content:      []string{"content.#.text"},
		ChunkContent: []string{"delta.text"},
	},
	Request: RequestSchema{
		Model:       []string{"model"},
		MaxTokens:   []string{"max_tokens"},
		Temperature: []string{"temperature"},
		TopP:        []string{"top_p"},
		TopK:        []string{"top_k"},
		Stop:        []string{"stop_sequences"},
		Stream:      []string{"stream"},
		Prompt:      []string{"messages.#.content"},
	},
}

// Gemini covers generateContent on both the REST wire format and the
// google.golang.org/genai types.
var Gemini = Vendor{
	Name:      "gemini.generate_content",
	System:    "gemini",
	Operation: OperationChat,
	Response: Schema{
		Model:        []string{"modelVersion"},
		ResponseID:   []string{"responseId"},
		InputTokens:  []string{"usageMetadata.promptTokenCount"},
		OutputTokens: []string{"usageMetadata.candidatesTokenCount"},
		TotalTokens:  []string{"usageMetadata.totalTokenCount"},
		FinishReason: []string{"candidates.0.finishReason"},
		Content:      []string{"candidates.0.content.parts.#.text"},
	},
	Request: RequestSchema{
		Model:       []string{"model"},
		MaxTokens:   []string{"generationConfig.maxOutputTokens", "config.maxOutputTokens", "maxOutputTokens"},
		Temperature: []string{"generationConfig.temperature", "config.temperature", "temperature"},
		TopP:        []string{"generationConfig.topP", "config.topP", "topP"},
		TopK:        []string{"generationConfig.topK", "config.topK", "topK"},
		Seed:        []string{"generationConfig.seed", "config.seed", "seed"},
		Stop:        []string{"generationConfig.stopSequences", "config.stopSequences", "stopSequences"},
		Prompt:      []string{"contents.#.parts.#.text"},
	},
}

// Cohere covers chat on v1 and v2 of the Cohere API.
var Cohere = Vendor{
	Name:      "cohere.chat",
	System:    "cohere",
	Operation: OperationChat,
	Response: Schema{
		Model:        []string{"model"},
		ResponseID:   []string{"id", "generation_id", "response_id"},
		InputTokens:  []string{"usage.tokens.input_tokens", "usage.billed_units.input_tokens", "meta.tokens.input_tokens", "meta.billed_units.input_tokens", "delta.usage.tokens.input_tokens"},
		OutputTokens: []string{"usage.tokens.output_tokens", "usage.billed_units.output_tokens", "meta.tokens.output_tokens", "meta.billed_units.output_tokens", "delta.usage.tokens.output_tokens"},
		FinishReason: []string{"finish_reason", "delta.finish_reason"},
		Content:      []string{"message.content.#.text", "text"},
		ChunkContent: []string{"delta.message.content.text", "text"},
	},
	Request: RequestSchema{
		Model:       []string{"model"},
		MaxTokens:   []string{"max_tokens"},
		Temperature: []string{"temperature"},
		TopP:        []string{"p"},
		TopK:        []string{"k"},
		Seed:        []string{"seed"},
		Stop:        []string{"stop_sequences"},
		Stream:      []string{"stream"},
		Prompt:      []string{"messages.#.content", "message"},
	},
}

// Mistral uses the OpenAI chat wire format.
var Mistral = Vendor{
	Name:      "mistral.chat",
	System:    "mistral_ai",
	Operation: OperationChat,
	Response:  openAIChatResponse,
	Request:   openAIChatRequest,
}

// Ollama covers /api/chat and /api/generate.
var Ollama = Vendor{
	Name:      "ollama.chat",
	System:    "ollama",
	Operation: OperationChat,
	Response: Schema{
		Model:        []string{"model"},
		InputTokens:  []string{"prompt_eval_count"},
		OutputTokens: []string{"eval_count"},
		FinishReason: []string{"done_reason"},
		Content:      []string{"message.content", "response"},
	},
	Request: RequestSchema{
		Model:       []string{"model"},
		MaxTokens:   []string{"options.num_predict"},
		Temperature: []string{"options.temperature"},
		TopP:        []string{"options.top_p"},
		TopK:        []string{"options.top_k"},
		Seed:        []string{"options.seed"},
		Stop:        []string{"options.stop"},
		Stream:      []string{"stream"},
		Prompt:      []string{"messages.#.content", "prompt"},
	},
}

// BedrockConverse covers the Bedrock Converse and ConverseStream APIs.
var BedrockConverse = Vendor{
	Name:      "bedrock.converse",
	System:    "aws.bedrock",
	Operation: OperationChat,
	Response: Schema{
		InputTokens:  []string{"usage.inputTokens", "metadata.usage.inputTokens"},
		OutputTokens: []string{"usage.outputTokens", "metadata.usage.outputTokens"},
		TotalTokens:  []string{"usage.totalTokens", "metadata.usage.totalTokens"},
		FinishReason: []string{"stopReason", "messageStop.stopReason"},
		Content:      []string{"output.message.content.#.text"},
		ChunkContent: []string{"contentBlockDelta.delta.text", "delta.text"},
	},
	Request: RequestSchema{
		Model:       []string{"modelId"},
		MaxTokens:   []string{"inferenceConfig.maxTokens"},
		Temperature: []string{"inferenceConfig.temperature"},
		TopP:        []string{"inferenceConfig.topP"},
		Stop:        []string{"inferenceConfig.stopSequences"},
		Prompt:      []string{"messages.#.content.#.text"},
	},
}

// Generic tries the field locations of every known vendor, most common first.
var Generic = Vendor{
	Name:      "generic",
	System:    "unknown",
	Operation: OperationChat,
	Response: Schema{
		Model:        []string{"model", "modelVersion", "message.model", "response.model"},
		ResponseID:   []string{"id", "responseId", "message.id", "response.id", "generation_id"},
		InputTokens:  []string{"usage.prompt_tokens", "usage.input_tokens", "usage.inputTokens", "usageMetadata.promptTokenCount", "message.usage.input_tokens", "usage.tokens.input_tokens", "meta.billed_units.input_tokens", "prompt_eval_count"},
		OutputTokens: []string{"usage.completion_tokens", "usage.output_tokens", "usage.outputTokens", "usageMetadata.candidatesTokenCount", "message.usage.output_tokens", "usage.tokens.output_tokens", "meta.billed_units.output_tokens", "eval_count"},
		TotalTokens:  []string{"usage.total_tokens", "usage.totalTokens", "usageMetadata.totalTokenCount"},
		FinishReason: []string{"choices.0.finish_reason", "stop_reason", "delta.stop_reason", "candidates.0.finishReason", "finish_reason", "stopReason", "done_reason"},
		Content:      []string{"choices.0.message.content", "choices.0.text", "content.#.text", "candidates.0.content.parts.#.text", "message.content", "output.message.content.#.text", "output_text", "text", "response"},
		ChunkContent: []string{"choices.0.delta.content", "choices.0.text", "delta.text", "candidates.0.content.parts.#.text", "message.content", "text", "response"},
	},
	Request: RequestSchema{
		Model:       []string{"model", "modelId"},
		MaxTokens:   []string{"max_completion_tokens", "max_tokens", "max_output_tokens", "generationConfig.maxOutputTokens", "inferenceConfig.maxTokens"},
		Temperature: []string{"temperature", "generationConfig.temperature", "inferenceConfig.temperature"},
		TopP:        []string{"top_p", "generationConfig.topP", "inferenceConfig.topP"},
		TopK:        []string{"top_k", "generationConfig.topK"},
		Seed:        []string{"seed"},
		Stop:        []string{"stop", "stop_sequences", "generationConfig.stopSequences"},
		Stream:      []string{"stream"},
		Prompt:      []string{"messages.#.content", "prompt", "input", "contents.#.parts.#.text"},
	},
}
