package instrument

import "go.opentelemetry.io/otel/attribute"

// Attribute keys follow the OpenTelemetry GenAI semantic conventions where
// one exists.
const (
	AttrSystem          = attribute.Key("gen_ai.system")
	AttrOperationName   = attribute.Key("gen_ai.operation.name")
	AttrEndpoint        = attribute.Key("gen_ai.endpoint")
	AttrEnvironment     = attribute.Key("deployment.environment")
	AttrApplicationName = attribute.Key("service.name")

	AttrRequestModel         = attribute.Key("gen_ai.request.model")
	AttrRequestMaxTokens     = attribute.Key("gen_ai.request.max_tokens")
	AttrRequestTemperature   = attribute.Key("gen_ai.request.temperature")
	AttrRequestTopP          = attribute.Key("gen_ai.request.top_p")
	AttrRequestTopK          = attribute.Key("gen_ai.request.top_k")
	AttrRequestSeed          = attribute.Key("gen_ai.request.seed")
	AttrRequestStopSequences = attribute.Key("gen_ai.request.stop_sequences")
	AttrRequestIsStream      = attribute.Key("gen_ai.request.is_stream")

	AttrResponseModel         = attribute.Key("gen_ai.response.model")
	AttrResponseID            = attribute.Key("gen_ai.response.id")
	AttrResponseFinishReasons = attribute.Key("gen_ai.response.finish_reasons")
	AttrResponseChunks        = attribute.Key("gen_ai.response.chunks")
	AttrResponseIncomplete    = attribute.Key("gen_ai.response.incomplete")

	AttrUsageInputTokens     = attribute.Key("gen_ai.usage.input_tokens")
	AttrUsageOutputTokens    = attribute.Key("gen_ai.usage.output_tokens")
	AttrUsageTotalTokens     = attribute.Key("gen_ai.usage.total_tokens")
	AttrUsageCost            = attribute.Key("gen_ai.usage.cost")
	AttrUsageCostUnavailable = attribute.Key("gen_ai.usage.cost_unavailable")
	AttrUsageTokensEstimated = attribute.Key("gen_ai.usage.tokens_estimated")

	AttrServerTimeToFirstToken   = attribute.Key("gen_ai.server.time_to_first_token")
	AttrServerTimePerOutputToken = attribute.Key("gen_ai.server.time_per_output_token")

	AttrErrorType = attribute.Key("error.type")

	AttrPrompt           = attribute.Key("gen_ai.prompt")
	AttrCompletion       = attribute.Key("gen_ai.completion")
	AttrContentTruncated = attribute.Key("gen_ai.content.truncated")
)

// Span event names for captured content.
const (
	EventPrompt     = "gen_ai.content.prompt"
	EventCompletion = "gen_ai.content.completion"
)

// Metric instrument names.
const (
	MetricRequests          = "gen_ai.client.requests"
	MetricInputTokens       = "gen_ai.usage.input_tokens"
	MetricOutputTokens      = "gen_ai.usage.output_tokens"
	MetricTotalTokens       = "gen_ai.usage.total_tokens"
	MetricCost              = "gen_ai.usage.cost"
	MetricOperationDuration = "gen_ai.client.operation.duration"
	MetricTimeToFirstToken  = "gen_ai.server.time_to_first_token"
	MetricTimePerOutput     = "gen_ai.server.time_per_output_token"
)
