// Package normalize turns heterogeneous vendor responses into a common
// result shape. Normalizers never fail: missing or malformed fields fall back
// to zero values.
package normalize

// FinishReasonUnknown is reported when a response carries no finish reason.
const FinishReasonUnknown = "unknown"

// Result is the vendor-neutral view of a response or of one streamed chunk.
type Result struct {
	Model        string
	ResponseID   string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	FinishReason string
	Content      string
}

// Normalizer extracts a Result from a complete response.
type Normalizer interface {
	Normalize(raw any) Result
}

// ChunkNormalizer extracts the delta carried by one streamed chunk.
type ChunkNormalizer interface {
	NormalizeChunk(raw any) Result
}

// NormalizerFunc adapts a function to Normalizer and ChunkNormalizer.
type NormalizerFunc func(raw any) Result

func (f NormalizerFunc) Normalize(raw any) Result      { return f(raw) }
func (f NormalizerFunc) NormalizeChunk(raw any) Result { return f(raw) }

// Request carries the request parameters recorded on a span.
// Pointer fields are nil when the caller did not set them.
type Request struct {
	Model         string
	MaxTokens     int
	Temperature   *float64
	TopP          *float64
	TopK          *float64
	Seed          *int64
	StopSequences []string
	Stream        bool
	Prompt        string
}
