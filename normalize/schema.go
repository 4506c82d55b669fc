package normalize

// Schema lists, per field, the JSON paths (gjson syntax) to try in order.
// The first present path wins.
type Schema struct {
	System       string
	Model        []string
	ResponseID   []string
	InputTokens  []string
	OutputTokens []string
	TotalTokens  []string
	FinishReason []string
	Content      []string
	// ChunkContent overrides Content for streamed chunks.
	ChunkContent []string
}

// Normalize implements Normalizer.
func (s Schema) Normalize(raw any) Result {
	result := s.extract(raw, s.Content)
	if result.FinishReason == "" {
		result.FinishReason = FinishReasonUnknown
	}
	return result
}

// NormalizeChunk implements ChunkNormalizer. Chunks without a finish reason
// leave it empty so accumulation keeps the last reported one.
func (s Schema) NormalizeChunk(raw any) Result {
	paths := s.ChunkContent
	if len(paths) == 0 {
		paths = s.Content
	}
	return s.extract(raw, paths)
}

func (s Schema) extract(raw any, contentPaths []string) Result {
	doc, ok := document(raw)
	if !ok {
		return Result{}
	}

	result := Result{
		Model:        firstString(doc, s.Model...),
		ResponseID:   firstString(doc, s.ResponseID...),
		FinishReason: firstString(doc, s.FinishReason...),
		Content:      firstText(doc, "", contentPaths...),
	}

	input, inputOK := firstInt(doc, s.InputTokens...)
	output, outputOK := firstInt(doc, s.OutputTokens...)
	total, totalOK := firstInt(doc, s.TotalTokens...)
	result.InputTokens = nonNegative(input)
	result.OutputTokens = nonNegative(output)
	switch {
	case inputOK || outputOK:
		result.TotalTokens = result.InputTokens + result.OutputTokens
	case totalOK:
		result.TotalTokens = nonNegative(total)
	}
	return result
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// RequestSchema lists JSON paths for request parameters.
type RequestSchema struct {
	Model       []string
	MaxTokens   []string
	Temperature []string
	TopP        []string
	TopK        []string
	Seed        []string
	Stop        []string
	Stream      []string
	Prompt      []string
}

// Extract reads request parameters from raw, which may be any value
// document accepts. Unreadable input yields a zero Request.
func (s RequestSchema) Extract(raw any) Request {
	doc, ok := document(raw)
	if !ok {
		return Request{}
	}

	req := Request{
		Model:         firstString(doc, s.Model...),
		StopSequences: firstStrings(doc, s.Stop...),
		Stream:        firstBool(doc, s.Stream...),
		Prompt:        firstText(doc, "\n", s.Prompt...),
	}
	if v, ok := firstInt(doc, s.MaxTokens...); ok {
		req.MaxTokens = v
	}
	if v, ok := firstFloat(doc, s.Temperature...); ok {
		req.Temperature = &v
	}
	if v, ok := firstFloat(doc, s.TopP...); ok {
		req.TopP = &v
	}
	if v, ok := firstFloat(doc, s.TopK...); ok {
		req.TopK = &v
	}
	if v, ok := firstInt(doc, s.Seed...); ok {
		seed := int64(v)
		req.Seed = &seed
	}
	return req
}
