package instrument

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ongoingai/llmotel/normalize"
)

// invocation tracks one in-flight call from entry to its single emission.
type invocation struct {
	in   *Instrumenter
	cc   *CallContext
	ctx  context.Context
	span trace.Span
	once sync.Once
}

// begin records the call context and starts the span. The returned
// invocation's ctx carries the span and the suppression mark and is the one
// handed to the wrapped call.
func (in *Instrumenter) begin(ctx context.Context, system, operation, method string, req normalize.Request) *invocation {
	if ctx == nil {
		ctx = context.Background()
	}
	cc := &CallContext{
		Endpoint:        endpointName(system, method, operation),
		System:          system,
		Operation:       operation,
		StartTime:       time.Now(),
		Request:         req,
		Environment:     in.environment,
		ApplicationName: in.applicationName,
	}
	inv := &invocation{in: in, cc: cc}
	inv.ctx, inv.span = in.startSpan(ctx, cc)
	inv.ctx = Suppress(withCall(inv.ctx, cc))
	return inv
}

func (in *Instrumenter) startSpan(ctx context.Context, cc *CallContext) (spanCtx context.Context, span trace.Span) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Warn("failed to start llm span", "endpoint", cc.Endpoint, "panic", fmt.Sprint(r))
			spanCtx, span = ctx, trace.SpanFromContext(context.Background())
		}
	}()
	return in.tracer.Start(ctx, cc.SpanName(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(cc.StartTime),
		trace.WithAttributes(requestAttributes(cc)...),
	)
}

// end finalizes the outcome and emits it. Only the first call has effect.
// A panic in any emission phase degrades that phase only; the span is
// always ended with a terminal status.
func (inv *invocation) end(outcome CallOutcome, callErr error) {
	inv.once.Do(func() {
		endTime := time.Now()
		inv.in.complete(inv.cc, &outcome)
		inv.in.emit(inv.ctx, inv.span, inv.cc, &outcome, callErr, endTime)
	})
}

func (in *Instrumenter) warnPanic(msg string, cc *CallContext, r any) {
	in.logger.Warn(msg, "endpoint", cc.Endpoint, "panic", fmt.Sprint(r))
}

// complete prices the outcome, estimates missing usage and applies the
// content policy. Captured text is dropped if the content policy fails.
func (in *Instrumenter) complete(cc *CallContext, outcome *CallOutcome) {
	in.settleUsage(cc, outcome)
	in.applyContentPolicy(cc, outcome)
}

func (in *Instrumenter) settleUsage(cc *CallContext, outcome *CallOutcome) {
	defer func() {
		if r := recover(); r != nil {
			in.warnPanic("failed to settle llm usage", cc, r)
			outcome.Finalize()
			outcome.PricingUnavailable = true
		}
	}()
	if in.estimateTokens && !outcome.HasUsage() {
		input := in.tokens.Count(cc.Request.Prompt)
		output := outcome.estimatedOutput
		if output == 0 {
			output = in.tokens.Count(outcome.Content)
		}
		if input > 0 || output > 0 {
			outcome.InputTokens = input
			outcome.OutputTokens = output
			outcome.TokensEstimated = true
		}
	}
	outcome.Finalize()

	model := outcome.Model
	if model == "" {
		model = cc.Request.Model
	}
	cost := in.pricing.Cost(model, outcome.InputTokens, outcome.OutputTokens)
	outcome.Cost = cost.Float64()
	outcome.PricingUnavailable = !cost.Known
}

func (in *Instrumenter) applyContentPolicy(cc *CallContext, outcome *CallOutcome) {
	defer func() {
		if r := recover(); r != nil {
			in.warnPanic("failed to capture llm content", cc, r)
			outcome.Prompt = ""
			outcome.Content = ""
			outcome.ContentTruncated = false
		}
	}()
	if !in.captureContent {
		outcome.Prompt = ""
		outcome.Content = ""
		outcome.ContentTruncated = false
		return
	}
	var promptCut, contentCut bool
	outcome.Prompt, promptCut = boundText(in.redactText(cc.Request.Prompt), in.contentMaxBytes)
	outcome.Content, contentCut = boundText(in.redactText(outcome.Content), in.contentMaxBytes)
	outcome.ContentTruncated = outcome.ContentTruncated || promptCut || contentCut
}

func (in *Instrumenter) redactText(text string) string {
	if in.redact == nil || text == "" {
		return text
	}
	return in.redact(text)
}

func (in *Instrumenter) emit(ctx context.Context, span trace.Span, cc *CallContext, outcome *CallOutcome, callErr error, endTime time.Time) {
	errType := errorType(callErr)
	annotated := in.annotate(span, cc, outcome, callErr, errType)
	in.closeSpan(span, cc, callErr, annotated, endTime)
	in.recordMetrics(ctx, cc, outcome, errType, endTime)
}

// annotate attaches response attributes, content events and error details.
// It reports false if the span rejected them.
func (in *Instrumenter) annotate(span trace.Span, cc *CallContext, outcome *CallOutcome, callErr error, errType string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			in.warnPanic("failed to annotate llm span", cc, r)
			ok = false
		}
	}()
	span.SetAttributes(responseAttributes(outcome)...)
	if in.captureContent {
		if outcome.Prompt != "" {
			span.AddEvent(EventPrompt, trace.WithAttributes(AttrPrompt.String(outcome.Prompt)))
		}
		if outcome.Content != "" {
			span.AddEvent(EventCompletion, trace.WithAttributes(AttrCompletion.String(outcome.Content)))
		}
		if outcome.ContentTruncated {
			span.SetAttributes(AttrContentTruncated.Bool(true))
		}
	}
	if callErr != nil {
		span.SetAttributes(AttrErrorType.String(errType))
		span.RecordError(callErr)
	}
	return true
}

// closeSpan sets the terminal status and ends the span. The span is ended
// even when setting the status panics.
func (in *Instrumenter) closeSpan(span trace.Span, cc *CallContext, callErr error, annotated bool, endTime time.Time) {
	defer func() {
		if r := recover(); r != nil {
			in.warnPanic("failed to end llm span", cc, r)
		}
	}()
	defer span.End(trace.WithTimestamp(endTime))

	switch {
	case callErr != nil:
		span.SetStatus(codes.Error, callErr.Error())
	case !annotated:
		span.SetStatus(codes.Error, "telemetry annotation failed")
	default:
		span.SetStatus(codes.Ok, "")
	}
}

func (in *Instrumenter) recordMetrics(ctx context.Context, cc *CallContext, outcome *CallOutcome, errType string, endTime time.Time) {
	if in.metrics == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			in.warnPanic("failed to record llm metrics", cc, r)
		}
	}()
	in.metrics.record(ctx, cc, outcome, errType, endTime.Sub(cc.StartTime).Seconds())
}

func requestAttributes(cc *CallContext) []attribute.KeyValue {
	req := cc.Request
	attrs := []attribute.KeyValue{
		AttrSystem.String(cc.System),
		AttrOperationName.String(cc.Operation),
		AttrEndpoint.String(cc.Endpoint),
		AttrRequestIsStream.Bool(req.Stream),
	}
	if cc.Environment != "" {
		attrs = append(attrs, AttrEnvironment.String(cc.Environment))
	}
	if cc.ApplicationName != "" {
		attrs = append(attrs, AttrApplicationName.String(cc.ApplicationName))
	}
	if req.Model != "" {
		attrs = append(attrs, AttrRequestModel.String(req.Model))
	}
	if req.MaxTokens > 0 {
		attrs = append(attrs, AttrRequestMaxTokens.Int(req.MaxTokens))
	}
	if req.Temperature != nil {
		attrs = append(attrs, AttrRequestTemperature.Float64(*req.Temperature))
	}
	if req.TopP != nil {
		attrs = append(attrs, AttrRequestTopP.Float64(*req.TopP))
	}
	if req.TopK != nil {
		attrs = append(attrs, AttrRequestTopK.Float64(*req.TopK))
	}
	if req.Seed != nil {
		attrs = append(attrs, AttrRequestSeed.Int64(*req.Seed))
	}
	if len(req.StopSequences) > 0 {
		attrs = append(attrs, AttrRequestStopSequences.StringSlice(req.StopSequences))
	}
	return attrs
}

func responseAttributes(outcome *CallOutcome) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrResponseFinishReasons.StringSlice([]string{outcome.FinishReason}),
		AttrUsageInputTokens.Int(outcome.InputTokens),
		AttrUsageOutputTokens.Int(outcome.OutputTokens),
		AttrUsageTotalTokens.Int(outcome.TotalTokens),
		AttrUsageCost.Float64(outcome.Cost),
	}
	if outcome.Model != "" {
		attrs = append(attrs, AttrResponseModel.String(outcome.Model))
	}
	if outcome.ResponseID != "" {
		attrs = append(attrs, AttrResponseID.String(outcome.ResponseID))
	}
	if outcome.PricingUnavailable {
		attrs = append(attrs, AttrUsageCostUnavailable.Bool(true))
	}
	if outcome.TokensEstimated {
		attrs = append(attrs, AttrUsageTokensEstimated.Bool(true))
	}
	if outcome.Streaming {
		attrs = append(attrs, AttrResponseChunks.Int(outcome.Chunks))
		if outcome.Chunks > 0 {
			attrs = append(attrs, AttrServerTimeToFirstToken.Float64(outcome.TimeToFirstToken.Seconds()))
		}
		if outcome.Intervals.Count > 0 {
			attrs = append(attrs, AttrServerTimePerOutputToken.Float64(outcome.TimeBetweenTokens.Seconds()))
		}
	}
	if outcome.Incomplete {
		attrs = append(attrs, AttrResponseIncomplete.Bool(true))
	}
	return attrs
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return fmt.Sprintf("%T", err)
	}
}
