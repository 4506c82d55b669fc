package instrument

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Bucket boundaries in seconds for call latencies.
var (
	durationBuckets = []float64{0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28, 2.56, 5.12, 10.24, 20.48, 40.96, 81.92}
	tokenGapBuckets = []float64{0.001, 0.005, 0.01, 0.02, 0.03, 0.05, 0.075, 0.1, 0.15, 0.2, 0.3, 0.5, 1, 2.5}
)

type instruments struct {
	requests     metric.Int64Counter
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	totalTokens  metric.Int64Counter
	cost         metric.Float64Counter
	duration     metric.Float64Histogram
	ttft         metric.Float64Histogram
	tbt          metric.Float64Histogram
}

func newInstruments(meter metric.Meter, logger *slog.Logger) *instruments {
	m := &instruments{}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to create opentelemetry instrument", "metric", name, "error", err)
		}
	}

	var err error
	m.requests, err = meter.Int64Counter(MetricRequests,
		metric.WithDescription("Number of LLM client calls."),
		metric.WithUnit("{request}"),
	)
	warn(MetricRequests, err)

	m.inputTokens, err = meter.Int64Counter(MetricInputTokens,
		metric.WithDescription("Input tokens consumed by LLM client calls."),
		metric.WithUnit("{token}"),
	)
	warn(MetricInputTokens, err)

	m.outputTokens, err = meter.Int64Counter(MetricOutputTokens,
		metric.WithDescription("Output tokens produced by LLM client calls."),
		metric.WithUnit("{token}"),
	)
	warn(MetricOutputTokens, err)

	m.totalTokens, err = meter.Int64Counter(MetricTotalTokens,
		metric.WithDescription("Total tokens of LLM client calls."),
		metric.WithUnit("{token}"),
	)
	warn(MetricTotalTokens, err)

	m.cost, err = meter.Float64Counter(MetricCost,
		metric.WithDescription("Estimated cost of LLM client calls."),
		metric.WithUnit("USD"),
	)
	warn(MetricCost, err)

	m.duration, err = meter.Float64Histogram(MetricOperationDuration,
		metric.WithDescription("Duration of LLM client calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	warn(MetricOperationDuration, err)

	m.ttft, err = meter.Float64Histogram(MetricTimeToFirstToken,
		metric.WithDescription("Time from call start to the first streamed chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	warn(MetricTimeToFirstToken, err)

	m.tbt, err = meter.Float64Histogram(MetricTimePerOutput,
		metric.WithDescription("Time between consecutive streamed chunks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tokenGapBuckets...),
	)
	warn(MetricTimePerOutput, err)

	return m
}

func (m *instruments) record(ctx context.Context, cc *CallContext, outcome *CallOutcome, errType string, elapsed float64) {
	attrs := []attribute.KeyValue{
		AttrSystem.String(cc.System),
		AttrOperationName.String(cc.Operation),
		AttrRequestModel.String(cc.Request.Model),
		AttrResponseModel.String(outcome.Model),
	}
	if cc.Environment != "" {
		attrs = append(attrs, AttrEnvironment.String(cc.Environment))
	}
	if cc.ApplicationName != "" {
		attrs = append(attrs, AttrApplicationName.String(cc.ApplicationName))
	}
	if errType != "" {
		attrs = append(attrs, AttrErrorType.String(errType))
	}
	set := metric.WithAttributeSet(attribute.NewSet(attrs...))

	if m.requests != nil {
		m.requests.Add(ctx, 1, set)
	}
	if m.inputTokens != nil && outcome.InputTokens > 0 {
		m.inputTokens.Add(ctx, int64(outcome.InputTokens), set)
	}
	if m.outputTokens != nil && outcome.OutputTokens > 0 {
		m.outputTokens.Add(ctx, int64(outcome.OutputTokens), set)
	}
	if m.totalTokens != nil && outcome.TotalTokens > 0 {
		m.totalTokens.Add(ctx, int64(outcome.TotalTokens), set)
	}
	if m.cost != nil && outcome.Cost > 0 {
		m.cost.Add(ctx, outcome.Cost, set)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed, set)
	}
	if !outcome.Streaming {
		return
	}
	if m.ttft != nil && outcome.Chunks > 0 {
		m.ttft.Record(ctx, outcome.TimeToFirstToken.Seconds(), set)
	}
	if m.tbt != nil && outcome.Intervals.Count > 0 {
		m.tbt.Record(ctx, outcome.TimeBetweenTokens.Seconds(), set)
	}
}
