package instrument

import (
	"time"

	"github.com/ongoingai/llmotel/normalize"
)

// CallOutcome is the normalized result handed to the emitter. A failed call
// still produces a valid outcome with whatever was observed.
type CallOutcome struct {
	normalize.Result

	// Prompt is the captured request text; empty unless content capture is on.
	Prompt string
	// ContentTruncated reports that Prompt or Content hit the byte bound.
	ContentTruncated bool

	Cost               float64
	PricingUnavailable bool
	TokensEstimated    bool

	Streaming  bool
	Incomplete bool
	Chunks     int

	TimeToFirstToken time.Duration
	// TimeBetweenTokens is the mean gap between consecutive chunks.
	TimeBetweenTokens time.Duration
	Intervals         IntervalStats

	// estimatedOutput is the running token estimate of streamed deltas.
	estimatedOutput int
}

// IntervalStats summarizes inter-chunk gaps.
type IntervalStats struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	Sum   time.Duration
}

// Observe adds one gap.
func (s *IntervalStats) Observe(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	s.Sum += d
}

// Mean returns the average gap, or zero with no observations.
func (s IntervalStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

// Finalize clamps counts to be non-negative, derives the total from its
// parts when either part is known, and defaults the finish reason.
func (o *CallOutcome) Finalize() {
	if o.InputTokens < 0 {
		o.InputTokens = 0
	}
	if o.OutputTokens < 0 {
		o.OutputTokens = 0
	}
	if o.TotalTokens < 0 {
		o.TotalTokens = 0
	}
	if o.InputTokens > 0 || o.OutputTokens > 0 {
		o.TotalTokens = o.InputTokens + o.OutputTokens
	}
	if o.FinishReason == "" {
		o.FinishReason = normalize.FinishReasonUnknown
	}
	if o.Cost < 0 {
		o.Cost = 0
	}
	o.TimeBetweenTokens = o.Intervals.Mean()
}

// HasUsage reports whether any token count was observed.
func (o CallOutcome) HasUsage() bool {
	return o.InputTokens > 0 || o.OutputTokens > 0 || o.TotalTokens > 0
}
