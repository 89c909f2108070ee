package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilTrace_ReturnsZeroSummary(t *testing.T) {
	summary := Summarize(nil)
	assert.Equal(t, 0, summary.TotalDecisions)
	assert.NotNil(t, summary.Reasons)
	assert.Equal(t, 0.0, summary.HitRate)
}

func TestSummarize_CountsDecisionsHitsAndRebuilds(t *testing.T) {
	// GIVEN a trace with a hit, a miss, a skipped decision without prediction and two rebuilds
	dt := NewDecisionTrace(TraceLevelDecisions)
	dt.RecordDecision(DecisionRecord{Current: "Q1", Predicted: "Q2", Confidence: 0.5,
		Prefetch: true, Triggered: true, Reason: "cost-fits-gap", Actual: "Q2"})
	dt.RecordDecision(DecisionRecord{Current: "Q1", Predicted: "Q2", Confidence: 0.5,
		Prefetch: true, Reason: "cost-fits-gap", Actual: "Q4"})
	dt.RecordDecision(DecisionRecord{Current: "Q2", Predicted: "Q3", Confidence: 1.0,
		Reason: "unmapped-artifact"})
	dt.RecordDecision(DecisionRecord{Current: "Q5", Reason: "no-history", Actual: "Q1"})
	dt.RecordRebuild(RebuildRecord{Artifact: "mv_a", Success: true, Elapsed: 2 * time.Second})
	dt.RecordRebuild(RebuildRecord{Artifact: "mv_a", Success: true, Elapsed: 4 * time.Second})
	dt.RecordRebuild(RebuildRecord{Artifact: "mv_b", Error: "boom"})

	// WHEN summarized
	s := Summarize(dt)

	// THEN counts reflect the records
	assert.Equal(t, 4, s.TotalDecisions)
	assert.Equal(t, 2, s.PrefetchCount)
	assert.Equal(t, 2, s.SkippedCount)
	assert.Equal(t, 1, s.TriggeredCount)
	assert.Equal(t, 2, s.Scored, "only predicted decisions with a known actual are scored")
	assert.Equal(t, 1, s.Hits)
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
	assert.Equal(t, 1, s.UsefulPrefetch)
	assert.InDelta(t, 2.0/3.0, s.MeanConfidence, 1e-9)
	assert.Equal(t, map[string]int{"cost-fits-gap": 2, "unmapped-artifact": 1, "no-history": 1}, s.Reasons)
	assert.Equal(t, 2, s.RebuildOK)
	assert.Equal(t, 1, s.RebuildFailed)
	assert.Equal(t, 3*time.Second, s.MeanRebuildTime)
}
