package trace

import "time"

// TraceSummary aggregates statistics from a DecisionTrace.
// Scored counts decisions with both a prediction and a known actual next
// operation; Hits are the scored decisions whose prediction was right.
// UsefulPrefetch counts prefetches whose prediction was right.
type TraceSummary struct {
	TotalDecisions  int            `yaml:"total_decisions"`
	PrefetchCount   int            `yaml:"prefetch_count"`
	SkippedCount    int            `yaml:"skipped_count"`
	TriggeredCount  int            `yaml:"triggered_count"`
	MeanConfidence  float64        `yaml:"mean_confidence"`
	Scored          int            `yaml:"scored"`
	Hits            int            `yaml:"hits"`
	HitRate         float64        `yaml:"hit_rate"`
	UsefulPrefetch  int            `yaml:"useful_prefetch"`
	Reasons         map[string]int `yaml:"reasons"`
	RebuildOK       int            `yaml:"rebuild_ok"`
	RebuildFailed   int            `yaml:"rebuild_failed"`
	MeanRebuildTime time.Duration  `yaml:"mean_rebuild_time"`
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{
		Reasons: make(map[string]int),
	}
	if dt == nil {
		return summary
	}

	decisions := dt.Decisions()
	summary.TotalDecisions = len(decisions)
	predicted := 0
	totalConfidence := 0.0
	for _, d := range decisions {
		summary.Reasons[d.Reason]++
		if d.Prefetch {
			summary.PrefetchCount++
		} else {
			summary.SkippedCount++
		}
		if d.Triggered {
			summary.TriggeredCount++
		}
		if d.Predicted == "" {
			continue
		}
		predicted++
		totalConfidence += d.Confidence
		if d.Actual == "" {
			continue
		}
		summary.Scored++
		if d.Predicted == d.Actual {
			summary.Hits++
			if d.Prefetch {
				summary.UsefulPrefetch++
			}
		}
	}
	if predicted > 0 {
		summary.MeanConfidence = totalConfidence / float64(predicted)
	}
	if summary.Scored > 0 {
		summary.HitRate = float64(summary.Hits) / float64(summary.Scored)
	}

	var totalRebuild time.Duration
	for _, r := range dt.Rebuilds() {
		if r.Success {
			summary.RebuildOK++
			totalRebuild += r.Elapsed
		} else {
			summary.RebuildFailed++
		}
	}
	if summary.RebuildOK > 0 {
		summary.MeanRebuildTime = totalRebuild / time.Duration(summary.RebuildOK)
	}

	return summary
}
