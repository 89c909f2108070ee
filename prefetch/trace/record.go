// Package trace provides decision-trace recording for prefetch policy analysis.
// This package has no dependencies on prefetch/; it stores pure data types.
package trace

import "time"

// DecisionRecord captures a single prefetch policy decision.
type DecisionRecord struct {
	Seq        int
	Current    string
	Predicted  string // empty when the policy had no prediction
	Artifact   string // empty when the prediction maps to no artifact
	BuildCost  time.Duration
	TimeToNext time.Duration
	Confidence float64
	Prefetch   bool
	Triggered  bool   // a rebuild was started for this decision
	Reason     string
	Actual     string // operation that actually followed; empty when unknown
}

// RebuildRecord captures the outcome of one artifact rebuild.
type RebuildRecord struct {
	Artifact string
	Success  bool
	Elapsed  time.Duration
	Error    string
}
