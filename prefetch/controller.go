package prefetch

import (
	"time"

	"github.com/inference-sim/mvprefetch/prefetch/trace"
)

// Controller is the dispatcher between the operation stream and the engine:
// it asks the policy for a decision and, when the decision is affirmative,
// hands the rebuild to the orchestrator in the background. Observe never
// waits on the artifact store.
type Controller struct {
	policy  PrefetchPolicy
	orch    *Orchestrator
	metrics *Metrics
	trace   *trace.DecisionTrace
}

// NewController creates a controller. metrics and tr may be nil.
// When tracing is enabled the controller registers itself for the
// orchestrator's refresh results.
func NewController(policy PrefetchPolicy, orch *Orchestrator, metrics *Metrics, tr *trace.DecisionTrace) *Controller {
	c := &Controller{policy: policy, orch: orch, metrics: metrics, trace: tr}
	if tr.Enabled() {
		orch.OnRefresh(func(r RefreshResult) { tr.RecordRebuild(RebuildRecord(r)) })
	}
	return c
}

// Observe reports that current is being served and the next operation is
// expected in timeToNext. Returns the decision and its trace sequence number
// (-1 when tracing is off).
func (c *Controller) Observe(current OperationID, timeToNext time.Duration) (Decision, int) {
	d := c.policy.ShouldPrefetch(current, timeToNext)
	c.metrics.observeDecision(d)

	triggered := false
	if d.ShouldPrefetch {
		triggered = c.orch.Trigger(d.Artifact)
	}
	seq := c.trace.RecordDecision(decisionRecord(d, triggered))
	return d, seq
}

// Orchestrator returns the orchestrator rebuilds are dispatched to.
func (c *Controller) Orchestrator() *Orchestrator { return c.orch }

// Policy returns the policy decisions are taken by.
func (c *Controller) Policy() PrefetchPolicy { return c.policy }

func decisionRecord(d Decision, triggered bool) trace.DecisionRecord {
	return trace.DecisionRecord{
		Current:    string(d.Current),
		Predicted:  string(d.Predicted),
		Artifact:   d.Artifact,
		BuildCost:  d.EstimatedBuildCost,
		TimeToNext: d.EstimatedTimeToNext,
		Confidence: d.Confidence,
		Prefetch:   d.ShouldPrefetch,
		Triggered:  triggered,
		Reason:     d.Reason,
	}
}

// RebuildRecord converts a refresh result for the decision trace.
func RebuildRecord(r RefreshResult) trace.RebuildRecord {
	rec := trace.RebuildRecord{Artifact: r.Artifact, Success: r.Success, Elapsed: r.Elapsed}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}
