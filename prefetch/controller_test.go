package prefetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/inference-sim/mvprefetch/prefetch/trace"
)

func newTestController(t *testing.T, store ArtifactStore, tr *trace.DecisionTrace, m *Metrics) *Controller {
	t.Helper()
	o := NewOrchestrator(store, nil, testOrchestratorConfig(), nil, m)
	t.Cleanup(o.Close)
	o.Costs().Set("V2", 2*time.Second)
	policy := NewCostGapPolicy(
		BuildTransitionModel(history("Q1", "Q2", "Q3", "Q1", "Q4", "Q3")),
		NewArtifactRegistry(map[OperationID]string{"Q2": "V2", "Q4": "V4"}),
		o,
		DefaultPolicyConfig(),
	)
	return NewController(policy, o, m, tr)
}

func TestController_ObserveTriggersRebuild(t *testing.T) {
	defer goleak.VerifyNone(t)
	// GIVEN a traced controller whose policy prefetches V2 after Q1
	store := newFakeStore()
	store.latency["V2"] = 10 * time.Millisecond
	tr := trace.NewDecisionTrace(trace.TraceLevelDecisions)
	c := newTestController(t, store, tr, nil)

	// WHEN Q1 is observed with a 5s gap
	d, seq := c.Observe("Q1", 5*time.Second)
	c.Orchestrator().Wait()

	// THEN V2 was rebuilt and both the decision and the rebuild are traced
	assert.True(t, d.ShouldPrefetch)
	assert.Equal(t, 0, seq)
	assert.Equal(t, 1, store.refreshCount("V2"))
	cost, _ := c.Orchestrator().Costs().Get("V2")
	assert.Less(t, cost, 2*time.Second, "measured cost replaces the seeded one")

	decisions := tr.Decisions()
	require.Len(t, decisions, 1)
	assert.Equal(t, "V2", decisions[0].Artifact)
	assert.True(t, decisions[0].Triggered)
	rebuilds := tr.Rebuilds()
	require.Len(t, rebuilds, 1)
	assert.True(t, rebuilds[0].Success)
	assert.Equal(t, "V2", rebuilds[0].Artifact)
}

func TestController_ObserveDoesNotBlockOnStore(t *testing.T) {
	defer goleak.VerifyNone(t)
	// GIVEN a store whose refresh does not finish until released
	store := newFakeStore()
	store.gate = make(chan struct{})
	tr := trace.NewDecisionTrace(trace.TraceLevelDecisions)
	c := newTestController(t, store, tr, nil)

	// WHEN the same affirmative decision is taken twice
	start := time.Now()
	first, _ := c.Observe("Q1", 5*time.Second)
	second, _ := c.Observe("Q1", 5*time.Second)

	// THEN neither call waits and only the first triggers a rebuild
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.True(t, first.ShouldPrefetch)
	assert.True(t, second.ShouldPrefetch)
	decisions := tr.Decisions()
	require.Len(t, decisions, 2)
	assert.True(t, decisions[0].Triggered)
	assert.False(t, decisions[1].Triggered)

	close(store.gate)
	c.Orchestrator().Wait()
	assert.Equal(t, 1, store.refreshCount("V2"))
}

func TestController_ConcurrentObserveTriggersOneRebuild(t *testing.T) {
	defer goleak.VerifyNone(t)
	// GIVEN a store whose refresh does not finish until released
	store := newFakeStore()
	store.gate = make(chan struct{})
	tr := trace.NewDecisionTrace(trace.TraceLevelDecisions)
	c := newTestController(t, store, tr, nil)

	// WHEN many dispatchers observe Q1 at the same time
	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := c.Observe("Q1", 5*time.Second)
			assert.True(t, d.ShouldPrefetch)
		}()
	}
	wg.Wait()
	close(store.gate)
	c.Orchestrator().Wait()

	// THEN exactly one decision launched the single rebuild of V2
	triggered := 0
	for _, d := range tr.Decisions() {
		if d.Triggered {
			triggered++
		}
	}
	assert.Len(t, tr.Decisions(), callers)
	assert.Equal(t, 1, triggered)
	assert.Equal(t, 1, store.maxConcurrent("V2"))
	assert.Equal(t, 1, store.refreshCount("V2"))
}

func TestController_UntracedSequenceNumber(t *testing.T) {
	c := newTestController(t, newFakeStore(), nil, nil)

	_, seq := c.Observe("Q9", time.Second)

	assert.Equal(t, -1, seq)
}

func TestController_NegativeDecisionTriggersNothing(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newFakeStore()
	tr := trace.NewDecisionTrace(trace.TraceLevelDecisions)
	c := newTestController(t, store, tr, nil)

	d, _ := c.Observe("Q1", time.Second)
	c.Observe("Q9", time.Hour)
	c.Orchestrator().Wait()

	assert.False(t, d.ShouldPrefetch)
	assert.Equal(t, ReasonCostExceedsGap, d.Reason)
	assert.Equal(t, 0, store.refreshCount("V2"))
	assert.Len(t, tr.Decisions(), 2)
	assert.Empty(t, tr.Rebuilds())
}

func TestController_FailedRebuildIsTraced(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := newFakeStore()
	store.fail["V2"] = errors.New("lock timeout")
	tr := trace.NewDecisionTrace(trace.TraceLevelDecisions)
	c := newTestController(t, store, tr, nil)

	c.Observe("Q1", 5*time.Second)
	c.Orchestrator().Wait()

	rebuilds := tr.Rebuilds()
	require.Len(t, rebuilds, 1)
	assert.False(t, rebuilds[0].Success)
	assert.Contains(t, rebuilds[0].Error, "lock timeout")
	cost, _ := c.Orchestrator().Costs().Get("V2")
	assert.Equal(t, 2*time.Second, cost)
}

func TestController_DecisionMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := NewMetrics(prometheus.NewRegistry())
	c := newTestController(t, newFakeStore(), nil, m)

	c.Observe("Q1", 5*time.Second)
	c.Observe("Q1", 0)
	c.Observe("Q9", time.Second)
	c.Orchestrator().Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues(ReasonCostFitsGap, "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues(ReasonCostExceedsGap, "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues(ReasonNoHistory, "false")))
}

func TestRebuildOutcome(t *testing.T) {
	tests := []struct {
		name string
		r    RefreshResult
		want string
	}{
		{"success", RefreshResult{Success: true}, "ok"},
		{"timeout", RefreshResult{Err: errors.Join(ErrStoreFailure, context.DeadlineExceeded)}, "timeout"},
		{"canceled", RefreshResult{Err: errors.Join(ErrStoreFailure, context.Canceled)}, "canceled"},
		{"store error", RefreshResult{Err: ErrStoreFailure}, "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rebuildOutcome(tc.r))
		})
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeDecision(Decision{})
		m.observeRebuild(RefreshResult{Success: true})
		m.rebuildStarted()
		m.rebuildFinished()
	})
}
