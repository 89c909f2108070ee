package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrStoreFailure wraps every error returned by the artifact store,
// including rebuilds that ran past their timeout.
var ErrStoreFailure = errors.New("artifact store failure")

// ArtifactStore is the external store holding the materialized views.
type ArtifactStore interface {
	// Refresh recomputes artifact from current data. It must honour ctx cancellation.
	Refresh(ctx context.Context, artifact string) error
	// Execute runs the query behind op. Used by the replay harness only.
	Execute(ctx context.Context, op OperationID) error
}

// CostStore persists measured rebuild costs across restarts.
type CostStore interface {
	SaveCost(ctx context.Context, artifact string, cost time.Duration) error
}

// RefreshResult is the outcome of one rebuild.
// On failure Elapsed is zero and Err wraps ErrStoreFailure.
type RefreshResult struct {
	Artifact string
	Success  bool
	Elapsed  time.Duration
	Err      error
	Shared   bool // the store call was shared with concurrent callers
}

// OrchestratorConfig holds rebuild cost and timeout parameters.
type OrchestratorConfig struct {
	// FallbackCost is reported by CostOf for artifacts never measured.
	FallbackCost time.Duration // default: 10s

	// Rebuild timeout is max(TimeoutFloor, TimeoutMultiplier × CostOf(artifact)).
	// Both zero disables the timeout.
	TimeoutFloor      time.Duration // default: 30s
	TimeoutMultiplier float64       // default: 3

	// CalibrationParallelism bounds concurrent rebuilds in MeasureAll.
	CalibrationParallelism int // default: 1
}

// DefaultOrchestratorConfig returns the default rebuild parameters.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		FallbackCost:           10 * time.Second,
		TimeoutFloor:           30 * time.Second,
		TimeoutMultiplier:      3,
		CalibrationParallelism: 1,
	}
}

// Orchestrator runs timed artifact rebuilds and owns the CostCache.
//
// At most one store refresh per artifact is in flight at any time: concurrent
// Rebuild calls for the same artifact share one store call, and Trigger is a
// no-op while a triggered rebuild of the artifact is pending. Failed, timed
// out and cancelled rebuilds leave the cached cost untouched.
type Orchestrator struct {
	store   ArtifactStore
	costs   *CostCache
	config  OrchestratorConfig
	persist CostStore
	metrics *Metrics
	hook    func(RefreshResult)

	flight singleflight.Group

	mu        sync.Mutex
	triggered map[string]bool
	bg        sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewOrchestrator creates an orchestrator over store. persist and metrics may be nil.
func NewOrchestrator(store ArtifactStore, costs *CostCache, cfg OrchestratorConfig, persist CostStore, metrics *Metrics) *Orchestrator {
	if costs == nil {
		costs = NewCostCache()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:     store,
		costs:     costs,
		config:    cfg,
		persist:   persist,
		metrics:   metrics,
		triggered: make(map[string]bool),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// OnRefresh registers fn to be called once per store refresh, after the
// cost cache is updated. Must be called before the first rebuild.
func (o *Orchestrator) OnRefresh(fn func(RefreshResult)) {
	o.hook = fn
}

// Costs returns the cache owned by the orchestrator.
func (o *Orchestrator) Costs() *CostCache { return o.costs }

// CostOf returns the last measured rebuild duration of artifact, or the
// configured fallback if it was never measured.
func (o *Orchestrator) CostOf(artifact string) time.Duration {
	if d, ok := o.costs.Get(artifact); ok {
		return d
	}
	return o.config.FallbackCost
}

// Rebuild refreshes artifact and records its duration. If a rebuild of the
// same artifact is already running, Rebuild waits for it and returns its
// result. A ctx that is already done fails without touching the store;
// otherwise ctx bounds the wait only, and the store call is bounded by the
// rebuild timeout and by Close.
func (o *Orchestrator) Rebuild(ctx context.Context, artifact string) RefreshResult {
	if err := ctx.Err(); err != nil {
		return waitFailure(artifact, err)
	}
	ch := o.flight.DoChan(artifact, func() (any, error) {
		if !o.track() {
			return RefreshResult{
				Artifact: artifact,
				Err:      fmt.Errorf("%w: refresh %s: %w", ErrStoreFailure, artifact, context.Canceled),
			}, nil
		}
		defer o.bg.Done()
		return o.refresh(artifact), nil
	})
	select {
	case res := <-ch:
		r := res.Val.(RefreshResult)
		r.Shared = res.Shared
		return r
	case <-ctx.Done():
		return waitFailure(artifact, ctx.Err())
	}
}

func waitFailure(artifact string, err error) RefreshResult {
	return RefreshResult{
		Artifact: artifact,
		Err:      fmt.Errorf("%w: waiting for %s: %w", ErrStoreFailure, artifact, err),
	}
}

// track registers a store refresh with Close. Returns false once Close has begun.
func (o *Orchestrator) track() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.baseCtx.Err() != nil {
		return false
	}
	o.bg.Add(1)
	return true
}

// Trigger starts a background rebuild of artifact and returns immediately.
// Returns false if a triggered rebuild of artifact is still pending.
func (o *Orchestrator) Trigger(artifact string) bool {
	o.mu.Lock()
	if o.triggered[artifact] || o.baseCtx.Err() != nil {
		o.mu.Unlock()
		return false
	}
	o.triggered[artifact] = true
	o.bg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.bg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.triggered, artifact)
			o.mu.Unlock()
		}()
		// refresh is bounded by baseCtx, so Close never waits past cancellation
		o.Rebuild(context.Background(), artifact)
	}()
	return true
}

// MeasureAll rebuilds every artifact once to calibrate the cost cache.
// A failure on one artifact does not stop the others.
func (o *Orchestrator) MeasureAll(ctx context.Context, artifacts []string) []RefreshResult {
	results := make([]RefreshResult, len(artifacts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, o.config.CalibrationParallelism))
	for i, artifact := range artifacts {
		if err := gctx.Err(); err != nil {
			results[i] = waitFailure(artifact, err)
			continue
		}
		i, artifact := i, artifact
		g.Go(func() error {
			results[i] = o.Rebuild(gctx, artifact)
			return nil // failures are carried in RefreshResult
		})
	}
	_ = g.Wait()

	logrus.Infof("Measured %d artifact build times", len(artifacts))
	for _, r := range results {
		if r.Success {
			logrus.Infof("  %s: %.4fs", r.Artifact, r.Elapsed.Seconds())
		} else {
			logrus.Infof("  %s: failed (%v)", r.Artifact, r.Err)
		}
	}
	return results
}

// Wait blocks until all triggered rebuilds and running store refreshes have finished.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

// Close cancels running rebuilds and waits for every store refresh to return,
// including those whose callers stopped waiting.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.cancel()
	o.mu.Unlock()
	o.bg.Wait()
}

func (o *Orchestrator) timeoutFor(artifact string) time.Duration {
	scaled := time.Duration(o.config.TimeoutMultiplier * float64(o.CostOf(artifact)))
	return max(o.config.TimeoutFloor, scaled)
}

// refresh performs the store call. Only ever run inside o.flight.
func (o *Orchestrator) refresh(artifact string) RefreshResult {
	ctx, cancel := o.baseCtx, context.CancelFunc(func() {})
	timeout := o.timeoutFor(artifact)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(o.baseCtx, timeout)
	}
	defer cancel()

	o.metrics.rebuildStarted()
	defer o.metrics.rebuildFinished()

	start := time.Now()
	err := o.store.Refresh(ctx, artifact)
	elapsed := time.Since(start)
	if err == nil && ctx.Err() != nil {
		// the store returned after the deadline without noticing it
		err = ctx.Err()
	}

	if err != nil {
		r := RefreshResult{Artifact: artifact, Err: fmt.Errorf("%w: refresh %s: %w", ErrStoreFailure, artifact, err)}
		logrus.WithFields(logrus.Fields{
			"artifact": artifact,
			"elapsed":  elapsed,
			"timeout":  timeout,
			"result":   rebuildOutcome(r),
		}).Warnf("rebuild failed: %v", err)
		o.metrics.observeRebuild(r)
		o.notify(r)
		return r
	}

	o.costs.Set(artifact, elapsed)
	if o.persist != nil {
		if perr := o.persist.SaveCost(o.baseCtx, artifact, elapsed); perr != nil {
			logrus.Warnf("persisting cost of %s: %v", artifact, perr)
		}
	}
	r := RefreshResult{Artifact: artifact, Success: true, Elapsed: elapsed}
	o.metrics.observeRebuild(r)
	o.notify(r)
	return r
}

func (o *Orchestrator) notify(r RefreshResult) {
	if o.hook != nil {
		o.hook(r)
	}
}
