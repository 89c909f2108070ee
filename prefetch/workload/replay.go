package workload

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mvprefetch/prefetch"
	"github.com/inference-sim/mvprefetch/prefetch/trace"
)

// BaselineRecord is the mean runtime of one operation without prefetching.
type BaselineRecord struct {
	Operation prefetch.OperationID
	Runs      int
	Mean      time.Duration
}

// ReplayRecord is the runtime of one executed operation during a replay.
// The decision was taken for Current; Operation is the one executed next.
type ReplayRecord struct {
	Index      int
	Current    prefetch.OperationID
	Operation  prefetch.OperationID
	Runtime    time.Duration
	Prefetched bool
	Predicted  prefetch.OperationID
	Artifact   string
	ExecuteErr error
}

// MeasureBaseline executes every operation runs times and averages the
// successful executions. Operations that never succeed are omitted.
func MeasureBaseline(ctx context.Context, store prefetch.ArtifactStore, ops []prefetch.OperationID, runs int) []BaselineRecord {
	logrus.Infof("Measuring baseline query performance (%d runs per query)", runs)
	records := make([]BaselineRecord, 0, len(ops))
	for _, op := range ops {
		var total time.Duration
		ok := 0
		for i := 0; i < runs; i++ {
			start := time.Now()
			if err := store.Execute(ctx, op); err != nil {
				logrus.Warnf("Error executing query %s: %v", op, err)
				continue
			}
			total += time.Since(start)
			ok++
		}
		if ok > 0 {
			records = append(records, BaselineRecord{Operation: op, Runs: ok, Mean: total / time.Duration(ok)})
		}
	}
	return records
}

// Replay walks the history in order. For each adjacent pair it asks the
// controller for a decision using the observed gap, waits for any rebuild the
// decision triggered (replay compresses the gap to zero), then executes and
// times the next operation. The trace, when enabled, learns each actual
// next operation.
func Replay(ctx context.Context, ctrl *prefetch.Controller, store prefetch.ArtifactStore, events []prefetch.Event, tr *trace.DecisionTrace) []ReplayRecord {
	if len(events) < 2 {
		return nil
	}
	logrus.Infof("Replaying %d operations with prefetching", len(events)-1)
	records := make([]ReplayRecord, 0, len(events)-1)
	for i := 0; i+1 < len(events); i++ {
		if ctx.Err() != nil {
			logrus.Warnf("Replay interrupted after %d operations: %v", i, ctx.Err())
			break
		}
		current, next := events[i].Operation, events[i+1].Operation
		decision, seq := ctrl.Observe(current, Gap(events, i))
		tr.SetActual(seq, string(next))
		if decision.ShouldPrefetch {
			ctrl.Orchestrator().Wait()
		}

		start := time.Now()
		err := store.Execute(ctx, next)
		rec := ReplayRecord{
			Index:      i,
			Current:    current,
			Operation:  next,
			Runtime:    time.Since(start),
			Prefetched: decision.ShouldPrefetch,
			Predicted:  decision.Predicted,
			Artifact:   decision.Artifact,
			ExecuteErr: err,
		}
		if err != nil {
			logrus.Warnf("Error executing query %s: %v", next, err)
			rec.Runtime = 0
		}
		records = append(records, rec)

		if (i+1)%5 == 0 {
			logrus.Infof("  Processed %d/%d queries", i+1, len(events)-1)
		}
	}
	return records
}

// Summary compares a baseline with a replay.
type Summary struct {
	BaselineMean time.Duration
	ReplayMean   time.Duration
	Speedup      float64 // BaselineMean / ReplayMean; 0 when undefined
	Prefetched   int
	Failed       int
}

// Summarize averages the baseline means and the successful replay runtimes.
func Summarize(baselines []BaselineRecord, records []ReplayRecord) Summary {
	var s Summary
	if len(baselines) > 0 {
		var total time.Duration
		for _, b := range baselines {
			total += b.Mean
		}
		s.BaselineMean = total / time.Duration(len(baselines))
	}
	var total time.Duration
	ok := 0
	for _, r := range records {
		if r.Prefetched {
			s.Prefetched++
		}
		if r.ExecuteErr != nil {
			s.Failed++
			continue
		}
		total += r.Runtime
		ok++
	}
	if ok > 0 {
		s.ReplayMean = total / time.Duration(ok)
	}
	if s.ReplayMean > 0 && s.BaselineMean > 0 {
		s.Speedup = float64(s.BaselineMean) / float64(s.ReplayMean)
	}
	return s
}
