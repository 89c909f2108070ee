package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mvprefetch/prefetch"
	"github.com/inference-sim/mvprefetch/prefetch/costdb"
	"github.com/inference-sim/mvprefetch/prefetch/store"
	"github.com/inference-sim/mvprefetch/prefetch/trace"
	"github.com/inference-sim/mvprefetch/prefetch/workload"
)

// Memory store latencies used when the configuration leaves them unset.
const (
	defaultMemoryRefresh = 500 * time.Millisecond
	defaultMemoryExecute = 200 * time.Millisecond
	defaultMemoryHit     = 10 * time.Millisecond
)

// engine wires the configuration to a running controller.
type engine struct {
	bundle     *prefetch.Bundle
	store      prefetch.ArtifactStore
	closeStore func()
	costs      *costdb.Store
	orch       *prefetch.Orchestrator
	ctrl       *prefetch.Controller
	model      *prefetch.TransitionModel
	trace      *trace.DecisionTrace
	metrics    *prefetch.Metrics
	closeOnce  sync.Once
}

// loadConfig reads and validates the configuration. Exits on error.
func loadConfig(path string) *prefetch.Bundle {
	bundle, err := prefetch.LoadBundle(path)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if dsnOverride != "" {
		bundle.Store.DSN = dsnOverride
	}
	if policyName != "" {
		bundle.Policy.Name = policyName
	}
	if err := bundle.Validate(); err != nil {
		logrus.Fatalf("Invalid config %s: %v", path, err)
	}
	return bundle
}

// loadHistory reads the query log. Exits on error.
func loadHistory(path string) []prefetch.Event {
	events, err := workload.LoadQueryLog(path)
	if err != nil {
		logrus.Fatalf("Failed to load query log: %v", err)
	}
	logrus.Infof("Loaded %d queries from %s", len(events), path)
	return events
}

// openStore opens the configured artifact store. The returned func closes it.
func openStore(ctx context.Context, bundle *prefetch.Bundle) (prefetch.ArtifactStore, func(), error) {
	switch bundle.Store.Driver {
	case "memory":
		return store.NewMemoryStore(memoryConfig(bundle)), func() {}, nil
	default:
		pg, err := store.NewPostgresStore(ctx, bundle.Store.DSN, bundle.Queries())
		if err != nil {
			return nil, nil, err
		}
		return pg, func() {
			if err := pg.Close(); err != nil {
				logrus.Warnf("closing postgres: %v", err)
			}
		}, nil
	}
}

func memoryConfig(bundle *prefetch.Bundle) store.MemoryConfig {
	mem := bundle.Store.Memory
	cfg := store.MemoryConfig{
		RefreshLatency:  defaultMemoryRefresh,
		ArtifactLatency: mem.ArtifactLatency,
		ExecuteLatency:  defaultMemoryExecute,
		HitLatency:      defaultMemoryHit,
		ServedBy:        make(map[prefetch.OperationID]string, len(bundle.Catalog)),
		Fail:            mem.Fail,
	}
	if mem.RefreshLatency != nil {
		cfg.RefreshLatency = *mem.RefreshLatency
	}
	if mem.ExecuteLatency != nil {
		cfg.ExecuteLatency = *mem.ExecuteLatency
	}
	if mem.HitLatency != nil {
		cfg.HitLatency = *mem.HitLatency
	}
	for op, entry := range bundle.Catalog {
		if entry.Artifact != "" {
			cfg.ServedBy[prefetch.OperationID(op)] = entry.Artifact
		}
	}
	return cfg
}

// newEngine builds the store, cost persistence, orchestrator and controller.
// history may be empty; reg may be nil. Exits on error.
func newEngine(ctx context.Context, bundle *prefetch.Bundle, history []prefetch.Event, reg prometheus.Registerer) *engine {
	artifactStore, closeStore, err := openStore(ctx, bundle)
	if err != nil {
		logrus.Fatalf("Failed to open artifact store: %v", err)
	}
	e := &engine{bundle: bundle, store: artifactStore, closeStore: closeStore}

	cache := prefetch.NewCostCache()
	var persist prefetch.CostStore
	if bundle.CostDB != "" {
		e.costs, err = costdb.Open(bundle.CostDB)
		if err != nil {
			closeStore()
			logrus.Fatalf("Failed to open cost database: %v", err)
		}
		saved, err := e.costs.LoadCosts(ctx)
		if err != nil {
			closeStore()
			_ = e.costs.Close()
			logrus.Fatalf("Failed to load saved costs: %v", err)
		}
		cache.Seed(saved)
		persist = e.costs
		logrus.Infof("Loaded %d saved rebuild costs from %s", len(saved), bundle.CostDB)
	}

	if reg != nil {
		e.metrics = prefetch.NewMetrics(reg)
	}
	e.trace = trace.NewDecisionTrace(bundle.TraceLevel())
	e.orch = prefetch.NewOrchestrator(artifactStore, cache, bundle.OrchestratorConfig(), persist, e.metrics)
	e.model = prefetch.BuildTransitionModel(history)
	policy := prefetch.NewPrefetchPolicy(bundle.Policy.Name, e.model, bundle.Registry(), e.orch, bundle.PolicyConfig())
	e.ctrl = prefetch.NewController(policy, e.orch, e.metrics, e.trace)
	return e
}

// fatalf releases the engine before exiting, since logrus.Fatalf skips deferred calls.
func (e *engine) fatalf(format string, args ...any) {
	e.Close()
	logrus.Fatalf(format, args...)
}

// Close stops background rebuilds and releases the store and cost database.
// Calls after the first do nothing.
func (e *engine) Close() {
	e.closeOnce.Do(func() {
		e.orch.Close()
		e.closeStore()
		if e.costs != nil {
			if err := e.costs.Close(); err != nil {
				logrus.Warnf("closing cost database: %v", err)
			}
		}
	})
}
