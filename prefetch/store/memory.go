package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inference-sim/mvprefetch/prefetch"
)

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	RefreshLatency  time.Duration                   // default refresh duration
	ArtifactLatency map[string]time.Duration        // per-artifact refresh duration overrides
	ExecuteLatency  time.Duration                   // query duration when its view is stale
	HitLatency      time.Duration                   // query duration right after its view was refreshed
	ServedBy        map[prefetch.OperationID]string // operation → view, for hit detection
	Fail            []string                        // artifacts whose refresh always fails
}

// MemoryStore simulates an artifact store. Refreshes and executions sleep
// for the configured latency and honour context cancellation. A refresh
// marks its view fresh; the next execution of an operation served by a
// fresh view runs at HitLatency and consumes the freshness.
type MemoryStore struct {
	cfg MemoryConfig

	mu         sync.Mutex
	failures   map[string]error
	latency    map[string]time.Duration
	fresh      map[string]bool
	refreshes  map[string]int
	executions map[prefetch.OperationID]int
	hits       map[prefetch.OperationID]int
	running    map[string]int
	maxRunning map[string]int
}

// NewMemoryStore creates a MemoryStore from cfg.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	m := &MemoryStore{
		cfg:        cfg,
		failures:   make(map[string]error),
		latency:    make(map[string]time.Duration),
		fresh:      make(map[string]bool),
		refreshes:  make(map[string]int),
		executions: make(map[prefetch.OperationID]int),
		hits:       make(map[prefetch.OperationID]int),
		running:    make(map[string]int),
		maxRunning: make(map[string]int),
	}
	for name, d := range cfg.ArtifactLatency {
		m.latency[name] = d
	}
	for _, name := range cfg.Fail {
		m.failures[name] = fmt.Errorf("simulated failure refreshing %s", name)
	}
	return m
}

// SetLatency overrides the refresh duration of artifact.
func (m *MemoryStore) SetLatency(artifact string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency[artifact] = d
}

// SetFailure makes every refresh of artifact fail with err; nil clears it.
func (m *MemoryStore) SetFailure(artifact string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, artifact)
		return
	}
	m.failures[artifact] = err
}

// Refresh implements prefetch.ArtifactStore.
func (m *MemoryStore) Refresh(ctx context.Context, artifact string) error {
	m.mu.Lock()
	d, ok := m.latency[artifact]
	if !ok {
		d = m.cfg.RefreshLatency
	}
	failure := m.failures[artifact]
	m.refreshes[artifact]++
	m.running[artifact]++
	if m.running[artifact] > m.maxRunning[artifact] {
		m.maxRunning[artifact] = m.running[artifact]
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running[artifact]--
		m.mu.Unlock()
	}()

	if err := sleepCtx(ctx, d); err != nil {
		return err
	}
	if failure != nil {
		return failure
	}
	m.mu.Lock()
	m.fresh[artifact] = true
	m.mu.Unlock()
	return nil
}

// Execute implements prefetch.ArtifactStore.
func (m *MemoryStore) Execute(ctx context.Context, op prefetch.OperationID) error {
	m.mu.Lock()
	d := m.cfg.ExecuteLatency
	if view, ok := m.cfg.ServedBy[op]; ok && m.fresh[view] {
		d = m.cfg.HitLatency
		m.fresh[view] = false
		m.hits[op]++
	}
	m.executions[op]++
	m.mu.Unlock()
	return sleepCtx(ctx, d)
}

// Refreshes returns how many refreshes of artifact were started.
func (m *MemoryStore) Refreshes(artifact string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes[artifact]
}

// MaxConcurrent returns the highest number of simultaneous refreshes of artifact observed.
func (m *MemoryStore) MaxConcurrent(artifact string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxRunning[artifact]
}

// Executions returns how many times op was executed.
func (m *MemoryStore) Executions(op prefetch.OperationID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions[op]
}

// Hits returns how many executions of op found their view fresh.
func (m *MemoryStore) Hits(op prefetch.OperationID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[op]
}
