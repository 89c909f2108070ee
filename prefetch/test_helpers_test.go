package prefetch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// history builds an event list one second apart from operation names.
func history(ops ...string) []Event {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	events := make([]Event, len(ops))
	for i, op := range ops {
		events[i] = Event{Time: start.Add(time.Duration(i) * time.Second), Operation: OperationID(op)}
	}
	return events
}

// staticCosts is a CostEstimator over a fixed map with a fallback.
type staticCosts struct {
	costs    map[string]time.Duration
	fallback time.Duration
}

func (s staticCosts) CostOf(artifact string) time.Duration {
	if d, ok := s.costs[artifact]; ok {
		return d
	}
	return s.fallback
}

// fakeStore is an ArtifactStore with per-artifact latency and failures.
// Refresh honours ctx unless ignoreCtx is set. When gate is non-nil every
// refresh waits for it to be closed before starting its latency.
type fakeStore struct {
	mu         sync.Mutex
	latency    map[string]time.Duration
	fail       map[string]error
	gate       chan struct{}
	ignoreCtx  bool
	refreshes  map[string]int
	running    map[string]int
	maxRunning map[string]int
	total      int
	maxTotal   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		latency:    make(map[string]time.Duration),
		fail:       make(map[string]error),
		refreshes:  make(map[string]int),
		running:    make(map[string]int),
		maxRunning: make(map[string]int),
	}
}

func (f *fakeStore) Refresh(ctx context.Context, artifact string) error {
	f.mu.Lock()
	d := f.latency[artifact]
	failure := f.fail[artifact]
	gate := f.gate
	f.refreshes[artifact]++
	f.running[artifact]++
	f.maxRunning[artifact] = max(f.maxRunning[artifact], f.running[artifact])
	f.total++
	f.maxTotal = max(f.maxTotal, f.total)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running[artifact]--
		f.total--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.ignoreCtx {
		time.Sleep(d)
	} else {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return failure
}

func (f *fakeStore) Execute(context.Context, OperationID) error { return nil }

func (f *fakeStore) refreshCount(artifact string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes[artifact]
}

func (f *fakeStore) maxConcurrent(artifact string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRunning[artifact]
}

func (f *fakeStore) inFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func (f *fakeStore) totalRefreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.refreshes {
		n += c
	}
	return n
}

func (f *fakeStore) maxConcurrentTotal() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxTotal
}

// recordingCostStore records SaveCost calls and optionally fails them.
type recordingCostStore struct {
	mu    sync.Mutex
	saved map[string]time.Duration
	err   error
}

func (r *recordingCostStore) SaveCost(_ context.Context, artifact string, cost time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.saved == nil {
		r.saved = make(map[string]time.Duration)
	}
	r.saved[artifact] = cost
	return nil
}

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefetch.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp YAML: %v", err)
	}
	return path
}
