package prefetch

import (
	"sort"
	"sync"
	"time"
)

// CostCache holds the most recently measured rebuild duration per artifact.
// Every write replaces the previous value; nothing is averaged or decayed.
type CostCache struct {
	mu    sync.RWMutex
	costs map[string]time.Duration
}

// NewCostCache creates an empty cache.
func NewCostCache() *CostCache {
	return &CostCache{costs: make(map[string]time.Duration)}
}

// Get returns the cached duration for artifact.
func (c *CostCache) Get(artifact string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.costs[artifact]
	return d, ok
}

// Set records d as the latest measurement for artifact.
func (c *CostCache) Set(artifact string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.costs[artifact] = d
}

// Seed loads persisted costs. Existing entries for the same artifacts are overwritten.
func (c *CostCache) Seed(costs map[string]time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, d := range costs {
		c.costs[name] = d
	}
}

// ArtifactCost is one CostCache entry.
type ArtifactCost struct {
	Artifact string
	Cost     time.Duration
}

// Snapshot returns all entries sorted by artifact name.
func (c *CostCache) Snapshot() []ArtifactCost {
	c.mu.RLock()
	out := make([]ArtifactCost, 0, len(c.costs))
	for name, d := range c.costs {
		out = append(out, ArtifactCost{Artifact: name, Cost: d})
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Artifact < out[j].Artifact })
	return out
}
