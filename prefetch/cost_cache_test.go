package prefetch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCostCache_LastWriteWins(t *testing.T) {
	c := NewCostCache()
	_, ok := c.Get("mv_a")
	assert.False(t, ok)

	c.Set("mv_a", 4*time.Second)
	c.Set("mv_a", 1*time.Second)

	d, ok := c.Get("mv_a")
	assert.True(t, ok)
	assert.Equal(t, time.Second, d, "no averaging across measurements")
}

func TestCostCache_SeedAndSnapshot(t *testing.T) {
	c := NewCostCache()
	c.Set("mv_b", 2*time.Second)
	c.Seed(map[string]time.Duration{"mv_b": 5 * time.Second, "mv_a": 3 * time.Second})

	want := []ArtifactCost{
		{Artifact: "mv_a", Cost: 3 * time.Second},
		{Artifact: "mv_b", Cost: 5 * time.Second},
	}
	assert.Equal(t, want, c.Snapshot())
}

func TestCostCache_ConcurrentAccess(t *testing.T) {
	c := NewCostCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("mv_a", time.Duration(j)*time.Millisecond)
				c.Get("mv_a")
				c.Snapshot()
			}
		}()
	}
	wg.Wait()

	d, ok := c.Get("mv_a")
	assert.True(t, ok)
	assert.Equal(t, 99*time.Millisecond, d)
}
