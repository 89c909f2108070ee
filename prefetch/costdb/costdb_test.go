package costdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveCost_LastWriteWins(t *testing.T) {
	// GIVEN a fresh cost db
	s, err := Open(filepath.Join(t.TempDir(), "nested", "costs.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	// WHEN an artifact is measured twice
	require.NoError(t, s.SaveCost(ctx, "mv_a", 2*time.Second))
	require.NoError(t, s.SaveCost(ctx, "mv_a", 500*time.Millisecond))
	require.NoError(t, s.SaveCost(ctx, "mv_b", 1500*time.Millisecond))

	// THEN only the latest value is kept
	costs, err := s.LoadCosts(ctx)
	require.NoError(t, err)
	assert.Len(t, costs, 2)
	assert.InDelta(t, float64(500*time.Millisecond), float64(costs["mv_a"]), float64(time.Microsecond))
	assert.InDelta(t, float64(1500*time.Millisecond), float64(costs["mv_b"]), float64(time.Microsecond))
}

func TestStore_Reopen_KeepsCosts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveCost(ctx, "mv_a", 3*time.Second))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	costs, err := s.LoadCosts(ctx)
	require.NoError(t, err)
	assert.InDelta(t, float64(3*time.Second), float64(costs["mv_a"]), float64(time.Microsecond))
}

func TestStore_LoadCosts_Empty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "costs.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	costs, err := s.LoadCosts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, costs)
}
