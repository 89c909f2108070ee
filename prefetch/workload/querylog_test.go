package workload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/mvprefetch/prefetch"
)

func TestReadQueryLog_ParsesRowsInOrder(t *testing.T) {
	// GIVEN a log with an index column and mixed timestamp layouts
	log := `,timestamp,query_id
0,2024-03-01 09:00:00,Q1
1,2024-03-01 09:00:05.5,Q2
2,2024-03-01T09:00:09Z,Q1
`
	events, err := ReadQueryLog(strings.NewReader(log))
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, []prefetch.OperationID{"Q1", "Q2", "Q1"},
		[]prefetch.OperationID{events[0].Operation, events[1].Operation, events[2].Operation})
	assert.Equal(t, 5500*time.Millisecond, Gap(events, 0))
	assert.Equal(t, 3500*time.Millisecond, Gap(events, 1))
}

func TestReadQueryLog_HeaderOnly(t *testing.T) {
	events, err := ReadQueryLog(strings.NewReader("timestamp,query_id\n"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReadQueryLog_Errors(t *testing.T) {
	tests := []struct {
		name string
		log  string
	}{
		{"empty input", ""},
		{"missing query_id column", "timestamp,query\n2024-03-01 09:00:00,Q1\n"},
		{"bad timestamp", "timestamp,query_id\nyesterday,Q1\n"},
		{"empty query id", "timestamp,query_id\n2024-03-01 09:00:00, \n"},
		{"short row", "a,timestamp,query_id\n1,2024-03-01 09:00:00\n"},
		{"out of order", "timestamp,query_id\n2024-03-01 09:00:05,Q1\n2024-03-01 09:00:00,Q2\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadQueryLog(strings.NewReader(tc.log))
			assert.Error(t, err)
		})
	}
}

func TestLoadQueryLog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_log.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,query_id\n2024-03-01 09:00:00,Q3\n"), 0644))

	events, err := LoadQueryLog(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, prefetch.OperationID("Q3"), events[0].Operation)

	_, err = LoadQueryLog(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
