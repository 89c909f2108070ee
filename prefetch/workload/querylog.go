// Package workload loads operation histories and replays them against the
// prefetch engine to compare prefetching with a no-prefetch baseline.
package workload

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/inference-sim/mvprefetch/prefetch"
)

// Column names of the query log CSV. Other columns are ignored.
const (
	timestampColumn = "timestamp"
	queryIDColumn   = "query_id"
)

// timestampLayouts are tried in order when parsing the timestamp column.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
}

// LoadQueryLog reads a query log CSV with at least the columns
// "timestamp" and "query_id". Rows must be in non-decreasing time order.
func LoadQueryLog(path string) ([]prefetch.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query log: %w", err)
	}
	defer func() { _ = file.Close() }()
	return ReadQueryLog(file)
}

// ReadQueryLog parses a query log from r. See LoadQueryLog.
func ReadQueryLog(r io.Reader) ([]prefetch.Event, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	tsCol, idCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case timestampColumn:
			tsCol = i
		case queryIDColumn:
			idCol = i
		}
	}
	if tsCol < 0 || idCol < 0 {
		return nil, fmt.Errorf("query log header must contain %q and %q, got %v", timestampColumn, queryIDColumn, header)
	}

	var events []prefetch.Event
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row %d: %w", row, err)
		}
		if len(record) <= max(tsCol, idCol) {
			return nil, fmt.Errorf("CSV row %d has %d columns, expected at least %d", row, len(record), max(tsCol, idCol)+1)
		}
		ts, err := parseTimestamp(record[tsCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		op := strings.TrimSpace(record[idCol])
		if op == "" {
			return nil, fmt.Errorf("row %d: empty query_id", row)
		}
		if n := len(events); n > 0 && ts.Before(events[n-1].Time) {
			return nil, fmt.Errorf("row %d: timestamp %s is before previous row", row, record[tsCol])
		}
		events = append(events, prefetch.Event{Time: ts, Operation: prefetch.OperationID(op)})
	}
	return events, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Gap returns the time between events i and i+1. Requires i+1 < len(events).
func Gap(events []prefetch.Event, i int) time.Duration {
	return events[i+1].Time.Sub(events[i].Time)
}
