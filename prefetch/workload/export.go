package workload

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

var baselineColumns = []string{"query_id", "runs", "baseline_time_sec"}

var replayColumns = []string{"index", "current_query", "query_id", "runtime_sec", "prematerialized", "predicted_next", "artifact", "error"}

// ExportBaselines writes baseline records as CSV.
func ExportBaselines(path string, records []BaselineRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			string(r.Operation),
			strconv.Itoa(r.Runs),
			strconv.FormatFloat(r.Mean.Seconds(), 'f', -1, 64),
		})
	}
	return writeCSV(path, baselineColumns, rows)
}

// ExportReplay writes replay records as CSV. Failed executions have an
// empty runtime and the error text in the last column.
func ExportReplay(path string, records []ReplayRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		runtime, errText := strconv.FormatFloat(r.Runtime.Seconds(), 'f', -1, 64), ""
		if r.ExecuteErr != nil {
			runtime, errText = "", r.ExecuteErr.Error()
		}
		predicted := ""
		if r.Prefetched {
			predicted = string(r.Predicted)
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index),
			string(r.Current),
			string(r.Operation),
			runtime,
			strconv.FormatBool(r.Prefetched),
			predicted,
			r.Artifact,
			errText,
		})
	}
	return writeCSV(path, replayColumns, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return nil
}
