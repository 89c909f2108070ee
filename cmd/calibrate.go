package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/mvprefetch/prefetch"
)

// calibrateCmd rebuilds every catalog artifact once and records its cost
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure the rebuild time of every materialized view",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		bundle := loadConfig(configPath)
		e := newEngine(ctx, bundle, nil, nil)
		defer e.Close()

		artifacts := bundle.Registry().Artifacts()
		if len(artifacts) == 0 {
			e.fatalf("No artifacts in the catalog of %s", configPath)
		}
		results := e.orch.MeasureAll(ctx, artifacts)
		failed := printCalibration(os.Stdout, results)
		if failed == len(results) {
			e.fatalf("Every rebuild failed")
		}
		if failed > 0 {
			logrus.Warnf("%d of %d rebuilds failed; their previous costs are kept", failed, len(results))
		}
	},
}

// printCalibration writes the measured costs and returns the number of failures.
func printCalibration(w io.Writer, results []prefetch.RefreshResult) int {
	failed := 0
	_, _ = fmt.Fprintln(w, "=== Rebuild Costs ===")
	for _, r := range results {
		if !r.Success {
			failed++
			_, _ = fmt.Fprintf(w, "%-40s FAILED  %v\n", r.Artifact, r.Err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%-40s %8.4fs\n", r.Artifact, r.Elapsed.Seconds())
	}
	return failed
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
}
