package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/mvprefetch/prefetch"
)

var (
	decideCurrent string        // Query id being served
	decideGap     time.Duration // Expected time until the next query
	decideRebuild bool          // Rebuild the predicted view when the decision is affirmative
)

// decideCmd takes a single prefetch decision
var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide whether to prefetch the view of the predicted next query",
	Run: func(cmd *cobra.Command, args []string) {
		if decideCurrent == "" {
			logrus.Fatalf("--current is required")
		}
		if decideGap < 0 {
			logrus.Fatalf("--gap must be non-negative, got %v", decideGap)
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		bundle := loadConfig(configPath)
		e := newEngine(ctx, bundle, loadHistory(historyPath), nil)
		defer e.Close()

		d := e.ctrl.Policy().ShouldPrefetch(prefetch.OperationID(decideCurrent), decideGap)
		printDecision(os.Stdout, d)
		if d.ShouldPrefetch && decideRebuild {
			r := e.orch.Rebuild(ctx, d.Artifact)
			if !r.Success {
				e.fatalf("Rebuild of %s failed: %v", d.Artifact, r.Err)
			}
			_, _ = fmt.Fprintf(os.Stdout, "Rebuilt %s in %.4fs\n", d.Artifact, r.Elapsed.Seconds())
		}
	},
}

func printDecision(w io.Writer, d prefetch.Decision) {
	_, _ = fmt.Fprintln(w, "=== Prefetch Decision ===")
	_, _ = fmt.Fprintf(w, "Current query      : %s\n", d.Current)
	if d.Predicted == "" {
		_, _ = fmt.Fprintln(w, "Predicted next     : (none)")
	} else {
		_, _ = fmt.Fprintf(w, "Predicted next     : %s (confidence %.2f)\n", d.Predicted, d.Confidence)
	}
	if d.Artifact != "" {
		_, _ = fmt.Fprintf(w, "Materialized view  : %s\n", d.Artifact)
		_, _ = fmt.Fprintf(w, "Estimated rebuild  : %.4fs\n", d.EstimatedBuildCost.Seconds())
	}
	_, _ = fmt.Fprintf(w, "Time to next query : %.4fs\n", d.EstimatedTimeToNext.Seconds())
	_, _ = fmt.Fprintf(w, "Prefetch           : %v (%s)\n", d.ShouldPrefetch, d.Reason)
}

func init() {
	addHistoryFlags(decideCmd)
	decideCmd.Flags().StringVar(&decideCurrent, "current", "", "Query id currently being served")
	decideCmd.Flags().DurationVar(&decideGap, "gap", 5*time.Second, "Expected time until the next query")
	decideCmd.Flags().BoolVar(&decideRebuild, "rebuild", false, "Wait for the rebuild when the decision is affirmative")
	rootCmd.AddCommand(decideCmd)
}
