package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inference-sim/mvprefetch/prefetch"
)

var predictCurrent string // Only print the prediction for this operation

// predictCmd prints the transition model learned from a query log
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Learn transitions from a query log and print next-query predictions",
	Run: func(cmd *cobra.Command, args []string) {
		model := prefetch.BuildTransitionModel(loadHistory(historyPath))
		sources := model.Sources()
		if predictCurrent != "" {
			sources = []prefetch.OperationID{prefetch.OperationID(predictCurrent)}
		}
		printPredictions(os.Stdout, model, sources)
	},
}

// printPredictions writes one line per source: its prediction, confidence
// and the successor counts in first-seen order.
func printPredictions(w io.Writer, model *prefetch.TransitionModel, sources []prefetch.OperationID) {
	_, _ = fmt.Fprintf(w, "Transitions learned from %d queries:\n", model.Events())
	for _, src := range sources {
		next, ok := model.PredictNext(src)
		if !ok {
			_, _ = fmt.Fprintf(w, "  %-6s -> ?     (no history)\n", src)
			continue
		}
		counts := make([]string, 0)
		for _, s := range model.Transitions(src) {
			counts = append(counts, fmt.Sprintf("%s:%d", s.Operation, s.Count))
		}
		_, _ = fmt.Fprintf(w, "  %-6s -> %-6s confidence=%.2f  [%s]\n",
			src, next, model.Confidence(src, next), strings.Join(counts, " "))
	}
}

func init() {
	predictCmd.Flags().StringVar(&historyPath, "history", "query_log.csv", "Query log CSV (timestamp,query_id)")
	predictCmd.Flags().StringVar(&predictCurrent, "current", "", "Only predict the successor of this query id")
	rootCmd.AddCommand(predictCmd)
}
