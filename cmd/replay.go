package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/mvprefetch/prefetch/trace"
	"github.com/inference-sim/mvprefetch/prefetch/workload"
)

var (
	replayBaselineRuns int    // Executions per query when measuring the baseline
	replayOutDir       string // Directory for baselines.csv and smart_performance.csv
	replayCalibrate    bool   // Measure every view before replaying
	replayMetricsAddr  string // Serve Prometheus metrics on this address while replaying
)

// replayCmd benchmarks prefetching against a no-prefetch baseline
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a query log with prefetching and compare against a baseline",
	Run: func(cmd *cobra.Command, args []string) {
		if replayBaselineRuns < 0 {
			logrus.Fatalf("--baseline-runs must be non-negative, got %d", replayBaselineRuns)
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		bundle := loadConfig(configPath)
		events := loadHistory(historyPath)
		if err := os.MkdirAll(replayOutDir, 0o755); err != nil {
			logrus.Fatalf("Failed to create output directory: %v", err)
		}

		var reg *prometheus.Registry
		if replayMetricsAddr != "" {
			reg = prometheus.NewRegistry()
			stop := serveMetrics(replayMetricsAddr, reg)
			defer stop()
		}
		var registerer prometheus.Registerer
		if reg != nil {
			registerer = reg
		}
		e := newEngine(ctx, bundle, events, registerer)
		defer e.Close()

		if replayCalibrate {
			printCalibration(os.Stdout, e.orch.MeasureAll(ctx, bundle.Registry().Artifacts()))
		}

		var baselines []workload.BaselineRecord
		if replayBaselineRuns > 0 {
			baselines = workload.MeasureBaseline(ctx, e.store, bundle.Operations(), replayBaselineRuns)
			path := filepath.Join(replayOutDir, "baselines.csv")
			if err := workload.ExportBaselines(path, baselines); err != nil {
				e.fatalf("Failed to write baselines: %v", err)
			}
			logrus.Infof("Baseline results saved to %s", path)
		}

		records := workload.Replay(ctx, e.ctrl, e.store, events, e.trace)
		path := filepath.Join(replayOutDir, "smart_performance.csv")
		if err := workload.ExportReplay(path, records); err != nil {
			e.fatalf("Failed to write replay results: %v", err)
		}
		logrus.Infof("Prefetch results saved to %s", path)

		printReplaySummary(os.Stdout, workload.Summarize(baselines, records))
		if e.trace.Enabled() {
			printTraceSummary(os.Stdout, trace.Summarize(e.trace))
		}
	},
}

// serveMetrics exposes reg on addr/metrics. The returned func shuts the server down.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server failed: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printReplaySummary(w io.Writer, s workload.Summary) {
	_, _ = fmt.Fprintln(w, "=== Replay Summary ===")
	_, _ = fmt.Fprintf(w, "Average baseline runtime : %.4fs\n", s.BaselineMean.Seconds())
	_, _ = fmt.Fprintf(w, "Average prefetch runtime : %.4fs\n", s.ReplayMean.Seconds())
	if s.Speedup > 0 {
		_, _ = fmt.Fprintf(w, "Speedup                  : %.2fx\n", s.Speedup)
	} else {
		_, _ = fmt.Fprintln(w, "Speedup                  : n/a")
	}
	_, _ = fmt.Fprintf(w, "Prefetched               : %d\n", s.Prefetched)
	if s.Failed > 0 {
		_, _ = fmt.Fprintf(w, "Failed executions        : %d\n", s.Failed)
	}
}

func printTraceSummary(w io.Writer, s *trace.TraceSummary) {
	data, err := yaml.Marshal(s)
	if err != nil {
		logrus.Warnf("encoding trace summary: %v", err)
		return
	}
	_, _ = fmt.Fprintln(w, "=== Decision Trace Summary ===")
	_, _ = w.Write(data)
}

func init() {
	addHistoryFlags(replayCmd)
	replayCmd.Flags().IntVar(&replayBaselineRuns, "baseline-runs", 3, "Executions per query for the baseline (0 skips it)")
	replayCmd.Flags().StringVar(&replayOutDir, "out-dir", ".", "Directory for baselines.csv and smart_performance.csv")
	replayCmd.Flags().BoolVar(&replayCalibrate, "calibrate", true, "Measure every view before replaying")
	replayCmd.Flags().StringVar(&replayMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(replayCmd)
}
