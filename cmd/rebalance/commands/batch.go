package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-rebalance/internal/engine"
	"github.com/wonny/aegis-rebalance/internal/metrics"
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "이름 붙은 what-if 시나리오 병렬 실행",
	Long: `scenarios 맵의 각 요청을 병렬로 실행합니다.
결과는 시나리오 이름 순으로 출력됩니다 (실행 순서와 무관).

Example:
  go run ./cmd/rebalance batch -f scenarios.yaml
  go run ./cmd/rebalance batch -f scenarios.yaml --parallel 8 --json
  go run ./cmd/rebalance batch -f scenarios.yaml --metrics`,
	RunE: runBatch,
}

var (
	batchFile     string
	batchParallel int
	batchJSON     bool
	batchMetrics  bool
)

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "batch file with a scenarios map")
	batchCmd.Flags().IntVar(&batchParallel, "parallel", 0, "max concurrent runs (default BATCH_PARALLELISM)")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print full results as JSON")
	batchCmd.Flags().BoolVar(&batchMetrics, "metrics", false, "print Prometheus metrics after the runs")
}

func runBatch(cmd *cobra.Command, args []string) error {
	if batchFile == "" {
		return fmt.Errorf("batch file is required (-f)")
	}
	scenarios, err := engine.LoadBatch(batchFile)
	if err != nil {
		return err
	}

	parallel := batchParallel
	if parallel <= 0 {
		parallel = cfg.BatchParallelism
	}

	var rec *metrics.Recorder
	if cfg.MetricsEnabled || batchMetrics {
		rec = metrics.NewRecorder()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.BatchTimeout)
	defer cancel()

	log.WithFields(map[string]interface{}{
		"scenarios": len(scenarios),
		"parallel":  parallel,
	}).Info("batch started")

	results, err := newEngine(rec).RunBatch(ctx, scenarios, parallel)
	if err != nil {
		log.WithError(err).Warn("batch interrupted")
	}

	if batchJSON {
		if err := writeJSON(os.Stdout, results, true); err != nil {
			return err
		}
	} else {
		PrintBatchSummary(os.Stdout, results)
	}

	if batchMetrics && rec != nil {
		fmt.Println()
		if err := rec.WriteText(os.Stdout); err != nil {
			return err
		}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	return err
}
