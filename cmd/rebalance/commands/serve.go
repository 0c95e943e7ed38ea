package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-rebalance/internal/api"
	"github.com/wonny/aegis-rebalance/internal/api/handlers"
	"github.com/wonny/aegis-rebalance/internal/cache"
	"github.com/wonny/aegis-rebalance/internal/metrics"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "API 서버 시작",
	Long: `무상태 REST API 서버를 시작합니다.
요청 본문(YAML/JSON)이 유일한 입력이며 아무것도 저장하지 않습니다.

Endpoints:
  GET  /health              - Health check
  GET  /metrics             - Prometheus (METRICS_ENABLED=true)
  POST /api/v1/rebalance    - 단일 실행
  POST /api/v1/batch        - what-if 시나리오 병렬 실행
  POST /api/v1/hash         - canonical hash / run id

Example:
  go run ./cmd/rebalance serve
  go run ./cmd/rebalance serve --port 9090`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트 (default PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort != "" {
		cfg.Port = servePort
	}

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.NewRecorder()
	}

	h := handlers.NewRebalanceHandler(newEngine(rec), cfg.BatchParallelism, cfg.BatchTimeout, log)
	if cfg.ReplayCacheSize > 0 {
		replay, err := cache.New(cfg.ReplayCacheSize, cfg.ReplayCacheTTL)
		if err != nil {
			return fmt.Errorf("replay cache: %w", err)
		}
		defer replay.Close()
		h.WithReplay(replay)
	}
	server := api.New(cfg, log, api.NewRouter(h, rec, cfg.APIRateLimit, log))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	PrintSuccess(fmt.Sprintf("Server running on http://localhost:%s", cfg.Port))
	PrintInfo("Press Ctrl+C to stop")

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
