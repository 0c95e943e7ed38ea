package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-rebalance/internal/engine"
	"github.com/wonny/aegis-rebalance/internal/metrics"
	"github.com/wonny/aegis-rebalance/pkg/config"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

var (
	// Global flags
	verbose   bool
	logFormat string

	// 모든 커맨드가 공유 (PersistentPreRunE에서 초기화)
	cfg *config.Config
	log *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Deterministic portfolio rebalance engine",
	Long: `Aegis Rebalance CLI

포트폴리오 스냅샷 + 시장 데이터 + 모델 → 매매 의도 + 판정.
S1 Valuation → S2 Universe → S3 Targets → (S4 Tax) → S5 Intents → S6 Simulation → S7 Gate

Usage:
  go run ./cmd/rebalance [command]

Examples:
  go run ./cmd/rebalance run -f request.yaml
  go run ./cmd/rebalance run -f request.yaml --query '$.gate'
  go run ./cmd/rebalance batch -f scenarios.yaml --metrics
  go run ./cmd/rebalance options defaults`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		log = logger.New(cfg)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging (stage summaries)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override: json, console, pretty")
}

// newEngine builds an engine wired to the process logger (and metrics when enabled)
func newEngine(rec *metrics.Recorder) *engine.Engine {
	opts := []engine.Option{engine.WithLogger(log)}
	if rec != nil {
		opts = append(opts, engine.WithMetrics(rec))
	}
	return engine.New(opts...)
}

// loadRequest reads the request file and applies an options override file
func loadRequest(path, optionsPath string) (*engine.Request, error) {
	if path == "" {
		return nil, fmt.Errorf("request file is required (-f)")
	}
	req, err := engine.LoadRequest(path)
	if err != nil {
		return nil, err
	}

	if optionsPath == "" {
		optionsPath = cfg.OptionsFile
	}
	if optionsPath != "" {
		opts, err := loadOptions(optionsPath)
		if err != nil {
			return nil, err
		}
		req.Options = *opts
	}
	return req, nil
}
