package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-rebalance/internal/engine"
)

// hashCmd prints the canonical hash used for idempotent replay
var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "요청의 canonical hash / run id 출력",
	Long: `동일 입력 → 동일 hash. 외부 멱등성 캐시의 키로 사용합니다.

Example:
  go run ./cmd/rebalance hash -f request.yaml`,
	RunE: runHash,
}

var (
	hashFile    string
	hashOptions string
)

func init() {
	rootCmd.AddCommand(hashCmd)

	hashCmd.Flags().StringVarP(&hashFile, "file", "f", "", "request file (YAML or JSON)")
	hashCmd.Flags().StringVar(&hashOptions, "options", "", "EngineOptions file overriding the request's options")
}

func runHash(cmd *cobra.Command, args []string) error {
	req, err := loadRequest(hashFile, hashOptions)
	if err != nil {
		return err
	}

	hash, err := engine.CanonicalHash(*req)
	if err != nil {
		return err
	}
	runID, err := engine.RunID(*req)
	if err != nil {
		return err
	}

	PrintKeyValue("hash", hash, 6)
	PrintKeyValue("run_id", runID, 6)
	fmt.Println()
	return nil
}
