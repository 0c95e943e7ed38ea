package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "단일 리밸런싱 실행",
	Long: `요청 파일(YAML/JSON)로 파이프라인을 한 번 실행하고 Outcome을 출력합니다.

종료 코드:
  0  READY / PENDING_REVIEW / BLOCKED (정상 계산)
  1  입력 오류 또는 내부 불변식 위반

Example:
  go run ./cmd/rebalance run -f request.yaml
  go run ./cmd/rebalance run -f request.yaml --options strict.yaml --pretty
  go run ./cmd/rebalance run -f request.yaml --query '$.intents[*].id'
  go run ./cmd/rebalance run -f request.yaml --summary`,
	RunE: runRun,
}

var (
	runFile    string
	runOptions string
	runQuery   string
	runPretty  bool
	runSummary bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "request file (YAML or JSON)")
	runCmd.Flags().StringVar(&runOptions, "options", "", "EngineOptions file overriding the request's options")
	runCmd.Flags().StringVar(&runQuery, "query", "", "JSONPath expression applied to the outcome")
	runCmd.Flags().BoolVar(&runPretty, "pretty", false, "indent JSON output")
	runCmd.Flags().BoolVar(&runSummary, "summary", false, "print a human readable summary instead of JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	req, err := loadRequest(runFile, runOptions)
	if err != nil {
		return err
	}

	out, runErr := newEngine(nil).Run(*req)
	if out == nil {
		return runErr
	}

	// 불변식 위반이어도 BLOCKED Outcome은 출력 후 에러 반환
	if err := printOutcome(out); err != nil {
		return err
	}
	return runErr
}

func printOutcome(out *contracts.Outcome) error {
	switch {
	case runSummary:
		PrintOutcomeSummary(os.Stdout, out)
		return nil
	case runQuery != "":
		return writeQuery(os.Stdout, out, runQuery, runPretty)
	default:
		return writeJSON(os.Stdout, out, runPretty)
	}
}
