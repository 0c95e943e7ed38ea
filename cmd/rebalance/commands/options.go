package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-rebalance/internal/options"
)

// optionsCmd represents the options command
var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "EngineOptions 검증 / 기본값 출력",
	Long: `EngineOptions 파일을 관리합니다.

Example:
  go run ./cmd/rebalance options defaults > options.yaml
  go run ./cmd/rebalance options validate options.yaml`,
}

var (
	optionsValidateCmd = &cobra.Command{
		Use:   "validate [file]",
		Short: "옵션 파일 검증 (알 수 없는 필드 거부)",
		Args:  cobra.ExactArgs(1),
		RunE:  runOptionsValidate,
	}

	optionsDefaultsCmd = &cobra.Command{
		Use:   "defaults",
		Short: "기본 옵션을 YAML로 출력",
		RunE:  runOptionsDefaults,
	}
)

func init() {
	rootCmd.AddCommand(optionsCmd)
	optionsCmd.AddCommand(optionsValidateCmd)
	optionsCmd.AddCommand(optionsDefaultsCmd)
}

func runOptionsValidate(cmd *cobra.Command, args []string) error {
	opts, err := loadOptions(args[0])
	if err != nil {
		PrintError(err.Error())
		return err
	}

	hash, err := options.Hash(opts)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("%s is valid", args[0]))
	PrintKeyValue("target_method", string(opts.TargetMethod), 14)
	PrintKeyValue("tax_aware", fmt.Sprintf("%t", opts.TaxAware), 14)
	PrintKeyValue("settlement", fmt.Sprintf("%t", opts.SettlementAware), 14)
	PrintKeyValue("hash", hash, 14)

	for _, w := range options.Warn(opts) {
		PrintWarning(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
	return nil
}

func runOptionsDefaults(cmd *cobra.Command, args []string) error {
	defaults := options.Defaults()
	data, err := options.Marshal(&defaults)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func loadOptions(path string) (*options.EngineOptions, error) {
	opts, _, err := options.Load(path)
	if err != nil {
		return nil, fmt.Errorf("options %s: %w", path, err)
	}
	return opts, nil
}
