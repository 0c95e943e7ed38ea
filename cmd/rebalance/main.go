package main

import (
	"os"

	"github.com/wonny/aegis-rebalance/cmd/rebalance/commands"
)

// main is the entry point for the rebalance CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/rebalance [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
