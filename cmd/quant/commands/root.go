package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	engineConfig string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis Timeline - 유니버스 스냅샷/변화 추적 엔진",
	Long: `Aegis Timeline Unified CLI

유니버스 구성의 시점별 스냅샷을 저장하고,
회전율과 구성 변화를 추적하며, 과거 시점 구성을 조회합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant api
  go run ./cmd/quant migrate up
  go run ./cmd/quant universe create --owner me --name "KR Large Cap" --weight 005930=1
  go run ./cmd/quant snapshot create --universe <id>
  go run ./cmd/quant backfill --universe <id> --start 2024-01-01 --end 2024-06-30
  go run ./cmd/quant scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&engineConfig, "engine-config", "", "엔진 튜닝 YAML (기본: ENGINE_CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
