package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stockprophet",
	Short: "StockProphet - 台股 크롤러 / 백테스터 / 스크리너",
	Long: `StockProphet Unified CLI

TWSE/TPEx 일봉과 MOPS 재무제표를 수집하고
기술적 지표 스크리닝, 백테스팅, R1 추천을 실행합니다.

Usage:
  go run ./cmd/stockprophet [command]

Examples:
  go run ./cmd/stockprophet stock build --market all
  go run ./cmd/stockprophet ta get macd --market tse
  go run ./cmd/stockprophet sim kdj --code 2330 --start 2023-01-01 --end 2023-12-31
  go run ./cmd/stockprophet recommender r1 --market tse
  go run ./cmd/stockprophet api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML config file (default $STOCKPROPHET_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
