package commands

import (
	"github.com/spf13/cobra"

	"github.com/stockprophet/backend/internal/api"
)

var apiPort string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "조회용 REST API 서버 실행",
	Long: `저장된 종목/봉/재무비율/추천을 JSON 으로 제공합니다.

Endpoints:
  GET /health
  GET /api/stocks?market=tse&alive=true
  GET /api/stocks/{code}/history?period=daily&from=&to=
  GET /api/stocks/{code}/ratios
  GET /api/recommendations?date=`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&apiPort, "port", "", "listen port (기본: API_PORT)")
}

func runAPI(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if apiPort != "" {
		a.cfg.API.Port = apiPort
	}

	router := api.NewRouter(api.NewHandler(a.store, a.log), a.db, a.log)
	return api.New(a.cfg, a.log, router).Run(ctx)
}
