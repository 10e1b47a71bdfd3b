package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/selection"
)

var (
	taCmd = &cobra.Command{
		Use:   "ta",
		Short: "기술적 지표 스크리닝",
	}
	taGetCmd = &cobra.Command{
		Use:   "get",
		Short: "기술적 매수 신호 종목 조회",
	}
	baCmd = &cobra.Command{
		Use:   "ba",
		Short: "재무 지표 스크리닝",
	}
	baGetCmd = &cobra.Command{
		Use:   "get",
		Short: "재무 조건 종목 조회",
	}
)

var (
	screenMarket  string
	screenWeekly  bool
	screenMonthly bool

	macdNDay   int
	macdFast   int
	macdSlow   int
	macdSignal int
	kdjScalar  int

	pbrMax     float64
	epsMin     float64
	opmMore    float64
	opmLess    float64
	balLiabs   int
	balAssets  int
	screenJSON bool
)

var (
	taMACDCmd = &cobra.Command{
		Use:     "macd",
		Short:   "MACD 매수 신호 (DIF/MACD 골든크로스)",
		Example: `  go run ./cmd/stockprophet ta get macd --market tse --weekly`,
		RunE:    runTAMACD,
	}
	taKDJCmd = &cobra.Command{
		Use:     "kdj",
		Short:   "KDJ 매수 신호 (K/D 골든크로스)",
		Example: `  go run ./cmd/stockprophet ta get kdj --market otc --scalar 3`,
		RunE:    runTAKDJ,
	}

	baPBRCmd = &cobra.Command{
		Use:   "pbr",
		Short: "PBR 이하 종목",
		RunE:  runBAPBR,
	}
	baEPSCmd = &cobra.Command{
		Use:   "eps",
		Short: "EPS 이상 종목",
		RunE:  runBAEPS,
	}
	baOPMCmd = &cobra.Command{
		Use:   "op_margin",
		Short: "영업이익률 구간 종목",
		RunE:  runBAOPM,
	}
	baBalanceCmd = &cobra.Command{
		Use:   "balance",
		Short: "부채 감소/자산 증가가 연속된 종목",
		RunE:  runBABalance,
	}
)

func init() {
	rootCmd.AddCommand(taCmd, baCmd)
	taCmd.AddCommand(taGetCmd)
	taGetCmd.AddCommand(taMACDCmd, taKDJCmd)
	baCmd.AddCommand(baGetCmd)
	baGetCmd.AddCommand(baPBRCmd, baEPSCmd, baOPMCmd, baBalanceCmd)

	for _, c := range []*cobra.Command{taGetCmd, baGetCmd} {
		c.PersistentFlags().StringVar(&screenMarket, "market", "", "tse|otc (기본: 전체)")
		c.PersistentFlags().BoolVar(&screenJSON, "json", false, "JSON 으로 출력")
	}
	for _, c := range []*cobra.Command{taMACDCmd, taKDJCmd} {
		c.Flags().BoolVar(&screenWeekly, "weekly", false, "주봉 기준")
		c.Flags().BoolVar(&screenMonthly, "monthly", false, "월봉 기준")
		c.MarkFlagsMutuallyExclusive("weekly", "monthly")
	}
	taMACDCmd.Flags().IntVar(&macdNDay, "n-day", 0, "조회 기간 일수 (기본: 설정값)")
	taMACDCmd.Flags().IntVar(&macdFast, "fast", 12, "fast EWMA")
	taMACDCmd.Flags().IntVar(&macdSlow, "slow", 26, "slow EWMA")
	taMACDCmd.Flags().IntVar(&macdSignal, "signal", 9, "signal EWMA")
	taKDJCmd.Flags().IntVar(&kdjScalar, "scalar", 0, "RSV 기간 배수 1~8 (기본: 설정값)")

	baPBRCmd.Flags().Float64Var(&pbrMax, "max", 1, "최대 PBR")
	baEPSCmd.Flags().Float64Var(&epsMin, "min", 0, "최소 EPS")
	baOPMCmd.Flags().Float64Var(&opmMore, "more", 0, "최소 영업이익률(%)")
	baOPMCmd.Flags().Float64Var(&opmLess, "less", 100, "최대 영업이익률(%)")
	baBalanceCmd.Flags().IntVar(&balLiabs, "liabs", 2, "부채 감소 연속 분기 수")
	baBalanceCmd.Flags().IntVar(&balAssets, "assets", 2, "자산 증가 연속 분기 수")
}

// withScreener builds a screener and runs scan with it
func withScreener(cmd *cobra.Command, title string, scan func(ctx context.Context, s *selection.Screener, a *app, market contracts.Market) ([]selection.Row, error)) error {
	ctx, cancel := signalContext()
	defer cancel()

	market, err := parseMarket(screenMarket)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	holidays, err := a.holidays(ctx)
	if err != nil {
		return err
	}

	s := selection.NewScreener(a.store, holidays, a.clock, a.log)
	rows, err := scan(ctx, s, a, market)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if screenJSON {
		return printJSON(out, rows)
	}
	marketLabel := string(market)
	if marketLabel == "" {
		marketLabel = "all"
	}
	PrintHeader(out, title, [][2]string{
		{"Market", marketLabel},
		{"Date", calendar.FormatDate(s.EvaluationDate())},
		{"Matches", strconv.Itoa(len(rows))},
	})
	printRows(out, rows)
	return nil
}

func runTAMACD(cmd *cobra.Command, args []string) error {
	return withScreener(cmd, "MACD Screen", func(ctx context.Context, s *selection.Screener, a *app, m contracts.Market) ([]selection.Row, error) {
		nDay := macdNDay
		if nDay == 0 {
			nDay = a.cfg.Simulation.MACDNDay
		}
		return s.MACDScan(ctx, selection.MACDQuery{
			Market:  m,
			NDay:    nDay,
			Weekly:  screenWeekly,
			Monthly: screenMonthly,
			Fast:    macdFast,
			Slow:    macdSlow,
			Signal:  macdSignal,
		})
	})
}

func runTAKDJ(cmd *cobra.Command, args []string) error {
	return withScreener(cmd, "KDJ Screen", func(ctx context.Context, s *selection.Screener, a *app, m contracts.Market) ([]selection.Row, error) {
		scalar := kdjScalar
		if scalar == 0 {
			scalar = a.cfg.Simulation.KDJScalar
		}
		return s.KDJScan(ctx, selection.KDJQuery{Market: m, Weekly: screenWeekly, Monthly: screenMonthly, Scalar: scalar})
	})
}

func runBAPBR(cmd *cobra.Command, args []string) error {
	return withScreener(cmd, fmt.Sprintf("PBR <= %g", pbrMax), func(ctx context.Context, s *selection.Screener, _ *app, m contracts.Market) ([]selection.Row, error) {
		return s.PBRScan(ctx, m, pbrMax)
	})
}

func runBAEPS(cmd *cobra.Command, args []string) error {
	return withScreener(cmd, fmt.Sprintf("EPS >= %g", epsMin), func(ctx context.Context, s *selection.Screener, _ *app, m contracts.Market) ([]selection.Row, error) {
		return s.EPSScan(ctx, m, epsMin)
	})
}

func runBAOPM(cmd *cobra.Command, args []string) error {
	return withScreener(cmd, fmt.Sprintf("%g%% <= OPM <= %g%%", opmMore, opmLess), func(ctx context.Context, s *selection.Screener, _ *app, m contracts.Market) ([]selection.Row, error) {
		return s.OperatingMarginScan(ctx, m, opmMore, opmLess)
	})
}

func runBABalance(cmd *cobra.Command, args []string) error {
	return withScreener(cmd, "Balance Trend", func(ctx context.Context, s *selection.Screener, _ *app, m contracts.Market) ([]selection.Row, error) {
		return s.BalanceScan(ctx, m, balLiabs, balAssets)
	})
}

func printRows(out io.Writer, rows []selection.Row) {
	if len(rows) == 0 {
		PrintWarning(out, "No stocks matched")
		return
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{
			r.Label(),
			strconv.FormatFloat(r.Close, 'f', 2, 64),
			formatFloat(r.Change),
			strconv.FormatInt(r.Lots, 10),
			formatFloat(r.PBR),
			formatFloat(r.EPS),
			formatFloat(r.OperatingMargin),
			formatFloat(r.GrossMargin),
		})
	}
	PrintTable(out, []string{"Stock", "Close", "Change", "Lots", "PBR", "EPS", "OPM%", "GM%"}, table)
}
