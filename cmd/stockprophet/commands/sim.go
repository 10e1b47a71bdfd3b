package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockprophet/backend/internal/backtest"
	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/pkg/config"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "백테스팅 시뮬레이션",
	Long: `저장된 봉 데이터로 MACD/KDJ 전략을 재생합니다.

--code 를 주면 단일 종목 거래 기록을, --all 이면 전 종목 랭킹을 출력합니다.`,
}

var (
	simCode       string
	simAll        bool
	simStart      string
	simEnd        string
	simPrincipal  int64
	simInitVolume int64
	simWeekly     bool
	simMonthly    bool
	simROILimit   float64
	simNDay       int
	simScalar     int
	simTop        int
	simLimitPrice float64
	simWorkers    int
	simJSON       bool
)

var (
	simMACDCmd = &cobra.Command{
		Use:   "macd",
		Short: "MACD 전략",
		Example: `  go run ./cmd/stockprophet sim macd --code 2330 --start 2020-01-01 --end 2023-12-31
  go run ./cmd/stockprophet sim macd --all --weekly --top 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, func(cfg config.SimulationConfig) backtest.Strategy {
				return backtest.NewMACDStrategy(orDefault(simNDay, cfg.MACDNDay))
			})
		},
	}
	simKDJCmd = &cobra.Command{
		Use:   "kdj",
		Short: "KDJ 전략",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, func(cfg config.SimulationConfig) backtest.Strategy {
				return backtest.NewKDJStrategy(orDefault(simNDay, cfg.KDJNDay), orDefault(simScalar, cfg.KDJScalar))
			})
		},
	}
)

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.AddCommand(simMACDCmd, simKDJCmd)

	f := simCmd.PersistentFlags()
	f.StringVar(&simCode, "code", "", "종목 코드")
	f.BoolVar(&simAll, "all", false, "전 종목 랭킹")
	f.StringVar(&simStart, "start", "", "시작일 YYYY-MM-DD (기본: 1년 전)")
	f.StringVar(&simEnd, "end", "", "종료일 YYYY-MM-DD (기본: 최근 거래일)")
	f.Int64Var(&simPrincipal, "principal", 0, "원금 (기본: 설정값)")
	f.Int64Var(&simInitVolume, "init-vol", 0, "첫 매수 張 수 (기본: 설정값)")
	f.BoolVar(&simWeekly, "weekly", false, "주봉 기준")
	f.BoolVar(&simMonthly, "monthly", false, "월봉 기준")
	f.Float64Var(&simROILimit, "roi-limit", 0, "손절 ROI(%) (기본: 설정값)")
	f.IntVar(&simNDay, "n-day", 0, "지표 기간 일수 (기본: 설정값)")
	f.IntVar(&simScalar, "scalar", 0, "KDJ RSV 배수 (기본: 설정값)")
	f.IntVar(&simTop, "top", 0, "랭킹 개수 (기본: 설정값)")
	f.Float64Var(&simLimitPrice, "limit-price", 0, "종가 상한 (기본: 설정값)")
	f.IntVar(&simWorkers, "workers", backtest.DefaultWorkers, "동시 시뮬레이션 수")
	f.BoolVar(&simJSON, "json", false, "JSON 으로 출력")
	simCmd.MarkFlagsMutuallyExclusive("code", "all")
	simCmd.MarkFlagsOneRequired("code", "all")
	simCmd.MarkFlagsMutuallyExclusive("weekly", "monthly")
}

// orDefault returns v, or def when the flag was left at zero
func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func runSimulation(cmd *cobra.Command, newStrategy func(config.SimulationConfig) backtest.Strategy) error {
	ctx, cancel := signalContext()
	defer cancel()

	start, err := parseDate("start", simStart)
	if err != nil {
		return err
	}
	end, err := parseDate("end", simEnd)
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
	if end.IsZero() {
		end = holidays.LatestTradingDate(a.clock.Now())
	}
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}

	p := backtest.DefaultRankParams(a.cfg.Simulation, start, end)
	p.Weekly, p.Monthly = simWeekly, simMonthly
	if simPrincipal > 0 {
		p.Principal = simPrincipal
	}
	if simInitVolume > 0 {
		p.InitVolume = simInitVolume
	}
	if cmd.Flags().Changed("roi-limit") {
		p.ROILimit = simROILimit
	}
	if simTop > 0 {
		p.TopSize = simTop
	}
	if simLimitPrice > 0 {
		p.LimitPrice = simLimitPrice
	}

	strategy := newStrategy(a.cfg.Simulation)
	sim := backtest.NewSimulator(a.store, holidays, a.log)
	out := cmd.OutOrStdout()

	if simCode != "" {
		res, err := sim.Run(ctx, simCode, strategy, p.Params)
		if err != nil {
			return err
		}
		if simJSON {
			return printJSON(out, res)
		}
		printSimulation(out, res)
		return nil
	}

	started := time.Now()
	res, err := backtest.NewEngine(sim, simWorkers, a.log).Rank(ctx, strategy, p)
	if err != nil {
		return err
	}
	if simJSON {
		return printJSON(out, res)
	}
	printRanking(out, res, time.Since(started))
	return nil
}

func printSimulation(out io.Writer, res *backtest.Result) {
	p := res.Params
	PrintHeader(out, fmt.Sprintf("Simulation: %s(%s) %s", res.Name, res.Code, res.Strategy), [][2]string{
		{"Window", calendar.FormatDate(p.Start) + " ~ " + calendar.FormatDate(p.End)},
		{"Period", string(p.Period())},
		{"Principal", strconv.FormatInt(p.Principal, 10)},
		{"Init Volume", strconv.FormatInt(p.InitVolume, 10) + " 張"},
	})

	rows := make([][]string, 0, len(res.Records))
	for _, r := range res.Records {
		note := ""
		if r.Reduction {
			note = "減資"
		}
		rows = append(rows, []string{
			calendar.FormatDate(r.Date),
			formatFloat(r.BuyPrice),
			formatInt(r.BuyVolume),
			formatFloat(r.SellPrice),
			formatInt(r.SellVolume),
			strconv.FormatFloat(r.AvgPrice, 'f', 2, 64),
			strconv.FormatInt(r.TotalVolume, 10),
			strconv.FormatInt(r.Cash, 10),
			strconv.FormatInt(r.TotalAssets, 10),
			formatFloat(r.ROI),
			note,
		})
	}
	if len(rows) == 0 {
		PrintWarning(out, "No trades in the window")
	} else {
		PrintTable(out, []string{"Date", "Buy", "Vol", "Sell", "Vol", "Avg", "Shares", "Cash", "Assets", "ROI%", ""}, rows)
	}

	s := res.Summary
	fmt.Fprintln(out)
	PrintSeparator(out)
	PrintKeyValue(out, "Final Assets", strconv.FormatInt(s.FinalAssets, 10), 14)
	PrintKeyValue(out, "Return", fmt.Sprintf("%.2f%%", s.ReturnPct), 14)
	PrintKeyValue(out, "Peak Assets", strconv.FormatInt(s.PeakAssets, 10), 14)
	PrintKeyValue(out, "Max Drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdown), 14)
	PrintKeyValue(out, "Volatility", fmt.Sprintf("%.2f%%", s.Volatility), 14)
	PrintKeyValue(out, "Trades", fmt.Sprintf("%d (buy %d / sell %d / 減資 %d)", s.Trades, s.Buys, s.Sells, s.Reductions), 14)
	PrintSeparator(out)
}

func printRanking(out io.Writer, res *backtest.RankResult, took time.Duration) {
	p := res.Params
	PrintHeader(out, "Ranking: "+res.Strategy, [][2]string{
		{"Window", calendar.FormatDate(p.Start) + " ~ " + calendar.FormatDate(p.End)},
		{"Period", string(p.Period())},
		{"Principal", strconv.FormatInt(p.Principal, 10)},
		{"Limit Price", strconv.FormatFloat(p.LimitPrice, 'f', -1, 64)},
		{"Evaluated", fmt.Sprintf("%d (excluded %d)", res.Evaluated, res.Excluded)},
		{"Took", took.Round(time.Second).String()},
	})
	if len(res.Entries) == 0 {
		PrintWarning(out, "No stock ended above the principal")
		return
	}
	rows := make([][]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		rows = append(rows, []string{
			strconv.Itoa(e.Rank),
			e.Label(),
			strconv.FormatFloat(e.Price, 'f', 2, 64),
			strconv.FormatInt(e.TotalAssets, 10),
			fmt.Sprintf("%+.2f%%", e.DiffPct),
		})
	}
	PrintTable(out, []string{"#", "Stock", "Price", "Assets", "Diff"}, rows)
}
