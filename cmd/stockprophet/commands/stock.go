package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/crawler"
	"github.com/stockprophet/backend/internal/export"
)

// stockCmd groups the crawl and export commands
var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "종목/일봉/재무제표 수집",
	Long: `TWSE, TPEx, MOPS 에서 데이터를 수집합니다.

Subcommands:
  build         - 상장목록과 일봉 (--period: 주봉/월봉 집계)
  fundamentals  - 재무제표와 월營收
  reduction     - 減資 피드
  patch         - 단일 종목 재무제표 재수집
  export        - 봉 데이터를 Parquet 으로 저장`,
}

var (
	stockMarket string
	stockFrom   string
	stockTo     string
	stockPeriod bool

	fundIncome  bool
	fundBalance bool
	fundRevenue bool

	patchCode string
	patchKind string

	exportCodes  []string
	exportPeriod string
	exportOut    string
)

var (
	stockBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "상장목록/일봉 수집 또는 주봉/월봉 집계",
		Example: `  go run ./cmd/stockprophet stock build --market all
  go run ./cmd/stockprophet stock build --market otc --from 2024-01-02 --to 2024-01-31
  go run ./cmd/stockprophet stock build --period`,
		RunE: runStockBuild,
	}

	stockFundamentalsCmd = &cobra.Command{
		Use:   "fundamentals",
		Short: "재무제표/월營收 수집 (플래그가 없으면 전부)",
		RunE:  runStockFundamentals,
	}

	stockReductionCmd = &cobra.Command{
		Use:   "reduction",
		Short: "減資 피드 수집",
		RunE:  runStockReduction,
	}

	stockPatchCmd = &cobra.Command{
		Use:     "patch",
		Short:   "단일 종목 재무제표 덮어쓰기",
		Example: `  go run ./cmd/stockprophet stock patch --code 2330 --kind income --from 2022-01-01`,
		RunE:    runStockPatch,
	}

	stockExportCmd = &cobra.Command{
		Use:     "export",
		Short:   "봉 데이터를 Parquet 파일로 저장",
		Example: `  go run ./cmd/stockprophet stock export --code 2330 --code 2317 --period weekly --out tw.parquet`,
		RunE:    runStockExport,
	}
)

func init() {
	rootCmd.AddCommand(stockCmd)
	stockCmd.AddCommand(stockBuildCmd, stockFundamentalsCmd, stockReductionCmd, stockPatchCmd, stockExportCmd)

	for _, c := range []*cobra.Command{stockBuildCmd, stockFundamentalsCmd, stockPatchCmd, stockExportCmd} {
		c.Flags().StringVar(&stockFrom, "from", "", "시작일 YYYY-MM-DD (기본: 저장된 진행 지점)")
		c.Flags().StringVar(&stockTo, "to", "", "종료일 YYYY-MM-DD (기본: 최근 거래일)")
	}
	stockBuildCmd.Flags().StringVar(&stockMarket, "market", "all", "tse|otc|all")
	stockBuildCmd.Flags().BoolVar(&stockPeriod, "period", false, "일봉으로 주봉/월봉 집계")

	stockFundamentalsCmd.Flags().BoolVar(&fundIncome, "income", false, "損益表")
	stockFundamentalsCmd.Flags().BoolVar(&fundBalance, "balance", false, "資產負債表")
	stockFundamentalsCmd.Flags().BoolVar(&fundRevenue, "revenue", false, "月營收")

	stockPatchCmd.Flags().StringVar(&patchCode, "code", "", "종목 코드")
	stockPatchCmd.Flags().StringVar(&patchKind, "kind", "", "income|balance")
	stockPatchCmd.MarkFlagRequired("code")
	stockPatchCmd.MarkFlagRequired("kind")

	stockExportCmd.Flags().StringSliceVar(&exportCodes, "code", nil, "종목 코드 (반복 가능, 없으면 --market 전체)")
	stockExportCmd.Flags().StringVar(&stockMarket, "market", "", "tse|otc (기본: 전체)")
	stockExportCmd.Flags().StringVar(&exportPeriod, "period", "daily", "daily|weekly|monthly")
	stockExportCmd.Flags().StringVar(&exportOut, "out", "", "출력 Parquet 파일")
	stockExportCmd.MarkFlagRequired("out")
}

// signalContext is cancelled on Ctrl+C so a crawl stops between units
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func window() (crawler.Window, error) {
	from, err := parseDate("from", stockFrom)
	if err != nil {
		return crawler.Window{}, err
	}
	to, err := parseDate("to", stockTo)
	if err != nil {
		return crawler.Window{}, err
	}
	return crawler.Window{Start: from, End: to}, nil
}

func runStockBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	markets, err := parseMarkets(stockMarket)
	if err != nil {
		return err
	}
	w, err := window()
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

	tasks := make([]crawler.Task, 0, len(markets))
	for _, m := range markets {
		src, err := a.sources.Snapshot(m)
		if err != nil {
			return err
		}
		task, err := crawler.NewMarketTask(src, a.store, a.lock, holidays, a.clock, a.log,
			crawler.MarketOptions{Window: w, BuildPeriods: stockPeriod})
		if err != nil {
			return err
		}
		tasks = append(tasks, task)
	}
	return runTasks(ctx, cmd.OutOrStdout(), a, "Stock Build", tasks...)
}

func runStockFundamentals(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	w, err := window()
	if err != nil {
		return err
	}
	opts := crawler.FundamentalOptions{Window: w, Income: fundIncome, Balance: fundBalance, Revenue: fundRevenue}
	if !opts.Income && !opts.Balance && !opts.Revenue {
		opts.Income, opts.Balance, opts.Revenue = true, true, true
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

	task, err := crawler.NewFundamentalTask(a.sources.MOPS, a.store, a.lock, holidays, a.clock, a.log, opts)
	if err != nil {
		return err
	}
	return runTasks(ctx, cmd.OutOrStdout(), a, "Stock Fundamentals", task)
}

func runStockReduction(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	task := crawler.NewReductionTask(a.sources.Reductions(), a.store, a.clock, a.log)
	return runTasks(ctx, cmd.OutOrStdout(), a, "Capital Reductions", task)
}

func runStockPatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	kind, err := crawler.ParseStatementKind(patchKind)
	if err != nil {
		return err
	}
	w, err := window()
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

	task, err := crawler.NewFundamentalTask(a.sources.MOPS, a.store, a.lock, holidays, a.clock, a.log, crawler.FundamentalOptions{Window: w})
	if err != nil {
		return err
	}
	res, err := task.PatchStatements(ctx, patchCode, kind)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	PrintHeader(out, "Stock Patch", [][2]string{
		{"Code", patchCode},
		{"Kind", string(kind)},
		{"Written", strconv.Itoa(res.Created)},
		{"Lost", strconv.Itoa(res.Lost)},
	})
	if losses := task.Losses(); len(losses) > 0 {
		printLosses(out, losses)
		return nil
	}
	PrintSuccess(out, "Patch completed")
	return nil
}

func runStockExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	market, err := parseMarket(stockMarket)
	if err != nil {
		return err
	}
	period, err := contracts.ParsePeriod(exportPeriod)
	if err != nil {
		return err
	}
	w, err := window()
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := export.NewExporter(a.store, a.log).Export(ctx, exportOut, export.Query{
		Codes:  exportCodes,
		Market: market,
		Period: period,
		From:   w.Start,
		To:     w.End,
	})
	if err != nil {
		return err
	}
	PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("%d %s rows written to %s", n, period, exportOut))
	return nil
}

// runTasks runs crawl tasks concurrently and prints one line per task
func runTasks(ctx context.Context, out io.Writer, a *app, title string, tasks ...crawler.Task) error {
	res := crawler.NewRunner(a.log).Run(ctx, tasks...)

	PrintHeader(out, title, [][2]string{{"Run ID", res.RunID}})
	rows := make([][]string, 0, len(res.Outcomes))
	var losses []contracts.Loss
	for _, o := range res.Outcomes {
		status := "ok"
		if o.Err != nil {
			status = "failed: " + o.Err.Error()
		}
		rows = append(rows, []string{o.Task, o.Duration.Round(time.Millisecond).String(), summarize(o.Report), status})
		losses = append(losses, reportLosses(o.Report)...)
	}
	PrintTable(out, []string{"Task", "Duration", "Result", "Status"}, rows)

	if len(losses) > 0 {
		printLosses(out, losses)
	}
	if err := res.Err(); err != nil {
		return err
	}
	PrintSuccess(out, title+" completed")
	return nil
}

// summarize renders the counters of a task report on one line
func summarize(report interface{}) string {
	switch r := report.(type) {
	case *crawler.MarketReport:
		if r == nil {
			return "-"
		}
		if len(r.Periods) > 0 {
			var s string
			for _, p := range r.Periods {
				s += fmt.Sprintf("%s %d buckets ", p.Period, p.Buckets)
			}
			return s
		}
		if r.Daily == nil {
			return "-"
		}
		return fmt.Sprintf("%s~%s dates %d inserted %d lost %d",
			calendar.FormatDate(r.Start), calendar.FormatDate(r.End), r.Daily.Dates, r.Daily.Inserted, r.Daily.Lost)
	case *crawler.FundamentalReport:
		if r == nil {
			return "-"
		}
		var s string
		for _, sr := range []*crawler.StatementResult{r.Balance, r.Income} {
			if sr != nil {
				s += fmt.Sprintf("%s +%d ", sr.Kind, sr.Created)
			}
		}
		if r.Revenue != nil {
			s += fmt.Sprintf("revenue +%d", r.Revenue.Created)
		}
		return s
	case *crawler.ReductionReport:
		if r == nil {
			return "-"
		}
		return fmt.Sprintf("events %d created %d unknown %d", r.Events, r.Created, r.Unknown)
	default:
		return "-"
	}
}

func reportLosses(report interface{}) []contracts.Loss {
	switch r := report.(type) {
	case *crawler.MarketReport:
		if r != nil {
			return r.Losses
		}
	case *crawler.FundamentalReport:
		if r != nil {
			return r.Losses
		}
	case *crawler.ReductionReport:
		if r != nil {
			return r.Losses
		}
	}
	return nil
}

func printLosses(out io.Writer, losses []contracts.Loss) {
	PrintWarning(out, fmt.Sprintf("%d units could not be fetched, run the command again:", len(losses)))
	for _, l := range losses {
		fmt.Fprintf(out, "   • %s\n", l)
	}
}
