package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/selection"
)

var recommenderCmd = &cobra.Command{
	Use:   "recommender",
	Short: "추천 종목",
}

var (
	recMarket string
	recPBR    float64
	recOPM    float64
	recEPS    float64
	recLots   float64
	recDate   string
	recFrom   string
	recTo     string
	recSave   bool
)

var recommenderR1Cmd = &cobra.Command{
	Use:   "r1",
	Short: "R1 추천 (PBR/영업이익률/EPS + MACD/KDJ/거래량)",
	Long: `R1 조건을 통과한 종목을 출력합니다.

--save 를 주면 --from ~ --to 의 거래일마다 추천을 계산해 저장합니다.`,
	Example: `  go run ./cmd/stockprophet recommender r1 --market tse
  go run ./cmd/stockprophet recommender r1 --market otc --save --from 2024-01-02 --to 2024-01-31`,
	RunE: runRecommenderR1,
}

func init() {
	rootCmd.AddCommand(recommenderCmd)
	recommenderCmd.AddCommand(recommenderR1Cmd)

	f := recommenderR1Cmd.Flags()
	f.StringVar(&recMarket, "market", "tse", "tse|otc|all")
	f.Float64Var(&recPBR, "pbr", 0, "최대 PBR (기본: 설정값)")
	f.Float64Var(&recOPM, "opm", 0, "최소 영업이익률(%) (기본: 설정값)")
	f.Float64Var(&recEPS, "eps", 0, "최소 EPS (기본: 설정값)")
	f.Float64Var(&recLots, "lots", 0, "최소 5일 평균 거래량(張) (기본: 설정값)")
	f.StringVar(&recDate, "date", "", "평가일 YYYY-MM-DD (기본: 최근 거래일)")
	f.StringVar(&recFrom, "from", "", "저장 시작일 (기본: --to)")
	f.StringVar(&recTo, "to", "", "저장 종료일 (기본: 최근 거래일)")
	f.BoolVar(&recSave, "save", false, "추천 결과 저장")
	recommenderR1Cmd.MarkFlagsMutuallyExclusive("date", "save")
}

func runRecommenderR1(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	markets, err := parseMarkets(recMarket)
	if err != nil {
		return err
	}
	date, err := parseDate("date", recDate)
	if err != nil {
		return err
	}
	from, err := parseDate("from", recFrom)
	if err != nil {
		return err
	}
	to, err := parseDate("to", recTo)
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

	t := selection.DefaultR1Thresholds(a.cfg.Selection)
	f := cmd.Flags()
	if f.Changed("pbr") {
		t.MaxPBR = recPBR
	}
	if f.Changed("opm") {
		t.MinOPM = recOPM
	}
	if f.Changed("eps") {
		t.MinEPS = recEPS
	}
	if f.Changed("lots") {
		t.MinLots = recLots
	}

	s := selection.NewScreener(a.store, holidays, a.clock, a.log)
	out := cmd.OutOrStdout()

	if recSave {
		if to.IsZero() {
			to = s.EvaluationDate()
		}
		if from.IsZero() {
			from = to
		}
		repo := selection.NewRepository(a.store)
		rows := make([][]string, 0, len(markets))
		for _, m := range markets {
			report, err := s.SaveRecommendations(ctx, repo, m, from, to, t)
			if err != nil {
				return err
			}
			rows = append(rows, []string{string(m), strconv.Itoa(report.Dates), strconv.Itoa(report.Picks), strconv.Itoa(report.Created)})
		}
		PrintHeader(out, "R1 Save", [][2]string{
			{"Window", calendar.FormatDate(from) + " ~ " + calendar.FormatDate(to)},
		})
		PrintTable(out, []string{"Market", "Dates", "Picks", "Created"}, rows)
		PrintSuccess(out, "Recommendations saved")
		return nil
	}

	if date.IsZero() {
		date = s.EvaluationDate()
	}
	for _, m := range markets {
		picks, err := s.RecommendR1(ctx, m, date, t)
		if err != nil {
			return err
		}
		printPicks(out, m, date, t, picks)
	}
	return nil
}

func printPicks(out io.Writer, m contracts.Market, date time.Time, t selection.R1Thresholds, picks []contracts.Recommendation) {
	PrintHeader(out, fmt.Sprintf("R1 Recommendations (%s)", m), [][2]string{
		{"Date", calendar.FormatDate(date)},
		{"Thresholds", fmt.Sprintf("PBR <= %g, OPM >= %g%%, EPS >= %g, Lots >= %g", t.MaxPBR, t.MinOPM, t.MinEPS, t.MinLots)},
		{"Picks", strconv.Itoa(len(picks))},
	})
	if len(picks) == 0 {
		PrintWarning(out, "No stocks passed")
		return
	}
	rows := make([][]string, 0, len(picks))
	for _, p := range picks {
		rows = append(rows, []string{p.Code, p.Name, strconv.FormatFloat(p.Price, 'f', 2, 64), p.Note})
	}
	PrintTable(out, []string{"Code", "Name", "Price", "Note"}, rows)
}
