package commands

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/pkg/database"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "데이터베이스 점검",
}

var dbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "연결/스키마/커넥션 풀 상태 확인",
	RunE:  runDBCheck,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "시장별 수집 진행 지점과 종목 수",
	RunE:  runDBStatus,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbCheckCmd, dbStatusCmd)
}

func runDBCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	s := status.Stats
	out := cmd.OutOrStdout()
	PrintHeader(out, "Database", [][2]string{
		{"Env", a.cfg.Env},
		{"URL", maskPassword(a.cfg.Database.URL)},
		{"Healthy", strconv.FormatBool(status.Healthy)},
		{"Response Time", status.ResponseTime.String()},
		{"Connections", fmt.Sprintf("%d total / %d idle / %d max", s.TotalConns, s.IdleConns, s.MaxConns)},
		{"Acquires", fmt.Sprintf("%d (%s)", s.AcquireCount, s.AcquireDuration)},
	})
	if len(status.MissingTables) > 0 {
		PrintWarning(out, fmt.Sprintf("Missing tables: %v", status.MissingTables))
		return nil
	}
	PrintSuccess(out, fmt.Sprintf("All %d tables present", len(database.Tables)))
	return nil
}

var statusWatermarks = []contracts.WatermarkKind{
	contracts.WatermarkDailyHistory,
	contracts.WatermarkWeeklyHistory,
	contracts.WatermarkMonthlyHistory,
	contracts.WatermarkIncome,
	contracts.WatermarkBalance,
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	columns := []string{"Market", "Alive", "Dead"}
	for _, k := range statusWatermarks {
		columns = append(columns, string(k))
	}

	var rows [][]string
	for _, m := range contracts.AllMarkets() {
		stocks, err := a.store.ListStocks(ctx, contracts.StockFilter{Market: m})
		if err != nil {
			return err
		}
		alive := 0
		for _, st := range stocks {
			if st.IsAlive {
				alive++
			}
		}
		row := []string{string(m), strconv.Itoa(alive), strconv.Itoa(len(stocks) - alive)}
		for _, k := range statusWatermarks {
			d, ok, err := a.store.GetWatermark(ctx, m, k)
			if err != nil {
				return err
			}
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, calendar.FormatDate(d))
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	PrintHeader(out, "Crawl Status", [][2]string{{"Checked", time.Now().In(calendar.Taipei).Format(time.DateTime)}})
	PrintTable(out, columns, rows)
	return nil
}

// maskPassword hides the password of a database URL
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
