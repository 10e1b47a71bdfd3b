package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stockprophet/backend/internal/contracts"
)

// ---- capital reductions ----

const reductionSelect = `
	SELECT id, stock_id, old_price, new_price, reason, new_shares_per_thousand, refund_per_share,
		stop_trade_date, effective_date
	FROM capital_reduction`

func (s *Store) CreateCapitalReduction(ctx context.Context, r *contracts.CapitalReduction) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO capital_reduction (stock_id, old_price, new_price, reason, new_shares_per_thousand,
			refund_per_share, stop_trade_date, effective_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		r.StockID, r.OldPrice, r.NewPrice, r.Reason, r.NewSharesPerThousand,
		r.RefundPerShare, r.StopTradeDate, r.EffectiveDate).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to save capital reduction of %d: %w", r.StockID, mapError(err))
	}
	return nil
}

func (s *Store) ListCapitalReductions(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.CapitalReduction, error) {
	w := &where{}
	if stockID != 0 {
		w.add("stock_id = ?", stockID)
	}
	return collectAll[contracts.CapitalReduction](ctx, s.pool, reductionSelect+w.history("effective_date", f), w.args...)
}

// ---- metadata ----

const metadataColumns = `
	id, stock_id,
	daily_history_create_date, daily_history_update_date,
	weekly_history_create_date, weekly_history_update_date,
	monthly_history_create_date, monthly_history_update_date,
	income_statement_create_date, income_statement_update_date,
	balance_sheet_create_date, balance_sheet_update_date`

func metadataValues(m *contracts.StockMetadata) []any {
	return []any{
		m.StockID,
		m.DailyHistoryCreateDate, m.DailyHistoryUpdateDate,
		m.WeeklyHistoryCreateDate, m.WeeklyHistoryUpdateDate,
		m.MonthlyHistoryCreateDate, m.MonthlyHistoryUpdateDate,
		m.IncomeStatementCreateDate, m.IncomeStatementUpdateDate,
		m.BalanceSheetCreateDate, m.BalanceSheetUpdateDate,
	}
}

func (s *Store) GetStockMetadata(ctx context.Context, stockID int64) (*contracts.StockMetadata, bool, error) {
	return collectOne[contracts.StockMetadata](ctx, s.pool,
		`SELECT `+metadataColumns+` FROM stock_metadata WHERE stock_id = $1`, stockID)
}

func (s *Store) CreateStockMetadata(ctx context.Context, m *contracts.StockMetadata) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO stock_metadata (stock_id,
			daily_history_create_date, daily_history_update_date,
			weekly_history_create_date, weekly_history_update_date,
			monthly_history_create_date, monthly_history_update_date,
			income_statement_create_date, income_statement_update_date,
			balance_sheet_create_date, balance_sheet_update_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`, metadataValues(m)...).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to create metadata of stock %d: %w", m.StockID, mapError(err))
	}
	return nil
}

func (s *Store) UpdateStockMetadata(ctx context.Context, m *contracts.StockMetadata) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stock_metadata SET
			daily_history_create_date = $2, daily_history_update_date = $3,
			weekly_history_create_date = $4, weekly_history_update_date = $5,
			monthly_history_create_date = $6, monthly_history_update_date = $7,
			income_statement_create_date = $8, income_statement_update_date = $9,
			balance_sheet_create_date = $10, balance_sheet_update_date = $11
		WHERE stock_id = $1`, metadataValues(m)...)
	if err != nil {
		return fmt.Errorf("failed to update metadata of stock %d: %w", m.StockID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("metadata for stock %d: %w", m.StockID, contracts.ErrNotFound)
	}
	return nil
}

func (s *Store) GetWatermark(ctx context.Context, market contracts.Market, kind contracts.WatermarkKind) (time.Time, bool, error) {
	var d time.Time
	err := s.pool.QueryRow(ctx, `SELECT date FROM market_watermark WHERE market = $1 AND kind = $2`, market, kind).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return d, true, nil
}

// AdvanceWatermark keeps the later of the stored and the given date
func (s *Store) AdvanceWatermark(ctx context.Context, market contracts.Market, kind contracts.WatermarkKind, date time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO market_watermark (market, kind, date) VALUES ($1, $2, $3)
		ON CONFLICT (market, kind) DO UPDATE SET date = GREATEST(market_watermark.date, EXCLUDED.date)`,
		market, kind, date)
	if err != nil {
		return fmt.Errorf("failed to advance %s %s watermark: %w", market, kind, err)
	}
	return nil
}

// ---- recommendations ----

const recommendationSelect = `
	SELECT r.id, r.stock_id, r.daily_date_id, d.date, s.code, s.name, r.price, r.note
	FROM recommendation r
	JOIN period_date d ON d.id = r.daily_date_id
	JOIN stock s ON s.id = r.stock_id`

func (s *Store) CreateRecommendation(ctx context.Context, r *contracts.Recommendation) error {
	err := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO recommendation (stock_id, daily_date_id, price, note)
			VALUES ($1, $2, $3, $4)
			RETURNING id, stock_id, daily_date_id
		)
		SELECT ins.id, d.date, s.code, s.name
		FROM ins JOIN period_date d ON d.id = ins.daily_date_id JOIN stock s ON s.id = ins.stock_id`,
		r.StockID, r.DailyDateID, r.Price, r.Note).Scan(&r.ID, &r.Date, &r.Code, &r.Name)
	if err != nil {
		return fmt.Errorf("failed to save recommendation %d/%d: %w", r.StockID, r.DailyDateID, mapError(err))
	}
	return nil
}

func (s *Store) GetRecommendation(ctx context.Context, stockID, dailyDateID int64) (*contracts.Recommendation, bool, error) {
	return collectOne[contracts.Recommendation](ctx, s.pool,
		recommendationSelect+` WHERE r.stock_id = $1 AND r.daily_date_id = $2`, stockID, dailyDateID)
}

func (s *Store) ListRecommendations(ctx context.Context, f contracts.HistoryFilter) ([]contracts.Recommendation, error) {
	w := &where{}
	return collectAll[contracts.Recommendation](ctx, s.pool, recommendationSelect+w.history("d.date", f, "s.code"), w.args...)
}
