package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stockprophet/backend/internal/contracts"
)

const historySelect = `
	SELECT h.id, h.stock_id, h.date_id, d.date, h.open, h.high, h.low, h.close, h.volume, h.value, h.change
	FROM price_history h JOIN period_date d ON d.id = h.date_id`

var historyCopyColumns = []string{"stock_id", "date_id", "open", "high", "low", "close", "volume", "value", "change"}

// InsertPriceHistory copies rows into a staging table and moves them over,
// skipping (stock, date) pairs that already exist
func (s *Store) InsertPriceHistory(ctx context.Context, period contracts.Period, rows []contracts.PriceHistory) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE price_history_stage (
			stock_id BIGINT, date_id BIGINT,
			open DOUBLE PRECISION, high DOUBLE PRECISION, low DOUBLE PRECISION, close DOUBLE PRECISION,
			volume BIGINT, value BIGINT, change DOUBLE PRECISION
		) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"price_history_stage"}, historyCopyColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.StockID, r.DateID, r.Open, r.High, r.Low, r.Close, r.Volume, r.Value, r.Change}, nil
		}))
	if err != nil {
		return fmt.Errorf("failed to copy %s price history: %w", period, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO price_history (period, stock_id, date_id, open, high, low, close, volume, value, change)
		SELECT $1, stock_id, date_id, open, high, low, close, volume, value, change FROM price_history_stage
		ON CONFLICT (period, stock_id, date_id) DO NOTHING`, period); err != nil {
		return fmt.Errorf("failed to insert %s price history: %w", period, mapError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetPriceHistory(ctx context.Context, period contracts.Period, stockID, dateID int64) (*contracts.PriceHistory, bool, error) {
	return collectOne[contracts.PriceHistory](ctx, s.pool,
		historySelect+` WHERE h.period = $1 AND h.stock_id = $2 AND h.date_id = $3`, period, stockID, dateID)
}

func (s *Store) ListPriceHistory(ctx context.Context, period contracts.Period, stockID int64, f contracts.HistoryFilter) ([]contracts.PriceHistory, error) {
	w := &where{}
	w.add("h.period = ?", period)
	w.add("h.stock_id = ?", stockID)
	return collectAll[contracts.PriceHistory](ctx, s.pool, historySelect+w.history("d.date", f), w.args...)
}

func (s *Store) ListPriceHistoryByDate(ctx context.Context, period contracts.Period, date time.Time) ([]contracts.PriceHistory, error) {
	return collectAll[contracts.PriceHistory](ctx, s.pool,
		historySelect+` WHERE h.period = $1 AND d.date = $2 ORDER BY h.stock_id`, period, date)
}

// UpdatePriceHistory overwrites the prices of row.ID; stock and date stay
func (s *Store) UpdatePriceHistory(ctx context.Context, period contracts.Period, row contracts.PriceHistory) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE price_history SET
			open = $3, high = $4, low = $5, close = $6, volume = $7, value = $8, change = $9
		WHERE period = $1 AND id = $2`,
		period, row.ID, row.Open, row.High, row.Low, row.Close, row.Volume, row.Value, row.Change)
	if err != nil {
		return fmt.Errorf("failed to update %s price history %d: %w", period, row.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s price history %d: %w", period, row.ID, contracts.ErrNotFound)
	}
	return nil
}

func (s *Store) DeletePriceHistory(ctx context.Context, period contracts.Period, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM price_history WHERE period = $1 AND id = $2`, period, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s price history %d: %w", period, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s price history %d: %w", period, id, contracts.ErrNotFound)
	}
	return nil
}
