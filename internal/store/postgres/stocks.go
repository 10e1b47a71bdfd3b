package postgres

import (
	"context"
	"fmt"

	"github.com/stockprophet/backend/internal/contracts"
)

const stockColumns = `id, code, name, market, category, is_alive`

func (s *Store) CreateStock(ctx context.Context, st *contracts.Stock) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO stock (code, name, market, category, is_alive)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, st.Code, st.Name, st.Market, st.Category, st.IsAlive).Scan(&st.ID)
	if err != nil {
		return fmt.Errorf("failed to create stock %s: %w", st.Code, err)
	}
	return nil
}

func (s *Store) GetStock(ctx context.Context, market contracts.Market, code string) (*contracts.Stock, bool, error) {
	return collectOne[contracts.Stock](ctx, s.pool,
		`SELECT `+stockColumns+` FROM stock WHERE market = $1 AND code = $2`, market, code)
}

// GetStockByCode returns the first listing of code on either market
func (s *Store) GetStockByCode(ctx context.Context, code string) (*contracts.Stock, bool, error) {
	return collectOne[contracts.Stock](ctx, s.pool,
		`SELECT `+stockColumns+` FROM stock WHERE code = $1 ORDER BY id LIMIT 1`, code)
}

func (s *Store) ListStocks(ctx context.Context, f contracts.StockFilter) ([]contracts.Stock, error) {
	w := &where{}
	if f.Market != "" {
		w.add("market = ?", f.Market)
	}
	if f.Alive != nil {
		w.add("is_alive = ?", *f.Alive)
	}
	if f.Category != "" {
		w.add("category = ?", f.Category)
	}
	return collectAll[contracts.Stock](ctx, s.pool, `SELECT `+stockColumns+` FROM stock`+w.clause()+` ORDER BY code, id`, w.args...)
}

func (s *Store) UpdateStockAlive(ctx context.Context, id int64, alive bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE stock SET is_alive = $2 WHERE id = $1`, id, alive)
	if err != nil {
		return fmt.Errorf("failed to update stock %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock %d: %w", id, contracts.ErrNotFound)
	}
	return nil
}

// UpdateStock rewrites the name, category and alive flag of an existing stock
func (s *Store) UpdateStock(ctx context.Context, st *contracts.Stock) error {
	tag, err := s.pool.Exec(ctx, `UPDATE stock SET name = $2, category = $3, is_alive = $4 WHERE id = $1`,
		st.ID, st.Name, st.Category, st.IsAlive)
	if err != nil {
		return fmt.Errorf("failed to update stock %d: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock %d: %w", st.ID, contracts.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteStock(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stock WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stock %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock %d: %w", id, contracts.ErrNotFound)
	}
	return nil
}
