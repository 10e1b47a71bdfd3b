// Package postgres implements contracts.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockprophet/backend/internal/contracts"
)

// foreignKeyViolation is the SQLSTATE of a missing referenced row
const foreignKeyViolation = "23503"

// Store keeps every table in one database
// ⭐ SSOT: PostgreSQL 쿼리는 여기서만
type Store struct {
	pool *pgxpool.Pool
}

var _ contracts.Store = (*Store)(nil)

// New wraps a pool opened by pkg/database
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// mapError turns a foreign key violation into ErrMissingDimension
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s", contracts.ErrMissingDimension, pgErr.ConstraintName)
	}
	return err
}

// collectOne runs a query expected to return at most one row
func collectOne[T any](ctx context.Context, pool *pgxpool.Pool, query string, args ...any) (*T, bool, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &row, true, nil
}

func collectAll[T any](ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}

// where accumulates AND-ed conditions with positional arguments
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

// history adds the bounds of f on column and returns the WHERE, ORDER BY and LIMIT tail.
// Rows sharing a date are ordered by then.
func (w *where) history(column string, f contracts.HistoryFilter, then ...string) string {
	if !f.From.IsZero() {
		w.add(column+" >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.add(column+" <= ?", f.To)
	}
	var b strings.Builder
	b.WriteString(w.clause())
	b.WriteString(" ORDER BY " + column)
	if f.Desc {
		b.WriteString(" DESC")
	}
	for _, c := range then {
		b.WriteString(", " + c)
	}
	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", f.Limit)
	}
	return b.String()
}

func (w *where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// ---- period dates ----

func (s *Store) GetPeriodDate(ctx context.Context, period contracts.Period, date time.Time) (*contracts.PeriodDate, bool, error) {
	return collectOne[contracts.PeriodDate](ctx, s.pool,
		`SELECT id, period, date FROM period_date WHERE period = $1 AND date = $2`, period, date)
}

// CreatePeriodDate returns the existing row when another writer created it first
func (s *Store) CreatePeriodDate(ctx context.Context, period contracts.Period, date time.Time) (*contracts.PeriodDate, error) {
	pd := contracts.PeriodDate{Period: period, Date: date}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO period_date (period, date) VALUES ($1, $2)
		ON CONFLICT (period, date) DO UPDATE SET period = EXCLUDED.period
		RETURNING id`, period, date).Scan(&pd.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s date %s: %w", period, date.Format(time.DateOnly), err)
	}
	return &pd, nil
}

func (s *Store) ListPeriodDates(ctx context.Context, period contracts.Period, f contracts.HistoryFilter) ([]contracts.PeriodDate, error) {
	w := &where{}
	w.add("period = ?", period)
	return collectAll[contracts.PeriodDate](ctx, s.pool, `SELECT id, period, date FROM period_date`+w.history("date", f), w.args...)
}
