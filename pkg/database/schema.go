package database

import (
	"context"
	"fmt"
)

// Tables are the store tables EnsureSchema creates, in dependency order
var Tables = []string{
	"period_date",
	"stock",
	"price_history",
	"balance_sheet",
	"income_statement",
	"monthly_revenue",
	"capital_reduction",
	"stock_metadata",
	"market_watermark",
	"recommendation",
}

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS period_date (
		id     BIGSERIAL PRIMARY KEY,
		period TEXT NOT NULL,
		date   DATE NOT NULL,
		UNIQUE (period, date)
	)`,
	`CREATE TABLE IF NOT EXISTS stock (
		id       BIGSERIAL PRIMARY KEY,
		code     TEXT NOT NULL,
		name     TEXT NOT NULL,
		market   TEXT NOT NULL,
		category TEXT NOT NULL,
		is_alive BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (code, market)
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id       BIGSERIAL PRIMARY KEY,
		period   TEXT NOT NULL,
		stock_id BIGINT NOT NULL REFERENCES stock (id),
		date_id  BIGINT NOT NULL REFERENCES period_date (id),
		open     DOUBLE PRECISION,
		high     DOUBLE PRECISION,
		low      DOUBLE PRECISION,
		close    DOUBLE PRECISION,
		volume   BIGINT,
		value    BIGINT,
		change   DOUBLE PRECISION,
		UNIQUE (period, stock_id, date_id)
	)`,
	`CREATE TABLE IF NOT EXISTS balance_sheet (
		id                       BIGSERIAL PRIMARY KEY,
		stock_id                 BIGINT NOT NULL REFERENCES stock (id),
		season_date_id           BIGINT NOT NULL REFERENCES period_date (id),
		intangible_assets        BIGINT,
		total_assets             BIGINT,
		total_liabs              BIGINT,
		short_term_borrowing     BIGINT,
		total_current_assets     BIGINT,
		total_non_current_assets BIGINT,
		total_current_liabs      BIGINT,
		total_non_current_liabs  BIGINT,
		accrued_payable          BIGINT,
		other_payable            BIGINT,
		capital_reserve          BIGINT,
		common_stocks            BIGINT,
		total_stocks             BIGINT,
		inventories              BIGINT,
		prepaid                  BIGINT,
		shareholders_net_income  BIGINT,
		UNIQUE (stock_id, season_date_id)
	)`,
	`CREATE TABLE IF NOT EXISTS income_statement (
		id                           BIGSERIAL PRIMARY KEY,
		stock_id                     BIGINT NOT NULL REFERENCES stock (id),
		season_date_id               BIGINT NOT NULL REFERENCES period_date (id),
		net_sales                    BIGINT,
		cost_of_goods_sold           BIGINT,
		gross_profit                 BIGINT,
		operating_expenses           BIGINT,
		operating_income             BIGINT,
		total_non_op_income_expenses BIGINT,
		pre_tax_income               BIGINT,
		income_tax_expense           BIGINT,
		net_income                   BIGINT,
		other_comprehensive_income   BIGINT,
		consolidated_net_income      BIGINT,
		eps                          DOUBLE PRECISION,
		UNIQUE (stock_id, season_date_id)
	)`,
	`CREATE TABLE IF NOT EXISTS monthly_revenue (
		id            BIGSERIAL PRIMARY KEY,
		stock_id      BIGINT NOT NULL REFERENCES stock (id),
		month_date_id BIGINT NOT NULL REFERENCES period_date (id),
		revenue       BIGINT NOT NULL,
		note          TEXT NOT NULL DEFAULT '',
		UNIQUE (stock_id, month_date_id)
	)`,
	`CREATE TABLE IF NOT EXISTS capital_reduction (
		id                      BIGSERIAL PRIMARY KEY,
		stock_id                BIGINT NOT NULL REFERENCES stock (id),
		old_price               DOUBLE PRECISION NOT NULL,
		new_price               DOUBLE PRECISION NOT NULL,
		reason                  TEXT NOT NULL DEFAULT '',
		new_shares_per_thousand DOUBLE PRECISION,
		refund_per_share        DOUBLE PRECISION,
		stop_trade_date         DATE,
		effective_date          DATE NOT NULL,
		UNIQUE (stock_id, effective_date)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_metadata (
		id                           BIGSERIAL PRIMARY KEY,
		stock_id                     BIGINT NOT NULL UNIQUE REFERENCES stock (id),
		daily_history_create_date    DATE,
		daily_history_update_date    DATE,
		weekly_history_create_date   DATE,
		weekly_history_update_date   DATE,
		monthly_history_create_date  DATE,
		monthly_history_update_date  DATE,
		income_statement_create_date DATE,
		income_statement_update_date DATE,
		balance_sheet_create_date    DATE,
		balance_sheet_update_date    DATE
	)`,
	`CREATE TABLE IF NOT EXISTS market_watermark (
		market TEXT NOT NULL,
		kind   TEXT NOT NULL,
		date   DATE NOT NULL,
		PRIMARY KEY (market, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS recommendation (
		id            BIGSERIAL PRIMARY KEY,
		stock_id      BIGINT NOT NULL REFERENCES stock (id),
		daily_date_id BIGINT NOT NULL REFERENCES period_date (id),
		price         DOUBLE PRECISION NOT NULL,
		note          TEXT NOT NULL DEFAULT '',
		UNIQUE (stock_id, daily_date_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_market_alive ON stock (market, is_alive)`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_date ON price_history (period, date_id)`,
	`CREATE INDEX IF NOT EXISTS idx_capital_reduction_effective ON capital_reduction (effective_date)`,
}

// EnsureSchema creates every table the store needs
func (db *DB) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
