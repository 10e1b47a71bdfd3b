package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/crawler"
	"github.com/stockprophet/backend/internal/store"
	"github.com/stockprophet/backend/internal/store/postgres"
	"github.com/stockprophet/backend/pkg/config"
	"github.com/stockprophet/backend/pkg/database"
	"github.com/stockprophet/backend/pkg/logger"
)

// app wires the dependencies every command shares
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB
	store   *postgres.Store
	lock    *store.DimensionLock
	sources *crawler.Sources
	clock   calendar.Clock
}

// loadConfig reads the config and applies the global flags
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadWithFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp loads the config, connects to the database and makes sure the schema exists
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	log.Debug("Connected to database")

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		store:   postgres.New(db.Pool),
		lock:    store.NewDimensionLock(),
		sources: crawler.NewSources(cfg, log),
		clock:   calendar.SystemClock{},
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

// holidays fetches the exchange calendar
func (a *app) holidays(ctx context.Context) (calendar.Holidays, error) {
	h, err := a.sources.Holidays(ctx)
	if err != nil {
		return calendar.Holidays{}, fmt.Errorf("fetch holidays: %w", err)
	}
	return h, nil
}

// parseMarkets accepts tse, otc or all
func parseMarkets(s string) ([]contracts.Market, error) {
	if strings.EqualFold(s, "all") || s == "" {
		return contracts.AllMarkets(), nil
	}
	m, err := contracts.ParseMarket(strings.ToLower(s))
	if err != nil {
		return nil, err
	}
	return []contracts.Market{m}, nil
}

// parseMarket accepts tse, otc, or an empty string for both
func parseMarket(s string) (contracts.Market, error) {
	if s == "" || strings.EqualFold(s, "all") {
		return "", nil
	}
	return contracts.ParseMarket(strings.ToLower(s))
}

// parseDate parses an optional YYYY-MM-DD flag
func parseDate(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := calendar.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return d, nil
}
