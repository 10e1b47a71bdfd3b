package crawler

import (
	"context"
	"fmt"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/external"
	"github.com/stockprophet/backend/internal/external/holiday"
	"github.com/stockprophet/backend/internal/external/mops"
	"github.com/stockprophet/backend/internal/external/tpex"
	"github.com/stockprophet/backend/internal/external/twse"
	"github.com/stockprophet/backend/pkg/config"
	"github.com/stockprophet/backend/pkg/httputil"
	"github.com/stockprophet/backend/pkg/logger"
)

// Sources holds one client per remote source. Each client owns its pacer, so
// the sources are paced independently of each other.
type Sources struct {
	TWSE    *twse.Client
	TPEx    *tpex.Client
	MOPS    *mops.Client
	Holiday *holiday.Client
}

// NewSources builds every client from config. Retries are left to the pacers.
func NewSources(cfg *config.Config, log *logger.Logger) *Sources {
	c := cfg.Crawler
	client := func() *httputil.Client {
		return httputil.New(cfg, log).DisableRetry()
	}
	return &Sources{
		TWSE:    twse.NewClient(client(), external.NewPacer(c.TWSESleep, c.OverrunSleep, c.TWSERetries, log), log, c.TWSEBaseURL),
		TPEx:    tpex.NewClient(client(), external.NewPacer(c.TPExSleep, c.OverrunSleep, c.TPExRetries, log), log, c.TPExBaseURL),
		MOPS:    mops.NewClient(client(), external.NewPacer(c.MOPSSleep, c.OverrunSleep, c.MOPSRetries, log), log, c.MOPSBaseURL),
		Holiday: holiday.NewClient(httputil.New(cfg, log), log, c.HolidayURL),
	}
}

// Snapshot returns the snapshot source of market
func (s *Sources) Snapshot(market contracts.Market) (SnapshotSource, error) {
	switch market {
	case contracts.MarketTSE:
		return s.TWSE, nil
	case contracts.MarketOTC:
		return s.TPEx, nil
	default:
		return nil, fmt.Errorf("unsupported market %q", market)
	}
}

// Holidays fetches the exchange calendar
func (s *Sources) Holidays(ctx context.Context) (calendar.Holidays, error) {
	return s.Holiday.Fetch(ctx)
}

// Reductions returns the capital reduction feed. Only TPEx publishes one.
func (s *Sources) Reductions() MarketReductionSource {
	return s.TPEx
}
