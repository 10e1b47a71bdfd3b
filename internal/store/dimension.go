// Package store holds helpers shared by every contracts.Store implementation.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stockprophet/backend/internal/contracts"
)

// DimensionLock serializes read-then-create sequences on dimension rows
// (period dates, stocks, metadata) across concurrently running tasks.
// Hold it only around the check and insert, never around a network call.
type DimensionLock struct {
	mu sync.Mutex
}

// NewDimensionLock creates the process-wide lock shared by every task
func NewDimensionLock() *DimensionLock {
	return &DimensionLock{}
}

func (l *DimensionLock) Lock()   { l.mu.Lock() }
func (l *DimensionLock) Unlock() { l.mu.Unlock() }

// GetOrCreatePeriodDate returns the dimension row of date, creating it when absent
func GetOrCreatePeriodDate(ctx context.Context, lock sync.Locker, repo contracts.PeriodDateRepository, period contracts.Period, date time.Time) (*contracts.PeriodDate, error) {
	lock.Lock()
	defer lock.Unlock()

	pd, ok, err := repo.GetPeriodDate(ctx, period, date)
	if err != nil {
		return nil, fmt.Errorf("get %s date: %w", period, err)
	}
	if ok {
		return pd, nil
	}
	pd, err = repo.CreatePeriodDate(ctx, period, date)
	if err != nil {
		return nil, fmt.Errorf("create %s date: %w", period, err)
	}
	return pd, nil
}

// GetOrCreateMetadata returns the watermark row of a stock, creating an empty one when absent
func GetOrCreateMetadata(ctx context.Context, lock sync.Locker, repo contracts.MetadataRepository, stockID int64) (*contracts.StockMetadata, error) {
	lock.Lock()
	defer lock.Unlock()

	m, ok, err := repo.GetStockMetadata(ctx, stockID)
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	if ok {
		return m, nil
	}
	m = &contracts.StockMetadata{StockID: stockID}
	if err := repo.CreateStockMetadata(ctx, m); err != nil {
		return nil, fmt.Errorf("create metadata: %w", err)
	}
	return m, nil
}
