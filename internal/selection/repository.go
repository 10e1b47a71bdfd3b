package selection

import (
	"context"
	"fmt"
	"time"

	"github.com/stockprophet/backend/internal/contracts"
)

// RecommendationStore is the part of the store recommendations are saved to
type RecommendationStore interface {
	GetPeriodDate(ctx context.Context, period contracts.Period, date time.Time) (*contracts.PeriodDate, bool, error)
	contracts.RecommendationRepository
}

// Repository persists recommendations once per stock and trading date
// ⭐ SSOT: 추천 종목 저장/조회는 여기서만
type Repository struct {
	store RecommendationStore
}

// NewRepository creates a new selection repository
func NewRepository(store RecommendationStore) *Repository {
	return &Repository{store: store}
}

// SaveDay stores the picks of date that are not stored yet and returns how
// many were created. A date without a daily dimension row stores nothing.
func (r *Repository) SaveDay(ctx context.Context, date time.Time, picks []contracts.Recommendation) (int, error) {
	if len(picks) == 0 {
		return 0, nil
	}
	pd, ok, err := r.store.GetPeriodDate(ctx, contracts.PeriodDaily, date)
	if err != nil {
		return 0, fmt.Errorf("get daily date: %w", err)
	}
	if !ok {
		return 0, nil
	}

	created := 0
	for _, p := range picks {
		_, exists, err := r.store.GetRecommendation(ctx, p.StockID, pd.ID)
		if err != nil {
			return created, fmt.Errorf("get recommendation of %s: %w", p.Code, err)
		}
		if exists {
			continue
		}

		rec := contracts.Recommendation{StockID: p.StockID, DailyDateID: pd.ID, Price: p.Price, Note: p.Note}
		if err := r.store.CreateRecommendation(ctx, &rec); err != nil {
			return created, fmt.Errorf("failed to save recommendation of %s: %w", p.Code, err)
		}
		created++
	}
	return created, nil
}

// List returns the recommendations between from and to, both inclusive
func (r *Repository) List(ctx context.Context, from, to time.Time) ([]contracts.Recommendation, error) {
	recs, err := r.store.ListRecommendations(ctx, contracts.HistoryFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	return recs, nil
}
