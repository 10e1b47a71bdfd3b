package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/fundamental"
	"github.com/stockprophet/backend/pkg/logger"
)

// Reader is the part of the store the report endpoints read
type Reader interface {
	GetStockByCode(ctx context.Context, code string) (*contracts.Stock, bool, error)
	ListStocks(ctx context.Context, f contracts.StockFilter) ([]contracts.Stock, error)
	ListPriceHistory(ctx context.Context, period contracts.Period, stockID int64, f contracts.HistoryFilter) ([]contracts.PriceHistory, error)
	ListBalanceSheets(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.BalanceSheet, error)
	ListIncomeStatements(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.IncomeStatement, error)
	ListRecommendations(ctx context.Context, f contracts.HistoryFilter) ([]contracts.Recommendation, error)
}

// Handler serves stock, history, ratio and recommendation reports
// ⭐ SSOT: 리포트 API 핸들러는 이 구조체에서만
type Handler struct {
	reader Reader
	logger *logger.Logger
}

// NewHandler creates a report handler
func NewHandler(reader Reader, log *logger.Logger) *Handler {
	return &Handler{
		reader: reader,
		logger: log.WithField("module", "api"),
	}
}

// HistoryResponse is one candlestick of GET /api/stocks/{code}/history
type HistoryResponse struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *int64   `json:"volume"`
	Value  *int64   `json:"value"`
	Change *float64 `json:"change"`
}

// RatiosResponse is the body of GET /api/stocks/{code}/ratios
type RatiosResponse struct {
	Code       string             `json:"code"`
	Name       string             `json:"name"`
	Date       string             `json:"date"`
	Price      float64            `json:"price"`
	SeasonDate string             `json:"season_date"`
	Ratios     fundamental.Ratios `json:"ratios"`
}

// ListStocks returns the listing
// GET /api/stocks?market=tse&alive=true
func (h *Handler) ListStocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f contracts.StockFilter
	if m := q.Get("market"); m != "" {
		market, err := contracts.ParseMarket(m)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Market = market
	}
	if a := q.Get("alive"); a != "" {
		alive, err := strconv.ParseBool(a)
		if err != nil {
			respondError(w, http.StatusBadRequest, "alive must be a boolean")
			return
		}
		f.Alive = &alive
	}

	stocks, err := h.reader.ListStocks(r.Context(), f)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list stocks")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stocks")
		return
	}
	if stocks == nil {
		stocks = []contracts.Stock{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stocks,
	})
}

// GetHistory returns the candlesticks of one stock
// GET /api/stocks/{code}/history?period=weekly&from=2024-01-01&to=2024-03-31
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := contracts.PeriodDaily
	if p := q.Get("period"); p != "" {
		parsed, err := contracts.ParsePeriod(p)
		if err != nil || !parsed.IsCandlestick() {
			respondError(w, http.StatusBadRequest, "period must be daily, weekly or monthly")
			return
		}
		period = parsed
	}
	from, ok := dateParam(w, q.Get("from"), "from")
	if !ok {
		return
	}
	to, ok := dateParam(w, q.Get("to"), "to")
	if !ok {
		return
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		respondError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	stock, ok := h.stock(w, r)
	if !ok {
		return
	}
	rows, err := h.reader.ListPriceHistory(r.Context(), period, stock.ID, contracts.HistoryFilter{From: from, To: to})
	if err != nil {
		h.logger.WithError(err).WithStock(stock.Code).Error("Failed to get price history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve price history")
		return
	}

	result := make([]HistoryResponse, len(rows))
	for i, p := range rows {
		result[i] = HistoryResponse{
			Date:   calendar.FormatDate(p.Date),
			Open:   p.Open.Ptr(),
			High:   p.High.Ptr(),
			Low:    p.Low.Ptr(),
			Close:  p.Close.Ptr(),
			Volume: p.Volume.Ptr(),
			Value:  p.Value.Ptr(),
			Change: p.Change.Ptr(),
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"code":    stock.Code,
		"period":  period,
		"data":    result,
	})
}

// GetRatios returns the ratios of the season reported before the latest close
// GET /api/stocks/{code}/ratios
func (h *Handler) GetRatios(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stock, ok := h.stock(w, r)
	if !ok {
		return
	}

	latest, err := h.reader.ListPriceHistory(ctx, contracts.PeriodDaily, stock.ID, contracts.HistoryFilter{Desc: true, Limit: 1})
	if err != nil {
		h.logger.WithError(err).WithStock(stock.Code).Error("Failed to get latest close")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve price history")
		return
	}
	if len(latest) == 0 || !latest[0].Close.Valid {
		respondError(w, http.StatusNotFound, "no closing price for "+stock.Code)
		return
	}

	bar := latest[0]
	season := calendar.LatestSeasonDate(bar.Date)
	ratios, err := fundamental.SeasonRatios(ctx, h.reader, *stock, bar.Close.Float64, season)
	if err != nil {
		h.logger.WithError(err).WithStock(stock.Code).Error("Failed to compute ratios")
		respondError(w, http.StatusInternalServerError, "Failed to compute ratios")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": RatiosResponse{
			Code:       stock.Code,
			Name:       stock.Name,
			Date:       calendar.FormatDate(bar.Date),
			Price:      bar.Close.Float64,
			SeasonDate: calendar.FormatDate(season),
			Ratios:     ratios,
		},
	})
}

// ListRecommendations returns the saved picks of one day, the latest day by default
// GET /api/recommendations?date=2024-01-10
func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date, ok := dateParam(w, r.URL.Query().Get("date"), "date")
	if !ok {
		return
	}

	if date.IsZero() {
		last, err := h.reader.ListRecommendations(ctx, contracts.HistoryFilter{Desc: true, Limit: 1})
		if err != nil {
			h.logger.WithError(err).Error("Failed to get latest recommendation")
			respondError(w, http.StatusInternalServerError, "Failed to retrieve recommendations")
			return
		}
		if len(last) == 0 {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    []contracts.Recommendation{},
			})
			return
		}
		date = last[0].Date
	}

	recs, err := h.reader.ListRecommendations(ctx, contracts.HistoryFilter{From: date, To: date})
	if err != nil {
		h.logger.WithError(err).WithField("date", calendar.FormatDate(date)).Error("Failed to list recommendations")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve recommendations")
		return
	}
	if recs == nil {
		recs = []contracts.Recommendation{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"date":    calendar.FormatDate(date),
		"data":    recs,
	})
}

// stock resolves the {code} path variable, writing the error response itself
func (h *Handler) stock(w http.ResponseWriter, r *http.Request) (*contracts.Stock, bool) {
	code := mux.Vars(r)["code"]
	stock, ok, err := h.reader.GetStockByCode(r.Context(), code)
	if err != nil {
		h.logger.WithError(err).WithStock(code).Error("Failed to get stock")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stock")
		return nil, false
	}
	if !ok {
		respondError(w, http.StatusNotFound, "stock "+code+" not found")
		return nil, false
	}
	return stock, true
}

// dateParam parses an optional YYYY-MM-DD query value
func dateParam(w http.ResponseWriter, v, name string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, true
	}
	d, err := calendar.ParseDate(v)
	if err != nil {
		respondError(w, http.StatusBadRequest, name+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}
