// Package tpex fetches Taipei Exchange (上櫃) quotes, listings and the
// capital reduction feed.
package tpex

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/external"
	"github.com/stockprophet/backend/pkg/httputil"
	"github.com/stockprophet/backend/pkg/logger"
)

const (
	quotesPath    = "/web/stock/aftertrading/otc_quotes_no1430/stk_wn1430_result.php"
	reductionPath = "/web/stock/exright/revivt/revivt_result.php"

	// snapshotSector is every sector in one table
	snapshotSector = "EW"
)

// Categories are the OTC industry query codes
var Categories = []contracts.Category{
	{Code: "02", Name: "食品工業"}, {Code: "03", Name: "塑膠工業"}, {Code: "04", Name: "紡織纖維"},
	{Code: "05", Name: "電機機械"}, {Code: "06", Name: "電器電纜"}, {Code: "08", Name: "玻璃陶瓷"},
	{Code: "10", Name: "鋼鐵工業"}, {Code: "11", Name: "橡膠工業"}, {Code: "14", Name: "建材營造"},
	{Code: "15", Name: "航運業"}, {Code: "16", Name: "觀光事業"}, {Code: "17", Name: contracts.CategoryFinance},
	{Code: "18", Name: "貿易百貨"}, {Code: "20", Name: "其他"}, {Code: "21", Name: "化學工業"},
	{Code: "22", Name: "生技醫療業"}, {Code: "23", Name: "油電燃氣業"}, {Code: "24", Name: "半導體業"},
	{Code: "25", Name: "電腦及週邊設備業"}, {Code: "26", Name: "光電業"}, {Code: "27", Name: "通信網路業"},
	{Code: "28", Name: "電子零組件業"}, {Code: "29", Name: "電子通路業"}, {Code: "30", Name: "資訊服務業"},
	{Code: "31", Name: "其他電子業"}, {Code: "32", Name: "文化創意業"}, {Code: "33", Name: "農業科技業"},
	{Code: "34", Name: "電子商務業"},
}

// Client handles communication with the TPEx website
// ⭐ SSOT: 上櫃 시세/감자 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	pacer      external.Doer
}

// NewClient creates a TPEx client. Every request runs under pacer.
func NewClient(httpClient *httputil.Client, pacer external.Doer, log *logger.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "tpex"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		pacer:      pacer,
	}
}

// Market returns the market this client serves
func (c *Client) Market() contracts.Market {
	return contracts.MarketOTC
}

// FetchDailySnapshot fetches every stock's quote of date in one request
func (c *Client) FetchDailySnapshot(ctx context.Context, date time.Time) ([]contracts.Quote, error) {
	var quotes []contracts.Quote
	err := c.pacer.Do(ctx, "tpex snapshot "+date.Format("2006-01-02"), func(ctx context.Context) error {
		rows, err := c.fetchQuotes(ctx, date, snapshotSector)
		if err != nil {
			return err
		}
		quotes = parseQuotes(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"date":  date.Format("2006-01-02"),
		"count": len(quotes),
	}).Debug("Fetched daily snapshot")
	return quotes, nil
}

// FetchCategoryListing fetches the stocks of every category as of date.
// A category that still fails after its retries empties the whole listing.
func (c *Client) FetchCategoryListing(ctx context.Context, date time.Time) (contracts.Listing, error) {
	listing := make(contracts.Listing, len(Categories))
	for _, cat := range Categories {
		var stocks []contracts.ListedStock
		err := c.pacer.Do(ctx, "tpex category "+cat.Name, func(ctx context.Context) error {
			rows, err := c.fetchQuotes(ctx, date, cat.Code)
			if err != nil {
				return err
			}
			stocks = stocks[:0]
			for _, row := range rows {
				r := row.Array()
				if len(r) < 2 || !external.IsStockCode(r[0].String()) {
					continue
				}
				stocks = append(stocks, contracts.ListedStock{Code: r[0].String(), Name: strings.TrimSpace(r[1].String())})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}
		listing[cat.Name] = stocks
	}
	return listing, nil
}

// FetchCapitalReductionFeed fetches the reductions whose trading resumed between since and until
func (c *Client) FetchCapitalReductionFeed(ctx context.Context, since, until time.Time) ([]contracts.ReductionEvent, error) {
	params := url.Values{
		"o":  {"json"},
		"l":  {"zh"},
		"d":  {external.ROCDate(since)},
		"ed": {external.ROCDate(until)},
	}

	var events []contracts.ReductionEvent
	err := c.pacer.Do(ctx, "tpex reductions", func(ctx context.Context) error {
		body, err := c.httpClient.GetBytes(ctx, c.baseURL+reductionPath, params)
		if err != nil {
			return contracts.FetchError("tpex", err)
		}
		if !gjson.ValidBytes(body) {
			return contracts.FetchError("tpex", fmt.Errorf("malformed reduction payload"))
		}
		events = parseReductions(gjson.GetBytes(body, "aaData").Array())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) fetchQuotes(ctx context.Context, date time.Time, sector string) ([]gjson.Result, error) {
	params := url.Values{
		"o":  {"json"},
		"l":  {"zh"},
		"d":  {external.ROCDate(date)},
		"se": {sector},
	}
	body, err := c.httpClient.GetBytes(ctx, c.baseURL+quotesPath, params)
	if err != nil {
		return nil, contracts.FetchError("tpex", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, contracts.FetchError("tpex", fmt.Errorf("malformed payload"))
	}
	data := gjson.GetBytes(body, "aaData")
	if !data.IsArray() {
		return nil, contracts.FetchError("tpex", fmt.Errorf("no aaData for %s", date.Format("2006-01-02")))
	}
	return data.Array(), nil
}

// parseQuotes reads aaData rows: code, name, close, change, open, high, low, volume, value
func parseQuotes(rows []gjson.Result) []contracts.Quote {
	quotes := make([]contracts.Quote, 0, len(rows))
	for _, row := range rows {
		r := row.Array()
		if len(r) < 9 || !external.IsStockCode(r[0].String()) {
			continue
		}
		change := external.ParseFloat(strings.ReplaceAll(r[3].String(), " ", ""))
		if !change.Valid {
			change.SetValid(0)
		}
		quotes = append(quotes, contracts.Quote{
			Code:   r[0].String(),
			Name:   strings.TrimSpace(r[1].String()),
			Close:  external.ParseFloat(r[2].String()),
			Change: change,
			Open:   external.ParseFloat(r[4].String()),
			High:   external.ParseFloat(r[5].String()),
			Low:    external.ParseFloat(r[6].String()),
			Volume: external.ParseInt(r[7].String()),
			Value:  external.ParseInt(r[8].String()),
		})
	}
	return quotes
}

// parseReductions reads revivt rows: ROC date, code, name, old price, new price, ..., reason
func parseReductions(rows []gjson.Result) []contracts.ReductionEvent {
	var events []contracts.ReductionEvent
	for _, row := range rows {
		r := row.Array()
		if len(r) < 5 || !external.IsStockCode(r[1].String()) {
			continue
		}
		date, err := external.ParseROCDate(r[0].String())
		if err != nil {
			continue
		}
		oldPrice := external.ParseFloat(r[3].String())
		newPrice := external.ParseFloat(r[4].String())
		if !oldPrice.Valid || !newPrice.Valid {
			continue
		}
		ev := contracts.ReductionEvent{
			Code:          r[1].String(),
			Name:          strings.TrimSpace(r[2].String()),
			EffectiveDate: date,
			OldPrice:      oldPrice.Float64,
			NewPrice:      newPrice.Float64,
		}
		if len(r) > 9 {
			ev.Reason = strings.TrimSpace(r[9].String())
		}
		events = append(events, ev)
	}
	return events
}
