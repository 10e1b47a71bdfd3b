// Package twse fetches Taiwan Stock Exchange (上市) daily quotes and listings.
package twse

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
	indexPath = "/exchangeReport/MI_INDEX"

	// snapshotType is every stock except warrants
	snapshotType = "ALLBUT0999"

	// snapshotColumns is the width of the per-stock quote table
	snapshotColumns = 16
)

// Categories are the TSE industry query codes
var Categories = []contracts.Category{
	{Code: "01", Name: "水泥工業"}, {Code: "02", Name: "食品工業"}, {Code: "03", Name: "塑膠工業"},
	{Code: "04", Name: "紡織纖維"}, {Code: "05", Name: "電機機械"}, {Code: "06", Name: "電器電纜"},
	{Code: "08", Name: "玻璃陶瓷"}, {Code: "09", Name: "造紙工業"}, {Code: "10", Name: "鋼鐵工業"},
	{Code: "11", Name: "橡膠工業"}, {Code: "12", Name: "汽車工業"}, {Code: "14", Name: "建材營造"},
	{Code: "15", Name: "航運業"}, {Code: "16", Name: "觀光事業"}, {Code: "17", Name: contracts.CategoryFinance},
	{Code: "18", Name: "貿易百貨"}, {Code: "20", Name: "其他"}, {Code: "21", Name: "化學工業"},
	{Code: "22", Name: "生技醫療業"}, {Code: "23", Name: "油電燃氣業"}, {Code: "24", Name: "半導體業"},
	{Code: "25", Name: "電腦及週邊設備業"}, {Code: "26", Name: "光電業"}, {Code: "27", Name: "通信網路業"},
	{Code: "28", Name: "電子零組件業"}, {Code: "29", Name: "電子通路業"}, {Code: "30", Name: "資訊服務業"},
	{Code: "31", Name: "其他電子業"}, {Code: "0099P", Name: contracts.CategoryETF},
}

// Client handles communication with the TWSE website
// ⭐ SSOT: 上市 시세 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	pacer      external.Doer
}

// NewClient creates a TWSE client. Every request runs under pacer.
func NewClient(httpClient *httputil.Client, pacer external.Doer, log *logger.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "twse"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		pacer:      pacer,
	}
}

// Market returns the market this client serves
func (c *Client) Market() contracts.Market {
	return contracts.MarketTSE
}

// FetchDailySnapshot fetches every stock's quote of date in one request
func (c *Client) FetchDailySnapshot(ctx context.Context, date time.Time) ([]contracts.Quote, error) {
	var quotes []contracts.Quote
	err := c.pacer.Do(ctx, "twse snapshot "+date.Format("2006-01-02"), func(ctx context.Context) error {
		body, err := c.fetchIndex(ctx, date, snapshotType)
		if err != nil {
			return err
		}
		rows, ok := findTable(body, func(n int) bool { return n == snapshotColumns })
		if !ok {
			return contracts.FetchError("twse", fmt.Errorf("no quote table for %s", date.Format("2006-01-02")))
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
		err := c.pacer.Do(ctx, "twse category "+cat.Name, func(ctx context.Context) error {
			body, err := c.fetchIndex(ctx, date, cat.Code)
			if err != nil {
				return err
			}
			rows, ok := findTable(body, func(n int) bool { return n >= snapshotColumns })
			if !ok {
				return contracts.FetchError("twse", fmt.Errorf("no table for category %s", cat.Name))
			}
			stocks = parseListing(rows)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}
		listing[cat.Name] = stocks
		c.logger.WithFields(map[string]interface{}{
			"category": cat.Name,
			"count":    len(stocks),
		}).Debug("Fetched category")
	}
	return listing, nil
}

func (c *Client) fetchIndex(ctx context.Context, date time.Time, typ string) ([]byte, error) {
	params := url.Values{
		"response": {"json"},
		"lang":     {"zh"},
		"date":     {date.Format("20060102")},
		"type":     {typ},
	}
	body, err := c.httpClient.GetBytes(ctx, c.baseURL+indexPath, params)
	if err != nil {
		return nil, contracts.FetchError("twse", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, contracts.FetchError("twse", fmt.Errorf("malformed payload"))
	}
	return body, nil
}

// findTable locates the data rows whose header width satisfies match.
// Older payloads carry fieldsN/dataN pairs; newer ones a tables array.
func findTable(body []byte, match func(int) bool) ([]gjson.Result, bool) {
	doc := gjson.ParseBytes(body)

	var rows []gjson.Result
	found := false
	doc.ForEach(func(key, value gjson.Result) bool {
		k := strings.ToLower(key.String())
		if !strings.HasPrefix(k, "fields") || !match(len(value.Array())) {
			return true
		}
		rows = doc.Get("data" + strings.TrimPrefix(k, "fields")).Array()
		found = true
		return false
	})
	if found {
		return rows, true
	}

	for _, table := range doc.Get("tables").Array() {
		if match(len(table.Get("fields").Array())) && table.Get("data").Exists() {
			return table.Get("data").Array(), true
		}
	}
	return nil, false
}

func parseQuotes(rows []gjson.Result) []contracts.Quote {
	quotes := make([]contracts.Quote, 0, len(rows))
	for _, row := range rows {
		r := row.Array()
		if len(r) < 11 || !external.IsStockCode(r[0].String()) {
			continue
		}
		change := external.ParseFloat(r[10].String())
		if change.Valid {
			change.Float64 = float64(direction(r[9].String())) * change.Float64
		}
		quotes = append(quotes, contracts.Quote{
			Code:   r[0].String(),
			Name:   strings.TrimSpace(r[1].String()),
			Volume: external.ParseInt(r[2].String()),
			Value:  external.ParseInt(r[4].String()),
			Open:   external.ParseFloat(r[5].String()),
			High:   external.ParseFloat(r[6].String()),
			Low:    external.ParseFloat(r[7].String()),
			Close:  external.ParseFloat(r[8].String()),
			Change: change,
		})
	}
	return quotes
}

func parseListing(rows []gjson.Result) []contracts.ListedStock {
	var stocks []contracts.ListedStock
	for _, row := range rows {
		r := row.Array()
		if len(r) < 2 || !external.IsStockCode(r[0].String()) {
			continue
		}
		stocks = append(stocks, contracts.ListedStock{Code: r[0].String(), Name: strings.TrimSpace(r[1].String())})
	}
	return stocks
}

// direction decodes the sign column, an HTML fragment such as
// <p style= color:green>-</p>. A single space means unchanged.
func direction(s string) int {
	switch {
	case s == " " || s == "":
		return 0
	case strings.Contains(s, "-"):
		return -1
	default:
		return 1
	}
}
