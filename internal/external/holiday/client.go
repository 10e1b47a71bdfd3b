// Package holiday reads the market holiday calendar feed.
package holiday

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/pkg/httputil"
	"github.com/stockprophet/backend/pkg/logger"
)

// Client fetches the holiday and makeup trading day lists
// ⭐ SSOT: 휴장일 데이터는 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	url        string
}

// NewClient creates a holiday feed client
func NewClient(httpClient *httputil.Client, log *logger.Logger, url string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "holiday"),
		url:        url,
	}
}

// Fetch downloads the calendar. Without it no task can decide trading days,
// so any failure is returned as ErrRemoteFetch.
func (c *Client) Fetch(ctx context.Context) (calendar.Holidays, error) {
	body, err := c.httpClient.GetBytes(ctx, c.url, nil)
	if err != nil {
		return calendar.Holidays{}, contracts.FetchError("holiday", err)
	}
	return Parse(body)
}

// Parse decodes the market_holiday and additional_trading_day arrays
func Parse(body []byte) (calendar.Holidays, error) {
	if !gjson.ValidBytes(body) {
		return calendar.Holidays{}, contracts.FetchError("holiday", fmt.Errorf("malformed payload"))
	}
	doc := gjson.ParseBytes(body)
	closed, err := dates(doc.Get("market_holiday"))
	if err != nil {
		return calendar.Holidays{}, contracts.FetchError("holiday", err)
	}
	makeup, err := dates(doc.Get("additional_trading_day"))
	if err != nil {
		return calendar.Holidays{}, contracts.FetchError("holiday", err)
	}
	return calendar.NewHolidays(closed, makeup), nil
}

func dates(v gjson.Result) ([]time.Time, error) {
	var out []time.Time
	for _, item := range v.Array() {
		d, err := calendar.ParseDate(item.String())
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
