package mops

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/external"
)

// FetchMonthlyRevenue fetches the revenue, in thousands of NTD, of every stock
// of market for one month. The pages are Big5 encoded.
func (c *Client) FetchMonthlyRevenue(ctx context.Context, market contracts.Market, year, month int) (map[string]int64, error) {
	tk, err := typek(market)
	if err != nil {
		return nil, err
	}
	target := fmt.Sprintf("%s/nas/t21/%s/t21sc03_%d_%d_0.html", c.baseURL, tk, external.ROCYear(year), month)

	var revenue map[string]int64
	err = c.pacer.Do(ctx, fmt.Sprintf("revenue %s %d-%02d", market, year, month), func(ctx context.Context) error {
		body, err := c.httpClient.GetBytes(ctx, target, nil)
		if err != nil {
			return contracts.FetchError("mops", err)
		}
		revenue, err = parseRevenue(body)
		if err != nil {
			return contracts.FetchError("mops", err)
		}
		if len(revenue) == 0 {
			return contracts.FetchError("mops", fmt.Errorf("no revenue rows for %d-%02d", year, month))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"market": market,
		"month":  fmt.Sprintf("%d-%02d", year, month),
		"count":  len(revenue),
	}).Debug("Fetched monthly revenue")
	return revenue, nil
}

// parseRevenue reads the code, name and revenue cells of every data row
func parseRevenue(body []byte) (map[string]int64, error) {
	reader := transform.NewReader(bytes.NewReader(body), traditionalchinese.Big5.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64)
	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 3 {
			return
		}
		code := strings.TrimSpace(cells.Eq(0).Text())
		if !external.IsStockCode(code) {
			return
		}
		v := external.ParseInt(cells.Eq(2).Text())
		if !v.Valid {
			return
		}
		out[code] = v.Int64
	})
	return out, nil
}
