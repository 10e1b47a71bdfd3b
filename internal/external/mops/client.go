// Package mops fetches fundamentals from the Market Observation Post System.
package mops

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/external"
	"github.com/stockprophet/backend/pkg/httputil"
	"github.com/stockprophet/backend/pkg/logger"
)

const (
	incomePath  = "/mops/web/ajax_t164sb04"
	balancePath = "/mops/web/ajax_t164sb03"
)

// Step selects the report layout. Financial companies publish StepFinance.
type Step string

const (
	StepGeneral Step = "1"
	StepFinance Step = "2"
)

// StepFor picks the report layout of a stock
func StepFor(code, category string) Step {
	if category == contracts.CategoryFinance || code == "2841" {
		return StepFinance
	}
	return StepGeneral
}

// typek maps a market to the MOPS TYPEK form value
func typek(m contracts.Market) (string, error) {
	switch m {
	case contracts.MarketTSE:
		return "sii", nil
	case contracts.MarketOTC:
		return "otc", nil
	default:
		return "", fmt.Errorf("unsupported market %q", m)
	}
}

// Client handles communication with MOPS
// ⭐ SSOT: 財報/月營收 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	pacer      external.Doer
}

// NewClient creates a MOPS client. Every request runs under pacer.
func NewClient(httpClient *httputil.Client, pacer external.Doer, log *logger.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "mops"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		pacer:      pacer,
	}
}

// FetchIncomeStatement fetches one season of income statement figures
func (c *Client) FetchIncomeStatement(ctx context.Context, market contracts.Market, code string, year, season int, step Step) (*contracts.IncomeStatement, error) {
	var out *contracts.IncomeStatement
	what := fmt.Sprintf("income %s %dQ%d", code, year, season)
	err := c.pacer.Do(ctx, what, func(ctx context.Context) error {
		doc, err := c.postStatement(ctx, incomePath, market, code, year, season, step)
		if err != nil {
			return err
		}
		raw := statementRows(doc, incomeValueStyle)
		s, ok := translateIncome(raw)
		if !ok {
			return contracts.FetchError("mops", fmt.Errorf("no income statement for %s", what))
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchBalanceSheet fetches one season of balance sheet figures
func (c *Client) FetchBalanceSheet(ctx context.Context, market contracts.Market, code string, year, season int, step Step) (*contracts.BalanceSheet, error) {
	var out *contracts.BalanceSheet
	what := fmt.Sprintf("balance %s %dQ%d", code, year, season)
	err := c.pacer.Do(ctx, what, func(ctx context.Context) error {
		doc, err := c.postStatement(ctx, balancePath, market, code, year, season, step)
		if err != nil {
			return err
		}
		raw := statementRows(doc, balanceValueStyle)
		b, ok := translateBalance(raw)
		if !ok {
			return contracts.FetchError("mops", fmt.Errorf("no balance sheet for %s", what))
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) postStatement(ctx context.Context, path string, market contracts.Market, code string, year, season int, step Step) (*goquery.Document, error) {
	tk, err := typek(market)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"encodeURIComponent": {"1"},
		"step":               {string(step)},
		"firstin":            {"1"},
		"co_id":              {code},
		"year":               {fmt.Sprintf("%d", external.ROCYear(year))},
		"season":             {fmt.Sprintf("%02d", season)},
		"TYPEK":              {tk},
	}
	body, err := c.httpClient.PostFormBytes(ctx, c.baseURL+path, form)
	if err != nil {
		return nil, contracts.FetchError("mops", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, contracts.FetchError("mops", err)
	}
	if IsOverrun(doc) {
		return nil, fmt.Errorf("mops %s: %w", code, contracts.ErrRateLimited)
	}
	return doc, nil
}

// IsOverrun reports whether the page is the "query too frequent" notice
func IsOverrun(doc *goquery.Document) bool {
	text := doc.Find("table tr td center").First().Text()
	return strings.Contains(strings.ToLower(text), "overrun") || strings.Contains(text, "查詢過於頻繁")
}

const (
	titleStyle        = "text-align:left;white-space:nowrap;"
	incomeValueStyle  = "text-align:right;"
	balanceValueStyle = "text-align:right;white-space:nowrap;"
)

// statementRows maps each row title of table.hasBorder to its first value cell,
// the current season's figure
func statementRows(doc *goquery.Document, valueStyle string) map[string]string {
	rows := make(map[string]string)
	doc.Find("table.hasBorder tr").Each(func(_ int, tr *goquery.Selection) {
		titles := tr.ChildrenFiltered(fmt.Sprintf("td[style=%q]", titleStyle))
		if titles.Length() != 1 {
			return
		}
		title := external.StripSpace(titles.Text())
		tr.ChildrenFiltered(fmt.Sprintf("td[style=%q]", valueStyle)).EachWithBreak(func(_ int, td *goquery.Selection) bool {
			v := external.StripSpace(td.Text())
			if v == "" {
				return true
			}
			rows[title] = v
			return false
		})
	})
	return rows
}
