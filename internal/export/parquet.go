// Package export writes stored candlesticks to Parquet files for offline analysis.
package export

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/pkg/logger"
)

// Candle is one exported candlestick. Missing prices are written as nulls.
type Candle struct {
	Code   string    `parquet:"code,dict"`
	Date   time.Time `parquet:"date"`
	Open   *float64  `parquet:"open,optional"`
	High   *float64  `parquet:"high,optional"`
	Low    *float64  `parquet:"low,optional"`
	Close  *float64  `parquet:"close,optional"`
	Volume *int64    `parquet:"volume,optional"`
	Value  *int64    `parquet:"value,optional"`
	Change *float64  `parquet:"change,optional"`
}

// ToCandles converts the stored rows of one stock
func ToCandles(code string, rows []contracts.PriceHistory) []Candle {
	out := make([]Candle, len(rows))
	for i, r := range rows {
		out[i] = Candle{
			Code:   code,
			Date:   r.Date,
			Open:   r.Open.Ptr(),
			High:   r.High.Ptr(),
			Low:    r.Low.Ptr(),
			Close:  r.Close.Ptr(),
			Volume: r.Volume.Ptr(),
			Value:  r.Value.Ptr(),
			Change: r.Change.Ptr(),
		}
	}
	return out
}

// writer streams candles into one Snappy-compressed file
type writer struct {
	file *os.File
	pw   *parquet.GenericWriter[Candle]
}

func newWriter(path string) (*writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	pw := parquet.NewGenericWriter[Candle](f,
		parquet.Compression(&parquet.Snappy),
		parquet.PageBufferSize(64*1024),
	)
	return &writer{file: f, pw: pw}, nil
}

func (w *writer) write(rows []Candle) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := w.pw.Write(rows)
	return err
}

// close flushes the footer before the file
func (w *writer) close() error {
	if err := w.pw.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

// WritePriceHistory writes rows to path, replacing any existing file
func WritePriceHistory(path string, rows []Candle) error {
	w, err := newWriter(path)
	if err != nil {
		return err
	}
	if err := w.write(rows); err != nil {
		w.close()
		return fmt.Errorf("parquet write error: %w", err)
	}
	return w.close()
}

// ReadPriceHistory loads a file written by WritePriceHistory
func ReadPriceHistory(path string) ([]Candle, error) {
	rows, err := parquet.ReadFile[Candle](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// Reader is the part of the store an export reads
type Reader interface {
	GetStockByCode(ctx context.Context, code string) (*contracts.Stock, bool, error)
	ListStocks(ctx context.Context, f contracts.StockFilter) ([]contracts.Stock, error)
	ListPriceHistory(ctx context.Context, period contracts.Period, stockID int64, f contracts.HistoryFilter) ([]contracts.PriceHistory, error)
}

// Exporter dumps candlesticks from the store
type Exporter struct {
	reader Reader
	logger *logger.Logger
}

// NewExporter creates an exporter
func NewExporter(reader Reader, log *logger.Logger) *Exporter {
	return &Exporter{reader: reader, logger: log.WithField("module", "export")}
}

// Query selects what an export writes. An empty Codes list exports every stock of Market.
type Query struct {
	Codes  []string
	Market contracts.Market
	Period contracts.Period
	From   time.Time
	To     time.Time
}

// Export writes the selected candlesticks to path stock by stock and returns the row count
func (e *Exporter) Export(ctx context.Context, path string, q Query) (int, error) {
	if !q.Period.IsCandlestick() {
		return 0, fmt.Errorf("period %q has no candlesticks", q.Period)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return 0, contracts.RangeError("from %s is after to %s", calendar.FormatDate(q.From), calendar.FormatDate(q.To))
	}

	stocks, err := e.stocks(ctx, q)
	if err != nil {
		return 0, err
	}

	w, err := newWriter(path)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, st := range stocks {
		rows, err := e.reader.ListPriceHistory(ctx, q.Period, st.ID, contracts.HistoryFilter{From: q.From, To: q.To})
		if err != nil {
			w.close()
			return total, fmt.Errorf("list %s history of %s: %w", q.Period, st.Code, err)
		}
		if err := w.write(ToCandles(st.Code, rows)); err != nil {
			w.close()
			return total, fmt.Errorf("parquet write error: %w", err)
		}
		total += len(rows)
	}
	if err := w.close(); err != nil {
		return total, err
	}

	e.logger.WithFields(map[string]interface{}{
		"path":   path,
		"period": string(q.Period),
		"stocks": len(stocks),
		"rows":   total,
	}).Info("Price history exported")
	return total, nil
}

func (e *Exporter) stocks(ctx context.Context, q Query) ([]contracts.Stock, error) {
	if len(q.Codes) == 0 {
		stocks, err := e.reader.ListStocks(ctx, contracts.StockFilter{Market: q.Market})
		if err != nil {
			return nil, fmt.Errorf("list stocks: %w", err)
		}
		return stocks, nil
	}

	out := make([]contracts.Stock, 0, len(q.Codes))
	for _, code := range q.Codes {
		st, ok, err := e.reader.GetStockByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("get stock %s: %w", code, err)
		}
		if !ok {
			return nil, fmt.Errorf("stock %s: %w", code, contracts.ErrNotFound)
		}
		out = append(out, *st)
	}
	return out, nil
}
