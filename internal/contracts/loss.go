package contracts

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// LossKind is the unit of work a loss refers to
type LossKind string

const (
	LossListing         LossKind = "listing"
	LossDailyHistory    LossKind = "daily_history"
	LossIncomeStatement LossKind = "income_statement"
	LossBalanceSheet    LossKind = "balance_sheet"
	LossMonthlyRevenue  LossKind = "monthly_revenue"
	LossReduction       LossKind = "capital_reduction"
)

// Loss is a fetch unit that exhausted its retries and must be patched later
type Loss struct {
	Kind   LossKind  `json:"kind"`
	Market Market    `json:"market,omitempty"`
	Code   string    `json:"code,omitempty"`
	Date   time.Time `json:"date"`
	Year   int       `json:"year,omitempty"`
	Season int       `json:"season,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

func (l Loss) String() string {
	var b strings.Builder
	b.WriteString(string(l.Kind))
	if l.Market != "" {
		b.WriteString(" " + string(l.Market))
	}
	if l.Code != "" {
		b.WriteString(" " + l.Code)
	}
	if l.Season > 0 {
		fmt.Fprintf(&b, " %dQ%d", l.Year, l.Season)
	} else if !l.Date.IsZero() {
		b.WriteString(" " + l.Date.Format("2006-01-02"))
	}
	if l.Reason != "" {
		b.WriteString(": " + l.Reason)
	}
	return b.String()
}

// LossLog collects losses of one run. Safe for concurrent use.
type LossLog struct {
	mu     sync.Mutex
	losses []Loss
}

// Add records a loss
func (l *LossLog) Add(loss Loss) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.losses = append(l.losses, loss)
}

// Len returns the number of recorded losses
func (l *LossLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.losses)
}

// Losses returns a copy ordered by kind, code, then date
func (l *LossLog) Losses() []Loss {
	l.mu.Lock()
	out := make([]Loss, len(l.losses))
	copy(out, l.losses)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Reset drops every recorded loss
func (l *LossLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.losses = nil
}
