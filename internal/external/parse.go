package external

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// ParseFloat parses a thousands-separated number. Placeholders such as
// "--" or "" yield null.
func ParseFloat(s string) null.Float {
	v, err := strconv.ParseFloat(clean(s), 64)
	if err != nil {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

// ParseInt parses a thousands-separated integer. Placeholders yield null.
func ParseInt(s string) null.Int {
	v, err := strconv.ParseInt(clean(s), 10, 64)
	if err != nil {
		return null.Int{}
	}
	return null.IntFrom(v)
}

func clean(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}

// StripSpace removes every whitespace rune, including full-width spaces inside labels
func StripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// IsStockCode reports whether code is a four character common stock code
func IsStockCode(code string) bool {
	return len(code) == 4
}

// ROCYear converts a Gregorian year to the Republic of China calendar
func ROCYear(year int) int {
	return year - 1911
}

// ROCDate formats d as yyy/mm/dd in the ROC calendar
func ROCDate(d time.Time) string {
	return fmt.Sprintf("%d/%02d/%02d", ROCYear(d.Year()), int(d.Month()), d.Day())
}

// ParseROCDate parses yyymmdd or yyy/mm/dd in the ROC calendar
func ParseROCDate(s string) (time.Time, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", "")
	if len(s) != 7 {
		return time.Time{}, fmt.Errorf("invalid ROC date %q", s)
	}
	y, errY := strconv.Atoi(s[0:3])
	m, errM := strconv.Atoi(s[3:5])
	d, errD := strconv.Atoi(s[5:7])
	if errY != nil || errM != nil || errD != nil || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("invalid ROC date %q", s)
	}
	return time.Date(y+1911, time.Month(m), d, 0, 0, 0, 0, time.UTC), nil
}
