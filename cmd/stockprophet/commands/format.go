package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/mattn/go-runewidth"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const lineWidth = 59

// PrintHeader prints a titled block with key/value lines
func PrintHeader(w io.Writer, title string, fields [][2]string) {
	fmt.Fprintln(w)
	PrintDoubleSeparator(w)
	fmt.Fprintf(w, "  %s\n", title)
	if len(fields) > 0 {
		PrintSeparator(w)
		keyWidth := 0
		for _, f := range fields {
			keyWidth = max(keyWidth, runewidth.StringWidth(f[0]))
		}
		for _, f := range fields {
			PrintKeyValue(w, f[0], f[1], keyWidth)
		}
	}
	PrintSeparator(w)
}

// PrintSeparator prints a visual separator
func PrintSeparator(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("─", lineWidth))
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("═", lineWidth))
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(w io.Writer, key, value string, keyWidth int) {
	fmt.Fprintf(w, "   %s : %s\n", pad(key, keyWidth), value)
}

// PrintTable prints a header, a rule and the rows. Widths grow to fit the
// widest cell; CJK names count double.
func PrintTable(w io.Writer, columns []string, rows [][]string) {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = runewidth.StringWidth(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(cell))
			}
		}
	}

	printRow(w, columns, widths)
	total := 0
	for _, width := range widths {
		total += width
	}
	fmt.Fprintln(w, strings.Repeat("─", total+2*(len(widths)-1)))
	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, values []string, widths []int) {
	cells := make([]string, len(values))
	for i, v := range values {
		if i == len(values)-1 {
			cells[i] = v
			continue
		}
		cells[i] = pad(v, widths[i])
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
}

// pad right-fills s with spaces to the display width n
func pad(s string, n int) string {
	return runewidth.FillRight(s, n)
}

// formatFloat prints a nullable number with 2 decimals, "-" when absent
func formatFloat(f null.Float) string {
	if !f.Valid {
		return "-"
	}
	return strconv.FormatFloat(f.Float64, 'f', 2, 64)
}

// formatInt prints a nullable integer, "-" when absent
func formatInt(i null.Int) string {
	if !i.Valid {
		return "-"
	}
	return strconv.FormatInt(i.Int64, 10)
}

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
