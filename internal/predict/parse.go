package predict

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// clampScore bounds a confidence score to [0, 1].
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parseMoney reads a monetary field that may carry a currency symbol and
// thousands separators ("$60,000.00").
func parseMoney(raw string) (float64, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return 0, fmt.Errorf("empty amount")
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable amount %q", raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative amount %q", raw)
	}
	return v, nil
}

var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// parseDate reads the date formats the USAC datasets are known to emit.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func parseYear(raw string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || y < 1990 || y > 2100 {
		return 0, fmt.Errorf("unparseable funding year %q", raw)
	}
	return y, nil
}

// formatMoney renders a whole-dollar amount with thousands separators for
// prediction reasons ("$60,000").
func formatMoney(v float64) string {
	n := int64(v + 0.5)
	neg := n < 0
	if neg {
		n = -n
	}

	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}

	out := "$" + b.String()
	if neg {
		out = "-" + out
	}
	return out
}

// percentOf renders part/total as a whole percentage, guarding zero totals.
func percentOf(part, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(part/total*100 + 0.5)
}
