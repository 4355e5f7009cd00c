package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// splitSpan splits "15m" into (15, "m").
func splitSpan(s string) (int, string, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return 0, "", fmt.Errorf("invalid span %q", s)
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n < 1 {
		return 0, "", fmt.Errorf("invalid span %q", s)
	}
	return n, s[i:], nil
}

// PeriodStart returns the start of a lookback period ("5d", "1mo", "ytd",
// "max") ending at now. "max" returns the zero time.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch strings.ToLower(period) {
	case "max":
		return time.Time{}, nil
	case "ytd":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), nil
	}

	n, unit, err := splitSpan(strings.ToLower(period))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse period: %w", err)
	}

	switch unit {
	case "d":
		return now.AddDate(0, 0, -n), nil
	case "wk":
		return now.AddDate(0, 0, -7*n), nil
	case "mo":
		return now.AddDate(0, -n, 0), nil
	case "y":
		return now.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("parse period: unknown unit %q in %q", unit, period)
	}
}

// IntervalDuration returns the bar width of an interval ("1m", "1h", "1d",
// "1wk", "1mo"). Months count as 30 days.
func IntervalDuration(interval string) (time.Duration, error) {
	n, unit, err := splitSpan(strings.ToLower(interval))
	if err != nil {
		return 0, fmt.Errorf("parse interval: %w", err)
	}

	day := 24 * time.Hour
	switch unit {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * day, nil
	case "wk":
		return time.Duration(n) * 7 * day, nil
	case "mo":
		return time.Duration(n) * 30 * day, nil
	default:
		return 0, fmt.Errorf("parse interval: unknown unit %q in %q", unit, interval)
	}
}
