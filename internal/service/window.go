package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
)

// Window is a closed [From, To] instant range used to filter deliveries.
type Window struct {
	From time.Time
	To   time.Time
}

const (
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
	PeriodYear    = "year"

	trailingWindow = 30 * 24 * time.Hour
)

// ResolveWindow turns a period tag or explicit bounds into a concrete range.
// Explicit bounds take precedence over the period tag; with neither present
// the window is the trailing 30 days ending now.
func ResolveWindow(period, start, end string, now time.Time) (Window, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if start != "" || end != "" {
		from, err := parseWindowBound(start)
		if err != nil {
			return Window{}, err
		}
		to, err := parseWindowBound(end)
		if err != nil {
			return Window{}, err
		}
		return Window{From: from, To: to}, nil
	}

	switch strings.ToLower(strings.TrimSpace(period)) {
	case PeriodMonth:
		return monthWindow(now), nil
	case PeriodQuarter:
		return quarterWindow(now), nil
	case PeriodYear:
		return yearWindow(now), nil
	case "":
		return Window{From: now.Add(-trailingWindow), To: now}, nil
	default:
		return Window{}, fmt.Errorf("%w: unknown period %q", domain.ErrInvalidDate, period)
	}
}

func parseWindowBound(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q is not RFC3339 or YYYY-MM-DD", domain.ErrInvalidDate, value)
}

func monthWindow(now time.Time) Window {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return Window{From: from, To: to}
}

func quarterWindow(now time.Time) Window {
	quarterStart := time.Month(((int(now.Month())-1)/3)*3 + 1)
	from := time.Date(now.Year(), quarterStart, 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 3, 0).Add(-time.Nanosecond)
	return Window{From: from, To: to}
}

func yearWindow(now time.Time) Window {
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(1, 0, 0).Add(-time.Nanosecond)
	return Window{From: from, To: to}
}
