package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Period selects the window of events an aggregation covers.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

var ErrInvalidPeriod = errors.New("invalid period")

// ParsePeriod accepts day, week, month, year and all. An empty string
// means all.
func ParsePeriod(raw string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case "":
		return PeriodAll, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear, PeriodAll:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
}

// Since returns the inclusive lower bound of the window ending at now,
// or nil when the period is unbounded.
func (p Period) Since(now time.Time) *time.Time {
	var since time.Time
	now = now.UTC()
	switch p {
	case PeriodDay:
		since = now.AddDate(0, 0, -1)
	case PeriodWeek:
		since = now.AddDate(0, 0, -7)
	case PeriodMonth:
		since = now.AddDate(0, -1, 0)
	case PeriodYear:
		since = now.AddDate(-1, 0, 0)
	default:
		return nil
	}
	return &since
}
