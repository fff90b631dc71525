package analytics

import (
	"sort"
	"strings"

	"github.com/mikepea/linkcash/pkg/linkcash/models"
)

// DateLayout is the bucket key of the date histogram.
const DateLayout = "2006-01-02"

// CountryStat is the per-country slice of a summary.
type CountryStat struct {
	Count    int64   `json:"count"`
	Earnings float64 `json:"earnings"`
}

// Summary is the fold of a set of click events.
type Summary struct {
	TotalClicks   int64                  `json:"total_clicks"`
	TotalEarnings float64                `json:"total_earnings"`
	ClicksByDate  map[string]int64       `json:"clicks_by_date"`
	Countries     map[string]CountryStat `json:"country_stats"`
	Browsers      map[string]int64       `json:"browser_stats"`
	OSes          map[string]int64       `json:"os_stats"`
	Devices       map[string]int64       `json:"device_stats"`
	LinkClicks    map[string]int64       `json:"-"`
	LinkEarnings  map[string]float64     `json:"-"`
}

// SortEvents orders events by (timestamp, id) in place.
func SortEvents(events []models.Click) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.ID < b.ID
	})
}

// Fold reduces events to a Summary. The input is not modified. Events
// are folded in (timestamp, id) order so the floating point sums do not
// depend on the order the store returned them in.
func Fold(events []models.Click) Summary {
	sorted := make([]models.Click, len(events))
	copy(sorted, events)
	SortEvents(sorted)

	s := Summary{
		ClicksByDate: map[string]int64{},
		Countries:    map[string]CountryStat{},
		Browsers:     map[string]int64{},
		OSes:         map[string]int64{},
		Devices:      map[string]int64{},
		LinkClicks:   map[string]int64{},
		LinkEarnings: map[string]float64{},
	}
	for _, e := range sorted {
		s.TotalClicks++
		s.TotalEarnings += e.Earned
		s.ClicksByDate[e.OccurredAt.UTC().Format(DateLayout)]++

		country := models.BreakdownKey(e.Country)
		cs := s.Countries[country]
		cs.Count++
		cs.Earnings += e.Earned
		s.Countries[country] = cs

		s.Browsers[models.BreakdownKey(e.Browser)]++
		s.OSes[models.BreakdownKey(e.OS)]++
		s.Devices[orUnknown(e.Device)]++

		s.LinkClicks[e.LinkID]++
		s.LinkEarnings[e.LinkID] += e.Earned
	}
	return s
}

// CountryCounts flattens the country map for ranking.
func (s Summary) CountryCounts() map[string]int64 {
	out := make(map[string]int64, len(s.Countries))
	for k, v := range s.Countries {
		out[k] = v.Count
	}
	return out
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return models.Unknown
	}
	return v
}
