package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mikepea/linkcash/pkg/linkcash/metrics"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"go.uber.org/zap"
)

// RecentClicksLimit caps the click list returned with click stats.
const RecentClicksLimit = 100

// ErrAggregationUnavailable is returned when a read path cannot reach
// the store. No partial result accompanies it.
var ErrAggregationUnavailable = errors.New("aggregation unavailable")

// Store is what the engine reads from.
type Store interface {
	MaxInSet() int
	GetLink(ctx context.Context, id string) (*models.Link, error)
	QueryLinks(ctx context.Context, q store.LinkQuery) ([]models.Link, error)
	QueryClicks(ctx context.Context, q store.ClickQuery) ([]models.Click, error)
}

// LinkStats is the snapshot view of a single link.
type LinkStats struct {
	Clicks         int64      `json:"clicks"`
	UniqueVisitors int64      `json:"unique_visitors"`
	Earnings       float64    `json:"earnings"`
	LastClickedAt  *time.Time `json:"last_clicked_at,omitempty"`
}

// ClickStats is the windowed event view of a single link.
type ClickStats struct {
	Period       Period         `json:"period"`
	Since        *time.Time     `json:"since,omitempty"`
	TopCountries []Ranked       `json:"top_countries"`
	Clicks       []models.Click `json:"clicks"`
	Summary
}

// LinkRank is an entry of the top links view.
type LinkRank struct {
	ID       string  `json:"id"`
	Code     string  `json:"code"`
	Title    string  `json:"title"`
	Clicks   int64   `json:"clicks"`
	Earnings float64 `json:"earnings"`
}

// UserAnalytics is the windowed view across every link of an owner.
type UserAnalytics struct {
	Period        Period           `json:"period"`
	Since         *time.Time       `json:"since,omitempty"`
	TotalLinks    int              `json:"total_links"`
	TotalClicks   int64            `json:"total_clicks"`
	TotalEarnings float64          `json:"total_earnings"`
	ClicksByDate  map[string]int64 `json:"clicks_by_date"`
	TopLinks      []LinkRank       `json:"top_links"`
	TopCountries  []Ranked         `json:"top_countries"`
}

// Engine answers read-side analytics queries.
type Engine struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewEngine(st Store, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Engine{store: st, logger: logger, metrics: m, now: time.Now}
}

// SetClock replaces the time source used to compute windows.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) observe(view string) func() {
	start := time.Now()
	return func() {
		e.metrics.AggregationDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) unavailable(view string, err error, fields ...zap.Field) error {
	e.metrics.AggregationFailures.WithLabelValues(view).Inc()
	e.logger.Error("aggregation failed", append(fields, zap.String("view", view), zap.Error(err))...)
	return fmt.Errorf("%w: %s: %v", ErrAggregationUnavailable, view, err)
}

// GetLinkStats reads a link's analytics snapshot. A link that does not
// exist reports zero stats and no error.
func (e *Engine) GetLinkStats(ctx context.Context, linkID string) (LinkStats, error) {
	defer e.observe("link_stats")()

	link, err := e.store.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LinkStats{}, nil
		}
		return LinkStats{}, e.unavailable("link_stats", err, zap.String("link_id", linkID))
	}
	return LinkStats{
		Clicks:         link.Analytics.Clicks,
		UniqueVisitors: link.Analytics.UniqueVisitors,
		Earnings:       link.Analytics.Earnings,
		LastClickedAt:  link.Analytics.LastClickedAt,
	}, nil
}

// GetClickStats folds a link's events within period.
func (e *Engine) GetClickStats(ctx context.Context, linkID string, period Period) (*ClickStats, error) {
	defer e.observe("click_stats")()

	since := period.Since(e.now())
	events, err := e.store.QueryClicks(ctx, store.ClickQuery{LinkIDs: []string{linkID}, Since: since})
	if err != nil {
		return nil, e.unavailable("click_stats", err, zap.String("link_id", linkID))
	}

	summary := Fold(events)
	SortEvents(events)
	recent := make([]models.Click, 0, min(len(events), RecentClicksLimit))
	for i := len(events) - 1; i >= 0 && len(recent) < RecentClicksLimit; i-- {
		recent = append(recent, events[i])
	}

	return &ClickStats{
		Period:       period,
		Since:        since,
		TopCountries: Rank(summary.CountryCounts(), TopN),
		Clicks:       recent,
		Summary:      summary,
	}, nil
}

// GetUserAnalytics folds the events of every link userID owns. Link ids
// are queried in batches no larger than the store's in-set limit.
func (e *Engine) GetUserAnalytics(ctx context.Context, userID string, period Period) (*UserAnalytics, error) {
	defer e.observe("user_analytics")()

	since := period.Since(e.now())
	result := &UserAnalytics{
		Period:       period,
		Since:        since,
		ClicksByDate: map[string]int64{},
		TopLinks:     []LinkRank{},
		TopCountries: []Ranked{},
	}

	owned, err := e.store.QueryLinks(ctx, store.LinkQuery{OwnerID: userID})
	if err != nil {
		return nil, e.unavailable("user_analytics", err, zap.String("user_id", userID))
	}
	if len(owned) == 0 {
		return result, nil
	}

	ids := make([]string, len(owned))
	for i, l := range owned {
		ids[i] = l.ID
	}

	var events []models.Click
	for _, batch := range chunk(ids, e.store.MaxInSet()) {
		found, err := e.store.QueryClicks(ctx, store.ClickQuery{LinkIDs: batch, Since: since})
		if err != nil {
			return nil, e.unavailable("user_analytics", err, zap.String("user_id", userID))
		}
		events = append(events, found...)
	}

	summary := Fold(events)
	result.TotalLinks = len(owned)
	result.TotalClicks = summary.TotalClicks
	result.TotalEarnings = summary.TotalEarnings
	result.ClicksByDate = summary.ClicksByDate
	result.TopCountries = Rank(summary.CountryCounts(), TopN)
	result.TopLinks = topLinks(owned, summary, TopN)
	return result, nil
}

// topLinks ranks every owned link by windowed clicks, including links
// with no clicks in the window. Ties are broken by link id.
func topLinks(owned []models.Link, s Summary, n int) []LinkRank {
	ranked := make([]LinkRank, len(owned))
	for i, l := range owned {
		ranked[i] = LinkRank{
			ID:       l.ID,
			Code:     l.Code,
			Title:    l.Title,
			Clicks:   s.LinkClicks[l.ID],
			Earnings: s.LinkEarnings[l.ID],
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Clicks != ranked[j].Clicks {
			return ranked[i].Clicks > ranked[j].Clicks
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = store.DefaultMaxInSet
	}
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
