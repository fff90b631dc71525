package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"github.com/mikepea/linkcash/pkg/linkcash/metrics"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"go.uber.org/zap"
)

const earningsTolerance = 1e-9

// ReconcileStore is what the reconciler reads and corrects.
type ReconcileStore interface {
	GetLink(ctx context.Context, id string) (*models.Link, error)
	QueryLinks(ctx context.Context, q store.LinkQuery) ([]models.Link, error)
	QueryClicks(ctx context.Context, q store.ClickQuery) ([]models.Click, error)
	MarkLinkCounted(ctx context.Context, id string) (bool, error)
	InsertVisitor(ctx context.Context, linkID, visitorHash string, at time.Time) (bool, error)
	ListBreakdowns(ctx context.Context, linkID string, dim models.Dimension) ([]models.Breakdown, error)
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
	IncrementLinkAnalytics(ctx context.Context, linkID string, d store.LinkDelta) error
	ReplaceBreakdowns(ctx context.Context, linkID string, rows []models.Breakdown) error
	SetUserStats(ctx context.Context, stats *models.UserStats) error
}

// BreakdownDiff is a breakdown key whose stored count differs from the
// event log.
type BreakdownDiff struct {
	Dimension models.Dimension `json:"dimension"`
	Key       string           `json:"key"`
	Stored    int64            `json:"stored"`
	Computed  int64            `json:"computed"`
}

// LinkReport compares a link's counters with its event log.
type LinkReport struct {
	LinkID     string               `json:"link_id"`
	Stored     models.LinkAnalytics `json:"stored"`
	Computed   models.LinkAnalytics `json:"computed"`
	Breakdowns []BreakdownDiff      `json:"breakdowns"`
	Diverged   bool                 `json:"diverged"`
	Repaired   bool                 `json:"repaired"`
}

// UserReport compares a user's stats with their links.
type UserReport struct {
	UserID   string           `json:"user_id"`
	Stored   models.UserStats `json:"stored"`
	Computed models.UserStats `json:"computed"`
	Diverged bool             `json:"diverged"`
	Repaired bool             `json:"repaired"`
}

// Reconciler recomputes denormalized counters from their sources and
// optionally overwrites the stored values.
type Reconciler struct {
	store   ReconcileStore
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewReconciler(st ReconcileStore, logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Reconciler{store: st, logger: logger, metrics: m}
}

// ReconcileLink rebuilds a link's snapshot and breakdowns from its
// click events.
func (r *Reconciler) ReconcileLink(ctx context.Context, linkID string, repair bool) (*LinkReport, error) {
	link, err := r.store.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, links.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to load link: %w", err)
	}

	events, err := r.store.QueryClicks(ctx, store.ClickQuery{LinkIDs: []string{linkID}})
	if err != nil {
		return nil, fmt.Errorf("failed to load click events: %w", err)
	}
	SortEvents(events)

	computed, visitors := computeAnalytics(events)
	report := &LinkReport{
		LinkID:     linkID,
		Stored:     link.Analytics,
		Computed:   computed,
		Breakdowns: []BreakdownDiff{},
	}

	rows := computeBreakdowns(linkID, events)
	for _, dim := range []models.Dimension{models.DimensionCountry, models.DimensionBrowser} {
		stored, err := r.store.ListBreakdowns(ctx, linkID, dim)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s breakdown: %w", dim, err)
		}
		report.Breakdowns = append(report.Breakdowns, diffBreakdowns(dim, stored, rows)...)
	}

	report.Diverged = !sameAnalytics(link.Analytics, computed) || len(report.Breakdowns) > 0
	if !report.Diverged {
		return report, nil
	}

	r.metrics.ReconciliationDivergences.WithLabelValues("link").Inc()
	r.logger.Warn("link counters diverged from event log",
		zap.String("link_id", linkID),
		zap.Int64("stored_clicks", link.Analytics.Clicks),
		zap.Int64("computed_clicks", computed.Clicks),
		zap.Int("breakdown_diffs", len(report.Breakdowns)),
	)
	if !repair {
		return report, nil
	}

	// Breakdowns go first: a failure there leaves the snapshot untouched
	// and the next run sees the same divergence.
	if err := r.store.ReplaceBreakdowns(ctx, linkID, rows); err != nil {
		return nil, fmt.Errorf("failed to correct breakdowns: %w", err)
	}
	for hash, firstSeen := range visitors {
		if _, err := r.store.InsertVisitor(ctx, linkID, hash, firstSeen); err != nil {
			return nil, fmt.Errorf("failed to restore visitor markers: %w", err)
		}
	}
	// The snapshot is corrected by the difference from what was read, so
	// clicks recorded since then keep their increments. A click whose event
	// was read but whose counters landed after GetLink is counted twice;
	// the next run corrects it.
	if err := r.store.IncrementLinkAnalytics(ctx, linkID, correction(link.Analytics, computed)); err != nil {
		return nil, fmt.Errorf("failed to correct link analytics: %w", err)
	}
	report.Repaired = true
	r.logger.Info("link counters repaired", zap.String("link_id", linkID))
	return report, nil
}

// ReconcileUser rebuilds a user's stats from the snapshots of the links
// they own. Uncounted links are marked counted before the totals are
// written so a late counting step cannot add them a second time.
func (r *Reconciler) ReconcileUser(ctx context.Context, userID string, repair bool) (*UserReport, error) {
	owned, err := r.store.QueryLinks(ctx, store.LinkQuery{OwnerID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to load links: %w", err)
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })

	computed := models.UserStats{UserID: userID, TotalLinks: int64(len(owned))}
	for _, l := range owned {
		computed.TotalClicks += l.Analytics.Clicks
		computed.TotalEarnings += l.Analytics.Earnings
	}

	stored := models.UserStats{UserID: userID}
	current, err := r.store.GetUserStats(ctx, userID)
	switch {
	case err == nil:
		stored = *current
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}

	report := &UserReport{UserID: userID, Stored: stored, Computed: computed}
	report.Diverged = stored.TotalLinks != computed.TotalLinks ||
		stored.TotalClicks != computed.TotalClicks ||
		math.Abs(stored.TotalEarnings-computed.TotalEarnings) > earningsTolerance
	if !report.Diverged {
		return report, nil
	}

	r.metrics.ReconciliationDivergences.WithLabelValues("user").Inc()
	r.logger.Warn("user stats diverged from links",
		zap.String("user_id", userID),
		zap.Int64("stored_links", stored.TotalLinks),
		zap.Int64("computed_links", computed.TotalLinks),
		zap.Int64("stored_clicks", stored.TotalClicks),
		zap.Int64("computed_clicks", computed.TotalClicks),
	)
	if !repair {
		return report, nil
	}

	for _, l := range owned {
		if l.OwnerCounted {
			continue
		}
		if _, err := r.store.MarkLinkCounted(ctx, l.ID); err != nil {
			return nil, fmt.Errorf("failed to mark link counted: %w", err)
		}
	}
	if err := r.store.SetUserStats(ctx, &computed); err != nil {
		return nil, fmt.Errorf("failed to correct user stats: %w", err)
	}
	report.Computed = computed
	report.Repaired = true
	r.logger.Info("user stats repaired", zap.String("user_id", userID))
	return report, nil
}

// correction is the delta that takes stored to computed. The last-click
// time is rewound only when the event log says it is ahead.
func correction(stored, computed models.LinkAnalytics) store.LinkDelta {
	d := store.LinkDelta{
		Clicks:         computed.Clicks - stored.Clicks,
		UniqueVisitors: computed.UniqueVisitors - stored.UniqueVisitors,
		Earnings:       computed.Earnings - stored.Earnings,
		ClickedAt:      computed.LastClickedAt,
	}
	if stored.LastClickedAt != nil &&
		(computed.LastClickedAt == nil || computed.LastClickedAt.Before(*stored.LastClickedAt)) {
		d.RewindClickedAt = true
	}
	return d
}

// computeAnalytics expects events sorted by (timestamp, id).
func computeAnalytics(events []models.Click) (models.LinkAnalytics, map[string]time.Time) {
	var a models.LinkAnalytics
	visitors := map[string]time.Time{}
	for _, e := range events {
		a.Clicks++
		a.Earnings += e.Earned
		at := e.OccurredAt.UTC()
		if a.LastClickedAt == nil || a.LastClickedAt.Before(at) {
			a.LastClickedAt = &at
		}
		if _, seen := visitors[e.VisitorHash]; !seen {
			visitors[e.VisitorHash] = at
		}
	}
	a.UniqueVisitors = int64(len(visitors))
	return a, visitors
}

func computeBreakdowns(linkID string, events []models.Click) []models.Breakdown {
	index := map[models.Dimension]map[string]int{}
	var rows []models.Breakdown
	for _, e := range events {
		at := e.OccurredAt.UTC()
		for _, kv := range []struct {
			dim models.Dimension
			key string
		}{
			{models.DimensionCountry, models.BreakdownKey(e.Country)},
			{models.DimensionBrowser, models.BreakdownKey(e.Browser)},
		} {
			if index[kv.dim] == nil {
				index[kv.dim] = map[string]int{}
			}
			i, ok := index[kv.dim][kv.key]
			if !ok {
				rows = append(rows, models.Breakdown{
					LinkID:       linkID,
					Dimension:    kv.dim,
					DimensionKey: kv.key,
					FirstSeenAt:  at,
				})
				i = len(rows) - 1
				index[kv.dim][kv.key] = i
			}
			rows[i].Clicks++
			rows[i].Earnings += e.Earned
			rows[i].LastSeenAt = at
		}
	}
	return rows
}

func diffBreakdowns(dim models.Dimension, stored []models.Breakdown, computed []models.Breakdown) []BreakdownDiff {
	counts := map[string][2]int64{}
	for _, b := range stored {
		c := counts[b.DimensionKey]
		c[0] = b.Clicks
		counts[b.DimensionKey] = c
	}
	for _, b := range computed {
		if b.Dimension != dim {
			continue
		}
		c := counts[b.DimensionKey]
		c[1] = b.Clicks
		counts[b.DimensionKey] = c
	}

	var diffs []BreakdownDiff
	for key, c := range counts {
		if c[0] != c[1] {
			diffs = append(diffs, BreakdownDiff{Dimension: dim, Key: key, Stored: c[0], Computed: c[1]})
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Key < diffs[j].Key })
	return diffs
}

func sameAnalytics(a, b models.LinkAnalytics) bool {
	if a.Clicks != b.Clicks || a.UniqueVisitors != b.UniqueVisitors {
		return false
	}
	if math.Abs(a.Earnings-b.Earnings) > earningsTolerance {
		return false
	}
	switch {
	case a.LastClickedAt == nil && b.LastClickedAt == nil:
		return true
	case a.LastClickedAt == nil || b.LastClickedAt == nil:
		return false
	}
	return a.LastClickedAt.Equal(*b.LastClickedAt)
}
