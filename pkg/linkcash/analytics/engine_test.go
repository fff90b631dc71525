package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mikepea/linkcash/pkg/linkcash/clicks"
	"github.com/mikepea/linkcash/pkg/linkcash/database"
	"github.com/mikepea/linkcash/pkg/linkcash/idgen"
	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"github.com/mikepea/linkcash/pkg/linkcash/metrics"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// fixture wires the real write path so the engine reads what the
// recorder produced.
type fixture struct {
	store    *store.GormStore
	registry *links.Registry
	recorder *clicks.Recorder
	engine   *Engine
	metrics  *metrics.Metrics
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Connect(database.MemoryConfig(uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	st := store.NewGormStore(db)

	gen, err := idgen.New()
	require.NoError(t, err)

	f := &fixture{store: st, metrics: metrics.NewUnregistered(), clock: testNow}
	f.registry = links.NewRegistry(st, gen, nil, zap.NewNop(), f.metrics, links.Config{MaxAttempts: 3, DefaultRedirectDelay: models.DefaultRedirectDelay})
	f.recorder = clicks.NewRecorder(st, nil, zap.NewNop(), f.metrics)
	f.recorder.SetClock(func() time.Time { return f.clock })
	f.engine = NewEngine(st, zap.NewNop(), f.metrics)
	f.engine.SetClock(func() time.Time { return testNow })
	return f
}

func (f *fixture) link(t *testing.T, owner string) *models.Link {
	t.Helper()
	link, err := f.registry.Create(context.Background(), owner, "https://example.com/"+uuid.NewString(), links.CreateOptions{})
	require.NoError(t, err)
	return link
}

func (f *fixture) click(t *testing.T, linkID, ip, country string, at time.Time) {
	t.Helper()
	f.clock = at
	_, err := f.recorder.Record(context.Background(), linkID, clicks.ClientSignal{IP: ip, UserAgent: testUA, Country: country})
	require.NoError(t, err)
}

func TestGetLinkStatsAfterClicks(t *testing.T) {
	f := newFixture(t)
	link := f.link(t, "owner-1")

	for i := 0; i < 4; i++ {
		f.click(t, link.ID, fmt.Sprintf("10.0.0.%d", i%2), "US", testNow.Add(-time.Duration(i)*time.Minute))
	}

	stats, err := f.engine.GetLinkStats(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Clicks)
	assert.Equal(t, int64(2), stats.UniqueVisitors)
	assert.InDelta(t, 4*clicks.DefaultFlatRate, stats.Earnings, 1e-9)
	require.NotNil(t, stats.LastClickedAt)
	assert.True(t, stats.LastClickedAt.Equal(testNow))
}

func TestGetLinkStatsMissingLink(t *testing.T) {
	f := newFixture(t)

	stats, err := f.engine.GetLinkStats(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, LinkStats{}, stats)
}

func TestGetClickStatsThreeClicks(t *testing.T) {
	f := newFixture(t)
	link := f.link(t, "owner-1")

	f.click(t, link.ID, "10.0.0.1", "US", testNow.Add(-3*time.Hour))
	f.click(t, link.ID, "10.0.0.2", "US", testNow.Add(-2*time.Hour))
	f.click(t, link.ID, "10.0.0.3", "IN", testNow.Add(-1*time.Hour))

	stats, err := f.engine.GetClickStats(context.Background(), link.ID, PeriodAll)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalClicks)
	assert.InDelta(t, 0.015, stats.TotalEarnings, 1e-9)
	assert.Equal(t, []Ranked{{Key: "US", Count: 2}, {Key: "IN", Count: 1}}, stats.TopCountries)
	assert.Equal(t, map[string]int64{"2026-03-14": 3}, stats.ClicksByDate)
	assert.Equal(t, map[string]int64{"Chrome": 3}, stats.Browsers)

	require.Len(t, stats.Clicks, 3)
	assert.Equal(t, "IN", stats.Clicks[0].Country)
	assert.Equal(t, "10.0.0.1", stats.Clicks[2].IP)

	linkStats, err := f.engine.GetLinkStats(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, stats.TotalClicks, linkStats.Clicks)
}

func TestGetClickStatsWindow(t *testing.T) {
	f := newFixture(t)
	link := f.link(t, "owner-1")

	f.click(t, link.ID, "10.0.0.1", "US", testNow.AddDate(0, -2, 0))
	f.click(t, link.ID, "10.0.0.1", "US", testNow.AddDate(0, 0, -10))
	f.click(t, link.ID, "10.0.0.1", "US", testNow.AddDate(0, 0, -3))
	f.click(t, link.ID, "10.0.0.1", "US", testNow.Add(-time.Hour))

	tests := []struct {
		period Period
		want   int64
	}{
		{PeriodDay, 1},
		{PeriodWeek, 2},
		{PeriodMonth, 3},
		{PeriodYear, 4},
		{PeriodAll, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			stats, err := f.engine.GetClickStats(context.Background(), link.ID, tt.period)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stats.TotalClicks)
			assert.Len(t, stats.Clicks, int(tt.want))
		})
	}
}

func TestGetClickStatsRecentClicksLimit(t *testing.T) {
	f := newFixture(t)
	link := f.link(t, "owner-1")

	total := RecentClicksLimit + 5
	for i := 0; i < total; i++ {
		f.click(t, link.ID, "10.0.0.1", "US", testNow.Add(-time.Duration(total-i)*time.Minute))
	}

	stats, err := f.engine.GetClickStats(context.Background(), link.ID, PeriodAll)
	require.NoError(t, err)
	assert.Equal(t, int64(total), stats.TotalClicks)
	require.Len(t, stats.Clicks, RecentClicksLimit)
	assert.True(t, stats.Clicks[0].OccurredAt.Equal(testNow.Add(-time.Minute)))
	for i := 1; i < len(stats.Clicks); i++ {
		assert.True(t, stats.Clicks[i-1].OccurredAt.After(stats.Clicks[i].OccurredAt))
	}
}

// countingStore records the size of every click query.
type countingStore struct {
	*store.GormStore
	batches []int
}

func (c *countingStore) QueryClicks(ctx context.Context, q store.ClickQuery) ([]models.Click, error) {
	c.batches = append(c.batches, len(q.LinkIDs))
	return c.GormStore.QueryClicks(ctx, q)
}

func TestGetUserAnalyticsBatchesLinkIDs(t *testing.T) {
	f := newFixture(t)
	counting := &countingStore{GormStore: f.store}
	engine := NewEngine(counting, zap.NewNop(), nil)
	engine.SetClock(func() time.Time { return testNow })

	var owned []*models.Link
	for i := 0; i < 12; i++ {
		owned = append(owned, f.link(t, "owner-1"))
	}
	f.link(t, "owner-2")

	// Clicks on the first and last link, so both batches contribute.
	f.click(t, owned[0].ID, "10.0.0.1", "US", testNow.Add(-time.Hour))
	f.click(t, owned[0].ID, "10.0.0.2", "IN", testNow.Add(-time.Hour))
	f.click(t, owned[11].ID, "10.0.0.3", "US", testNow.Add(-time.Hour))
	f.click(t, owned[11].ID, "10.0.0.4", "US", testNow.Add(-time.Hour))
	f.click(t, owned[11].ID, "10.0.0.5", "DE", testNow.Add(-time.Hour))

	result, err := engine.GetUserAnalytics(context.Background(), "owner-1", PeriodAll)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 2}, counting.batches)
	assert.Equal(t, 12, result.TotalLinks)
	assert.Equal(t, int64(5), result.TotalClicks)
	assert.InDelta(t, 5*clicks.DefaultFlatRate, result.TotalEarnings, 1e-9)
	assert.Equal(t, map[string]int64{"2026-03-14": 5}, result.ClicksByDate)
	assert.Equal(t, []Ranked{{Key: "US", Count: 3}, {Key: "DE", Count: 1}, {Key: "IN", Count: 1}}, result.TopCountries)

	require.Len(t, result.TopLinks, TopN)
	assert.Equal(t, owned[11].ID, result.TopLinks[0].ID)
	assert.Equal(t, int64(3), result.TopLinks[0].Clicks)
	assert.Equal(t, owned[0].ID, result.TopLinks[1].ID)
	for _, l := range result.TopLinks[2:] {
		assert.Equal(t, int64(0), l.Clicks)
	}
	assert.True(t, result.TopLinks[2].ID < result.TopLinks[3].ID)
}

func TestGetUserAnalyticsNoLinks(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine.GetUserAnalytics(context.Background(), "nobody", PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalLinks)
	assert.Equal(t, int64(0), result.TotalClicks)
	assert.Empty(t, result.TopLinks)
	assert.Empty(t, result.TopCountries)
	assert.NotNil(t, result.ClicksByDate)
}

// brokenStore fails every read.
type brokenStore struct {
	*store.GormStore
}

var errStoreDown = errors.New("connection refused")

func (brokenStore) GetLink(context.Context, string) (*models.Link, error) {
	return nil, errStoreDown
}

func (brokenStore) QueryLinks(context.Context, store.LinkQuery) ([]models.Link, error) {
	return nil, errStoreDown
}

func (brokenStore) QueryClicks(context.Context, store.ClickQuery) ([]models.Click, error) {
	return nil, errStoreDown
}

func TestAggregationUnavailable(t *testing.T) {
	f := newFixture(t)
	m := metrics.NewUnregistered()
	engine := NewEngine(brokenStore{f.store}, zap.NewNop(), m)
	ctx := context.Background()

	_, err := engine.GetLinkStats(ctx, "any")
	assert.ErrorIs(t, err, ErrAggregationUnavailable)

	stats, err := engine.GetClickStats(ctx, "any", PeriodAll)
	assert.Nil(t, stats)
	assert.ErrorIs(t, err, ErrAggregationUnavailable)

	analytics, err := engine.GetUserAnalytics(ctx, "owner-1", PeriodAll)
	assert.Nil(t, analytics)
	assert.ErrorIs(t, err, ErrAggregationUnavailable)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationFailures.WithLabelValues("click_stats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationFailures.WithLabelValues("user_analytics")))
}

func TestChunk(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunk(ids, 2))
	assert.Equal(t, [][]string{{"a", "b", "c", "d", "e"}}, chunk(ids, 10))
	assert.Nil(t, chunk(nil, 10))
}
