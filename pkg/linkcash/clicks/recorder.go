package clicks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"github.com/mikepea/linkcash/pkg/linkcash/metrics"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"go.uber.org/zap"
)

// ErrLinkNotFound is returned when the clicked link does not exist.
var ErrLinkNotFound = links.ErrLinkNotFound

// Store is the subset of the store the recorder writes to.
type Store interface {
	GetLink(ctx context.Context, id string) (*models.Link, error)
	InsertClick(ctx context.Context, click *models.Click) error
	InsertVisitor(ctx context.Context, linkID, visitorHash string, at time.Time) (bool, error)
	IncrementLinkAnalytics(ctx context.Context, linkID string, d store.LinkDelta) error
	IncrementUserStats(ctx context.Context, userID string, d store.UserDelta) error
	IncrementBreakdown(ctx context.Context, linkID string, dim models.Dimension, key string, d store.BreakdownDelta) error
}

// ClientSignal is what the edge knows about a visitor.
type ClientSignal struct {
	IP        string
	UserAgent string
	Referer   string
	Country   string
	City      string
}

// Result describes a recorded click.
type Result struct {
	ClickID string  `json:"click_id"`
	Earned  float64 `json:"earned"`
}

// Recorder turns redirect events into click records and counter updates.
type Recorder struct {
	store   Store
	pricer  Pricer
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRecorder creates a recorder. A nil pricer pays DefaultFlatRate.
func NewRecorder(st Store, pricer Pricer, logger *zap.Logger, m *metrics.Metrics) *Recorder {
	if pricer == nil {
		pricer = FlatRate(DefaultFlatRate)
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Recorder{store: st, pricer: pricer, logger: logger, metrics: m, now: time.Now}
}

// SetClock replaces the time source for click timestamps.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// VisitorHash identifies a visitor by IP and user agent without storing
// either in the visitor table.
func VisitorHash(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}

// Record stores a click on linkID and updates the counters derived from
// it. The click event and the link counters are required; the remaining
// counters are best effort and only logged when they fail.
func (r *Recorder) Record(ctx context.Context, linkID string, signal ClientSignal) (*Result, error) {
	link, err := r.store.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		r.metrics.ClickRecordFailures.WithLabelValues("resolve").Inc()
		return nil, fmt.Errorf("failed to load link: %w", err)
	}

	client := ParseUserAgent(signal.UserAgent)
	country := normalizeCountry(signal.Country)
	if country == "" {
		country = models.Unknown
	}

	earned := clampEarning(r.pricer.Price(link, ClickContext{
		Country: country,
		Device:  client.Device,
		Browser: client.Browser,
		Referer: signal.Referer,
	}))

	userAgent := cleanText(signal.UserAgent, 0)
	ip := cleanText(signal.IP, maxIPLength)

	now := r.now().UTC()
	click := &models.Click{
		ID:          uuid.NewString(),
		LinkID:      link.ID,
		OwnerID:     link.OwnerID,
		OccurredAt:  now,
		IP:          ip,
		UserAgent:   userAgent,
		Referer:     cleanText(signal.Referer, 0),
		Browser:     client.Browser,
		OS:          client.OS,
		Device:      client.Device,
		Country:     country,
		City:        cleanText(signal.City, maxCityLength),
		VisitorHash: VisitorHash(ip, userAgent),
		Earned:      earned,
	}
	if err := r.store.InsertClick(ctx, click); err != nil {
		r.metrics.ClickRecordFailures.WithLabelValues("event").Inc()
		return nil, fmt.Errorf("failed to record click event: %w", err)
	}

	if err := r.store.IncrementLinkAnalytics(ctx, link.ID, store.LinkDelta{
		Clicks:    1,
		Earnings:  earned,
		ClickedAt: &now,
	}); err != nil {
		r.metrics.ClickRecordFailures.WithLabelValues("link_counters").Inc()
		return nil, fmt.Errorf("failed to update link counters: %w", err)
	}

	r.metrics.ClicksRecordedTotal.Inc()
	r.metrics.EarningsTotal.Add(earned)

	r.bestEffort(link.ID, "unique_visitor", func() error {
		inserted, err := r.store.InsertVisitor(ctx, link.ID, click.VisitorHash, now)
		if err != nil || !inserted {
			return err
		}
		return r.store.IncrementLinkAnalytics(ctx, link.ID, store.LinkDelta{UniqueVisitors: 1})
	})
	r.bestEffort(link.ID, "owner", func() error {
		return r.store.IncrementUserStats(ctx, link.OwnerID, store.UserDelta{Clicks: 1, Earnings: earned})
	})
	r.bestEffort(link.ID, string(models.DimensionCountry), func() error {
		return r.store.IncrementBreakdown(ctx, link.ID, models.DimensionCountry, models.BreakdownKey(country), store.BreakdownDelta{
			Clicks: 1, Earnings: earned, SeenAt: now,
		})
	})
	r.bestEffort(link.ID, string(models.DimensionBrowser), func() error {
		return r.store.IncrementBreakdown(ctx, link.ID, models.DimensionBrowser, models.BreakdownKey(client.Browser), store.BreakdownDelta{
			Clicks: 1, Earnings: earned, SeenAt: now,
		})
	})

	return &Result{ClickID: click.ID, Earned: earned}, nil
}

func (r *Recorder) bestEffort(linkID, dimension string, fn func() error) {
	if err := fn(); err != nil {
		r.metrics.PartialAggregationFailures.WithLabelValues(dimension).Inc()
		r.logger.Warn("partial aggregation failure",
			zap.String("link_id", linkID),
			zap.String("dimension", dimension),
			zap.Error(err),
		)
	}
}
