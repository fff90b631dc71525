package store

import (
	"context"
	"errors"
	"time"

	"github.com/mikepea/linkcash/pkg/linkcash/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate key")
	ErrInSetTooLarge = errors.New("in-set exceeds store limit")
)

// DefaultMaxInSet bounds the number of values accepted in a single
// membership filter.
const DefaultMaxInSet = 10

// LinkOrder selects the sort column for QueryLinks.
type LinkOrder string

const (
	OrderByCreatedAt LinkOrder = "created_at"
	OrderByClicks    LinkOrder = "clicks"
)

// LinkQuery filters links. Zero fields are not applied.
type LinkQuery struct {
	OwnerID string
	Status  models.LinkStatus
	OrderBy LinkOrder
	Desc    bool
	Limit   int
}

// ClickQuery filters click events. Results are ordered by (timestamp, id).
type ClickQuery struct {
	LinkIDs     []string
	Since       *time.Time
	NewestFirst bool
	Limit       int
}

// LinkDelta is applied atomically to a link's analytics snapshot.
// ClickedAt only moves the last-click time forward unless RewindClickedAt
// is set, in which case it replaces the stored value (nil clears it).
type LinkDelta struct {
	Clicks          int64
	UniqueVisitors  int64
	Earnings        float64
	ClickedAt       *time.Time
	RewindClickedAt bool
}

// UserDelta is applied atomically to a user's stats row, creating it if needed.
type UserDelta struct {
	Links    int64
	Clicks   int64
	Earnings float64
}

// BreakdownDelta is applied atomically to one breakdown key.
type BreakdownDelta struct {
	Clicks   int64
	Earnings float64
	SeenAt   time.Time
}

// Totals are platform-wide counts.
type Totals struct {
	Users            int64 `json:"total_users"`
	Links            int64 `json:"total_links"`
	Clicks           int64 `json:"total_clicks"`
	CountriesReached int64 `json:"countries_reached"`
}

// LinkStore covers link documents.
type LinkStore interface {
	GetLink(ctx context.Context, id string) (*models.Link, error)
	FindLinkByCode(ctx context.Context, code string) (*models.Link, error)
	QueryLinks(ctx context.Context, q LinkQuery) ([]models.Link, error)
	InsertLink(ctx context.Context, link *models.Link) error
	UpdateLinkFields(ctx context.Context, id string, fields map[string]interface{}) error
	ExpireLink(ctx context.Context, id string) error
	MarkLinkCounted(ctx context.Context, id string) (bool, error)
	DeleteLink(ctx context.Context, id string) (*models.Link, error)
}

// ClickStore covers the append-only click log and visitor markers.
type ClickStore interface {
	MaxInSet() int
	InsertClick(ctx context.Context, click *models.Click) error
	QueryClicks(ctx context.Context, q ClickQuery) ([]models.Click, error)
	InsertVisitor(ctx context.Context, linkID, visitorHash string, at time.Time) (bool, error)
	CountVisitors(ctx context.Context, linkID string) (int64, error)
}

// CounterStore covers the denormalized counters.
type CounterStore interface {
	IncrementLinkAnalytics(ctx context.Context, linkID string, d LinkDelta) error
	IncrementUserStats(ctx context.Context, userID string, d UserDelta) error
	IncrementBreakdown(ctx context.Context, linkID string, dim models.Dimension, key string, d BreakdownDelta) error
	ListBreakdowns(ctx context.Context, linkID string, dim models.Dimension) ([]models.Breakdown, error)
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)

	SetLinkAnalytics(ctx context.Context, linkID string, a models.LinkAnalytics) error
	ReplaceBreakdowns(ctx context.Context, linkID string, rows []models.Breakdown) error
	SetUserStats(ctx context.Context, stats *models.UserStats) error
}

// UserStore covers local accounts and platform totals.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	PlatformTotals(ctx context.Context) (*Totals, error)
}

// Store is the full capability set the engine relies on.
type Store interface {
	LinkStore
	ClickStore
	CounterStore
	UserStore
}
