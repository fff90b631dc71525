package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikepea/linkcash/pkg/linkcash/analytics"
	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"go.uber.org/zap"
)

// PanelSize is the number of links in the recent and top panels.
const PanelSize = 5

// Store is what the dashboard reads directly.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
}

// Payload is everything the dashboard home page shows.
type Payload struct {
	User        *models.User             `json:"user,omitempty"`
	Stats       models.UserStats         `json:"stats"`
	RecentLinks []models.Link            `json:"recent_links"`
	TopLinks    []models.Link            `json:"top_links"`
	Analytics   *analytics.UserAnalytics `json:"analytics"`
}

// Service assembles dashboard payloads.
type Service struct {
	store    Store
	registry *links.Registry
	engine   *analytics.Engine
	logger   *zap.Logger
}

func NewService(st Store, registry *links.Registry, engine *analytics.Engine, logger *zap.Logger) *Service {
	return &Service{store: st, registry: registry, engine: engine, logger: logger}
}

// Get builds the dashboard for userID. Users authenticated by an external
// provider have no profile; users without links have zero stats. Any
// other failure aborts the whole payload.
func (s *Service) Get(ctx context.Context, userID string, period analytics.Period) (*Payload, error) {
	payload := &Payload{Stats: models.UserStats{UserID: userID}}

	user, err := s.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		payload.User = user
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	stats, err := s.store.GetUserStats(ctx, userID)
	switch {
	case err == nil:
		payload.Stats = *stats
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}

	payload.RecentLinks, err = s.registry.ListByOwner(ctx, userID, links.ListOptions{
		OrderBy: store.OrderByCreatedAt, Desc: true, Limit: PanelSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent links: %w", err)
	}

	payload.TopLinks, err = s.registry.ListByOwner(ctx, userID, links.ListOptions{
		OrderBy: store.OrderByClicks, Desc: true, Limit: PanelSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load top links: %w", err)
	}

	payload.Analytics, err = s.engine.GetUserAnalytics(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	return payload, nil
}
