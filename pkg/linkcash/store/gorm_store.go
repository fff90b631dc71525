package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of gorm. Every counter update is a
// single SQL statement so concurrent writers never lose increments.
type GormStore struct {
	db       *gorm.DB
	maxInSet int
}

// NewGormStore creates a store over an already migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, maxInSet: DefaultMaxInSet}
}

// DB exposes the underlying handle for collaborators that manage their own tables.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) MaxInSet() int {
	return s.maxInSet
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// Links

func (s *GormStore) GetLink(ctx context.Context, id string) (*models.Link, error) {
	var link models.Link
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (s *GormStore) FindLinkByCode(ctx context.Context, code string) (*models.Link, error) {
	var link models.Link
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (s *GormStore) QueryLinks(ctx context.Context, q LinkQuery) ([]models.Link, error) {
	query := s.db.WithContext(ctx).Model(&models.Link{})
	if q.OwnerID != "" {
		query = query.Where("owner_id = ?", q.OwnerID)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}

	column := "created_at"
	if q.OrderBy == OrderByClicks {
		column = "analytics_clicks"
	}
	direction := "ASC"
	if q.Desc {
		direction = "DESC"
	}
	query = query.Order(fmt.Sprintf("%s %s, id ASC", column, direction))

	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var links []models.Link
	if err := query.Find(&links).Error; err != nil {
		return nil, translate(err)
	}
	return links, nil
}

// InsertLink assigns an id when missing, validates and inserts the link.
// A code collision returns ErrDuplicate.
func (s *GormStore) InsertLink(ctx context.Context, link *models.Link) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if err := models.Validate(link); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(link).Error)
}

func (s *GormStore) UpdateLinkFields(ctx context.Context, id string, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&models.Link{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireLink persists the terminal expired status. It is a no-op for a
// link that is already expired.
func (s *GormStore) ExpireLink(ctx context.Context, id string) error {
	return translate(s.db.WithContext(ctx).Model(&models.Link{}).
		Where("id = ? AND status <> ?", id, models.LinkStatusExpired).
		UpdateColumn("status", models.LinkStatusExpired).Error)
}

// MarkLinkCounted flips owner_counted from false to true. It reports true
// only to the single caller whose update changed the row.
func (s *GormStore) MarkLinkCounted(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("id = ? AND owner_counted = ?", id, false).
		UpdateColumn("owner_counted", true)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// DeleteLink removes the link with its breakdowns and visitor markers and
// returns the row as it was when removed. Click events are kept.
func (s *GormStore) DeleteLink(ctx context.Context, id string) (*models.Link, error) {
	var deleted models.Link
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		read := tx
		if tx.Dialector.Name() == "postgres" {
			// Concurrent counter updates wait until the row is gone.
			read = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := read.Where("id = ?", id).First(&deleted).Error; err != nil {
			return translate(err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Link{})
		if result.Error != nil {
			return translate(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("link_id = ?", id).Delete(&models.Breakdown{}).Error; err != nil {
			return err
		}
		return tx.Where("link_id = ?", id).Delete(&models.LinkVisitor{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

// Clicks

func (s *GormStore) InsertClick(ctx context.Context, click *models.Click) error {
	if click.ID == "" {
		click.ID = uuid.NewString()
	}
	click.OccurredAt = click.OccurredAt.UTC()
	if err := models.Validate(click); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(click).Error)
}

func (s *GormStore) QueryClicks(ctx context.Context, q ClickQuery) ([]models.Click, error) {
	if len(q.LinkIDs) > s.maxInSet {
		return nil, fmt.Errorf("%w: %d values, limit %d", ErrInSetTooLarge, len(q.LinkIDs), s.maxInSet)
	}

	query := s.db.WithContext(ctx).Model(&models.Click{})
	if len(q.LinkIDs) > 0 {
		query = query.Where("link_id IN ?", q.LinkIDs)
	}
	if q.Since != nil {
		query = query.Where("occurred_at >= ?", q.Since.UTC())
	}
	if q.NewestFirst {
		query = query.Order("occurred_at DESC, id DESC")
	} else {
		query = query.Order("occurred_at ASC, id ASC")
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var clicks []models.Click
	if err := query.Find(&clicks).Error; err != nil {
		return nil, translate(err)
	}
	return clicks, nil
}

// InsertVisitor records a visitor hash for a link if it was not seen
// before and reports whether a row was inserted.
func (s *GormStore) InsertVisitor(ctx context.Context, linkID, visitorHash string, at time.Time) (bool, error) {
	visitor := models.LinkVisitor{LinkID: linkID, VisitorHash: visitorHash, FirstSeenAt: at.UTC()}
	if err := models.Validate(&visitor); err != nil {
		return false, err
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&visitor)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) CountVisitors(ctx context.Context, linkID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.LinkVisitor{}).Where("link_id = ?", linkID).Count(&count).Error
	return count, translate(err)
}

// Counters

func (s *GormStore) IncrementLinkAnalytics(ctx context.Context, linkID string, d LinkDelta) error {
	updates := map[string]interface{}{
		"analytics_clicks":          gorm.Expr("analytics_clicks + ?", d.Clicks),
		"analytics_unique_visitors": gorm.Expr("analytics_unique_visitors + ?", d.UniqueVisitors),
		"analytics_earnings":        gorm.Expr("analytics_earnings + ?", d.Earnings),
	}
	switch {
	case d.RewindClickedAt && d.ClickedAt == nil:
		updates["analytics_last_clicked_at"] = nil
	case d.RewindClickedAt:
		updates["analytics_last_clicked_at"] = d.ClickedAt.UTC()
	case d.ClickedAt != nil:
		at := d.ClickedAt.UTC()
		updates["analytics_last_clicked_at"] = gorm.Expr(
			"CASE WHEN analytics_last_clicked_at IS NULL OR analytics_last_clicked_at < ? THEN ? ELSE analytics_last_clicked_at END",
			at, at,
		)
	}

	result := s.db.WithContext(ctx).Model(&models.Link{}).Where("id = ?", linkID).UpdateColumns(updates)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) IncrementUserStats(ctx context.Context, userID string, d UserDelta) error {
	now := time.Now().UTC()
	row := models.UserStats{
		UserID:        userID,
		TotalLinks:    d.Links,
		TotalClicks:   d.Clicks,
		TotalEarnings: d.Earnings,
		UpdatedAt:     now,
	}
	if err := models.Validate(&row); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_links":    gorm.Expr("user_stats.total_links + ?", d.Links),
			"total_clicks":   gorm.Expr("user_stats.total_clicks + ?", d.Clicks),
			"total_earnings": gorm.Expr("user_stats.total_earnings + ?", d.Earnings),
			"updated_at":     now,
		}),
	}).Create(&row).Error)
}

func (s *GormStore) IncrementBreakdown(ctx context.Context, linkID string, dim models.Dimension, key string, d BreakdownDelta) error {
	seen := d.SeenAt.UTC()
	row := models.Breakdown{
		LinkID:       linkID,
		Dimension:    dim,
		DimensionKey: key,
		Clicks:       d.Clicks,
		Earnings:     d.Earnings,
		FirstSeenAt:  seen,
		LastSeenAt:   seen,
	}
	if err := models.Validate(&row); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "link_id"}, {Name: "dimension"}, {Name: "dimension_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"clicks":   gorm.Expr("link_breakdowns.clicks + ?", d.Clicks),
			"earnings": gorm.Expr("link_breakdowns.earnings + ?", d.Earnings),
			"last_seen_at": gorm.Expr(
				"CASE WHEN link_breakdowns.last_seen_at < ? THEN ? ELSE link_breakdowns.last_seen_at END",
				seen, seen,
			),
		}),
	}).Create(&row).Error)
}

func (s *GormStore) ListBreakdowns(ctx context.Context, linkID string, dim models.Dimension) ([]models.Breakdown, error) {
	var rows []models.Breakdown
	err := s.db.WithContext(ctx).
		Where("link_id = ? AND dimension = ?", linkID, dim).
		Order("clicks DESC, dimension_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (s *GormStore) GetUserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	var stats models.UserStats
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&stats).Error; err != nil {
		return nil, translate(err)
	}
	return &stats, nil
}

// Corrections. These are the only writes allowed to move counters backwards.

func (s *GormStore) SetLinkAnalytics(ctx context.Context, linkID string, a models.LinkAnalytics) error {
	var lastClicked interface{}
	if a.LastClickedAt != nil {
		lastClicked = a.LastClickedAt.UTC()
	}
	result := s.db.WithContext(ctx).Model(&models.Link{}).Where("id = ?", linkID).UpdateColumns(map[string]interface{}{
		"analytics_clicks":          a.Clicks,
		"analytics_unique_visitors": a.UniqueVisitors,
		"analytics_earnings":        a.Earnings,
		"analytics_last_clicked_at": lastClicked,
	})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceBreakdowns swaps every breakdown row of a link for rows.
func (s *GormStore) ReplaceBreakdowns(ctx context.Context, linkID string, rows []models.Breakdown) error {
	for i := range rows {
		rows[i].ID = 0
		rows[i].LinkID = linkID
		if err := models.Validate(&rows[i]); err != nil {
			return err
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("link_id = ?", linkID).Delete(&models.Breakdown{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return translate(tx.Create(&rows).Error)
	})
}

func (s *GormStore) SetUserStats(ctx context.Context, stats *models.UserStats) error {
	stats.UpdatedAt = time.Now().UTC()
	if err := models.Validate(stats); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_links", "total_clicks", "total_earnings", "updated_at"}),
	}).Create(stats).Error)
}

// Users

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// PlatformTotals counts accounts, links, clicks and distinct countries.
// Users are live local accounts plus any external owner that has stats;
// stats rows of deleted local accounts do not count.
func (s *GormStore) PlatformTotals(ctx context.Context) (*Totals, error) {
	db := s.db.WithContext(ctx)
	var totals Totals

	err := db.Raw(`SELECT COUNT(*) FROM (
		SELECT id FROM users WHERE deleted_at IS NULL
		UNION
		SELECT user_id FROM user_stats
		WHERE user_id NOT IN (SELECT id FROM users WHERE deleted_at IS NOT NULL)
	) AS known_users`).Scan(&totals.Users).Error
	if err != nil {
		return nil, err
	}
	if err := db.Model(&models.Link{}).Count(&totals.Links).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Click{}).Count(&totals.Clicks).Error; err != nil {
		return nil, err
	}
	err = db.Model(&models.Click{}).
		Where("country <> ?", models.Unknown).
		Distinct("country").
		Count(&totals.CountriesReached).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

var _ Store = (*GormStore)(nil)
