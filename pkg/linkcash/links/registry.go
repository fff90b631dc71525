package links

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mikepea/linkcash/pkg/linkcash/metrics"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var codeRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// Codes that would shadow server routes.
var reservedCodes = []string{"api", "health", "metrics", "swagger", "admin", "login", "logout", "register", "auth", "dashboard"}

// Store is the subset of the store the registry needs.
type Store interface {
	store.LinkStore
	IncrementUserStats(ctx context.Context, userID string, d store.UserDelta) error
}

// CodeGenerator produces candidate short codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// CodeCache maps codes to link ids. Implementations may be lossy.
type CodeCache interface {
	Get(ctx context.Context, code string) (string, bool, error)
	Set(ctx context.Context, code, linkID string) error
	Delete(ctx context.Context, code string) error
}

// Config tunes link creation.
type Config struct {
	MaxAttempts          int
	DefaultRedirectDelay int
}

// CreateOptions are the optional inputs of Create.
type CreateOptions struct {
	CustomCode    string
	Title         string
	ExpiresAt     *time.Time
	RedirectDelay *int
	Password      string
	AdEnabled     *bool
}

// UpdateOptions lists the owner-editable fields. Nil fields are left alone;
// an empty Password removes the gate.
type UpdateOptions struct {
	Title         *string
	URL           *string
	RedirectDelay *int
	Password      *string
	AdEnabled     *bool
}

// ListOptions filters and orders ListByOwner.
type ListOptions struct {
	Status  models.LinkStatus
	OrderBy store.LinkOrder
	Desc    bool
	Limit   int
}

// Registry owns the link lifecycle.
type Registry struct {
	store   Store
	gen     CodeGenerator
	cache   CodeCache
	logger  *zap.Logger
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

// NewRegistry creates a registry. cache may be nil.
func NewRegistry(st Store, gen CodeGenerator, cache CodeCache, logger *zap.Logger, m *metrics.Metrics, cfg Config) *Registry {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.DefaultRedirectDelay < 0 {
		cfg.DefaultRedirectDelay = models.DefaultRedirectDelay
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Registry{
		store:   st,
		gen:     gen,
		cache:   cache,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

func validateCode(code string) error {
	if !codeRegex.MatchString(code) {
		return ErrInvalidCode
	}
	for _, r := range reservedCodes {
		if strings.EqualFold(code, r) {
			return ErrReservedCode
		}
	}
	return nil
}

func defaultTitle(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return "Link to " + u.Hostname()
}

// Create validates the input, allocates a code and stores the link. The
// owner's link count is incremented at most once per link.
func (r *Registry) Create(ctx context.Context, ownerID, destination string, opts CreateOptions) (*models.Link, error) {
	if err := validateURL(destination); err != nil {
		return nil, err
	}
	if opts.CustomCode != "" {
		if err := validateCode(opts.CustomCode); err != nil {
			return nil, err
		}
	}

	link := &models.Link{
		OwnerID:   ownerID,
		URL:       destination,
		Title:     opts.Title,
		Status:    models.LinkStatusActive,
		ExpiresAt: opts.ExpiresAt,
		Settings: models.LinkSettings{
			RedirectDelay: r.cfg.DefaultRedirectDelay,
			AdEnabled:     true,
		},
	}
	if link.Title == "" {
		link.Title = defaultTitle(destination)
	}
	if opts.RedirectDelay != nil {
		link.Settings.RedirectDelay = *opts.RedirectDelay
	}
	if opts.AdEnabled != nil {
		link.Settings.AdEnabled = *opts.AdEnabled
	}
	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash link password: %w", err)
		}
		link.Settings.PasswordHash = string(hash)
	}

	if opts.CustomCode != "" {
		if err := r.insertCustom(ctx, link, opts.CustomCode); err != nil {
			return nil, err
		}
		r.metrics.LinksCreatedTotal.WithLabelValues("custom").Inc()
	} else {
		if err := r.insertGenerated(ctx, link); err != nil {
			return nil, err
		}
		r.metrics.LinksCreatedTotal.WithLabelValues("generated").Inc()
	}

	r.countForOwner(ctx, link)

	if r.cache != nil {
		if err := r.cache.Set(ctx, link.Code, link.ID); err != nil {
			r.logger.Warn("failed to cache link code", zap.String("code", link.Code), zap.Error(err))
		}
	}

	r.logger.Info("link created",
		zap.String("link_id", link.ID),
		zap.String("owner_id", ownerID),
		zap.String("code", link.Code),
	)
	return link, nil
}

func (r *Registry) insertCustom(ctx context.Context, link *models.Link, code string) error {
	_, err := r.store.FindLinkByCode(ctx, code)
	if err == nil {
		return ErrCodeTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check code availability: %w", err)
	}

	link.Code = code
	if err := r.store.InsertLink(ctx, link); err != nil {
		link.ID = ""
		if errors.Is(err, store.ErrDuplicate) {
			return ErrCodeTaken
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

func (r *Registry) insertGenerated(ctx context.Context, link *models.Link) error {
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		code, err := r.gen.Generate()
		if err != nil {
			return err
		}

		_, err = r.store.FindLinkByCode(ctx, code)
		if err == nil {
			r.metrics.CodeCollisionsTotal.Inc()
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check code availability: %w", err)
		}

		link.Code = code
		err = r.store.InsertLink(ctx, link)
		if err == nil {
			return nil
		}
		link.ID = ""
		if !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("failed to insert link: %w", err)
		}
		// Lost a race for the code between the check and the insert.
		r.metrics.CodeCollisionsTotal.Inc()
	}
	link.Code = ""
	return ErrGenerationExhausted
}

// countForOwner increments total_links once. If the increment fails after
// the flag flipped, the count lags until the owner is reconciled.
func (r *Registry) countForOwner(ctx context.Context, link *models.Link) {
	counted, err := r.store.MarkLinkCounted(ctx, link.ID)
	if err != nil {
		r.logger.Error("failed to mark link counted", zap.String("link_id", link.ID), zap.Error(err))
		return
	}
	if !counted {
		return
	}
	link.OwnerCounted = true
	if err := r.store.IncrementUserStats(ctx, link.OwnerID, store.UserDelta{Links: 1}); err != nil {
		r.metrics.PartialAggregationFailures.WithLabelValues("owner_links").Inc()
		r.logger.Error("failed to increment owner link count",
			zap.String("link_id", link.ID),
			zap.String("owner_id", link.OwnerID),
			zap.Error(err),
		)
	}
}

// applyExpiry brings link.Status in line with its expiry and persists the
// transition when it is new.
func (r *Registry) applyExpiry(ctx context.Context, link *models.Link) {
	effective := link.EffectiveStatus(r.now())
	if effective == link.Status {
		return
	}
	if err := r.store.ExpireLink(ctx, link.ID); err != nil {
		r.logger.Warn("failed to persist link expiry", zap.String("link_id", link.ID), zap.Error(err))
	}
	link.Status = effective
}

// ResolveByCode finds a link by its short code.
func (r *Registry) ResolveByCode(ctx context.Context, code string) (*models.Link, error) {
	if r.cache != nil {
		id, ok, err := r.cache.Get(ctx, code)
		switch {
		case err != nil:
			r.metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
			r.logger.Warn("code cache lookup failed", zap.String("code", code), zap.Error(err))
		case ok:
			link, err := r.store.GetLink(ctx, id)
			if err == nil {
				r.metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
				r.applyExpiry(ctx, link)
				return link, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			// Stale entry for a deleted link.
			_ = r.cache.Delete(ctx, code)
			r.metrics.CacheLookupsTotal.WithLabelValues("stale").Inc()
		default:
			r.metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	link, err := r.store.FindLinkByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, code, link.ID); err != nil {
			r.logger.Warn("failed to cache link code", zap.String("code", code), zap.Error(err))
		}
	}
	r.applyExpiry(ctx, link)
	return link, nil
}

// Get returns a link by id regardless of owner.
func (r *Registry) Get(ctx context.Context, id string) (*models.Link, error) {
	link, err := r.store.GetLink(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	r.applyExpiry(ctx, link)
	return link, nil
}

// GetOwned returns a link only if ownerID owns it.
func (r *Registry) GetOwned(ctx context.Context, ownerID, id string) (*models.Link, error) {
	link, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != ownerID {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

// ListByOwner returns the owner's links. A status filter is applied to
// the effective status, so it is evaluated after expiry.
func (r *Registry) ListByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]models.Link, error) {
	q := store.LinkQuery{
		OwnerID: ownerID,
		OrderBy: opts.OrderBy,
		Desc:    opts.Desc,
	}
	if opts.Status == "" {
		q.Limit = opts.Limit
	}

	found, err := r.store.QueryLinks(ctx, q)
	if err != nil {
		return nil, err
	}

	result := make([]models.Link, 0, len(found))
	for i := range found {
		r.applyExpiry(ctx, &found[i])
		if opts.Status != "" && found[i].Status != opts.Status {
			continue
		}
		result = append(result, found[i])
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

// Disable stops a link from redirecting. Disabling twice is a no-op.
func (r *Registry) Disable(ctx context.Context, ownerID, id string) (*models.Link, error) {
	return r.setStatus(ctx, ownerID, id, models.LinkStatusDisabled)
}

// Enable re-activates a disabled link. Expired links cannot be enabled.
func (r *Registry) Enable(ctx context.Context, ownerID, id string) (*models.Link, error) {
	return r.setStatus(ctx, ownerID, id, models.LinkStatusActive)
}

func (r *Registry) setStatus(ctx context.Context, ownerID, id string, status models.LinkStatus) (*models.Link, error) {
	link, err := r.GetOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if link.Status == models.LinkStatusExpired {
		return nil, ErrLinkExpired
	}
	if link.Status == status {
		return link, nil
	}

	now := r.now()
	if err := r.store.UpdateLinkFields(ctx, id, map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}); err != nil {
		return nil, fmt.Errorf("failed to update link status: %w", err)
	}
	link.Status = status
	link.UpdatedAt = now
	return link, nil
}

// UpdateSettings changes owner-editable fields. The code, owner and
// analytics snapshot cannot be changed here.
func (r *Registry) UpdateSettings(ctx context.Context, ownerID, id string, opts UpdateOptions) (*models.Link, error) {
	link, err := r.GetOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if opts.URL != nil {
		if err := validateURL(*opts.URL); err != nil {
			return nil, err
		}
		link.URL = *opts.URL
		fields["url"] = link.URL
	}
	if opts.Title != nil {
		link.Title = *opts.Title
		fields["title"] = link.Title
	}
	if opts.RedirectDelay != nil {
		link.Settings.RedirectDelay = *opts.RedirectDelay
		fields["settings_redirect_delay"] = link.Settings.RedirectDelay
	}
	if opts.AdEnabled != nil {
		link.Settings.AdEnabled = *opts.AdEnabled
		fields["settings_ad_enabled"] = link.Settings.AdEnabled
	}
	if opts.Password != nil {
		hash := ""
		if *opts.Password != "" {
			b, err := bcrypt.GenerateFromPassword([]byte(*opts.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash link password: %w", err)
			}
			hash = string(b)
		}
		link.Settings.PasswordHash = hash
		fields["settings_password_hash"] = hash
	}
	if len(fields) == 0 {
		return link, nil
	}

	if err := models.Validate(link); err != nil {
		return nil, err
	}

	link.UpdatedAt = r.now()
	fields["updated_at"] = link.UpdatedAt
	if err := r.store.UpdateLinkFields(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to update link: %w", err)
	}
	return link, nil
}

// Delete removes the link. Its click events are kept, and the owner's
// stats drop the link's share so they still match the remaining links.
func (r *Registry) Delete(ctx context.Context, ownerID, id string) error {
	link, err := r.GetOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	// The owner adjustment uses the row as it was deleted, not the copy read
	// above, so clicks landing in between are subtracted too.
	deleted, err := r.store.DeleteLink(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrLinkNotFound
		}
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Delete(ctx, link.Code); err != nil {
			r.logger.Warn("failed to evict link code", zap.String("code", link.Code), zap.Error(err))
		}
	}

	delta := store.UserDelta{
		Clicks:   -deleted.Analytics.Clicks,
		Earnings: -deleted.Analytics.Earnings,
	}
	if deleted.OwnerCounted {
		delta.Links = -1
	}
	if err := r.store.IncrementUserStats(ctx, deleted.OwnerID, delta); err != nil {
		r.metrics.PartialAggregationFailures.WithLabelValues("owner_links").Inc()
		r.logger.Error("failed to adjust owner stats after delete", zap.String("link_id", id), zap.Error(err))
	}

	r.logger.Info("link deleted", zap.String("link_id", id), zap.String("owner_id", ownerID))
	return nil
}

// CheckPassword reports whether password opens a gated link. Links
// without a password always pass.
func CheckPassword(link *models.Link, password string) bool {
	if !link.HasPassword() {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(link.Settings.PasswordHash), []byte(password)) == nil
}
