package redirect

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkcash/pkg/linkcash/clicks"
	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"go.uber.org/zap"
)

// PasswordHeader carries the password of a gated link.
const PasswordHeader = "X-Link-Password"

// Resolver looks up links by short code.
type Resolver interface {
	ResolveByCode(ctx context.Context, code string) (*models.Link, error)
}

// Recorder records a click on a link.
type Recorder interface {
	Record(ctx context.Context, linkID string, signal clicks.ClientSignal) (*clicks.Result, error)
}

// Handler handles redirect requests
type Handler struct {
	resolver      Resolver
	recorder      Recorder
	geo           clicks.HeaderGeoLocator
	recordTimeout time.Duration
	logger        *zap.Logger
}

// NewHandler creates a new redirect handler. recordTimeout bounds how
// long a redirect waits for its click to be recorded.
func NewHandler(resolver Resolver, recorder Recorder, geo clicks.HeaderGeoLocator, recordTimeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{resolver: resolver, recorder: recorder, geo: geo, recordTimeout: recordTimeout, logger: logger}
}

// resolve finds an active link the caller may follow. It writes the
// error response itself and returns nil when the request must stop.
func (h *Handler) resolve(c *gin.Context) *models.Link {
	code := c.Param("code")
	link, err := h.resolver.ResolveByCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, links.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return nil
		}
		h.logger.Error("failed to resolve link", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil
	}

	if link.Status != models.LinkStatusActive {
		c.JSON(http.StatusGone, gin.H{"error": "Link is " + string(link.Status)})
		return nil
	}

	if link.HasPassword() {
		password := c.Query("p")
		if password == "" {
			password = c.GetHeader(PasswordHeader)
		}
		if !links.CheckPassword(link, password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Password required"})
			return nil
		}
	}
	return link
}

func (h *Handler) signal(c *gin.Context) clicks.ClientSignal {
	country, city := h.geo.Locate(c.Request.Header)
	return clicks.ClientSignal{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
		Country:   country,
		City:      city,
	}
}

// record runs detached from the request so a visitor who disconnects
// does not abort a half-written click.
func (h *Handler) record(c *gin.Context, link *models.Link) (*clicks.Result, error) {
	ctx := context.WithoutCancel(c.Request.Context())
	if h.recordTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.recordTimeout)
		defer cancel()
	}
	return h.recorder.Record(ctx, link.ID, h.signal(c))
}

// Redirect handles short URL redirects
// @Summary Follow a short link
// @Description Records the click and redirects to the destination
// @Tags redirect
// @Param code path string true "Short code"
// @Param p query string false "Password for gated links"
// @Success 302
// @Failure 401 {object} map[string]string "Password required"
// @Failure 404 {object} map[string]string "Link not found"
// @Failure 410 {object} map[string]string "Link disabled or expired"
// @Router /{code} [get]
func (h *Handler) Redirect(c *gin.Context) {
	link := h.resolve(c)
	if link == nil {
		return
	}

	// A failed recording never blocks the visitor.
	if _, err := h.record(c, link); err != nil {
		h.logger.Error("failed to record click",
			zap.String("link_id", link.ID),
			zap.String("code", link.Code),
			zap.Error(err),
		)
	}

	c.Redirect(http.StatusFound, link.URL)
}

// Track records a click without redirecting, for interstitial pages
// @Summary Track a click
// @Description Records a click on a short link and returns what it earned
// @Tags redirect
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} clicks.Result
// @Failure 401 {object} map[string]string "Password required"
// @Failure 404 {object} map[string]string "Link not found"
// @Failure 410 {object} map[string]string "Link disabled or expired"
// @Router /track/{code} [post]
func (h *Handler) Track(c *gin.Context) {
	link := h.resolve(c)
	if link == nil {
		return
	}

	result, err := h.record(c, link)
	if err != nil {
		if errors.Is(err, clicks.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		h.logger.Error("failed to record click", zap.String("link_id", link.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record click"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterRoutes registers the redirect route on the root router
// This should be called AFTER all other routes to avoid conflicts
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/:code", h.Redirect)
}

// RegisterTrackRoutes registers the tracking endpoint on the API group
func (h *Handler) RegisterTrackRoutes(rg *gin.RouterGroup) {
	rg.POST("/track/:code", h.Track)
}
