package analytics

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkcash/pkg/linkcash/auth"
	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"go.uber.org/zap"
)

// Handler serves per-link analytics to the link owner.
type Handler struct {
	engine   *Engine
	registry *links.Registry
	logger   *zap.Logger
}

func NewHandler(engine *Engine, registry *links.Registry, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, registry: registry, logger: logger}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, links.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
	case errors.Is(err, ErrInvalidPeriod):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAggregationUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics temporarily unavailable"})
	default:
		h.logger.Error("analytics request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// LinkStats returns the analytics snapshot of a link
// @Summary Get link stats
// @Description Clicks, unique visitors, earnings and last click of a link
// @Tags analytics
// @Produce json
// @Param id path string true "Link ID"
// @Success 200 {object} LinkStats
// @Failure 404 {object} map[string]string "Link not found"
// @Failure 503 {object} map[string]string "Analytics unavailable"
// @Security BearerAuth
// @Router /links/{id}/stats [get]
func (h *Handler) LinkStats(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	link, err := h.registry.GetOwned(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	stats, err := h.engine.GetLinkStats(c.Request.Context(), link.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ClickStats returns windowed click analytics for a link
// @Summary Get click stats
// @Description Totals, histograms, breakdowns and recent clicks within a period
// @Tags analytics
// @Produce json
// @Param id path string true "Link ID"
// @Param period query string false "day, week, month, year or all"
// @Success 200 {object} ClickStats
// @Failure 400 {object} map[string]string "Invalid period"
// @Failure 404 {object} map[string]string "Link not found"
// @Failure 503 {object} map[string]string "Analytics unavailable"
// @Security BearerAuth
// @Router /links/{id}/clicks [get]
func (h *Handler) ClickStats(c *gin.Context) {
	period, err := ParsePeriod(c.Query("period"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	userID, _ := auth.GetUserID(c)
	link, err := h.registry.GetOwned(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	stats, err := h.engine.GetClickStats(c.Request.Context(), link.ID, period)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers analytics routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/links/:id/stats", h.LinkStats)
	rg.GET("/links/:id/clicks", h.ClickStats)
}
