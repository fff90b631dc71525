package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkcash/pkg/linkcash/analytics"
	"github.com/mikepea/linkcash/pkg/linkcash/auth"
	"go.uber.org/zap"
)

// Handler serves the dashboard endpoint
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Stats returns the caller's dashboard
// @Summary Get dashboard stats
// @Description Profile, totals, recent links, top links and analytics for the current user
// @Tags dashboard
// @Produce json
// @Param period query string false "day, week, month, year or all"
// @Success 200 {object} Payload
// @Failure 400 {object} map[string]string "Invalid period"
// @Failure 503 {object} map[string]string "Analytics unavailable"
// @Security BearerAuth
// @Router /dashboard/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	period, err := analytics.ParsePeriod(c.Query("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := auth.GetUserID(c)
	payload, err := h.service.Get(c.Request.Context(), userID, period)
	if err != nil {
		if errors.Is(err, analytics.ErrAggregationUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics temporarily unavailable"})
			return
		}
		h.logger.Error("failed to build dashboard", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard"})
		return
	}
	c.JSON(http.StatusOK, payload)
}

// RegisterRoutes registers dashboard routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dashboard/stats", h.Stats)
}
