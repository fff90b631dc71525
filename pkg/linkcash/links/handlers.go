package links

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkcash/pkg/linkcash/auth"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"go.uber.org/zap"
)

// Handler handles link management requests
type Handler struct {
	registry *Registry
	baseURL  string
	logger   *zap.Logger
}

// NewHandler creates a new links handler
func NewHandler(registry *Registry, baseURL string, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// CreateLinkRequest represents the request to create a link
type CreateLinkRequest struct {
	URL           string     `json:"url" binding:"required"`
	Code          string     `json:"code" binding:"omitempty,max=50"`
	Title         string     `json:"title" binding:"max=255"`
	ExpiresAt     *time.Time `json:"expires_at"`
	RedirectDelay *int       `json:"redirect_delay" binding:"omitempty,gte=0,lte=120"`
	Password      string     `json:"password"`
	AdEnabled     *bool      `json:"ad_enabled"`
}

// UpdateLinkRequest represents the request to update a link
type UpdateLinkRequest struct {
	URL           *string `json:"url"`
	Title         *string `json:"title" binding:"omitempty,max=255"`
	RedirectDelay *int    `json:"redirect_delay" binding:"omitempty,gte=0,lte=120"`
	Password      *string `json:"password"`
	AdEnabled     *bool   `json:"ad_enabled"`
}

// LinkResponse represents a link in API responses
type LinkResponse struct {
	ID          string               `json:"id"`
	Code        string               `json:"code"`
	ShortURL    string               `json:"short_url"`
	URL         string               `json:"url"`
	Title       string               `json:"title"`
	Status      models.LinkStatus    `json:"status"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
	HasPassword bool                 `json:"has_password"`
	Settings    models.LinkSettings  `json:"settings"`
	Analytics   models.LinkAnalytics `json:"analytics"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at"`
}

func (h *Handler) linkToResponse(link *models.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		Code:        link.Code,
		ShortURL:    h.baseURL + "/" + link.Code,
		URL:         link.URL,
		Title:       link.Title,
		Status:      link.Status,
		ExpiresAt:   link.ExpiresAt,
		HasPassword: link.HasPassword(),
		Settings:    link.Settings,
		Analytics:   link.Analytics,
		CreatedAt:   link.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   link.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// writeError maps registry errors onto HTTP responses
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
	case errors.Is(err, ErrCodeTaken), errors.Is(err, ErrGenerationExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrLinkExpired):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrInvalidCode), errors.Is(err, models.ErrInvalidEntity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("link request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// Create creates a new link
// @Summary Create a link
// @Description Shorten a URL, optionally with a custom code
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link details"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Code taken"
// @Security BearerAuth
// @Router /links [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.registry.Create(c.Request.Context(), userID, req.URL, CreateOptions{
		CustomCode:    req.Code,
		Title:         req.Title,
		ExpiresAt:     req.ExpiresAt,
		RedirectDelay: req.RedirectDelay,
		Password:      req.Password,
		AdEnabled:     req.AdEnabled,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.linkToResponse(link))
}

// List returns the caller's links
// @Summary List links
// @Description List the authenticated user's links
// @Tags links
// @Produce json
// @Param status query string false "Filter by status (active, disabled, expired)"
// @Param order_by query string false "created_at or clicks"
// @Param limit query int false "Max results"
// @Success 200 {array} LinkResponse
// @Security BearerAuth
// @Router /links [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	opts := ListOptions{Desc: true}
	switch status := models.LinkStatus(c.Query("status")); status {
	case "", models.LinkStatusActive, models.LinkStatusDisabled, models.LinkStatusExpired:
		opts.Status = status
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	switch order := store.LinkOrder(c.DefaultQuery("order_by", string(store.OrderByCreatedAt))); order {
	case store.OrderByCreatedAt, store.OrderByClicks:
		opts.OrderBy = order
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order_by"})
		return
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		opts.Limit = limit
	}

	found, err := h.registry.ListByOwner(c.Request.Context(), userID, opts)
	if err != nil {
		h.writeError(c, err)
		return
	}

	responses := make([]LinkResponse, len(found))
	for i := range found {
		responses[i] = h.linkToResponse(&found[i])
	}
	c.JSON(http.StatusOK, responses)
}

// Get returns one of the caller's links
// @Summary Get a link
// @Tags links
// @Produce json
// @Param id path string true "Link ID"
// @Success 200 {object} LinkResponse
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	link, err := h.registry.GetOwned(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.linkToResponse(link))
}

// Update changes a link's settings
// @Summary Update a link
// @Description Update title, destination, redirect delay, password or ad flag
// @Tags links
// @Accept json
// @Produce json
// @Param id path string true "Link ID"
// @Param request body UpdateLinkRequest true "Fields to change"
// @Success 200 {object} LinkResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{id} [patch]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.registry.UpdateSettings(c.Request.Context(), userID, c.Param("id"), UpdateOptions{
		URL:           req.URL,
		Title:         req.Title,
		RedirectDelay: req.RedirectDelay,
		Password:      req.Password,
		AdEnabled:     req.AdEnabled,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.linkToResponse(link))
}

// Disable stops a link from redirecting
// @Summary Disable a link
// @Tags links
// @Produce json
// @Param id path string true "Link ID"
// @Success 200 {object} LinkResponse
// @Failure 404 {object} map[string]string "Link not found"
// @Failure 409 {object} map[string]string "Link expired"
// @Security BearerAuth
// @Router /links/{id}/disable [post]
func (h *Handler) Disable(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	link, err := h.registry.Disable(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.linkToResponse(link))
}

// Enable re-activates a disabled link
// @Summary Enable a link
// @Tags links
// @Produce json
// @Param id path string true "Link ID"
// @Success 200 {object} LinkResponse
// @Failure 404 {object} map[string]string "Link not found"
// @Failure 409 {object} map[string]string "Link expired"
// @Security BearerAuth
// @Router /links/{id}/enable [post]
func (h *Handler) Enable(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	link, err := h.registry.Enable(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.linkToResponse(link))
}

// Delete deletes a link
// @Summary Delete a link
// @Description Delete a link; its click history is kept
// @Tags links
// @Produce json
// @Param id path string true "Link ID"
// @Success 200 {object} map[string]string "Link deleted"
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	if err := h.registry.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Link deleted"})
}

// RegisterRoutes registers link routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/links", h.Create)
	rg.GET("/links", h.List)
	rg.GET("/links/:id", h.Get)
	rg.PATCH("/links/:id", h.Update)
	rg.DELETE("/links/:id", h.Delete)
	rg.POST("/links/:id/disable", h.Disable)
	rg.POST("/links/:id/enable", h.Enable)
}
