package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkcash/pkg/linkcash/analytics"
	"github.com/mikepea/linkcash/pkg/linkcash/auth"
	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is what the admin handlers read besides the user table.
type Store interface {
	PlatformTotals(ctx context.Context) (*store.Totals, error)
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
}

// Reconciler repairs denormalized counters.
type Reconciler interface {
	ReconcileLink(ctx context.Context, linkID string, repair bool) (*analytics.LinkReport, error)
	ReconcileUser(ctx context.Context, userID string, repair bool) (*analytics.UserReport, error)
}

// Handler handles admin requests
type Handler struct {
	db         *gorm.DB
	store      Store
	reconciler Reconciler
	logger     *zap.Logger
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, st Store, reconciler Reconciler, logger *zap.Logger) *Handler {
	return &Handler{db: db, store: st, reconciler: reconciler, logger: logger}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	SystemRole    string  `json:"system_role"`
	CreatedAt     string  `json:"created_at"`
	TotalLinks    int64   `json:"total_links"`
	TotalClicks   int64   `json:"total_clicks"`
	TotalEarnings float64 `json:"total_earnings"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name       *string `json:"name"`
	SystemRole *string `json:"system_role"`
}

// StatsResponse represents platform statistics
type StatsResponse struct {
	TotalUsers       int64 `json:"total_users"`
	TotalLinks       int64 `json:"total_links"`
	TotalClicks      int64 `json:"total_clicks"`
	CountriesReached int64 `json:"countries_reached"`
	AdminUsers       int64 `json:"admin_users"`
}

func (h *Handler) userResponse(c *gin.Context, user *models.User) (UserResponse, error) {
	resp := UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		SystemRole: string(user.SystemRole),
		CreatedAt:  user.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	stats, err := h.store.GetUserStats(c.Request.Context(), user.ID)
	switch {
	case err == nil:
		resp.TotalLinks = stats.TotalLinks
		resp.TotalClicks = stats.TotalClicks
		resp.TotalEarnings = stats.TotalEarnings
	case !errors.Is(err, store.ErrNotFound):
		return resp, err
	}
	return resp, nil
}

// ListUsers returns all local users
// @Summary List users
// @Tags admin
// @Produce json
// @Param q query string false "Search email or name"
// @Param role query string false "Filter by system role"
// @Success 200 {array} UserResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.WithContext(c.Request.Context()).Order("created_at DESC")

	// Optional search by email or name
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i := range users {
		resp, err := h.userResponse(c, &users[i])
		if err != nil {
			h.logger.Error("failed to load user stats", zap.String("user_id", users[i].ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
			return
		}
		responses[i] = resp
	}

	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID
// @Summary Get a user
// @Tags admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	var user models.User
	if err := h.db.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	resp, err := h.userResponse(c, &user)
	if err != nil {
		h.logger.Error("failed to load user stats", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateUser updates a user's name or role
// @Summary Update a user
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	id := c.Param("id")
	db := h.db.WithContext(c.Request.Context())

	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from demoting themselves
	currentUserID, _ := auth.GetUserID(c)
	if id == currentUserID && req.SystemRole != nil && *req.SystemRole != string(models.SystemRoleAdmin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.SystemRole != nil {
		user.SystemRole = models.SystemRole(*req.SystemRole)
	}
	if err := models.Validate(&user); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := db.Model(&user).Updates(map[string]interface{}{
		"name":        user.Name,
		"system_role": user.SystemRole,
	}).Error; err != nil {
		h.logger.Error("failed to update user", zap.String("user_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}

	resp, err := h.userResponse(c, &user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteUser soft-deletes a local account. The user's links keep
// redirecting and earning until they are deleted separately.
// @Summary Delete a user
// @Tags admin
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Cannot delete yourself"
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	id := c.Param("id")

	currentUserID, _ := auth.GetUserID(c)
	if id == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).Where("id = ?", id).Delete(&models.User{})
	if result.Error != nil {
		h.logger.Error("failed to delete user", zap.String("user_id", id), zap.Error(result.Error))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetStats returns platform-wide totals
// @Summary Platform statistics
// @Description Users, links, clicks and countries reached
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Failure 500 {object} map[string]string "Store unavailable"
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	totals, err := h.store.PlatformTotals(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to compute platform totals", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}

	stats := StatsResponse{
		TotalUsers:       totals.Users,
		TotalLinks:       totals.Links,
		TotalClicks:      totals.Clicks,
		CountriesReached: totals.CountriesReached,
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("system_role = ?", models.SystemRoleAdmin).
		Count(&stats.AdminUsers).Error; err != nil {
		h.logger.Error("failed to count admins", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func repairFlag(c *gin.Context) (bool, bool) {
	raw := c.DefaultQuery("repair", "false")
	repair, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repair must be true or false"})
		return false, false
	}
	return repair, true
}

// ReconcileLink compares a link's counters with its click events
// @Summary Reconcile link counters
// @Description Recompute a link's analytics from its events; repair=true corrects the stored values
// @Tags admin
// @Produce json
// @Param id path string true "Link ID"
// @Param repair query bool false "Overwrite stored counters"
// @Success 200 {object} analytics.LinkReport
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /admin/links/{id}/reconcile [post]
func (h *Handler) ReconcileLink(c *gin.Context) {
	repair, ok := repairFlag(c)
	if !ok {
		return
	}

	report, err := h.reconciler.ReconcileLink(c.Request.Context(), c.Param("id"), repair)
	if err != nil {
		if errors.Is(err, links.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		h.logger.Error("link reconciliation failed", zap.String("link_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reconciliation failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ReconcileUser compares a user's stats with their links
// @Summary Reconcile user stats
// @Description Recompute a user's totals from their links; repair=true corrects the stored values
// @Tags admin
// @Produce json
// @Param id path string true "User ID"
// @Param repair query bool false "Overwrite stored stats"
// @Success 200 {object} analytics.UserReport
// @Security BearerAuth
// @Router /admin/users/{id}/reconcile [post]
func (h *Handler) ReconcileUser(c *gin.Context) {
	repair, ok := repairFlag(c)
	if !ok {
		return
	}

	report, err := h.reconciler.ReconcileUser(c.Request.Context(), c.Param("id"), repair)
	if err != nil {
		h.logger.Error("user reconciliation failed", zap.String("user_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reconciliation failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
	rg.POST("/users/:id/reconcile", h.ReconcileUser)
	rg.POST("/links/:id/reconcile", h.ReconcileLink)
}
