package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkcash/pkg/linkcash/auth"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"go.uber.org/zap"
)

func setupTestRouter(t *testing.T, engine *Engine, f *fixture) (*gin.Engine, *auth.JWTManager) {
	gin.SetMode(gin.TestMode)
	tokens := auth.NewJWTManager("analytics-test-secret", time.Hour)

	r := gin.New()
	NewHandler(engine, f.registry, zap.NewNop()).RegisterRoutes(r.Group("/api", auth.AuthMiddleware(tokens, f.store)))
	return r, tokens
}

func get(t *testing.T, r *gin.Engine, tokens *auth.JWTManager, path, userID string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	token, err := tokens.GenerateToken(&models.User{ID: userID})
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestLinkStatsHandler(t *testing.T) {
	f := newFixture(t)
	r, tokens := setupTestRouter(t, f.engine, f)
	link := f.link(t, "user-1")
	f.click(t, link.ID, "10.0.0.1", "US", testNow)

	resp := get(t, r, tokens, "/api/links/"+link.ID+"/stats", "user-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var stats LinkStats
	json.Unmarshal(resp.Body.Bytes(), &stats)
	if stats.Clicks != 1 {
		t.Errorf("Expected 1 click, got %d", stats.Clicks)
	}

	resp = get(t, r, tokens, "/api/links/"+link.ID+"/stats", "user-2")
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for another owner, got %d", resp.Code)
	}
}

func TestClickStatsHandler(t *testing.T) {
	f := newFixture(t)
	r, tokens := setupTestRouter(t, f.engine, f)
	link := f.link(t, "user-1")
	f.click(t, link.ID, "10.0.0.1", "US", testNow.AddDate(0, 0, -3))
	f.click(t, link.ID, "10.0.0.2", "IN", testNow.Add(-time.Hour))

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantClicks int64
	}{
		{"default is all", "", http.StatusOK, 2},
		{"day", "?period=day", http.StatusOK, 1},
		{"week", "?period=week", http.StatusOK, 2},
		{"invalid period", "?period=decade", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, r, tokens, "/api/links/"+link.ID+"/clicks"+tt.query, "user-1")
			if resp.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, resp.Code, resp.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body struct {
				TotalClicks  int64            `json:"total_clicks"`
				CountryStats map[string]any   `json:"country_stats"`
				Clicks       []map[string]any `json:"clicks"`
			}
			json.Unmarshal(resp.Body.Bytes(), &body)
			if body.TotalClicks != tt.wantClicks {
				t.Errorf("Expected %d clicks, got %d", tt.wantClicks, body.TotalClicks)
			}
			if int64(len(body.Clicks)) != tt.wantClicks {
				t.Errorf("Expected %d recent clicks, got %d", tt.wantClicks, len(body.Clicks))
			}
			if _, leaked := body.Clicks[0]["visitor_hash"]; leaked {
				t.Error("Visitor hash should not be serialized")
			}
		})
	}
}

func TestClickStatsHandlerUnavailable(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(brokenStore{f.store}, zap.NewNop(), nil)
	r, tokens := setupTestRouter(t, engine, f)
	link := f.link(t, "user-1")

	resp := get(t, r, tokens, "/api/links/"+link.ID+"/clicks", "user-1")
	if resp.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d: %s", resp.Code, resp.Body.String())
	}
}
