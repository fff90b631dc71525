package links

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkcash/pkg/linkcash/auth"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"go.uber.org/zap"
)

type testServer struct {
	router *gin.Engine
	tokens *auth.JWTManager
	store  *store.GormStore
}

func setupTestRouter(t *testing.T, codes ...string) *testServer {
	gin.SetMode(gin.TestMode)
	s := setupTestStore(t)
	tokens := auth.NewJWTManager("links-test-secret-value", time.Hour)
	registry, _ := newTestRegistry(s, &scriptedGenerator{codes: codes}, nil)

	r := gin.New()
	handler := NewHandler(registry, "https://lc.example/", zap.NewNop())
	handler.RegisterRoutes(r.Group("/api", auth.AuthMiddleware(tokens, s)))
	return &testServer{router: r, tokens: tokens, store: s}
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := ts.tokens.GenerateToken(&models.User{ID: userID})
		if err != nil {
			t.Fatalf("Failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func TestCreateLinkHandler(t *testing.T) {
	ts := setupTestRouter(t, "gen12345")

	resp := ts.do(t, "POST", "/api/links", "user-1", CreateLinkRequest{URL: "https://example.com/page"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var link LinkResponse
	json.Unmarshal(resp.Body.Bytes(), &link)
	if link.Code != "gen12345" {
		t.Errorf("Expected code gen12345, got %s", link.Code)
	}
	if link.ShortURL != "https://lc.example/gen12345" {
		t.Errorf("Expected short url https://lc.example/gen12345, got %s", link.ShortURL)
	}
	if link.Title != "Link to example.com" {
		t.Errorf("Expected default title, got %s", link.Title)
	}
}

func TestCreateLinkHandlerErrors(t *testing.T) {
	ts := setupTestRouter(t)

	resp := ts.do(t, "POST", "/api/links", "user-1", CreateLinkRequest{URL: "https://example.com", Code: "promo"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	tests := []struct {
		name string
		req  CreateLinkRequest
		want int
	}{
		{"code taken", CreateLinkRequest{URL: "https://example.com", Code: "promo"}, http.StatusConflict},
		{"invalid url", CreateLinkRequest{URL: "mailto:someone@example.com"}, http.StatusBadRequest},
		{"reserved code", CreateLinkRequest{URL: "https://example.com", Code: "admin"}, http.StatusBadRequest},
		{"generator failure", CreateLinkRequest{URL: "https://example.com"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, "POST", "/api/links", "user-1", tt.req)
			if resp.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestCreateLinkRequiresAuth(t *testing.T) {
	ts := setupTestRouter(t)
	resp := ts.do(t, "POST", "/api/links", "", CreateLinkRequest{URL: "https://example.com"})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestLinkLifecycleHandlers(t *testing.T) {
	ts := setupTestRouter(t)

	resp := ts.do(t, "POST", "/api/links", "user-1", CreateLinkRequest{URL: "https://example.com", Code: "mine"})
	var link LinkResponse
	json.Unmarshal(resp.Body.Bytes(), &link)

	resp = ts.do(t, "GET", "/api/links/"+link.ID, "user-2", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for another owner, got %d", resp.Code)
	}

	resp = ts.do(t, "POST", "/api/links/"+link.ID+"/disable", "user-1", nil)
	json.Unmarshal(resp.Body.Bytes(), &link)
	if resp.Code != http.StatusOK || link.Status != models.LinkStatusDisabled {
		t.Errorf("Expected disabled link, got %d %s", resp.Code, link.Status)
	}

	resp = ts.do(t, "POST", "/api/links/"+link.ID+"/enable", "user-1", nil)
	json.Unmarshal(resp.Body.Bytes(), &link)
	if resp.Code != http.StatusOK || link.Status != models.LinkStatusActive {
		t.Errorf("Expected active link, got %d %s", resp.Code, link.Status)
	}

	title := "Updated"
	resp = ts.do(t, "PATCH", "/api/links/"+link.ID, "user-1", UpdateLinkRequest{Title: &title})
	json.Unmarshal(resp.Body.Bytes(), &link)
	if resp.Code != http.StatusOK || link.Title != "Updated" {
		t.Errorf("Expected updated title, got %d %s", resp.Code, link.Title)
	}

	resp = ts.do(t, "GET", "/api/links?order_by=clicks", "user-1", nil)
	var list []LinkResponse
	json.Unmarshal(resp.Body.Bytes(), &list)
	if resp.Code != http.StatusOK || len(list) != 1 {
		t.Errorf("Expected one link, got %d (%d)", len(list), resp.Code)
	}

	resp = ts.do(t, "GET", "/api/links?status=archived", "user-1", nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", resp.Code)
	}

	resp = ts.do(t, "DELETE", "/api/links/"+link.ID, "user-1", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected 200 on delete, got %d", resp.Code)
	}

	resp = ts.do(t, "GET", "/api/links/"+link.ID, "user-1", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.Code)
	}
}
