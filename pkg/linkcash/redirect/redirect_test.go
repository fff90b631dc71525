package redirect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikepea/linkcash/pkg/linkcash/clicks"
	"github.com/mikepea/linkcash/pkg/linkcash/database"
	"github.com/mikepea/linkcash/pkg/linkcash/idgen"
	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"go.uber.org/zap"
)

type testEnv struct {
	store    *store.GormStore
	registry *links.Registry
	router   *gin.Engine
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := database.Connect(database.MemoryConfig(uuid.NewString()))
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	st := store.NewGormStore(db)
	gen, _ := idgen.New()
	registry := links.NewRegistry(st, gen, nil, zap.NewNop(), nil, links.Config{MaxAttempts: 3, DefaultRedirectDelay: models.DefaultRedirectDelay})
	recorder := clicks.NewRecorder(st, nil, zap.NewNop(), nil)

	return &testEnv{store: st, registry: registry, router: setupTestRouter(registry, recorder)}
}

func setupTestRouter(resolver Resolver, recorder Recorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(resolver, recorder, clicks.DefaultGeoLocator(), 5*time.Second, zap.NewNop())
	handler.RegisterTrackRoutes(r.Group("/api"))
	handler.RegisterRoutes(r)
	return r
}

func (e *testEnv) createLink(t *testing.T, code, url string, opts links.CreateOptions) *models.Link {
	opts.CustomCode = code
	link, err := e.registry.Create(context.Background(), "owner-1", url, opts)
	if err != nil {
		t.Fatalf("Failed to create test link: %v", err)
	}
	return link
}

func (e *testEnv) clickCount(t *testing.T, linkID string) int64 {
	link, err := e.store.GetLink(context.Background(), linkID)
	if err != nil {
		t.Fatalf("Failed to reload link: %v", err)
	}
	return link.Analytics.Clicks
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRedirectRecordsClick(t *testing.T) {
	e := setupTestEnv(t)
	link := e.createLink(t, "test-link", "https://example.com", links.CreateOptions{})

	for i := 1; i <= 2; i++ {
		req, _ := http.NewRequest("GET", "/test-link", nil)
		resp := serve(e.router, req)

		if resp.Code != http.StatusFound {
			t.Fatalf("Expected status 302, got %d", resp.Code)
		}
		if location := resp.Header().Get("Location"); location != "https://example.com" {
			t.Errorf("Expected Location 'https://example.com', got %s", location)
		}
		// Recording is synchronous, no waiting needed.
		if got := e.clickCount(t, link.ID); got != int64(i) {
			t.Errorf("Expected click count %d, got %d", i, got)
		}
	}
}

func TestRedirectNotFound(t *testing.T) {
	e := setupTestEnv(t)

	req, _ := http.NewRequest("GET", "/nonexistent", nil)
	if resp := serve(e.router, req); resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestRedirectWithQueryParams(t *testing.T) {
	e := setupTestEnv(t)
	e.createLink(t, "query-test", "https://example.com/page", links.CreateOptions{})

	// The redirect goes to the stored URL regardless of the request query.
	req, _ := http.NewRequest("GET", "/query-test?foo=bar", nil)
	resp := serve(e.router, req)
	if location := resp.Header().Get("Location"); location != "https://example.com/page" {
		t.Errorf("Expected Location 'https://example.com/page', got %s", location)
	}
}

func TestRedirectDisabledAndExpired(t *testing.T) {
	e := setupTestEnv(t)
	disabled := e.createLink(t, "off-link", "https://example.com", links.CreateOptions{})
	if _, err := e.registry.Disable(context.Background(), "owner-1", disabled.ID); err != nil {
		t.Fatalf("Failed to disable link: %v", err)
	}

	expiry := time.Now().Add(time.Hour)
	expiring := e.createLink(t, "old-link", "https://example.com", links.CreateOptions{ExpiresAt: &expiry})
	e.registry.SetClock(func() time.Time { return expiry.Add(time.Minute) })

	for _, code := range []string{"off-link", "old-link"} {
		req, _ := http.NewRequest("GET", "/"+code, nil)
		if resp := serve(e.router, req); resp.Code != http.StatusGone {
			t.Errorf("%s: expected status 410, got %d", code, resp.Code)
		}
	}

	if got := e.clickCount(t, disabled.ID) + e.clickCount(t, expiring.ID); got != 0 {
		t.Errorf("Expected no clicks on unavailable links, got %d", got)
	}
}

func TestRedirectPasswordGate(t *testing.T) {
	e := setupTestEnv(t)
	link := e.createLink(t, "secret", "https://example.com/secret", links.CreateOptions{Password: "hunter22"})

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
	}{
		{"no password", "/secret", "", http.StatusUnauthorized},
		{"wrong password", "/secret?p=nope", "", http.StatusUnauthorized},
		{"query password", "/secret?p=hunter22", "", http.StatusFound},
		{"header password", "/secret", "hunter22", http.StatusFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set(PasswordHeader, tt.header)
			}
			if resp := serve(e.router, req); resp.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.Code)
			}
		})
	}

	if got := e.clickCount(t, link.ID); got != 2 {
		t.Errorf("Expected 2 clicks past the gate, got %d", got)
	}
}

func TestRedirectUsesGeoHeaders(t *testing.T) {
	e := setupTestEnv(t)
	link := e.createLink(t, "geo-link", "https://example.com", links.CreateOptions{})

	req, _ := http.NewRequest("GET", "/geo-link", nil)
	req.Header.Set("CF-IPCountry", "de")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	req.Header.Set("Referer", "https://news.example.org/")
	serve(e.router, req)

	events, err := e.store.QueryClicks(context.Background(), store.ClickQuery{LinkIDs: []string{link.ID}})
	if err != nil || len(events) != 1 {
		t.Fatalf("Expected one click event, got %d (%v)", len(events), err)
	}
	if events[0].Country != "DE" {
		t.Errorf("Expected country DE, got %s", events[0].Country)
	}
	if events[0].Browser != "Firefox" {
		t.Errorf("Expected browser Firefox, got %s", events[0].Browser)
	}
	if events[0].Referer != "https://news.example.org/" {
		t.Errorf("Expected referer to be kept, got %s", events[0].Referer)
	}
}

func TestTrack(t *testing.T) {
	e := setupTestEnv(t)
	link := e.createLink(t, "ad-link", "https://example.com", links.CreateOptions{})

	req, _ := http.NewRequest("POST", "/api/track/ad-link", nil)
	resp := serve(e.router, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result clicks.Result
	json.Unmarshal(resp.Body.Bytes(), &result)
	if result.ClickID == "" {
		t.Error("Expected a click id")
	}
	if result.Earned != clicks.DefaultFlatRate {
		t.Errorf("Expected earned %v, got %v", clicks.DefaultFlatRate, result.Earned)
	}
	if got := e.clickCount(t, link.ID); got != 1 {
		t.Errorf("Expected 1 click, got %d", got)
	}

	req, _ = http.NewRequest("POST", "/api/track/missing", nil)
	if resp := serve(e.router, req); resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

type staticResolver struct {
	link *models.Link
}

func (s staticResolver) ResolveByCode(context.Context, string) (*models.Link, error) {
	return s.link, nil
}

type stubRecorder struct {
	err         error
	called      bool
	ctxErr      error
	hasDeadline bool
}

func (s *stubRecorder) Record(ctx context.Context, linkID string, signal clicks.ClientSignal) (*clicks.Result, error) {
	s.called = true
	s.ctxErr = ctx.Err()
	_, s.hasDeadline = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	return &clicks.Result{ClickID: "click-1"}, nil
}

func TestRedirectSurvivesRecordingFailure(t *testing.T) {
	link := &models.Link{ID: "l1", Code: "flaky", URL: "https://example.com", Status: models.LinkStatusActive}
	recorder := &stubRecorder{err: errors.New("database is locked")}
	r := setupTestRouter(staticResolver{link}, recorder)

	req, _ := http.NewRequest("GET", "/flaky", nil)
	if resp := serve(r, req); resp.Code != http.StatusFound {
		t.Errorf("Expected status 302 despite recording failure, got %d", resp.Code)
	}

	req, _ = http.NewRequest("POST", "/api/track/flaky", nil)
	if resp := serve(r, req); resp.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500 from track, got %d", resp.Code)
	}
}

func TestRecordingIgnoresClientDisconnect(t *testing.T) {
	link := &models.Link{ID: "l1", Code: "gone", URL: "https://example.com", Status: models.LinkStatusActive}
	recorder := &stubRecorder{}
	r := setupTestRouter(staticResolver{link}, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", "/gone", nil)
	serve(r, req)

	if !recorder.called {
		t.Fatal("Expected the click to be recorded")
	}
	if recorder.ctxErr != nil {
		t.Errorf("Expected a live context, got %v", recorder.ctxErr)
	}
	if !recorder.hasDeadline {
		t.Error("Expected the recording context to carry a deadline")
	}
}
