package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"shortd.local/internal/app/links/repo"
	"shortd.local/internal/app/links/snapshot"
	"shortd.local/internal/app/links/stats"
	"shortd.local/internal/platform/auth"
)

// setupTestServer wires the full public + api route tree on an in-memory snapshot.
func setupTestServer(t *testing.T) (*gin.Engine, *repo.LinksRepo, *repo.AccountsRepo, auth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	blob := snapshot.NewMemoryStore()
	store, err := repo.Open(context.Background(), blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	linksRepo := repo.NewLinksRepo(store, nil, nil)
	accountsRepo := repo.NewAccountsRepo(store)

	ts, err := auth.NewHS256Service("test-secret-key", "test-issuer", time.Hour)
	if err != nil {
		t.Fatalf("NewHS256Service: %v", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	RegisterAPIRoutes(api, linksRepo, accountsRepo, ts, nil)

	collector := stats.NewChannelCollector(100)
	t.Cleanup(collector.Close)
	RegisterPublicRoutes(r, linksRepo, collector)

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return r, linksRepo, accountsRepo, ts
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// registerAndLogin runs the full register + login flow and returns a bearer token.
func registerAndLogin(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	w := doJSON(t, r, "POST", "/api/v1/register", "", gin.H{"username": username, "password": "correct-horse"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, "POST", "/api/v1/login", "", gin.H{"username": username, "password": "correct-horse"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Token == "" {
		t.Fatalf("login response: %s (%v)", w.Body.String(), err)
	}
	return res.Token
}

func TestCreateAndRedirectFlow(t *testing.T) {
	r, _, _, _ := setupTestServer(t)
	token := registerAndLogin(t, r, "alice")

	w := doJSON(t, r, "POST", "/api/v1/links", token, gin.H{"url": "example.com/page", "slug": "promo"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	var created linkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Slug != "promo" || created.Destination != "https://example.com/page" || created.Status != "active" {
		t.Errorf("created = %+v", created)
	}

	// public redirect
	w = doJSON(t, r, "GET", "/promo", "", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("redirect = %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "https://example.com/page" {
		t.Errorf("Location = %q", loc)
	}

	// click count visible through the api
	w = doJSON(t, r, "GET", "/api/v1/links/"+created.ID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d: %s", w.Code, w.Body.String())
	}
	var got linkResponse
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.ClickCount != 1 {
		t.Errorf("ClickCount = %d, want 1", got.ClickCount)
	}
}

func TestCreateRequiresAuth(t *testing.T) {
	r, _, _, _ := setupTestServer(t)
	w := doJSON(t, r, "POST", "/api/v1/links", "", gin.H{"url": "https://example.com"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestCreateErrorMapping(t *testing.T) {
	r, _, _, _ := setupTestServer(t)
	token := registerAndLogin(t, r, "alice")

	cases := []struct {
		name string
		body gin.H
		want int
	}{
		{"bad scheme", gin.H{"url": "ftp://example.com"}, http.StatusBadRequest},
		{"short slug", gin.H{"url": "https://example.com", "slug": "ab"}, http.StatusBadRequest},
		{"reserved slug", gin.H{"url": "https://example.com", "slug": "api"}, http.StatusBadRequest},
		{"bad expiry", gin.H{"url": "https://example.com", "expires_at": "tomorrow"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, "POST", "/api/v1/links", token, tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}

	// duplicate slug -> 409
	if w := doJSON(t, r, "POST", "/api/v1/links", token, gin.H{"url": "https://example.com", "slug": "promo"}); w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	if w := doJSON(t, r, "POST", "/api/v1/links", token, gin.H{"url": "https://example.com", "slug": "promo"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", w.Code)
	}
}

func TestRedirectExpiredGone(t *testing.T) {
	r, linksRepo, _, _ := setupTestServer(t)

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	if _, err := linksRepo.Create(context.Background(), "someone", "https://example.com", "oldone", true, past); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := doJSON(t, r, "GET", "/oldone", "", nil)
	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", w.Code)
	}
}

func TestRedirectDisabledLooksLikeMissing(t *testing.T) {
	r, linksRepo, _, _ := setupTestServer(t)

	if _, err := linksRepo.Create(context.Background(), "someone", "https://example.com", "hidden", false, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := doJSON(t, r, "GET", "/hidden", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestToggleAndOwnership(t *testing.T) {
	r, _, _, _ := setupTestServer(t)
	alice := registerAndLogin(t, r, "alice")
	bob := registerAndLogin(t, r, "bobby")

	w := doJSON(t, r, "POST", "/api/v1/links", alice, gin.H{"url": "https://example.com", "slug": "mine42"})
	var created linkResponse
	json.Unmarshal(w.Body.Bytes(), &created)

	// other user cannot see or toggle it
	if w := doJSON(t, r, "GET", "/api/v1/links/"+created.ID, bob, nil); w.Code != http.StatusNotFound {
		t.Errorf("cross-owner get = %d, want 404", w.Code)
	}
	if w := doJSON(t, r, "POST", "/api/v1/links/"+created.ID+"/toggle", bob, nil); w.Code != http.StatusNotFound {
		t.Errorf("cross-owner toggle = %d, want 404", w.Code)
	}

	w = doJSON(t, r, "POST", "/api/v1/links/"+created.ID+"/toggle", alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle = %d: %s", w.Code, w.Body.String())
	}
	var toggled linkResponse
	json.Unmarshal(w.Body.Bytes(), &toggled)
	if toggled.Enabled || toggled.Status != "disabled" {
		t.Errorf("toggled = %+v", toggled)
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	r, linksRepo, accountsRepo, ts := setupTestServer(t)
	user := registerAndLogin(t, r, "alice")

	l, err := linksRepo.Create(context.Background(), "someone", "https://example.com", "victim", true, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if w := doJSON(t, r, "POST", "/api/v1/admin/links/"+l.ID+"/disable", user, nil); w.Code != http.StatusForbidden {
		t.Errorf("user hitting admin route = %d, want 403", w.Code)
	}

	admin, err := accountsRepo.EnsureAdmin(context.Background(), "root", "whatever-hash")
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	adminToken, err := ts.Sign(admin.ID, admin.Role)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if w := doJSON(t, r, "POST", "/api/v1/admin/links/"+l.ID+"/disable", adminToken, nil); w.Code != http.StatusOK {
		t.Errorf("admin disable = %d", w.Code)
	}
	// second disable conflicts
	if w := doJSON(t, r, "POST", "/api/v1/admin/links/"+l.ID+"/disable", adminToken, nil); w.Code != http.StatusConflict {
		t.Errorf("second disable = %d, want 409", w.Code)
	}

	w := doJSON(t, r, "POST", "/api/v1/admin/sweep", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("sweep = %d: %s", w.Code, w.Body.String())
	}
}

func TestListWithFilters(t *testing.T) {
	r, _, _, _ := setupTestServer(t)
	token := registerAndLogin(t, r, "alice")

	doJSON(t, r, "POST", "/api/v1/links", token, gin.H{"url": "https://example.com/a", "slug": "aaa"})
	doJSON(t, r, "POST", "/api/v1/links", token, gin.H{"url": "https://example.com/b", "slug": "bbb", "enabled": false})

	w := doJSON(t, r, "GET", "/api/v1/links?status=disabled", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Links []linkResponse `json:"links"`
		Total int            `json:"total"`
	}
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Total != 1 || len(res.Links) != 1 || res.Links[0].Slug != "bbb" {
		t.Errorf("disabled filter = %+v", res)
	}

	if w := doJSON(t, r, "GET", "/api/v1/links?status=bogus", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d, want 400", w.Code)
	}
}

func TestStatsWithoutReader(t *testing.T) {
	r, _, _, _ := setupTestServer(t)
	token := registerAndLogin(t, r, "alice")

	w := doJSON(t, r, "POST", "/api/v1/links", token, gin.H{"url": "https://example.com", "slug": "countme"})
	var created linkResponse
	json.Unmarshal(w.Body.Bytes(), &created)

	doJSON(t, r, "GET", "/countme", "", nil)
	doJSON(t, r, "GET", "/countme", "", nil)

	w = doJSON(t, r, "GET", "/api/v1/links/"+created.ID+"/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d: %s", w.Code, w.Body.String())
	}
	var res LinkStatsResponse
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.TotalClicks != 2 {
		t.Errorf("TotalClicks = %d, want 2", res.TotalClicks)
	}
	if len(res.RecentClicks) != 0 {
		t.Errorf("RecentClicks without a reader = %v", res.RecentClicks)
	}
}

func TestHealthzNotShadowedBySlugRoute(t *testing.T) {
	r, _, _, _ := setupTestServer(t)
	w := doJSON(t, r, "GET", "/healthz", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestMeEndpoint(t *testing.T) {
	r, _, _, _ := setupTestServer(t)
	token := registerAndLogin(t, r, "alice")

	w := doJSON(t, r, "GET", "/api/v1/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me = %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		AccountID string `json:"account_id"`
		Role      string `json:"role"`
	}
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.AccountID == "" || res.Role != "user" {
		t.Errorf("me = %+v", res)
	}
}
