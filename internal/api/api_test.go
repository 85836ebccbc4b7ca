package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/para-comments-api/internal/api"
	"github.com/para-comments-api/internal/config"
	"github.com/para-comments-api/internal/identity"
	"github.com/para-comments-api/internal/models"
	"github.com/para-comments-api/internal/service"
	"github.com/para-comments-api/internal/storage/file"
)

const testAdminSecret = "test-admin-secret"

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:          "4000",
			MaxBodySize:   1024 * 1024,
			MaxImportSize: 50 * 1024 * 1024,
		},
		Auth: config.AuthConfig{
			SiteSecrets: map[string]string{"site1": "test-secret"},
			AdminSecret: testAdminSecret,
		},
		RateLimit: config.RateLimitConfig{Enabled: false},
	}

	log := zerolog.Nop()
	store, err := file.New(t.TempDir(), log)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	resolver := identity.NewResolver(cfg.Auth.SiteSecrets)
	svc := service.New(store, resolver, log)

	return api.NewRouter(svc, cfg, log)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "1.2.3.4:5678"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "para-comments-api" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
}

func TestCreateListLikeFlow(t *testing.T) {
	router := setupTestRouter(t)

	// Create a comment without a token.
	w := doJSON(t, router, "POST", "/api/v1/comments", map[string]interface{}{
		"siteId":    "site1",
		"workId":    "work1",
		"chapterId": "ch1",
		"paraIndex": 2,
		"content":   "great paragraph",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created models.Comment
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if !strings.HasPrefix(created.UserID, identity.AnonymousPrefix) {
		t.Errorf("expected anonymous userId, got %q", created.UserID)
	}
	if created.Likes != 0 {
		t.Errorf("expected 0 likes, got %d", created.Likes)
	}

	// List groups it under paragraph "2".
	w = doJSON(t, router, "GET", "/api/v1/comments?siteId=site1&workId=work1&chapterId=ch1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var listResp struct {
		CommentsByPara map[string][]models.Comment `json:"commentsByPara"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listResp.CommentsByPara["2"]) != 1 {
		t.Fatalf("expected 1 comment under paragraph 2, got %+v", listResp.CommentsByPara)
	}

	// Like from a different IP.
	var likeBuf bytes.Buffer
	json.NewEncoder(&likeBuf).Encode(map[string]string{
		"siteId": "site1", "workId": "work1", "chapterId": "ch1", "commentId": created.ID,
	})
	req := httptest.NewRequest("POST", "/api/v1/comments/like", &likeBuf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "9.9.9.9:1111"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("like: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var likeResp struct {
		Likes int `json:"likes"`
	}
	json.Unmarshal(w.Body.Bytes(), &likeResp)
	if likeResp.Likes != 1 {
		t.Errorf("expected 1 like, got %d", likeResp.Likes)
	}

	// A repeat like from the same IP is rejected.
	likeBuf.Reset()
	json.NewEncoder(&likeBuf).Encode(map[string]string{
		"siteId": "site1", "workId": "work1", "chapterId": "ch1", "commentId": created.ID,
	})
	req = httptest.NewRequest("POST", "/api/v1/comments/like", &likeBuf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "9.9.9.9:2222"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("repeat like: expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "already_liked_or_not_found") {
		t.Errorf("unexpected error body: %s", w.Body.String())
	}
}

func TestCreateCommentValidation(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name string
		body map[string]interface{}
		want string
	}{
		{
			name: "bad site id",
			body: map[string]interface{}{
				"siteId": "../etc", "workId": "w", "chapterId": "c",
				"paraIndex": 0, "content": "hi",
			},
			want: "invalid_siteId",
		},
		{
			name: "missing paraIndex",
			body: map[string]interface{}{
				"siteId": "s", "workId": "w", "chapterId": "c",
				"content": "hi",
			},
			want: "invalid_paraIndex",
		},
		{
			name: "blank content",
			body: map[string]interface{}{
				"siteId": "s", "workId": "w", "chapterId": "c",
				"paraIndex": 0, "content": "   ",
			},
			want: "empty_content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/comments", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("expected %q in body, got %s", tt.want, w.Body.String())
			}
		})
	}
}

func TestDeleteCommentAuthorization(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/comments", map[string]interface{}{
		"siteId": "site1", "workId": "work1", "chapterId": "ch1",
		"paraIndex": 0, "content": "to be deleted",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	var created models.Comment
	json.Unmarshal(w.Body.Bytes(), &created)

	base := "/api/v1/comments?siteId=site1&workId=work1&chapterId=ch1&commentId=" + created.ID

	// No credentials.
	w = doJSON(t, router, "DELETE", base, nil, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "permission_denied") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}

	// With an edit token.
	w = doJSON(t, router, "DELETE", base+"&editToken=tok", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Deleting again reports not found.
	w = doJSON(t, router, "DELETE", base+"&editToken=tok", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminSecretGuard(t *testing.T) {
	router := setupTestRouter(t)

	// No secret.
	w := doJSON(t, router, "GET", "/api/v1/export", nil, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	// Wrong secret.
	w = doJSON(t, router, "GET", "/api/v1/export", nil, map[string]string{"X-Admin-Secret": "wrong"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	// Correct secret.
	w = doJSON(t, router, "GET", "/api/v1/export", nil, map[string]string{"X-Admin-Secret": testAdminSecret})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("expected attachment disposition, got %q", cd)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	router := setupTestRouter(t)
	adminHeaders := map[string]string{"X-Admin-Secret": testAdminSecret}

	for _, content := range []string{"one", "two"} {
		w := doJSON(t, router, "POST", "/api/v1/comments", map[string]interface{}{
			"siteId": "site1", "workId": "work1", "chapterId": "ch1",
			"paraIndex": 0, "content": content,
		}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("create: %d", w.Code)
		}
	}

	w := doJSON(t, router, "GET", "/api/v1/export", nil, adminHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d", w.Code)
	}
	var exported []models.Comment
	if err := json.Unmarshal(w.Body.Bytes(), &exported); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("expected 2 exported comments, got %d", len(exported))
	}

	// Import into a fresh instance.
	fresh := setupTestRouter(t)
	w = doJSON(t, fresh, "POST", "/api/v1/import", exported, adminHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("import: %d: %s", w.Code, w.Body.String())
	}
	var importResp struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &importResp)
	if !importResp.Success || importResp.Count != 2 {
		t.Fatalf("unexpected import result: %+v", importResp)
	}

	w = doJSON(t, fresh, "GET", "/api/v1/comments?siteId=site1&workId=work1&chapterId=ch1", nil, nil)
	var listResp struct {
		CommentsByPara map[string][]models.Comment `json:"commentsByPara"`
	}
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if len(listResp.CommentsByPara["0"]) != 2 {
		t.Fatalf("expected 2 imported comments, got %+v", listResp.CommentsByPara)
	}
}

func TestBanEndpoints(t *testing.T) {
	router := setupTestRouter(t)
	adminHeaders := map[string]string{"X-Admin-Secret": testAdminSecret}

	w := doJSON(t, router, "POST", "/api/v1/ban", map[string]string{
		"siteId": "site1", "userId": "bad-user", "bannedBy": "mod",
	}, adminHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("ban: %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/bans?siteId=site1", nil, adminHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("bans: %d", w.Code)
	}
	var bansResp struct {
		Bans []models.BanRecord `json:"bans"`
	}
	json.Unmarshal(w.Body.Bytes(), &bansResp)
	if len(bansResp.Bans) != 1 || bansResp.Bans[0].UserID != "bad-user" {
		t.Fatalf("unexpected bans: %+v", bansResp.Bans)
	}

	w = doJSON(t, router, "POST", "/api/v1/unban", map[string]string{
		"siteId": "site1", "userId": "bad-user",
	}, adminHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("unban: %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/v1/bans?siteId=site1", nil, adminHeaders)
	bansResp.Bans = nil
	json.Unmarshal(w.Body.Bytes(), &bansResp)
	if len(bansResp.Bans) != 0 {
		t.Fatalf("expected no bans after unban, got %+v", bansResp.Bans)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/comments", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected wildcard origin, got %q", origin)
	}
	if headers := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(headers, "X-Comment-Token") {
		t.Errorf("expected token header allowed, got %q", headers)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()

	cfg := &config.Config{
		Server: config.ServerConfig{MaxBodySize: 1024, MaxImportSize: 1024},
		Auth:   config.AuthConfig{},
		RateLimit: config.RateLimitConfig{
			Enabled:    true,
			PerMinute:  60,
			Burst:      2,
			MaxClients: 100,
		},
	}
	store, err := file.New(t.TempDir(), log)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	svc := service.New(store, identity.NewResolver(nil), log)
	router := api.NewRouter(svc, cfg, log)

	var last int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "1.2.3.4:1000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}
