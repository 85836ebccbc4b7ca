package identity

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func newTestResolver() *Resolver {
	return NewResolver(map[string]string{"site1": testSecret})
}

func TestResolveValidToken(t *testing.T) {
	r := newTestResolver()
	token := signToken(t, testSecret, jwt.MapClaims{
		"siteId": "site1",
		"sub":    "user-42",
		"name":   "Alice",
		"avatar": "https://example.com/a.png",
	})

	id := r.Resolve(token, "1.2.3.4", "site1")

	if id.UserID != "user-42" {
		t.Errorf("Expected userID 'user-42', got '%s'", id.UserID)
	}
	if id.Name != "Alice" {
		t.Errorf("Expected name 'Alice', got '%s'", id.Name)
	}
	if id.Avatar != "https://example.com/a.png" {
		t.Errorf("Expected avatar to be carried over, got '%s'", id.Avatar)
	}
	if id.IsAdmin {
		t.Error("Expected non-admin identity")
	}
	if id.Anonymous {
		t.Error("Expected verified identity, got anonymous")
	}
}

func TestResolveClaimFallbacks(t *testing.T) {
	r := newTestResolver()
	token := signToken(t, testSecret, jwt.MapClaims{
		"siteId":   "site1",
		"userId":   "legacy-7",
		"username": "bob",
	})

	id := r.Resolve(token, "1.2.3.4", "site1")

	if id.UserID != "legacy-7" {
		t.Errorf("Expected userId claim fallback, got '%s'", id.UserID)
	}
	if id.Name != "bob" {
		t.Errorf("Expected username claim fallback, got '%s'", id.Name)
	}
}

func TestResolveAdminClaims(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name   string
		claims jwt.MapClaims
		admin  bool
	}{
		{
			name:   "role admin",
			claims: jwt.MapClaims{"siteId": "site1", "sub": "u1", "role": "admin"},
			admin:  true,
		},
		{
			name:   "isAdmin true",
			claims: jwt.MapClaims{"siteId": "site1", "sub": "u1", "isAdmin": true},
			admin:  true,
		},
		{
			name:   "plain user",
			claims: jwt.MapClaims{"siteId": "site1", "sub": "u1", "role": "editor"},
			admin:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signToken(t, testSecret, tt.claims)
			id := r.Resolve(token, "1.2.3.4", "site1")
			if id.IsAdmin != tt.admin {
				t.Errorf("Expected IsAdmin=%v, got %v", tt.admin, id.IsAdmin)
			}
		})
	}
}

func TestResolveRejectsBadTokens(t *testing.T) {
	r := newTestResolver()

	expired := signToken(t, testSecret, jwt.MapClaims{
		"siteId": "site1",
		"sub":    "u1",
		"exp":    time.Now().Add(-time.Hour).Unix(),
	})
	wrongSite := signToken(t, testSecret, jwt.MapClaims{"siteId": "site2", "sub": "u1"})
	badSignature := signToken(t, "other-secret", jwt.MapClaims{"siteId": "site1", "sub": "u1"})
	noSiteClaim := signToken(t, testSecret, jwt.MapClaims{"sub": "u1"})

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.token"},
		{"expired token", expired},
		{"site mismatch", wrongSite},
		{"bad signature", badSignature},
		{"missing siteId claim", noSiteClaim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := r.Resolve(tt.token, "1.2.3.4", "site1")
			if !id.Anonymous {
				t.Error("Expected anonymous fallback identity")
			}
			if !strings.HasPrefix(id.UserID, AnonymousPrefix) {
				t.Errorf("Expected '%s' prefix, got '%s'", AnonymousPrefix, id.UserID)
			}
			if id.IsAdmin {
				t.Error("Anonymous identity must never be admin")
			}
		})
	}
}

func TestResolveRejectsUnconfiguredSite(t *testing.T) {
	r := newTestResolver()
	token := signToken(t, testSecret, jwt.MapClaims{"siteId": "unknown-site", "sub": "u1"})

	// Listing comments passes no expected site, so the token's own claim
	// selects the secret; an unconfigured site must still fail.
	id := r.Resolve(token, "1.2.3.4", "")
	if !id.Anonymous {
		t.Error("Expected anonymous identity for unconfigured site")
	}
}

func TestResolveAnonymousIsDeterministic(t *testing.T) {
	r := newTestResolver()

	first := r.Resolve("", "1.2.3.4", "site1")
	second := r.Resolve("", "1.2.3.4", "site1")
	otherSite := r.Resolve("", "1.2.3.4", "site2")
	otherIP := r.Resolve("", "5.6.7.8", "site1")

	if first.UserID != second.UserID {
		t.Errorf("Same IP+site must resolve to the same identity: %s vs %s", first.UserID, second.UserID)
	}
	if first.UserID == otherSite.UserID {
		t.Error("Different sites must not share an anonymous identity")
	}
	if first.UserID == otherIP.UserID {
		t.Error("Different IPs must not share an anonymous identity")
	}
}

func TestGuestName(t *testing.T) {
	id := NewResolver(nil).Resolve("", "1.2.3.4", "site1")
	name := GuestName(id.UserID)
	if !strings.HasPrefix(name, "guest-") {
		t.Errorf("Expected guest- prefix, got '%s'", name)
	}
	if len(name) != len("guest-")+6 {
		t.Errorf("Expected 6-char suffix, got '%s'", name)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		expected   string
	}{
		{"forwarded single", "1.2.3.4", "9.9.9.9:1234", "1.2.3.4"},
		{"forwarded chain takes first", "1.2.3.4, 5.6.7.8", "9.9.9.9:1234", "1.2.3.4"},
		{"forwarded with spaces", " 1.2.3.4 ,5.6.7.8", "9.9.9.9:1234", "1.2.3.4"},
		{"no header uses remote addr", "", "9.9.9.9:1234", "9.9.9.9"},
		{"no header no port", "", "9.9.9.9", "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := ClientIP(req); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}
