package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AnonymousPrefix tags identities derived from a source IP instead of a
// verified token.
const AnonymousPrefix = "ip_"

// Identity is the resolved requester identity for one request.
type Identity struct {
	UserID    string
	Name      string
	Avatar    string
	IsAdmin   bool
	Anonymous bool
}

// Resolver turns a signed token and/or source IP into a stable identity.
// Secrets map a siteId to the HMAC key its tokens are signed with.
type Resolver struct {
	secrets map[string]string
}

// NewResolver creates a resolver over a fixed set of per-site secrets.
func NewResolver(secrets map[string]string) *Resolver {
	if secrets == nil {
		secrets = make(map[string]string)
	}
	return &Resolver{secrets: secrets}
}

// Resolve verifies the token against the per-site secret and falls back to a
// deterministic IP-derived pseudo-identity when verification fails. The
// fallback means the same IP always maps to the same userId for a given site.
func (r *Resolver) Resolve(token, sourceIP, siteID string) Identity {
	if claims, ok := r.verify(token, siteID); ok {
		id := Identity{
			UserID:  stringClaim(claims, "sub", "userId"),
			Name:    stringClaim(claims, "name", "username"),
			Avatar:  stringClaim(claims, "avatar"),
			IsAdmin: isAdminClaim(claims),
		}
		if id.UserID != "" {
			return id
		}
	}

	hash := md5.Sum([]byte(sourceIP + siteID))
	return Identity{
		UserID:    AnonymousPrefix + hex.EncodeToString(hash[:]),
		Anonymous: true,
	}
}

// verify checks structure, algorithm, site binding, signature and expiry.
// Any failure degrades to anonymous rather than erroring.
func (r *Resolver) verify(token, expectedSiteID string) (jwt.MapClaims, bool) {
	if token == "" {
		return nil, false
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		claims, ok := t.Claims.(jwt.MapClaims)
		if !ok {
			return nil, fmt.Errorf("unexpected claims type")
		}
		siteID, _ := claims["siteId"].(string)
		if siteID == "" {
			return nil, fmt.Errorf("missing siteId claim")
		}
		if expectedSiteID != "" && siteID != expectedSiteID {
			return nil, fmt.Errorf("siteId mismatch")
		}
		secret, ok := r.secrets[siteID]
		if !ok {
			return nil, fmt.Errorf("no secret configured for site %s", siteID)
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil || !parsed.Valid {
		return nil, false
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	return claims, ok
}

// GuestName derives a short display label from an anonymous userId,
// e.g. "guest-3fa2b1" from "ip_3fa2b1...".
func GuestName(userID string) string {
	s := strings.TrimPrefix(userID, AnonymousPrefix)
	if len(s) > 6 {
		s = s[:6]
	}
	return "guest-" + s
}

// ClientIP extracts the requester address: the first comma-separated value of
// X-Forwarded-For when present, otherwise the connection remote address.
// This trust model is intentionally simple and matches existing deployments.
func ClientIP(req *http.Request) string {
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.SplitN(forwarded, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil && host != "" {
		return host
	}
	if req.RemoteAddr != "" {
		return req.RemoteAddr
	}
	return "127.0.0.1"
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func isAdminClaim(claims jwt.MapClaims) bool {
	if role, ok := claims["role"].(string); ok && role == "admin" {
		return true
	}
	if isAdmin, ok := claims["isAdmin"].(bool); ok && isAdmin {
		return true
	}
	return false
}
