package middleware

import (
	"net/http"
	"strings"

	"github.com/edvin/devtunnel/internal/api/response"
	"github.com/edvin/devtunnel/internal/crypto"
)

// Auth requires the X-API-Key header (or a bearer token) to match keyHash, a
// hex SHA-256 of the configured key. An empty keyHash disables the check.
func Auth(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keyHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = extractAPIKey(r)
			}
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			if !crypto.MatchAPIKey(key, keyHash) {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
