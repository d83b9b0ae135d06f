package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/JonMunkholm/nvdsync/internal/config"
	"github.com/JonMunkholm/nvdsync/internal/logging"
)

// APIKeyHeader carries the caller's key. "Authorization: Bearer <key>" is
// accepted as well.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests without a configured API key when
// cfg.RequireAPIKey is set. With no keys configured every request is refused.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	digests := make([][sha256.Size]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		digests = append(digests, sha256.Sum256([]byte(k)))
	}

	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)
			if key == "" {
				logging.FromContext(r.Context()).Warn("auth: missing API key",
					"method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeJSONError(w, http.StatusUnauthorized, "missing API key", "AUTH001")
				return
			}
			if !keyMatches(sha256.Sum256([]byte(key)), digests) {
				logging.FromContext(r.Context()).Warn("auth: invalid API key",
					"method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeJSONError(w, http.StatusForbidden, "invalid API key", "AUTH002")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// keyMatches compares digests so every comparison has the same length, and
// visits every configured key whichever one matches.
func keyMatches(got [sha256.Size]byte, digests [][sha256.Size]byte) bool {
	match := 0
	for i := range digests {
		match |= subtle.ConstantTimeCompare(got[:], digests[i][:])
	}
	return match == 1
}
