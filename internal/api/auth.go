package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireToken guards mutating endpoints with a shared API token. When no
// token is configured the middleware passes requests through, which keeps
// local development friction-free.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := strings.TrimSpace(r.Header.Get("X-API-Token"))
			if presented == "" {
				auth := strings.TrimSpace(r.Header.Get("Authorization"))
				if strings.HasPrefix(auth, "Bearer ") {
					presented = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
				}
			}

			if presented == "" {
				sendError(w, http.StatusUnauthorized, "missing authentication")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				sendError(w, http.StatusUnauthorized, "invalid authentication")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
