package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/echowave/internal/auth"
)

// JWTAuth validates a bearer token and puts the caller identity into the
// request context. The token comes from the Authorization header, or from the
// token query parameter for WebSocket upgrades (browsers cannot set headers
// on a ws dial).
func JWTAuth(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ""
			if h := r.Header.Get("Authorization"); h != "" {
				parts := strings.SplitN(h, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					http.Error(w, `{"error":"malformed token"}`, http.StatusUnauthorized)
					return
				}
				raw = parts[1]
			} else {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				http.Error(w, `{"error":"no token provided"}`, http.StatusUnauthorized)
				return
			}

			userID, username, err := tokens.Parse(raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, UsernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
