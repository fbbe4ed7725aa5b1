package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/reedfamily/craftbridge/internal/auth"
)

// QueryToken removes ?token= from every request URL so access logs never
// see it. On websocket upgrades, which browsers cannot send headers with,
// the token becomes the bearer credential. Mount it before the logger.
func QueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has("token") {
			next.ServeHTTP(w, r)
			return
		}
		token := q.Get("token")
		q.Del("token")

		r = r.Clone(r.Context())
		r.URL.RawQuery = q.Encode()
		r.RequestURI = r.URL.RequestURI()
		if token != "" && r.Header.Get("Authorization") == "" && websocket.IsWebSocketUpgrade(r) {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware requires the shared secret as a bearer token.
func AuthMiddleware(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			if err := authSvc.Check(token); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
