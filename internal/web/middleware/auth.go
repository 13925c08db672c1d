package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"folio/internal/auth"
)

// Auth returns a middleware redirecting anonymous users to the login page.
func Auth(authService *auth.Service) func(http.Handler) http.Handler {
	return authService.RequireLogin
}

// WithPrincipal returns a middleware adding the session principal to the
// request context.
func WithPrincipal(authService *auth.Service) func(http.Handler) http.Handler {
	return authService.WithPrincipal
}

// Bearer returns a middleware resolving the principal from an
// "Authorization: Bearer" token. When enabled is false every request acts as
// the anonymous principal.
func Bearer(tokens *auth.TokenService, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), auth.Anonymous())))
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "Missing bearer token")
				return
			}
			p, err := tokens.Parse(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, "Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
