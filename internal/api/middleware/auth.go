package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/agentdesk/agentdesk/internal/auth"
	pkgmw "github.com/agentdesk/agentdesk/pkg/middleware"
	"github.com/rs/zerolog/log"
)

// AuthMiddleware authenticates requests through the provider chain
// (JWT session tokens, API keys) and stores the resulting Identity in
// the request context. Every endpoint except the public paths requires
// an authenticated identity.
type AuthMiddleware struct {
	chain *auth.ProviderChain
}

// NewAuthMiddleware creates the auth middleware.
func NewAuthMiddleware(chain *auth.ProviderChain) *AuthMiddleware {
	return &AuthMiddleware{chain: chain}
}

// Handler returns the HTTP middleware that authenticates requests.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAuthPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := am.chain.Authenticate(r.Context(), r)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
			writeAuthError(w, "authentication_failed", err.Error())
			return
		}
		if identity == nil {
			writeAuthError(w, "authentication_required",
				"This endpoint requires authentication. Set Authorization: Bearer <token> or X-API-Key header.")
			return
		}

		next.ServeHTTP(w, r.WithContext(pkgmw.SetIdentity(r.Context(), identity)))
	})
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="agentdesk"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// isAuthPublicPath returns true for paths that skip authentication.
func isAuthPublicPath(path string) bool {
	switch path {
	case "/health", "/version", "/api/auth/register", "/api/auth/login":
		return true
	}
	return false
}
