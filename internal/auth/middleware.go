package auth

import (
	"net/http"
	"strings"

	"github.com/meridian-travel/meridian/internal/platform/httpx"
	"github.com/meridian-travel/meridian/internal/shared"
)

// Middleware validates the Bearer token and threads the actor and the
// organization scope into the request context. Every finance route sits
// behind it.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized", "missing authorization header", nil)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized", "authorization header must be a bearer token", nil)
			return
		}
		actor, orgID, err := s.VerifyToken(token)
		if err != nil {
			httpx.Error(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token", nil)
			return
		}
		ctx := shared.ContextWithActor(r.Context(), actor)
		ctx = shared.ContextWithOrg(ctx, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
