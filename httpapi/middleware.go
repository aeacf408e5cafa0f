package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/cobaltcms/authcore/token"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the access-token claims injected by the auth
// middleware.
func ClaimsFromContext(ctx context.Context) (*token.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.AccessClaims)
	return claims, ok
}

// requireAuth verifies the bearer token and injects its claims. Rejections
// are uniform; the body never reveals whether the token was absent, expired,
// or forged.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeCode(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			return
		}

		claims, err := s.svc.VerifyAccessToken(raw)
		if err != nil {
			writeCode(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tokenStr := strings.TrimSpace(header[len(prefix):])
	return tokenStr, tokenStr != ""
}
