package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	authcore "github.com/cobaltcms/authcore"
)

// Config tunes the HTTP surface.
type Config struct {
	// CookieMode additionally delivers refresh tokens in an httpOnly,
	// Secure, SameSite=Strict cookie. Access tokens are always body-only;
	// they must never live in a cookie readable by scripts.
	CookieMode bool
	// CookieName defaults to "refresh_token".
	CookieName string
	// CookiePath defaults to "/auth".
	CookiePath string
	// CookieDomain is optional.
	CookieDomain string
	// TrustProxyHeaders derives the client IP from X-Forwarded-For.
	// Enable only behind a proxy that strips the inbound header.
	TrustProxyHeaders bool
}

// Server translates REST calls into Service operations.
type Server struct {
	svc *authcore.Service
	cfg Config
	log zerolog.Logger
}

// NewServer wires the service behind the REST surface.
func NewServer(svc *authcore.Service, cfg Config, logger zerolog.Logger) *Server {
	if cfg.CookieName == "" {
		cfg.CookieName = "refresh_token"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/auth"
	}
	return &Server{svc: svc, cfg: cfg, log: logger}
}

// Routes returns the handler for the full /auth surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)
	mux.HandleFunc("POST /auth/verify-email", s.handleVerifyEmail)

	mux.Handle("POST /auth/logout", s.requireAuth(s.handleLogout))
	mux.Handle("POST /auth/logout-all", s.requireAuth(s.handleLogoutAll))
	mux.Handle("POST /auth/change-password", s.requireAuth(s.handleChangePassword))
	mux.Handle("GET /auth/sessions", s.requireAuth(s.handleListSessions))
	mux.Handle("DELETE /auth/sessions/{id}", s.requireAuth(s.handleRevokeSession))

	return s.withRequestContext(s.logRequests(mux))
}

// withRequestContext attaches client IP and user agent so the service can
// rate-limit and audit per caller.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authcore.WithClientIP(r.Context(), s.clientIP(r))
		ctx = authcore.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) clientIP(r *http.Request) string {
	if s.cfg.TrustProxyHeaders {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Str("ip", authcore.ClientIP(r.Context())).
			Msg("http request")
	})
}

func (s *Server) refreshCookieTTL() time.Duration {
	return s.svc.RefreshTTL()
}

// setRefreshCookie installs the refresh token cookie in cookie mode. MaxAge
// tracks the refresh TTL through the cookie's own expiry.
func (s *Server) setRefreshCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	if !s.cfg.CookieMode {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     s.cfg.CookiePath,
		Domain:   s.cfg.CookieDomain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	if !s.cfg.CookieMode {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     s.cfg.CookiePath,
		Domain:   s.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
