package httpapi

import (
	"encoding/json"
	"net/http"

	authcore "github.com/cobaltcms/authcore"
	"github.com/cobaltcms/authcore/session"
)

// decodeJSON reads a bounded JSON body. Unknown fields are rejected so
// client typos surface as 400s instead of silently ignored options.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeCode(w, http.StatusBadRequest, CodeValidationError, "malformed request body")
		return false
	}
	return true
}

type registerRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type authResponse struct {
	User         authcore.PublicUser `json:"user"`
	AccessToken  string              `json:"accessToken"`
	RefreshToken string              `json:"refreshToken,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.svc.Register(r.Context(), authcore.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      authcore.Role(req.Role),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.writeAuthResult(w, http.StatusCreated, result)
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}

	result, err := s.svc.Login(r.Context(), identifier, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	s.writeAuthResult(w, http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	raw := req.RefreshToken
	if raw == "" && s.cfg.CookieMode {
		if c, err := r.Cookie(s.cfg.CookieName); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		writeCode(w, http.StatusBadRequest, CodeRefreshTokenRequired, "refresh token required")
		return
	}

	result, err := s.svc.Refresh(r.Context(), raw)
	if err != nil {
		s.clearRefreshCookie(w)
		writeError(w, err)
		return
	}

	s.setRefreshCookie(w, result.Tokens.RefreshToken, s.refreshCookieTTL())
	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	if err := s.svc.Logout(r.Context(), claims.UID, claims.SID); err != nil {
		writeError(w, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	if _, err := s.svc.LogoutAll(r.Context(), claims.UID); err != nil {
		writeError(w, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "all sessions revoked"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims, _ := ClaimsFromContext(r.Context())
	if err := s.svc.ChangePassword(r.Context(), claims.UID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "password changed, please log in again"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword always answers with the same generic message so the
// response shape cannot be used to enumerate accounts.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "if that email exists, a reset link has been sent"})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password reset, please log in"})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.svc.VerifyEmail(r.Context(), req.Token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "email verified"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	infos, err := s.svc.ListSessions(r.Context(), claims.UID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]session.Info{"sessions": infos})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	if err := s.svc.RevokeSession(r.Context(), claims.UID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "session revoked"})
}

func (s *Server) writeAuthResult(w http.ResponseWriter, status int, result *authcore.AuthResult) {
	s.setRefreshCookie(w, result.Tokens.RefreshToken, s.refreshCookieTTL())
	writeJSON(w, status, authResponse{
		User:         result.User.Public(),
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	})
}
