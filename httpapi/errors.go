package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	authcore "github.com/cobaltcms/authcore"
	"github.com/cobaltcms/authcore/policy"
)

// Error codes returned in the `code` field of failure bodies.
const (
	CodeValidationError          = "VALIDATION_ERROR"
	CodeUserExists               = "USER_EXISTS"
	CodeInvalidCredentials       = "INVALID_CREDENTIALS"
	CodeAccountLocked            = "ACCOUNT_LOCKED"
	CodeAccountDeactivated       = "ACCOUNT_DEACTIVATED"
	CodeEmailNotVerified         = "EMAIL_NOT_VERIFIED"
	CodeRateLimited              = "RATE_LIMITED"
	CodeRefreshTokenRequired     = "REFRESH_TOKEN_REQUIRED"
	CodeInvalidRefreshToken      = "INVALID_REFRESH_TOKEN"
	CodeInvalidCurrentPassword   = "INVALID_CURRENT_PASSWORD"
	CodePasswordUnchanged        = "PASSWORD_UNCHANGED"
	CodeInvalidResetToken        = "INVALID_RESET_TOKEN"
	CodeInvalidVerificationToken = "INVALID_VERIFICATION_TOKEN"
	CodeNotFound                 = "NOT_FOUND"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeInternal                 = "INTERNAL_ERROR"
)

type errorBody struct {
	Error      string             `json:"error"`
	Code       string             `json:"code"`
	Violations []policy.Violation `json:"violations,omitempty"`
	RetryAfter int                `json:"retryAfterSeconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// writeError maps a service error onto the documented status/code pair.
// Backend failures deliberately collapse into a detail-free 500.
func writeError(w http.ResponseWriter, err error) {
	var policyErr *authcore.PolicyError
	if errors.As(err, &policyErr) {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:      "password does not meet policy requirements",
			Code:       CodeValidationError,
			Violations: policyErr.Result.Violations,
		})
		return
	}

	var locked *authcore.LockedError
	if errors.As(err, &locked) {
		writeJSON(w, http.StatusLocked, errorBody{
			Error:      locked.Error(),
			Code:       CodeAccountLocked,
			RetryAfter: int(locked.RetryAfter.Seconds()),
		})
		return
	}

	switch {
	case errors.Is(err, authcore.ErrInvalidInput),
		errors.Is(err, authcore.ErrPasswordTooYoung),
		errors.Is(err, authcore.ErrPasswordReused):
		writeCode(w, http.StatusBadRequest, CodeValidationError, err.Error())
	case errors.Is(err, authcore.ErrUserExists):
		writeCode(w, http.StatusConflict, CodeUserExists, "an account with that email or username already exists")
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeCode(w, http.StatusUnauthorized, CodeInvalidCredentials, err.Error())
	case errors.Is(err, authcore.ErrAccountLocked):
		writeCode(w, http.StatusLocked, CodeAccountLocked, err.Error())
	case errors.Is(err, authcore.ErrAccountDeactivated):
		writeCode(w, http.StatusForbidden, CodeAccountDeactivated, "account deactivated")
	case errors.Is(err, authcore.ErrEmailNotVerified):
		writeCode(w, http.StatusForbidden, CodeEmailNotVerified, "email address not verified")
	case errors.Is(err, authcore.ErrLoginRateLimited):
		writeCode(w, http.StatusTooManyRequests, CodeRateLimited, "too many attempts, slow down")
	case errors.Is(err, authcore.ErrRefreshInvalid),
		errors.Is(err, authcore.ErrRefreshReuse):
		writeCode(w, http.StatusUnauthorized, CodeInvalidRefreshToken, "invalid refresh token")
	case errors.Is(err, authcore.ErrInvalidCurrentPassword):
		writeCode(w, http.StatusBadRequest, CodeInvalidCurrentPassword, "current password incorrect")
	case errors.Is(err, authcore.ErrPasswordUnchanged):
		writeCode(w, http.StatusBadRequest, CodePasswordUnchanged, "new password must differ from current password")
	case errors.Is(err, authcore.ErrResetTokenInvalid):
		writeCode(w, http.StatusBadRequest, CodeInvalidResetToken, "invalid or expired reset token")
	case errors.Is(err, authcore.ErrVerificationTokenInvalid):
		writeCode(w, http.StatusBadRequest, CodeInvalidVerificationToken, "invalid or expired verification token")
	case errors.Is(err, authcore.ErrSessionNotFound):
		writeCode(w, http.StatusNotFound, CodeNotFound, "session not found")
	case errors.Is(err, authcore.ErrUserNotFound):
		writeCode(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	default:
		writeCode(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
