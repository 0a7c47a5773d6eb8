package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/flordegrace/ims-api/internal/httputil"
	"github.com/flordegrace/ims-api/internal/logging"
	"github.com/flordegrace/ims-api/internal/ratelimit"
	"github.com/flordegrace/ims-api/internal/session"
	"github.com/flordegrace/ims-api/internal/user"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service     *Service
	sessions    *session.Manager
	rateLimiter *ratelimit.Limiter
	logger      *logging.Logger
}

func NewHandler(service *Service, sessions *session.Manager, rateLimiter *ratelimit.Limiter, logger *logging.Logger) *Handler {
	return &Handler{
		service:     service,
		sessions:    sessions,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Remember defaults to true when omitted
	Remember *bool `json:"remember,omitempty"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsAdmin   bool   `json:"is_admin"`
}

// ForgotPasswordRequest represents the password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"password"`
}

// ChangePasswordRequest represents the authenticated password change body
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ProfileUpdateRequest represents the profile update body
type ProfileUpdateRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// UserResponse wraps a user for API responses
type UserResponse struct {
	User *user.User `json:"user"`
}

// MessageResponse is a simple message payload
type MessageResponse struct {
	Message string `json:"message"`
}

// Login handles user login
// @Summary      User login
// @Description  Verify credentials and establish a session delivered via cookie
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} UserResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.rateLimited(w, r, "login") {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	u, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			httputil.RespondErrorWithCode(w, ErrInvalidCredentials.Error(), httputil.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	remember := true
	if req.Remember != nil {
		remember = *req.Remember
	}

	if err := h.sessions.Login(r.Context(), w, u, remember); err != nil {
		logger.Error("failed to establish session", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in", "user_id", u.ID)
	httputil.RespondJSON(w, UserResponse{User: u}, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  Invalidate the session and clear all session cookies. A no-op without a session.
// @Tags         auth
// @Produce      json
// @Success      200 {object} MessageResponse
// @Router       /api/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	h.sessions.Logout(r.Context(), w, r)

	logger.Info("user logged out")
	httputil.RespondJSON(w, MessageResponse{Message: "logged out"}, http.StatusOK)
}

// Check reports whether the caller has a valid session
// @Summary      Session check
// @Description  Report whether the caller's session proof resolves to an identity
// @Tags         auth
// @Produce      json
// @Success      200 {object} UserResponse
// @Failure      401 {object} httputil.ErrorResponse "Not authenticated"
// @Router       /api/auth/check [get]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.sessions.Resolve(r.Context(), w, r)
	if !ok {
		httputil.RespondErrorWithCode(w, "not authenticated", httputil.CodeAuthRequired, http.StatusUnauthorized)
		return
	}

	u, err := h.service.GetProfile(r.Context(), ident.UserID)
	if err != nil {
		httputil.RespondErrorWithCode(w, "not authenticated", httputil.CodeAuthRequired, http.StatusUnauthorized)
		return
	}

	httputil.RespondJSON(w, UserResponse{User: u}, http.StatusOK)
}

// Register handles user creation by an administrator
// @Summary      Register a new user
// @Description  Create a new user account. Requires an admin session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "New user details"
// @Success      201 {object} UserResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Authentication required"
// @Failure      403 {object} httputil.ErrorResponse "Admin access required"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Router       /api/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	newUser, err := h.service.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName, req.IsAdmin)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			logger.Warn("registration failed: email already exists")
			httputil.RespondErrorWithCode(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
			return
		}
		if code, ok := validationCode(err); ok {
			logger.Warn("registration failed: validation error", "error", err.Error())
			httputil.RespondErrorWithCode(w, err.Error(), code, http.StatusBadRequest)
			return
		}
		logger.Error("registration failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user registered", "user_id", newUser.ID)
	httputil.RespondJSON(w, UserResponse{User: newUser}, http.StatusCreated)
}

// ForgotPassword handles password reset requests
// @Summary      Request password reset
// @Description  Issue a reset token and mail the link. The response is identical whether or not the email exists.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Email address"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if h.rateLimited(w, r, "forgot-password") {
		return
	}

	email := NormalizeEmail(req.Email)
	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
	} else if onCooldown {
		logger.Warn("email on cooldown")
		httputil.RespondErrorWithCode(w, "please wait before requesting another reset", httputil.CodeCooldownActive, http.StatusTooManyRequests)
		return
	}
	if err := h.rateLimiter.SetEmailCooldown(r.Context(), email); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}

	// Always the same success-shaped response, so the endpoint cannot be
	// used to probe which emails are registered
	_ = h.service.RequestPasswordReset(r.Context(), req.Email)

	httputil.RespondJSON(w, MessageResponse{
		Message: "If the email exists, a password reset link has been sent",
	}, http.StatusOK)
}

// ResetPassword handles password reset with a token
// @Summary      Reset password
// @Description  Set a new password using a valid reset token. The token is single-use.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Email, reset token, and new password"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or token"
// @Router       /api/auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Email, strings.TrimSpace(req.Token), req.NewPassword)
	if err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			logger.Warn("password reset failed: invalid or expired token")
			httputil.RespondErrorWithCode(w, ErrInvalidResetToken.Error(), httputil.CodeInvalidResetToken, http.StatusBadRequest)
			return
		}
		if code, ok := validationCode(err); ok {
			logger.Warn("password reset failed: validation error", "error", err.Error())
			httputil.RespondErrorWithCode(w, err.Error(), code, http.StatusBadRequest)
			return
		}
		logger.Error("password reset failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to reset password", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("password reset successfully")
	httputil.RespondJSON(w, MessageResponse{Message: "Password has been reset successfully"}, http.StatusOK)
}

// ChangePassword handles an authenticated password change
// @Summary      Change password
// @Description  Re-verify the current password and set a new one
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ChangePasswordRequest true "Current and new password"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error or wrong current password"
// @Failure      401 {object} httputil.ErrorResponse "Authentication required"
// @Router       /api/auth/change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	ident, _ := session.IdentityFromContext(r.Context())

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid change password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	err := h.service.ChangePassword(r.Context(), ident.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, ErrWrongPassword) {
			logger.Warn("password change failed: wrong current password")
			httputil.RespondErrorWithCode(w, ErrWrongPassword.Error(), httputil.CodeWrongPassword, http.StatusBadRequest)
			return
		}
		if code, ok := validationCode(err); ok {
			logger.Warn("password change failed: validation error", "error", err.Error())
			httputil.RespondErrorWithCode(w, err.Error(), code, http.StatusBadRequest)
			return
		}
		logger.Error("password change failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to change password", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("password changed", "user_id", ident.UserID)
	httputil.RespondJSON(w, MessageResponse{Message: "Password changed successfully"}, http.StatusOK)
}

// GetProfile returns the current user's profile
// @Summary      Get profile
// @Description  Return the profile of the current session's identity
// @Tags         auth
// @Produce      json
// @Success      200 {object} UserResponse
// @Failure      401 {object} httputil.ErrorResponse "Authentication required"
// @Router       /api/auth/profile [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	ident, _ := session.IdentityFromContext(r.Context())

	u, err := h.service.GetProfile(r.Context(), ident.UserID)
	if err != nil {
		logger.Error("failed to load profile", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to load profile", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, UserResponse{User: u}, http.StatusOK)
}

// UpdateProfile updates the current user's display fields and email
// @Summary      Update profile
// @Description  Update display fields and email for the current session's identity only
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ProfileUpdateRequest true "Profile fields"
// @Success      200 {object} UserResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Authentication required"
// @Failure      409 {object} httputil.ErrorResponse "Email already in use"
// @Router       /api/auth/profile [put]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	ident, _ := session.IdentityFromContext(r.Context())

	var req ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid profile update request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), ident.UserID, req.FirstName, req.LastName, req.Email)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			logger.Warn("profile update failed: email already in use")
			httputil.RespondErrorWithCode(w, "email address is already in use", httputil.CodeEmailAlreadyExists, http.StatusConflict)
			return
		}
		if code, ok := validationCode(err); ok {
			logger.Warn("profile update failed: validation error", "error", err.Error())
			httputil.RespondErrorWithCode(w, err.Error(), code, http.StatusBadRequest)
			return
		}
		logger.Error("profile update failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to update profile", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("profile updated", "user_id", ident.UserID)
	httputil.RespondJSON(w, UserResponse{User: updated}, http.StatusOK)
}

// AdminResetUserPassword issues a reset token for an arbitrary user
// @Summary      Admin-initiated password reset
// @Description  Issue a reset token for the given user and mail the link. Requires an admin session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Target user email"
// @Success      200 {object} MessageResponse
// @Failure      401 {object} httputil.ErrorResponse "Authentication required"
// @Failure      403 {object} httputil.ErrorResponse "Admin access required"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /api/auth/admin/reset-user-password [post]
func (h *Handler) AdminResetUserPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid admin reset request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	target, err := h.service.AdminResetPassword(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrEmailRequired) {
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
			return
		}
		logger.Error("admin reset failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to reset user password", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("admin issued password reset", "target_user_id", target.ID)
	httputil.RespondJSON(w, MessageResponse{
		Message: "Password reset link has been sent to " + target.FullName() + " (" + target.Email + ")",
	}, http.StatusOK)
}

// rateLimited applies the per-IP limit for the given purpose and writes the
// 429 response when exceeded. Limiter errors fail open so a Redis outage
// does not lock out logins.
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request, purpose string) bool {
	logger := logging.GetLoggerFromContext(r.Context())
	ip := clientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return true
	}

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	return false
}

// clientIP extracts the client IP address from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// validationCode maps validation sentinels to machine-readable codes
func validationCode(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrEmailRequired):
		return httputil.CodeEmailRequired, true
	case errors.Is(err, ErrPasswordRequired):
		return httputil.CodePasswordRequired, true
	case errors.Is(err, ErrFirstNameRequired), errors.Is(err, ErrLastNameRequired):
		return httputil.CodeFieldRequired, true
	case errors.Is(err, ErrInvalidEmailFormat):
		return httputil.CodeInvalidEmailFormat, true
	case errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrPasswordNoUpper),
		errors.Is(err, ErrPasswordNoLower),
		errors.Is(err, ErrPasswordNoDigit):
		return httputil.CodeWeakPassword, true
	}
	return "", false
}
