// Package handler provides the HTTP surface of the authentication service.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"socialecho/internal/auth"
	"socialecho/internal/middleware"
	secherrors "socialecho/pkg/errors"
	"socialecho/pkg/logger"
	"socialecho/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// AuthHandler handles account lifecycle and sign-in endpoints.
type AuthHandler struct {
	service   *auth.Service
	validator *validator.Validator
	logger    logger.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service *auth.Service, val *validator.Validator, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

func requestMeta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Method:    r.Method,
	}
}

// decode reads a JSON body into dst with the shared size and strictness
// limits.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// SignUp registers a new account and triggers the email verification code.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req auth.SignUpRequest
	if !h.decode(w, r, &req) {
		return
	}

	if fieldErrs := h.validator.ValidateStructured(&req); fieldErrs != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "Validation failed",
			"fields": fieldErrs,
		})
		return
	}
	req.Name = validator.Sanitize(req.Name)

	user, err := h.service.SignUp(r.Context(), &req, requestMeta(r))
	if err != nil {
		if errors.Is(err, secherrors.ErrUserAlreadyExists) {
			h.respondError(w, http.StatusConflict, "User already exists")
			return
		}

		h.logger.Error("Sign up failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"user":    user,
		"message": "Account created. A verification code has been sent to your email.",
	})
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=5"`
}

// VerifyEmail consumes a signup verification code.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.VerifySignupEmail(r.Context(), req.Email, req.Code, requestMeta(r)); err != nil {
		switch {
		case errors.Is(err, secherrors.ErrAlreadyVerified):
			h.respondError(w, http.StatusConflict, "Email is already verified")
		case errors.Is(err, secherrors.ErrVerificationExpired):
			h.respondError(w, http.StatusGone, "Verification code has expired. Please request a new one.")
		case errors.Is(err, secherrors.ErrVerificationCodeInvalid), errors.Is(err, secherrors.ErrUserNotFound):
			h.respondError(w, http.StatusBadRequest, "Invalid verification code")
		default:
			h.logger.Error("Email verification failed", map[string]interface{}{"error": err.Error()})
			h.respondError(w, http.StatusInternalServerError, "Verification failed")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

// SignIn runs the sign-in decision flow and returns either tokens or a
// verification-required response.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req auth.SignInRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	response, err := h.service.SignIn(r.Context(), &req, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, secherrors.ErrInvalidCredentials):
			h.respondError(w, http.StatusUnauthorized, auth.MessageInvalidCredentials)
		case errors.Is(err, secherrors.ErrEmailNotVerified):
			h.respondError(w, http.StatusForbidden, auth.MessageEmailNotVerified)
		case errors.Is(err, secherrors.ErrDeviceBlocked):
			h.respondError(w, http.StatusUnauthorized, auth.MessageDeviceBlocked)
		case errors.Is(err, secherrors.ErrDeviceSuspicious):
			h.respondError(w, http.StatusUnauthorized, auth.MessageDeviceSuspicious)
		default:
			h.logger.Error("Sign in failed", map[string]interface{}{"error": err.Error()})
			h.respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again later.")
		}
		return
	}

	if response.VerificationRequired {
		h.respondJSON(w, http.StatusUnauthorized, response)
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// VerifyDevice consumes a new-device code and promotes pending contexts.
func (h *AuthHandler) VerifyDevice(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.VerifyDevice(r.Context(), req.Email, req.Code, requestMeta(r)); err != nil {
		switch {
		case errors.Is(err, secherrors.ErrVerificationExpired):
			h.respondError(w, http.StatusGone, "Verification code has expired. Please sign in again to receive a new one.")
		case errors.Is(err, secherrors.ErrVerificationCodeInvalid), errors.Is(err, secherrors.ErrUserNotFound):
			h.respondError(w, http.StatusBadRequest, "Invalid verification code")
		default:
			h.logger.Error("Device verification failed", map[string]interface{}{"error": err.Error()})
			h.respondError(w, http.StatusInternalServerError, "Verification failed")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Device verified. You can now sign in.",
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh exchanges a valid refresh token for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	response, err := h.service.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, secherrors.ErrExpiredRefreshToken):
			h.respondError(w, http.StatusUnauthorized, "Refresh token has expired. Please sign in again.")
		case errors.Is(err, secherrors.ErrInvalidRefreshToken):
			h.respondError(w, http.StatusUnauthorized, "Invalid refresh token")
		default:
			h.logger.Error("Token refresh failed", map[string]interface{}{"error": err.Error()})
			h.respondError(w, http.StatusInternalServerError, "Token refresh failed")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// Logout invalidates the presented session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	accessToken, _ := middleware.AccessTokenFromContext(r.Context())

	if err := h.service.Logout(r.Context(), accessToken, requestMeta(r)); err != nil {
		h.logger.Error("Logout failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Logout failed")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword issues a password reset link. The response is identical
// whether or not the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email, requestMeta(r)); err != nil {
		h.logger.Error("Password reset request failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again later.")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": auth.MessageResetRequested})
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

// ResetPassword validates the emailed token and sets a new password. Token
// and user ID arrive as path parameters from the emailed link.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token := vars["token"]

	userID, err := uuid.Parse(vars["userId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid reset link")
		return
	}

	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ResetPassword(r.Context(), userID, token, req.Password, requestMeta(r)); err != nil {
		if errors.Is(err, secherrors.ErrResetTokenInvalid) {
			h.respondError(w, http.StatusUnauthorized, "Reset link is invalid or has expired")
			return
		}

		h.logger.Error("Password reset failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Password reset failed")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset successfully"})
}

// GetPreferences returns the caller's settings.
func (h *AuthHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	pref, err := h.service.Preferences(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to load preferences", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}

	h.respondJSON(w, http.StatusOK, pref)
}

type updatePreferencesRequest struct {
	EnableContextBasedAuth *bool `json:"enable_context_based_auth" validate:"required"`
}

// UpdatePreferences toggles context-based authentication for the caller.
func (h *AuthHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req updatePreferencesRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.SetContextAuth(r.Context(), userID, *req.EnableContextBasedAuth); err != nil {
		h.logger.Error("Failed to update preferences", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to update preferences")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"enable_context_based_auth": *req.EnableContextBasedAuth,
	})
}

func (h *AuthHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *AuthHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
