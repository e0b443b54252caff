// Package auth implements the sign-in decision engine: credential
// verification, context classification, token issuance, and the account
// lifecycle operations around them.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"socialecho/internal/audit"
	"socialecho/internal/contextauth"
	"socialecho/internal/domain"
	secherrors "socialecho/pkg/errors"
	"socialecho/pkg/logger"
	"socialecho/pkg/mailer"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAvatar    = "https://raw.githubusercontent.com/nz-m/public-files/main/dp.jpg"
	moderatorDomain  = "mod.socialecho.com"
	resetTokenExpiry = time.Hour
)

// Audit messages emitted at state-machine transitions.
const (
	msgSignInAttempt        = "User attempting to sign in"
	msgIncorrectEmail       = "Incorrect email"
	msgIncorrectPassword    = "Incorrect password"
	msgDeviceBlocked        = "Sign in attempt from blocked device"
	msgContextVerifyError   = "Context data verification failed"
	msgMultipleAttempts     = "Multiple sign in attempts detected without verifying identity."
	msgVerificationPending  = "New device detected, verification email sent"
	msgDispatchFailure      = "Verification email dispatch failed"
	msgSignUpSuccess        = "User registered successfully"
	msgEmailVerified        = "Email verified successfully"
	msgLogoutSuccess        = "User has logged out successfully"
	msgPasswordResetRequest = "Password reset requested"
	msgPasswordResetDone    = "Password reset completed"
)

// Client-facing messages. These never leak which factor failed.
const (
	MessageInvalidCredentials = "Invalid credentials"
	MessageEmailNotVerified   = "Your account has not been verified. Please check your email."
	MessageDeviceBlocked      = "You've been blocked due to suspicious login activity. Please contact support for assistance."
	MessageDeviceSuspicious   = "You've temporarily been blocked due to suspicious login activity. We have already sent a verification email to your registered email address; follow its instructions to regain access. Repeated attempts without verifying will permanently block this device."
	MessageVerificationSent   = "We noticed a sign-in from a new device or location. A verification code has been sent to your registered email address."
	MessageResetRequested     = "If an account with that email exists, a password reset link has been sent."
)

// UserRepository is the account store consumed by the engine.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, user *domain.User) error
	SetEmailVerified(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// PreferenceRepository reads and writes per-user settings.
type PreferenceRepository interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*domain.UserPreference, error)
	Upsert(ctx context.Context, pref *domain.UserPreference) error
}

// TokenRepository is the server-side refresh token store.
type TokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	FindByRefreshToken(ctx context.Context, refreshToken string) (*domain.RefreshToken, error)
	UpdateAccessToken(ctx context.Context, id uuid.UUID, accessToken string) error
	DeleteByAccessToken(ctx context.Context, accessToken string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ResetRepository stores hashed password reset tokens.
type ResetRepository interface {
	Replace(ctx context.Context, token *domain.PasswordResetToken) error
	FindByUser(ctx context.Context, userID uuid.UUID) (*domain.PasswordResetToken, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ContextAuthenticator is the context-auth core consumed by the engine.
type ContextAuthenticator interface {
	Extract(ip, userAgent string) contextauth.Descriptor
	ClassifyForUser(ctx context.Context, userID uuid.UUID, fresh contextauth.Descriptor) (contextauth.Classification, error)
	RecordContext(ctx context.Context, userID uuid.UUID, d contextauth.Descriptor, trusted bool) (*domain.UserContext, error)
	SetTrust(ctx context.Context, userID, contextID uuid.UUID, trusted bool) error
	TrustPending(ctx context.Context, userID uuid.UUID) error
}

// Verifier issues and consumes out-of-band challenges.
type Verifier interface {
	Issue(ctx context.Context, email, name string, purpose domain.VerificationPurpose, contextID *uuid.UUID) error
	Consume(ctx context.Context, email, code string, purpose domain.VerificationPurpose) (*uuid.UUID, error)
}

// AttemptCounter tracks repeated unverified mismatches within a window.
// Backed by Redis; keys expire with the window.
type AttemptCounter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// Sender dispatches email that is not a verification challenge.
type Sender interface {
	Send(to, subject, body string) error
}

// TokenRevoker invalidates live access tokens ahead of their natural expiry.
// Nil disables immediate revocation; sessions still die server-side.
type TokenRevoker interface {
	Blacklist(ctx context.Context, token string, expiration time.Duration) error
}

// Config carries the engine's tunables, fixed at construction.
type Config struct {
	AccessSecret      string
	RefreshSecret     string
	AccessExpiry      time.Duration
	RefreshExpiry     time.Duration
	MismatchThreshold int
	MismatchWindow    time.Duration
	ClientBaseURL     string
}

// Service is the sign-in decision engine.
type Service struct {
	users    UserRepository
	prefs    PreferenceRepository
	tokens   TokenRepository
	resets   ResetRepository
	contexts ContextAuthenticator
	verifier Verifier
	attempts AttemptCounter
	sender   Sender
	revoker  TokenRevoker
	recorder audit.Recorder
	logger   logger.Logger
	cfg      Config
}

func NewService(
	users UserRepository,
	prefs PreferenceRepository,
	tokens TokenRepository,
	resets ResetRepository,
	contexts ContextAuthenticator,
	verifier Verifier,
	attempts AttemptCounter,
	sender Sender,
	revoker TokenRevoker,
	recorder audit.Recorder,
	log logger.Logger,
	cfg Config,
) *Service {
	return &Service{
		users:    users,
		prefs:    prefs,
		tokens:   tokens,
		resets:   resets,
		contexts: contexts,
		verifier: verifier,
		attempts: attempts,
		sender:   sender,
		revoker:  revoker,
		recorder: recorder,
		logger:   log,
		cfg:      cfg,
	}
}

// RequestMeta carries the raw origin attributes of an HTTP request into the
// engine for fingerprinting and audit.
type RequestMeta struct {
	IP        string
	UserAgent string
	Endpoint  string
	Method    string
}

// SignInRequest captures sign-in credentials.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUpRequest captures the fields required to register.
type SignUpRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Avatar   string `json:"avatar,omitempty" validate:"omitempty,url"`
}

// SignInResponse is the engine's answer to a sign-in attempt. Exactly one of
// the token fields or VerificationRequired is populated.
type SignInResponse struct {
	AccessToken          string              `json:"access_token,omitempty"`
	RefreshToken         string              `json:"refresh_token,omitempty"`
	ExpiresAt            *time.Time          `json:"expires_at,omitempty"`
	User                 *domain.UserSummary `json:"user,omitempty"`
	VerificationRequired bool                `json:"verification_required,omitempty"`
	Message              string              `json:"message,omitempty"`
}

// SignIn runs one pass of the decision state machine. Reject paths surface as
// sentinel errors; the pending-verification branch is a defined outcome and
// returns a response, not an error. Any unexpected internal error fails
// closed.
func (s *Service) SignIn(ctx context.Context, req *SignInRequest, meta RequestMeta) (*SignInResponse, error) {
	s.emit(ctx, msgSignInAttempt, audit.TypeSignIn, audit.LevelInfo, req.Email, nil, meta)

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, secherrors.ErrUserNotFound) {
			s.emit(ctx, msgIncorrectEmail, audit.TypeSignIn, audit.LevelError, req.Email, nil, meta)
			return nil, secherrors.ErrInvalidCredentials
		}
		return nil, secherrors.Wrap(err, "failed to look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.emit(ctx, msgIncorrectPassword, audit.TypeSignIn, audit.LevelError, req.Email, &user.ID, meta)
		return nil, secherrors.ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return nil, secherrors.ErrEmailNotVerified
	}

	enabled, err := s.contextAuthEnabled(ctx, user.ID)
	if err != nil {
		return nil, secherrors.Wrap(err, "failed to read user preferences")
	}

	if enabled {
		resp, err := s.checkContext(ctx, user, meta)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}

	return s.issueTokens(ctx, user)
}

// checkContext classifies the request origin for a context-auth user. A nil,
// nil return means the context is acceptable and tokens may be issued.
func (s *Service) checkContext(ctx context.Context, user *domain.User, meta RequestMeta) (*SignInResponse, error) {
	fresh := s.contexts.Extract(meta.IP, meta.UserAgent)

	cls, err := s.contexts.ClassifyForUser(ctx, user.ID, fresh)
	if err != nil {
		s.emit(ctx, msgContextVerifyError, audit.TypeSignIn, audit.LevelError, user.Email, &user.ID, meta)
		return nil, secherrors.Wrap(err, "context classification failed")
	}

	switch cls.Outcome {
	case contextauth.OutcomeBlocked:
		s.emit(ctx, msgDeviceBlocked, audit.TypeSignIn, audit.LevelWarn, user.Email, &user.ID, meta)
		return nil, secherrors.ErrDeviceBlocked

	case contextauth.OutcomeTrusted, contextauth.OutcomeMatch:
		return nil, nil

	case contextauth.OutcomeNoContextData:
		// Trust on first use: the very first context a user signs in from
		// is recorded as trusted and tokens are issued.
		if _, err := s.contexts.RecordContext(ctx, user.ID, fresh, true); err != nil {
			return nil, secherrors.Wrap(err, "failed to record first context")
		}
		return nil, nil

	case contextauth.OutcomeMismatch:
		return s.handleMismatch(ctx, user, fresh, cls, meta)
	}

	return nil, fmt.Errorf("unexpected classification outcome %v", cls.Outcome)
}

func (s *Service) handleMismatch(ctx context.Context, user *domain.User, fresh contextauth.Descriptor, cls contextauth.Classification, meta RequestMeta) (*SignInResponse, error) {
	count, err := s.bumpMismatch(ctx, user.ID, fresh)
	if err != nil {
		return nil, secherrors.Wrap(err, "failed to count mismatch attempt")
	}

	if count >= int64(s.cfg.MismatchThreshold) {
		s.emit(ctx, msgMultipleAttempts, audit.TypeSignIn, audit.LevelWarn, user.Email, &user.ID, meta)
		return nil, secherrors.ErrDeviceSuspicious
	}

	pending, err := s.contexts.RecordContext(ctx, user.ID, fresh, false)
	if err != nil {
		return nil, secherrors.Wrap(err, "failed to record pending context")
	}

	if err := s.verifier.Issue(ctx, user.Email, user.Name, domain.PurposeNewDevice, &pending.ID); err != nil {
		if !errors.Is(err, secherrors.ErrDispatchFailed) {
			return nil, err
		}
		// The attempt stays pending even though the email failed; the
		// user can trigger a resend by signing in again.
		s.emit(ctx, msgDispatchFailure, audit.TypeSignIn, audit.LevelWarn, user.Email, &user.ID, meta)
	}

	s.emit(ctx, msgVerificationPending, audit.TypeSignIn, audit.LevelInfo, user.Email, &user.ID, meta)

	return &SignInResponse{
		VerificationRequired: true,
		Message:              MessageVerificationSent,
	}, nil
}

// bumpMismatch increments the per-(user, context) attempt counter, setting
// the expiry window on first use.
func (s *Service) bumpMismatch(ctx context.Context, userID uuid.UUID, d contextauth.Descriptor) (int64, error) {
	key := mismatchKey(userID, d)
	count, err := s.attempts.Increment(ctx, key)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.attempts.Expire(ctx, key, s.cfg.MismatchWindow); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func mismatchKey(userID uuid.UUID, d contextauth.Descriptor) string {
	sum := sha256.Sum256([]byte(d.IP + "|" + d.Browser + "|" + d.OS + "|" + d.Platform))
	return fmt.Sprintf("ctxauth:mismatch:%s:%s", userID, hex.EncodeToString(sum[:8]))
}

// VerifyDevice consumes a new-device challenge and promotes the context it
// was issued for to trusted. Other pending contexts for the user stay
// pending.
func (s *Service) VerifyDevice(ctx context.Context, email, code string, meta RequestMeta) error {
	contextID, err := s.verifier.Consume(ctx, email, code, domain.PurposeNewDevice)
	if err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	if contextID != nil {
		if err := s.contexts.SetTrust(ctx, user.ID, *contextID, true); err != nil {
			return secherrors.Wrap(err, "failed to promote verified context")
		}
	} else {
		// Challenges with no bound context, such as rows predating the
		// binding column, fall back to promoting every pending context.
		if err := s.contexts.TrustPending(ctx, user.ID); err != nil {
			return secherrors.Wrap(err, "failed to promote pending contexts")
		}
	}

	s.emit(ctx, "New device verified", audit.TypeContext, audit.LevelInfo, email, &user.ID, meta)
	return nil
}

// SignUp registers a new account and dispatches the signup verification code.
func (s *Service) SignUp(ctx context.Context, req *SignUpRequest, meta RequestMeta) (*domain.UserSummary, error) {
	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, secherrors.ErrUserAlreadyExists
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, secherrors.Wrap(err, "failed to hash password")
	}

	avatar := req.Avatar
	if avatar == "" {
		avatar = defaultAvatar
	}

	user := &domain.User{
		ID:           uuid.New(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Role:         roleForEmail(req.Email),
		Avatar:       avatar,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.verifier.Issue(ctx, user.Email, user.Name, domain.PurposeSignup, nil); err != nil && !errors.Is(err, secherrors.ErrDispatchFailed) {
		return nil, err
	}

	s.emit(ctx, msgSignUpSuccess, audit.TypeSignUp, audit.LevelInfo, user.Email, &user.ID, meta)
	return user.Summary(), nil
}

// VerifySignupEmail consumes a signup challenge and marks the account
// verified.
func (s *Service) VerifySignupEmail(ctx context.Context, email, code string, meta RequestMeta) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return secherrors.ErrAlreadyVerified
	}

	if _, err := s.verifier.Consume(ctx, email, code, domain.PurposeSignup); err != nil {
		return err
	}

	if err := s.users.SetEmailVerified(ctx, user.ID); err != nil {
		return secherrors.Wrap(err, "failed to mark email verified")
	}

	s.emit(ctx, msgEmailVerified, audit.TypeVerifyEmail, audit.LevelInfo, email, &user.ID, meta)
	return nil
}

// RefreshTokens validates a stored refresh token and rotates the access
// token.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*SignInResponse, error) {
	stored, err := s.tokens.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, secherrors.ErrInvalidRefreshToken
	}

	claims, err := s.parseToken(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			_ = s.tokens.Delete(ctx, stored.ID)
			return nil, secherrors.ErrExpiredRefreshToken
		}
		return nil, secherrors.ErrInvalidRefreshToken
	}

	userID, err := uuid.Parse(fmt.Sprint(claims["user_id"]))
	if err != nil || userID != stored.UserID {
		return nil, secherrors.ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, secherrors.ErrInvalidRefreshToken
	}

	expiresAt := time.Now().Add(s.cfg.AccessExpiry)
	accessToken, err := s.signToken(user, s.cfg.AccessSecret, expiresAt, true)
	if err != nil {
		return nil, secherrors.Wrap(err, "failed to sign access token")
	}

	if err := s.tokens.UpdateAccessToken(ctx, stored.ID, accessToken); err != nil {
		return nil, secherrors.Wrap(err, "failed to rotate access token")
	}

	return &SignInResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expiresAt,
	}, nil
}

// Logout invalidates the session bound to the presented access token.
func (s *Service) Logout(ctx context.Context, accessToken string, meta RequestMeta) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}
	if err := s.tokens.DeleteByAccessToken(ctx, accessToken); err != nil {
		return err
	}
	if s.revoker != nil {
		if claims, err := s.parseToken(accessToken, s.cfg.AccessSecret); err == nil {
			ttl := s.cfg.AccessExpiry
			if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
				ttl = time.Until(exp.Time)
			}
			if ttl > 0 {
				if err := s.revoker.Blacklist(ctx, accessToken, ttl); err != nil {
					s.logger.Error("Failed to blacklist access token", map[string]interface{}{
						"error": err.Error(),
					})
				}
			}
		}
	}
	s.emit(ctx, msgLogoutSuccess, audit.TypeSignOut, audit.LevelInfo, "", nil, meta)
	return nil
}

// ForgotPassword issues a reset token. The response never reveals whether
// the account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string, meta RequestMeta) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, secherrors.ErrUserNotFound) {
			return nil
		}
		return err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return secherrors.Wrap(err, "failed to generate reset token")
	}
	token := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return secherrors.Wrap(err, "failed to hash reset token")
	}

	if err := s.resets.Replace(ctx, &domain.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: string(hash),
		CreatedAt: time.Now(),
	}); err != nil {
		return secherrors.Wrap(err, "failed to store reset token")
	}

	link := fmt.Sprintf("%s/reset-password/%s/%s", strings.TrimRight(s.cfg.ClientBaseURL, "/"), token, user.ID)
	if err := s.sender.Send(user.Email, "Password Reset Request", mailer.PasswordResetHTML(user.Name, link)); err != nil {
		s.logger.Error("Failed to send password reset email", map[string]interface{}{
			"email": user.Email,
			"error": err.Error(),
		})
	}

	s.emit(ctx, msgPasswordResetRequest, audit.TypePassword, audit.LevelInfo, user.Email, &user.ID, meta)
	return nil
}

// ResetPassword validates an emailed reset token and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, userID uuid.UUID, token, newPassword string, meta RequestMeta) error {
	stored, err := s.resets.FindByUser(ctx, userID)
	if err != nil {
		return secherrors.ErrResetTokenInvalid
	}

	if time.Since(stored.CreatedAt) > resetTokenExpiry {
		_ = s.resets.Delete(ctx, stored.ID)
		return secherrors.ErrResetTokenInvalid
	}

	if err := bcrypt.CompareHashAndPassword([]byte(stored.TokenHash), []byte(token)); err != nil {
		return secherrors.ErrResetTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return secherrors.Wrap(err, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return secherrors.Wrap(err, "failed to update password")
	}

	if err := s.resets.Delete(ctx, stored.ID); err != nil {
		s.logger.Warn("Failed to delete consumed reset token", map[string]interface{}{"error": err.Error()})
	}

	s.emit(ctx, msgPasswordResetDone, audit.TypePassword, audit.LevelInfo, "", &userID, meta)
	return nil
}

// Preferences returns the user's settings, defaulting when none are stored.
func (s *Service) Preferences(ctx context.Context, userID uuid.UUID) (*domain.UserPreference, error) {
	pref, err := s.prefs.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, secherrors.ErrUserNotFound) {
			return &domain.UserPreference{UserID: userID}, nil
		}
		return nil, err
	}
	return pref, nil
}

// SetContextAuth toggles context-based authentication for the user.
func (s *Service) SetContextAuth(ctx context.Context, userID uuid.UUID, enabled bool) error {
	return s.prefs.Upsert(ctx, &domain.UserPreference{
		ID:                     uuid.New(),
		UserID:                 userID,
		EnableContextBasedAuth: enabled,
		UpdatedAt:              time.Now(),
	})
}

func (s *Service) contextAuthEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	pref, err := s.prefs.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, secherrors.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return pref.EnableContextBasedAuth, nil
}

func (s *Service) issueTokens(ctx context.Context, user *domain.User) (*SignInResponse, error) {
	expiresAt := time.Now().Add(s.cfg.AccessExpiry)

	accessToken, err := s.signToken(user, s.cfg.AccessSecret, expiresAt, true)
	if err != nil {
		return nil, secherrors.Wrap(err, "failed to sign access token")
	}

	refreshToken, err := s.signToken(user, s.cfg.RefreshSecret, time.Now().Add(s.cfg.RefreshExpiry), false)
	if err != nil {
		return nil, secherrors.Wrap(err, "failed to sign refresh token")
	}

	if err := s.tokens.Create(ctx, &domain.RefreshToken{
		ID:           uuid.New(),
		UserID:       user.ID,
		RefreshToken: refreshToken,
		AccessToken:  accessToken,
		CreatedAt:    time.Now(),
	}); err != nil {
		return nil, secherrors.Wrap(err, "failed to persist refresh token")
	}

	now := time.Now()
	user.LastLogin = &now
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, secherrors.Wrap(err, "failed to update last login")
	}

	return &SignInResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expiresAt,
		User:         user.Summary(),
	}, nil
}

func (s *Service) signToken(user *domain.User, secret string, expiresAt time.Time, withProfile bool) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"exp":     expiresAt.Unix(),
		"iat":     time.Now().Unix(),
	}
	if withProfile {
		claims["email"] = user.Email
		claims["role"] = string(user.Role)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (s *Service) parseToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (s *Service) emit(ctx context.Context, message string, eventType audit.EventType, level audit.Level, email string, userID *uuid.UUID, meta RequestMeta) {
	d := s.contexts.Extract(meta.IP, meta.UserAgent)
	s.recorder.Record(ctx, audit.Event{
		Message:  message,
		Type:     eventType,
		Level:    level,
		Email:    email,
		UserID:   userID,
		Endpoint: meta.Endpoint,
		Method:   meta.Method,
		Context: domain.LogContext{
			IP:         d.IP,
			Country:    d.Country,
			City:       d.City,
			Browser:    d.Browser,
			OS:         d.OS,
			Platform:   d.Platform,
			Device:     d.Device,
			DeviceType: d.DeviceType,
		},
	})
}

func roleForEmail(email string) domain.Role {
	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] == moderatorDomain {
		return domain.RoleModerator
	}
	return domain.RoleGeneral
}
