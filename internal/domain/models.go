// Package domain holds the persistent entities shared across services.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleGeneral   Role = "general"
	RoleModerator Role = "moderator"
)

// User is a member of the platform.
type User struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	Role          Role       `json:"role" db:"role"`
	Avatar        string     `json:"avatar" db:"avatar"`
	EmailVerified bool       `json:"email_verified" db:"email_verified"`
	LastLogin     *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Summary returns the redacted shape sent to clients on sign-in.
func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		Avatar: u.Avatar,
	}
}

// UserSummary is a User with all secret fields removed.
type UserSummary struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
	Avatar string    `json:"avatar"`
}

// UserPreference carries per-user settings read by the sign-in flow.
type UserPreference struct {
	ID                     uuid.UUID `json:"id" db:"id"`
	UserID                 uuid.UUID `json:"user_id" db:"user_id"`
	EnableContextBasedAuth bool      `json:"enable_context_based_auth" db:"enable_context_based_auth"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// UserContext is one stored device/location context for a user.
//
// A context is uniquely identified per user by (ip, browser, os, platform);
// the repository enforces this with an idempotent upsert.
type UserContext struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	IP         string    `json:"ip" db:"ip"`
	Country    string    `json:"country" db:"country"`
	City       string    `json:"city" db:"city"`
	Browser    string    `json:"browser" db:"browser"`
	OS         string    `json:"os" db:"os"`
	Platform   string    `json:"platform" db:"platform"`
	Device     string    `json:"device" db:"device"`
	DeviceType string    `json:"device_type" db:"device_type"`
	IsTrusted  bool      `json:"is_trusted" db:"is_trusted"`
	IsBlocked  bool      `json:"is_blocked" db:"is_blocked"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// VerificationPurpose tags what a challenge unlocks.
type VerificationPurpose string

const (
	PurposeSignup    VerificationPurpose = "signup"
	PurposeNewDevice VerificationPurpose = "new-device"
)

// VerificationChallenge is a one-time code sent out-of-band. At most one live
// challenge exists per (email, purpose); issuing a new one supersedes it.
// New-device challenges carry the ID of the context that triggered them so
// consuming the code promotes exactly that record.
type VerificationChallenge struct {
	ID        uuid.UUID           `json:"id" db:"id"`
	Email     string              `json:"email" db:"email"`
	Code      string              `json:"-" db:"code"`
	Purpose   VerificationPurpose `json:"purpose" db:"purpose"`
	ContextID *uuid.UUID          `json:"context_id,omitempty" db:"context_id"`
	ExpiresAt time.Time           `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
}

// RefreshToken is the server-side record of an issued token pair.
type RefreshToken struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	RefreshToken string    `json:"refresh_token" db:"refresh_token"`
	AccessToken  string    `json:"access_token" db:"access_token"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PasswordResetToken stores the bcrypt hash of an emailed reset token. One
// live token per user; issuing a new one replaces it.
type PasswordResetToken struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LogContext is the request-origin snapshot attached to every audit entry.
type LogContext struct {
	IP         string `json:"ip" db:"ip"`
	Country    string `json:"country" db:"country"`
	City       string `json:"city" db:"city"`
	Browser    string `json:"browser" db:"browser"`
	OS         string `json:"os" db:"os"`
	Platform   string `json:"platform" db:"platform"`
	Device     string `json:"device" db:"device"`
	DeviceType string `json:"device_type" db:"device_type"`
}

// LogEntry is one audit record.
type LogEntry struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	Email     string     `json:"email" db:"email"`
	Message   string     `json:"message" db:"message"`
	Type      string     `json:"type" db:"type"`
	Level     string     `json:"level" db:"level"`
	Endpoint  string     `json:"endpoint" db:"endpoint"`
	Method    string     `json:"method" db:"method"`
	Context   LogContext `json:"context" db:"context"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
