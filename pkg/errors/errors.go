// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")

	// Sign-in errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeviceBlocked      = errors.New("device blocked")
	ErrDeviceSuspicious   = errors.New("device temporarily blocked")
	ErrEmailNotVerified   = errors.New("email not verified")

	// Verification errors
	ErrVerificationRequired    = errors.New("verification required")
	ErrVerificationExpired     = errors.New("verification code has expired")
	ErrVerificationCodeInvalid = errors.New("invalid verification code")
	ErrAlreadyVerified         = errors.New("email is already verified")
	ErrDispatchFailed          = errors.New("verification email could not be sent")

	// Device context errors
	ErrContextNotFound = errors.New("context not found")

	// Token errors
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrExpiredRefreshToken = errors.New("expired refresh token")

	// Password reset errors
	ErrResetTokenInvalid = errors.New("invalid or expired password reset token")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
