// Package verification implements one-time email codes used to confirm
// control of the out-of-band channel before trusting a new device.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"socialecho/internal/domain"
	secherrors "socialecho/pkg/errors"
	"socialecho/pkg/logger"
	"socialecho/pkg/mailer"

	"github.com/google/uuid"
)

const codeLength = 5

// Repository persists verification challenges.
type Repository interface {
	// Replace atomically supersedes any live challenge for the same
	// (email, purpose) with the given one. Last writer wins: two rapid
	// resends must never leave two consumable codes.
	Replace(ctx context.Context, challenge *domain.VerificationChallenge) error
	Find(ctx context.Context, email string, purpose domain.VerificationPurpose) (*domain.VerificationChallenge, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Sender dispatches the challenge out-of-band.
type Sender interface {
	Send(to, subject, body string) error
}

// Service issues and consumes verification challenges.
type Service struct {
	repo   Repository
	sender Sender
	logger logger.Logger
	expiry time.Duration
}

func NewService(repo Repository, sender Sender, log logger.Logger, expiry time.Duration) *Service {
	return &Service{
		repo:   repo,
		sender: sender,
		logger: log,
		expiry: expiry,
	}
}

// Issue creates a challenge for (email, purpose), superseding any prior one,
// and emails it. contextID ties a new-device challenge to the context record
// that triggered it; pass nil for purposes with no context. The challenge is
// persisted before dispatch: a dispatch failure returns ErrDispatchFailed so
// callers can surface it, but the pending verification state stands and the
// user may request a resend.
func (s *Service) Issue(ctx context.Context, email, name string, purpose domain.VerificationPurpose, contextID *uuid.UUID) error {
	code, err := generateCode()
	if err != nil {
		return secherrors.Wrap(err, "failed to generate verification code")
	}

	challenge := &domain.VerificationChallenge{
		ID:        uuid.New(),
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ContextID: contextID,
		ExpiresAt: time.Now().Add(s.expiry),
		CreatedAt: time.Now(),
	}

	if err := s.repo.Replace(ctx, challenge); err != nil {
		return secherrors.Wrap(err, "failed to store verification challenge")
	}

	subject, body := challengeEmail(name, code, purpose)
	if err := s.sender.Send(email, subject, body); err != nil {
		s.logger.Error("Failed to send verification email", map[string]interface{}{
			"email":   email,
			"purpose": string(purpose),
			"error":   err.Error(),
		})
		return secherrors.ErrDispatchFailed
	}

	return nil
}

// Consume validates a submitted code and returns the context ID the
// challenge was bound to, if any. Wrong codes leave the challenge in place so
// the legitimate user can retry until expiry; an expired challenge is removed
// and must be re-issued. Success deletes the challenge, so a code is
// consumable exactly once.
func (s *Service) Consume(ctx context.Context, email, code string, purpose domain.VerificationPurpose) (*uuid.UUID, error) {
	challenge, err := s.repo.Find(ctx, email, purpose)
	if err != nil {
		return nil, secherrors.ErrVerificationCodeInvalid
	}

	if !time.Now().Before(challenge.ExpiresAt) {
		if err := s.repo.Delete(ctx, challenge.ID); err != nil {
			s.logger.Error("Failed to delete expired challenge", map[string]interface{}{"error": err.Error()})
		}
		return nil, secherrors.ErrVerificationExpired
	}

	submitted := strings.ToUpper(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(submitted)) != 1 {
		return nil, secherrors.ErrVerificationCodeInvalid
	}

	if err := s.repo.Delete(ctx, challenge.ID); err != nil {
		return nil, secherrors.Wrap(err, "failed to consume verification challenge")
	}

	return challenge.ContextID, nil
}

// generateCode returns a short random uppercase code. Three random bytes give
// six hex characters; the code keeps the first five.
func generateCode() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b))[:codeLength], nil
}

func challengeEmail(name, code string, purpose domain.VerificationPurpose) (subject, body string) {
	switch purpose {
	case domain.PurposeNewDevice:
		return "Action Required: Verify Your Sign-In", mailer.NewDeviceVerificationHTML(name, code)
	default:
		return "Verify Your Email Address", mailer.SignupVerificationHTML(name, code)
	}
}
