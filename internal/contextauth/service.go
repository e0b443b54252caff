package contextauth

import (
	"context"
	"time"

	"socialecho/internal/domain"
	secherrors "socialecho/pkg/errors"

	"github.com/google/uuid"
)

// Filter selects a slice of a user's stored contexts.
type Filter string

const (
	FilterTrusted Filter = "trusted"
	FilterBlocked Filter = "blocked"
	// FilterPending selects contexts that are neither trusted nor blocked:
	// seen once but not yet verified.
	FilterPending Filter = "pending"
)

// Repository persists device contexts.
type Repository interface {
	// Upsert inserts the context or refreshes an existing record with the
	// same (user, ip, browser, os, platform) tuple. It must be idempotent
	// so racing sign-ins from the same device cannot create duplicates.
	Upsert(ctx context.Context, record *domain.UserContext) error
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.UserContext, error)
	FindByUserFiltered(ctx context.Context, userID uuid.UUID, filter Filter) ([]*domain.UserContext, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.UserContext, error)
	SetTrusted(ctx context.Context, id uuid.UUID, trusted bool) error
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error
	TrustPendingByUser(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service exposes context classification and self-service security
// management over the store.
type Service struct {
	repo      Repository
	extractor *Extractor
}

func NewService(repo Repository, extractor *Extractor) *Service {
	return &Service{repo: repo, extractor: extractor}
}

// Extract derives the descriptor for a raw request origin.
func (s *Service) Extract(ip, userAgent string) Descriptor {
	return s.extractor.Extract(ip, userAgent)
}

// ClassifyForUser runs the matcher against the user's stored contexts.
func (s *Service) ClassifyForUser(ctx context.Context, userID uuid.UUID, fresh Descriptor) (Classification, error) {
	records, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return Classification{}, secherrors.Wrap(err, "failed to load user contexts")
	}
	return Classify(records, fresh), nil
}

// RecordContext stores a descriptor for the user and returns the persisted
// record. Used both for trust-on-first-use and for parking an unverified
// mismatch context until the user completes verification; callers bind the
// returned record's ID to the verification challenge.
func (s *Service) RecordContext(ctx context.Context, userID uuid.UUID, d Descriptor, trusted bool) (*domain.UserContext, error) {
	record := &domain.UserContext{
		ID:         uuid.New(),
		UserID:     userID,
		IP:         d.IP,
		Country:    d.Country,
		City:       d.City,
		Browser:    d.Browser,
		OS:         d.OS,
		Platform:   d.Platform,
		Device:     d.Device,
		DeviceType: d.DeviceType,
		IsTrusted:  trusted,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// TrustPending promotes all of the user's unverified contexts. Only used
// when a consumed challenge carries no context binding; bound challenges
// promote their single record via SetTrust.
func (s *Service) TrustPending(ctx context.Context, userID uuid.UUID) error {
	return s.repo.TrustPendingByUser(ctx, userID)
}

// List returns the user's contexts matching the filter.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter Filter) ([]*domain.UserContext, error) {
	return s.repo.FindByUserFiltered(ctx, userID, filter)
}

// SetTrust flips the trust flag on a context owned by the user.
func (s *Service) SetTrust(ctx context.Context, userID, contextID uuid.UUID, trusted bool) error {
	if err := s.requireOwner(ctx, userID, contextID); err != nil {
		return err
	}
	return s.repo.SetTrusted(ctx, contextID, trusted)
}

// SetBlock flips the block flag on a context owned by the user.
func (s *Service) SetBlock(ctx context.Context, userID, contextID uuid.UUID, blocked bool) error {
	if err := s.requireOwner(ctx, userID, contextID); err != nil {
		return err
	}
	return s.repo.SetBlocked(ctx, contextID, blocked)
}

// Delete removes a stored context owned by the user.
func (s *Service) Delete(ctx context.Context, userID, contextID uuid.UUID) error {
	if err := s.requireOwner(ctx, userID, contextID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, contextID)
}

func (s *Service) requireOwner(ctx context.Context, userID, contextID uuid.UUID) error {
	record, err := s.repo.FindByID(ctx, contextID)
	if err != nil {
		return err
	}
	if record.UserID != userID {
		return secherrors.ErrContextNotFound
	}
	return nil
}
