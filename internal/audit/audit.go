// Package audit records security-relevant events for later anomaly review.
// Recording is fire-and-forget: a failed write is logged, never surfaced to
// the caller.
package audit

import (
	"context"
	"time"

	"socialecho/internal/domain"
	"socialecho/pkg/logger"

	"github.com/google/uuid"
)

// EventType tags the action an entry describes.
type EventType string

const (
	TypeSignIn      EventType = "sign_in"
	TypeSignUp      EventType = "sign_up"
	TypeSignOut     EventType = "sign_out"
	TypeVerifyEmail EventType = "verify_email"
	TypeContext     EventType = "context_update"
	TypeSecurity    EventType = "security"
	TypePassword    EventType = "password_reset"
)

// Level grades an entry's severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one audit emission from a state-machine transition.
type Event struct {
	Message  string
	Type     EventType
	Level    Level
	Email    string
	UserID   *uuid.UUID
	Context  domain.LogContext
	Endpoint string
	Method   string
}

// Recorder accepts audit events. Implementations must never return control
// flow to the caller based on persistence failures.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Repository persists and queries audit entries.
type Repository interface {
	Create(ctx context.Context, entry *domain.LogEntry) error
	Find(ctx context.Context, filter Filter) ([]*domain.LogEntry, int, error)
	DeleteAll(ctx context.Context) error
}

// Filter narrows audit queries for the admin surface.
type Filter struct {
	Level  string
	Type   string
	Limit  int
	Offset int
}

// Service writes audit entries through the repository and fans them out to
// live subscribers when a stream is attached.
type Service struct {
	repo   Repository
	stream *Stream
	logger logger.Logger
}

func NewService(repo Repository, stream *Stream, log logger.Logger) *Service {
	return &Service{repo: repo, stream: stream, logger: log}
}

// Record persists the event. Errors are swallowed after being logged so audit
// failures cannot abort a sign-in decision already made.
func (s *Service) Record(ctx context.Context, e Event) {
	entry := &domain.LogEntry{
		ID:        uuid.New(),
		UserID:    e.UserID,
		Email:     e.Email,
		Message:   e.Message,
		Type:      string(e.Type),
		Level:     string(e.Level),
		Endpoint:  e.Endpoint,
		Method:    e.Method,
		Context:   e.Context,
		CreatedAt: time.Now(),
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to save audit entry", map[string]interface{}{
			"error": err.Error(),
			"type":  entry.Type,
		})
		return
	}

	if s.stream != nil {
		s.stream.Publish(entry)
	}
}

// List returns entries matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter Filter) ([]*domain.LogEntry, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.Find(ctx, filter)
}

// Clear removes all entries.
func (s *Service) Clear(ctx context.Context) error {
	return s.repo.DeleteAll(ctx)
}
