// Package scheduler runs periodic maintenance over the credential stores:
// expired verification challenges, aged-out sessions, and stale password
// reset tokens.
package scheduler

import (
	"context"
	"sync"
	"time"

	"socialecho/pkg/logger"
)

// ChallengeStore prunes verification challenges past their expiry.
type ChallengeStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionStore prunes refresh token rows older than the refresh lifetime.
type SessionStore interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ResetStore prunes password reset tokens past their validity window.
type ResetStore interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor sweeps the stores on a fixed interval until stopped.
type Janitor struct {
	challenges ChallengeStore
	sessions   SessionStore
	resets     ResetStore
	logger     logger.Logger

	interval   time.Duration
	sessionTTL time.Duration
	resetTTL   time.Duration
	stopOnce   sync.Once
	stop       chan struct{}
}

func NewJanitor(challenges ChallengeStore, sessions SessionStore, resets ResetStore, log logger.Logger, interval, sessionTTL, resetTTL time.Duration) *Janitor {
	return &Janitor{
		challenges: challenges,
		sessions:   sessions,
		resets:     resets,
		logger:     log,
		interval:   interval,
		sessionTTL: sessionTTL,
		resetTTL:   resetTTL,
		stop:       make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately; call Stop to end it.
func (j *Janitor) Start() {
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.Sweep(context.Background())
			case <-j.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop. Safe to call more than once.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

// Sweep runs one maintenance pass. Failures are logged and do not abort the
// remaining prunes.
func (j *Janitor) Sweep(ctx context.Context) {
	now := time.Now()

	if n, err := j.challenges.DeleteExpired(ctx, now); err != nil {
		j.logger.Error("Failed to prune expired challenges", map[string]interface{}{"error": err.Error()})
	} else if n > 0 {
		j.logger.Info("Pruned expired verification challenges", map[string]interface{}{"count": n})
	}

	if n, err := j.sessions.DeleteCreatedBefore(ctx, now.Add(-j.sessionTTL)); err != nil {
		j.logger.Error("Failed to prune stale sessions", map[string]interface{}{"error": err.Error()})
	} else if n > 0 {
		j.logger.Info("Pruned stale sessions", map[string]interface{}{"count": n})
	}

	if n, err := j.resets.DeleteCreatedBefore(ctx, now.Add(-j.resetTTL)); err != nil {
		j.logger.Error("Failed to prune stale reset tokens", map[string]interface{}{"error": err.Error()})
	} else if n > 0 {
		j.logger.Info("Pruned stale reset tokens", map[string]interface{}{"count": n})
	}
}
