package postgres

import (
	"context"
	"database/sql"
	"time"

	"socialecho/internal/domain"
	"socialecho/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type VerificationRepository struct {
	db *sqlx.DB
}

func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Replace supersedes any live challenge for the same (email, purpose) in a
// single transaction so two rapid resends never leave two consumable codes.
func (r *VerificationRepository) Replace(ctx context.Context, challenge *domain.VerificationChallenge) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM verification_challenges WHERE email = $1 AND purpose = $2`,
		challenge.Email, challenge.Purpose,
	)
	if err != nil {
		return errors.Wrap(err, "failed to supersede challenge")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verification_challenges (id, email, code, purpose, context_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		challenge.ID, challenge.Email, challenge.Code, challenge.Purpose,
		challenge.ContextID, challenge.ExpiresAt, challenge.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create challenge")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit challenge")
	}

	return nil
}

func (r *VerificationRepository) Find(ctx context.Context, email string, purpose domain.VerificationPurpose) (*domain.VerificationChallenge, error) {
	var challenge domain.VerificationChallenge
	query := `
		SELECT id, email, code, purpose, context_id, expires_at, created_at
		FROM verification_challenges WHERE email = $1 AND purpose = $2`

	err := r.db.GetContext(ctx, &challenge, query, email, purpose)
	if err == sql.ErrNoRows {
		return nil, errors.ErrVerificationCodeInvalid
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find challenge")
	}

	return &challenge, nil
}

func (r *VerificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM verification_challenges WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete challenge")
	}

	return nil
}

// DeleteExpired prunes challenges whose expiry has passed.
func (r *VerificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM verification_challenges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune expired challenges")
	}

	return result.RowsAffected()
}
