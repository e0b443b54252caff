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

type TokenRepository struct {
	db *sqlx.DB
}

func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, refresh_token, access_token, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.RefreshToken, token.AccessToken, token.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create refresh token")
	}

	return nil
}

func (r *TokenRepository) FindByRefreshToken(ctx context.Context, refreshToken string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	query := `
		SELECT id, user_id, refresh_token, access_token, created_at
		FROM refresh_tokens WHERE refresh_token = $1`

	err := r.db.GetContext(ctx, &token, query, refreshToken)
	if err == sql.ErrNoRows {
		return nil, errors.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find refresh token")
	}

	return &token, nil
}

func (r *TokenRepository) UpdateAccessToken(ctx context.Context, id uuid.UUID, accessToken string) error {
	query := `UPDATE refresh_tokens SET access_token = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, accessToken)
	if err != nil {
		return errors.Wrap(err, "failed to rotate access token")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return errors.ErrInvalidRefreshToken
	}

	return nil
}

func (r *TokenRepository) DeleteByAccessToken(ctx context.Context, accessToken string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE access_token = $1`, accessToken); err != nil {
		return errors.Wrap(err, "failed to delete session")
	}

	return nil
}

func (r *TokenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete refresh token")
	}

	return nil
}

// DeleteCreatedBefore prunes sessions past the refresh token lifetime.
func (r *TokenRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune stale sessions")
	}

	return result.RowsAffected()
}
