package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tasktrack/apiserver/types"
)

// TokenRepository handles persistence for issued auth tokens.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token types.AuthToken) error {
	const query = `
		INSERT INTO auth_tokens (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, token.ID, token.UserID, token.CreatedAt, token.ExpiresAt)
	return err
}

func (r *TokenRepository) Get(ctx context.Context, id string) (types.AuthToken, error) {
	const query = `
		SELECT id, user_id, created_at, expires_at
		FROM auth_tokens
		WHERE id = $1`
	var token types.AuthToken
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.CreatedAt,
		&token.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AuthToken{}, ErrNotFound
		}
		return types.AuthToken{}, err
	}
	return token, nil
}

func (r *TokenRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM auth_tokens WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired removes tokens past their expiry. Safe to call at any time.
func (r *TokenRepository) DeleteExpired(ctx context.Context) error {
	const query = `DELETE FROM auth_tokens WHERE expires_at < now()`
	_, err := r.db.ExecContext(ctx, query)
	return err
}
