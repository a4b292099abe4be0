package services

import (
	"context"
	"errors"
	"time"

	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

// TokenRepository defines persistence operations for issued tokens.
type TokenRepository interface {
	Create(ctx context.Context, token types.AuthToken) error
	Get(ctx context.Context, id string) (types.AuthToken, error)
	Delete(ctx context.Context, id string) error
}

// TokenService tracks issued bearer tokens so they can be revoked.
type TokenService struct {
	repo TokenRepository
	now  func() time.Time
}

func NewTokenService(repo TokenRepository) *TokenService {
	return &TokenService{repo: repo, now: time.Now}
}

// Record registers a freshly issued token id.
func (s *TokenService) Record(ctx context.Context, id string, userID int, expiresAt time.Time) error {
	return s.repo.Create(ctx, types.AuthToken{
		ID:        id,
		UserID:    userID,
		CreatedAt: s.now(),
		ExpiresAt: expiresAt,
	})
}

// Live reports whether the token id refers to an unrevoked, unexpired
// token. Errors read as not-live.
func (s *TokenService) Live(ctx context.Context, id string) bool {
	token, err := s.repo.Get(ctx, id)
	if err != nil {
		return false
	}
	return token.ExpiresAt.After(s.now())
}

// Revoke deletes the token record. Missing tokens are not an error:
// revocation is idempotent.
func (s *TokenService) Revoke(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}
