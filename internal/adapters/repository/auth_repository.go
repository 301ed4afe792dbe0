package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/ports"
)

// AuthRepositoryImpl implements the AuthRepository interface
type AuthRepositoryImpl struct {
	db  sqlx.ExtContext
	now func() time.Time
}

// NewAuthRepository creates a new auth repository
func NewAuthRepository(db sqlx.ExtContext) ports.AuthRepository {
	return &AuthRepositoryImpl{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *AuthRepositoryImpl) CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	query := r.db.Rebind(`
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query, userID, tokenHash, expiresAt.UTC(), r.now())
	return translate("create refresh token", err, entities.ErrTokenNotFound)
}

func (r *AuthRepositoryImpl) GetRefreshToken(ctx context.Context, tokenHash string) (*ports.RefreshToken, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, token_hash, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = ?`)

	var token ports.RefreshToken
	if err := sqlx.GetContext(ctx, r.db, &token, query, tokenHash); err != nil {
		return nil, translate("get refresh token", err, entities.ErrTokenNotFound)
	}
	return &token, nil
}

func (r *AuthRepositoryImpl) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	query := r.db.Rebind(`
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL`)

	_, err := r.db.ExecContext(ctx, query, r.now(), tokenHash)
	return translate("revoke refresh token", err, entities.ErrTokenNotFound)
}

func (r *AuthRepositoryImpl) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	query := r.db.Rebind(`
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE user_id = ? AND revoked_at IS NULL`)

	_, err := r.db.ExecContext(ctx, query, r.now(), userID)
	return translate("revoke all user tokens", err, entities.ErrTokenNotFound)
}

func (r *AuthRepositoryImpl) CleanupExpiredTokens(ctx context.Context) error {
	query := r.db.Rebind(`DELETE FROM refresh_tokens WHERE expires_at < ?`)

	_, err := r.db.ExecContext(ctx, query, r.now())
	return translate("cleanup expired tokens", err, entities.ErrTokenNotFound)
}
