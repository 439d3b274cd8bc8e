package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nvoronin/authsession/internal/apperrors"
	"github.com/nvoronin/authsession/internal/models"
)

// Opaque token value length in bytes before hex encoding
const tokenBytesLen = 16

type RefreshTokenRepo struct {
	DB DBTX
}

const createToken = `-- name: CreateRefreshToken
INSERT INTO refresh_tokens (id, user_id, token, created_at, expires_at)
VALUES ($1, $2, $3, clock_timestamp(), $4)
RETURNING id, user_id, token, created_at, expires_at, revoked_at
`

// Create generates a fresh opaque token value and stores it.
// The caller decides the expiry window.
// created_at uses clock_timestamp so creation order stays observable
// between inserts in the same transaction
func (r *RefreshTokenRepo) Create(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (models.RefreshToken, error) {
	b := make([]byte, tokenBytesLen)
	if _, err := rand.Read(b); err != nil {
		return models.RefreshToken{}, fmt.Errorf("error while generating refresh token. Err: %w", err)
	}

	rows, _ := r.DB.Query(ctx, createToken, uuid.New(), userID, hex.EncodeToString(b), expiresAt)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return token, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

const getToken = `-- name: GetRefreshToken by the opaque value itself
SELECT id, user_id, token, created_at, expires_at, revoked_at
FROM refresh_tokens
WHERE token = $1
`

// Get token
// It should return result even if the token is expired or revoked already
func (r *RefreshTokenRepo) GetByToken(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenString)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const getValidForUser = `-- name: GetValidRefreshTokenForUser
SELECT id, user_id, token, created_at, expires_at, revoked_at
FROM refresh_tokens
WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
ORDER BY expires_at DESC, created_at DESC
LIMIT 1
`

// Return the user's freshest valid token
// Several valid tokens may coexist per user, the latest expiry wins
func (r *RefreshTokenRepo) GetValidForUser(ctx context.Context, userID uuid.UUID, now time.Time) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getValidForUser, userID, now)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const revokeToken = `-- name: RevokeRefreshToken if it is not revoked yet
UPDATE refresh_tokens
SET revoked_at = COALESCE(revoked_at, $2)
WHERE token = $1
RETURNING id, user_id, token, created_at, expires_at, revoked_at
`

// Revoke token at 'now'
// Idempotent: revoking an already revoked token keeps the original revoked_at,
// the returned record tells the caller which timestamp actually stuck
func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenString string, now time.Time) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, revokeToken, tokenString, now)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const deleteStale = `-- name: DeleteStaleRefreshTokens
DELETE FROM refresh_tokens
WHERE expires_at < $1 OR revoked_at < $1
`

// DeleteStale purges tokens that expired or were revoked before 'cutoff'
// One statement, so the purge commits atomically even under concurrent inserts
func (r *RefreshTokenRepo) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteStale, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt)
	return t, err
}
