package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nvoronin/authsession/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, hashedPassword string, role string) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Create token with fresh crypto random opaque value and store it
	Create(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (models.RefreshToken, error)

	// Return the token whatever state it is in (revoked or expired included)
	// If the token does not exist must return apperrors.ErrRefreshTokenNotFound
	GetByToken(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Return the user's most relevant valid token: not revoked, not expired at 'now'
	// If several valid tokens exist the one with the latest expires_at wins
	// (created_at breaks the remaining ties)
	// If no valid token exists must return apperrors.ErrRefreshTokenNotFound
	GetValidForUser(ctx context.Context, userID uuid.UUID, now time.Time) (models.RefreshToken, error)

	// Mark token revoked at 'now' and return the stored record
	// Idempotent: an already revoked token keeps its original revoked_at
	// If the token does not exist must return apperrors.ErrRefreshTokenNotFound
	Revoke(ctx context.Context, tokenString string, now time.Time) (models.RefreshToken, error)

	// Delete every token that expired or was revoked before 'cutoff'
	// Runs as a single statement so the purge is atomic
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Storage aggregates the repositories over one shared connection or transaction
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
