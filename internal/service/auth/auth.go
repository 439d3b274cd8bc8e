package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nvoronin/authsession/internal/apperrors"
	"github.com/nvoronin/authsession/internal/models"
	"github.com/nvoronin/authsession/internal/repository"
)

// UserLookup resolves users for credential checks and token refresh.
// It is the only thing the session service knows about user storage
type UserLookup interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

type Config struct {
	// Header and scheme used to transport the access token
	// If not set then default is used
	AccessHeaderName string
	AccessAuthScheme string

	// Cookie name used to transport the refresh token
	// If not set then default is used
	RefreshCookieName string

	// Hasher to use during the login process
	// If not set then default bcrypt hasher is used
	Hasher PasswordHasher
}

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
)

// SessionService drives sessions over (access token, refresh token) pairs:
// login creates a pair, refresh rotates it, logout revokes the refresh token
type SessionService struct {
	tokens *TokenManager
	hasher PasswordHasher
	users  UserLookup

	// Repository to access refresh token records
	refreshRepo repository.RefreshTokenRepo

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
}

func NewService(cfg Config, tokens *TokenManager, users UserLookup, refreshRepo repository.RefreshTokenRepo) (*SessionService, error) {
	if tokens == nil {
		return nil, errors.New("token manager must not be nil")
	}
	if users == nil || refreshRepo == nil {
		return nil, errors.New("user lookup and refresh token repo must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefaultString(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)

	return &SessionService{
		tokens:            tokens,
		hasher:            hasher,
		users:             users,
		refreshRepo:       refreshRepo,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
	}, nil
}

// Hash compared against when the user does not exist,
// so the unknown-email path still burns a bcrypt round
var unknownUserHash = func() string {
	h, _ := BcryptHasher{}.Hash("unknown user placeholder")
	return h
}()

// Login verifies credentials and starts a new session.
// Unknown email and wrong password both come back as ErrInvalidCredentials,
// the caller can not tell which one it was
func (s *SessionService) Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error) {
	user, lookupErr := s.users.GetUserByEmail(ctx, email)

	hash := user.HashedPassword
	if lookupErr != nil {
		hash = unknownUserHash
	}

	if err := s.hasher.Compare(hash, password); err != nil || lookupErr != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	pair, err := s.GrantPair(ctx, user)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	return user, pair, nil
}

// GrantPair issues an access token and creates a refresh token record.
// If persisting the refresh token fails the pair is not returned,
// so the client never holds an access token without a matching record
func (s *SessionService) GrantPair(ctx context.Context, user models.User) (models.TokenPair, error) {
	now := time.Now().Truncate(time.Second)

	access, err := s.tokens.IssueAccess(user, now)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while issuing access token. Err: %w", err)
	}

	refresh, err := s.refreshRepo.Create(ctx, user.ID, now.Add(s.tokens.RefreshTTL()))
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: refresh.Token, ExpiresAt: refresh.ExpiresAt},
	}, nil
}

// Refresh exchanges a valid refresh token for a new pair and rotates it:
// the presented token is revoked, a fresh one takes its place.
// Missing, revoked and expired tokens are indistinguishable for the caller
func (s *SessionService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	// Postgres keeps timestamps with microsecond precision; truncate so the
	// round-tripped revocation time compares equal below
	now := time.Now().Truncate(time.Microsecond)

	token, err := s.refreshRepo.GetByToken(ctx, refresh)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return models.TokenPair{}, apperrors.ErrInvalidOrExpiredToken
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("error while loading refresh token. Err: %w", err)
	}

	if !token.IsValid(now) {
		return models.TokenPair{}, apperrors.ErrInvalidOrExpiredToken
	}

	// Rotation: revoke first. If someone else revoked the same token between
	// the read and this write, the stored revoked_at differs from ours and the
	// refresh loses the race
	revoked, err := s.refreshRepo.Revoke(ctx, refresh, now)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while revoking refresh token. Err: %w", err)
	}
	if revoked.RevokedAt == nil || !revoked.RevokedAt.Equal(now) {
		return models.TokenPair{}, apperrors.ErrInvalidOrExpiredToken
	}

	user, err := s.users.GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while resolving token owner. Err: %w", err)
	}

	return s.GrantPair(ctx, user)
}

// Logout revokes the user's valid refresh token if there is one.
// Having no token to revoke is success: logout is idempotent
func (s *SessionService) Logout(ctx context.Context, userID uuid.UUID) error {
	now := time.Now()

	token, err := s.refreshRepo.GetValidForUser(ctx, userID, now)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("error while looking up refresh token. Err: %w", err)
	}

	if _, err := s.refreshRepo.Revoke(ctx, token.Token, now); err != nil {
		return fmt.Errorf("error while revoking refresh token. Err: %w", err)
	}

	return nil
}
