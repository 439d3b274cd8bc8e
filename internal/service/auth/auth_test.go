package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/nvoronin/authsession/internal/apperrors"
	"github.com/nvoronin/authsession/internal/models"
	"github.com/nvoronin/authsession/internal/repository/postgres"
	"github.com/nvoronin/authsession/internal/testutil"
)

func Test_SessionService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Begin new db transaction and set up a SessionService with a registered user
	// Rollback transaction when test stops
	withTx := func(dbpool *pgxpool.Pool, tokenCfg TokenConfig, t *testing.T, fn func(s *SessionService, user models.User, refreshRepo *postgres.RefreshTokenRepo)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			userRepo := &postgres.UserRepo{DB: tx}
			refreshRepo := &postgres.RefreshTokenRepo{DB: tx}

			if tokenCfg.SecretKey == "" {
				tokenCfg.SecretKey = "test-secret-key"
			}
			tokens, err := NewTokenManager(tokenCfg)
			require.NoError(t, err, "token manager should be created without errors")

			s, err := NewService(Config{}, tokens, userRepo, refreshRepo)
			require.NoError(t, err, "session service couldn't be started")

			hash, err := DefaultHasher.Hash("pwd")
			require.NoError(t, err)
			user, err := userRepo.CreateUser(t.Context(), "nv@example.com", hash, models.RoleUser)
			require.NoError(t, err, "test user should be created")

			fn(s, user, refreshRepo)
		})
	}

	t.Run("new service defaults", func(t *testing.T) {
		tokens, err := NewTokenManager(TokenConfig{SecretKey: "test-secret-key"})
		require.NoError(t, err)

		s, err := NewService(Config{}, tokens, fakeUserLookup{}, fakeRefreshRepo{})
		require.NoError(t, err)

		require.Equal(t, defaultAccessHeaderName, s.accessHeaderName, "default access header name should be set")
		require.Equal(t, defaultAccessAuthScheme, s.accessAuthScheme, "default access auth scheme should be set")
		require.Equal(t, defaultRefreshCookieName, s.refreshCookieName, "default refresh cookie name should be set")
		require.Equal(t, BcryptHasher{}, s.hasher, "default hasher should be BcryptHasher")
	})

	t.Run("new service rejects nil deps", func(t *testing.T) {
		_, err := NewService(Config{}, nil, fakeUserLookup{}, fakeRefreshRepo{})
		require.Error(t, err)

		tokens, err := NewTokenManager(TokenConfig{SecretKey: "test-secret-key"})
		require.NoError(t, err)
		_, err = NewService(Config{}, tokens, nil, nil)
		require.Error(t, err)
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("valid credentials ok", func(t *testing.T) {
			withTx(pg.Pool, TokenConfig{}, t, func(s *SessionService, user models.User, _ *postgres.RefreshTokenRepo) {
				_, pair, err := s.Login(t.Context(), "nv@example.com", "pwd")

				require.NoError(t, err)
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")

				claims, err := s.tokens.ParseAccess(pair.Access.Value)
				require.NoError(t, err, "issued access token should verify against the same key")
				require.Equal(t, user.ID, claims.UserID)
				require.Equal(t, user.Email, claims.Subject)
				require.Equal(t, user.Role, claims.Role)
			})
		})

		tests := []struct {
			name     string
			email    string
			password string
		}{
			{"wrong password", "nv@example.com", "wrong"},
			{"unknown email", "ghost@example.com", "pwd"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withTx(pg.Pool, TokenConfig{}, t, func(s *SessionService, _ models.User, _ *postgres.RefreshTokenRepo) {
					_, _, err := s.Login(t.Context(), tt.email, tt.password)

					require.Error(t, err)
					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials, "both failure modes must look identical")
				})
			})
		}
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("rotates the pair", func(t *testing.T) {
			withTx(pg.Pool, TokenConfig{}, t, func(s *SessionService, _ models.User, _ *postgres.RefreshTokenRepo) {
				_, initial, err := s.Login(t.Context(), "nv@example.com", "pwd")
				require.NoError(t, err)

				// jti differs even within the same second, tokens never repeat
				next, err := s.Refresh(t.Context(), initial.Refresh.Value)

				require.NoError(t, err)
				require.NotEqual(t, initial.Access.Value, next.Access.Value, "new access token expected")
				require.NotEqual(t, initial.Refresh.Value, next.Refresh.Value, "refresh token must rotate on use")
			})
		})

		t.Run("used token can not be replayed", func(t *testing.T) {
			withTx(pg.Pool, TokenConfig{}, t, func(s *SessionService, _ models.User, _ *postgres.RefreshTokenRepo) {
				_, initial, err := s.Login(t.Context(), "nv@example.com", "pwd")
				require.NoError(t, err)

				_, err = s.Refresh(t.Context(), initial.Refresh.Value)
				require.NoError(t, err)

				_, err = s.Refresh(t.Context(), initial.Refresh.Value)

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
			})
		})

		t.Run("unknown token rejected", func(t *testing.T) {
			withTx(pg.Pool, TokenConfig{}, t, func(s *SessionService, _ models.User, _ *postgres.RefreshTokenRepo) {
				_, err := s.Refresh(t.Context(), "never-issued")

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
			})
		})

		t.Run("expired token rejected", func(t *testing.T) {
			withTx(pg.Pool, TokenConfig{RefreshTTL: -time.Hour}, t, func(s *SessionService, _ models.User, _ *postgres.RefreshTokenRepo) {
				_, initial, err := s.Login(t.Context(), "nv@example.com", "pwd")
				require.NoError(t, err)

				_, err = s.Refresh(t.Context(), initial.Refresh.Value)

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken, "expired must be indistinguishable from missing")
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		t.Run("revokes the valid token", func(t *testing.T) {
			withTx(pg.Pool, TokenConfig{}, t, func(s *SessionService, user models.User, _ *postgres.RefreshTokenRepo) {
				_, pair, err := s.Login(t.Context(), "nv@example.com", "pwd")
				require.NoError(t, err)

				err = s.Logout(t.Context(), user.ID)
				require.NoError(t, err)

				_, err = s.Refresh(t.Context(), pair.Refresh.Value)
				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken, "revoked token must not refresh anymore")
			})
		})

		t.Run("no token is still success", func(t *testing.T) {
			withTx(pg.Pool, TokenConfig{}, t, func(s *SessionService, user models.User, _ *postgres.RefreshTokenRepo) {
				err := s.Logout(t.Context(), user.ID)

				require.NoError(t, err, "logout without a session must succeed")
			})
		})

		t.Run("logout twice ok", func(t *testing.T) {
			withTx(pg.Pool, TokenConfig{}, t, func(s *SessionService, user models.User, _ *postgres.RefreshTokenRepo) {
				_, _, err := s.Login(t.Context(), "nv@example.com", "pwd")
				require.NoError(t, err)

				require.NoError(t, s.Logout(t.Context(), user.ID))
				require.NoError(t, s.Logout(t.Context(), user.ID), "repeated logout must stay a no-op")
			})
		})
	})

	t.Run("concurrent sessions", func(t *testing.T) {
		t.Run("two logins coexist, latest wins on lookup", func(t *testing.T) {
			withTx(pg.Pool, TokenConfig{}, t, func(s *SessionService, user models.User, refreshRepo *postgres.RefreshTokenRepo) {
				_, first, err := s.Login(t.Context(), "nv@example.com", "pwd")
				require.NoError(t, err)
				_, second, err := s.Login(t.Context(), "nv@example.com", "pwd")
				require.NoError(t, err)
				require.NotEqual(t, first.Refresh.Value, second.Refresh.Value, "each login creates its own record")

				got, err := refreshRepo.GetValidForUser(t.Context(), user.ID, time.Now())

				require.NoError(t, err)
				require.Equal(t, second.Refresh.Value, got.Token, "the most recently created token should win the tie-break")

				// Both tokens stay usable until revoked or expired
				_, err = s.Refresh(t.Context(), first.Refresh.Value)
				require.NoError(t, err, "older session should still refresh")
			})
		})
	})
}

// Minimal stand-ins for constructor tests that never reach the database

type fakeUserLookup struct{}

func (fakeUserLookup) GetUserByID(_ context.Context, _ uuid.UUID) (models.User, error) {
	return models.User{}, apperrors.ErrUserNotFound
}

func (fakeUserLookup) GetUserByEmail(_ context.Context, _ string) (models.User, error) {
	return models.User{}, apperrors.ErrUserNotFound
}

type fakeRefreshRepo struct{}

func (fakeRefreshRepo) Create(_ context.Context, _ uuid.UUID, _ time.Time) (models.RefreshToken, error) {
	return models.RefreshToken{}, apperrors.ErrRefreshTokenNotFound
}

func (fakeRefreshRepo) GetByToken(_ context.Context, _ string) (models.RefreshToken, error) {
	return models.RefreshToken{}, apperrors.ErrRefreshTokenNotFound
}

func (fakeRefreshRepo) GetValidForUser(_ context.Context, _ uuid.UUID, _ time.Time) (models.RefreshToken, error) {
	return models.RefreshToken{}, apperrors.ErrRefreshTokenNotFound
}

func (fakeRefreshRepo) Revoke(_ context.Context, _ string, _ time.Time) (models.RefreshToken, error) {
	return models.RefreshToken{}, apperrors.ErrRefreshTokenNotFound
}

func (fakeRefreshRepo) DeleteStale(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
