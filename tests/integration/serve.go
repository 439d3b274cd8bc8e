package integration

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/nvoronin/authsession/internal/handlers"
	"github.com/nvoronin/authsession/internal/logger"
	"github.com/nvoronin/authsession/internal/repository/postgres"
	"github.com/nvoronin/authsession/internal/service/auth"
	"github.com/nvoronin/authsession/internal/service/user"
	"github.com/nvoronin/authsession/internal/testutil"
)

type Services struct {
	AuthService *auth.SessionService
	UserService *user.UserService
}

// Create db transaction and run the server with that connection (one
// connection cause one transaction). Rolled back when fn returns, so tests
// never see each other's rows
func RunTx(dbpool *pgxpool.Pool, t *testing.T, fn func(srvURL string, services Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		// Initialize repositories
		userRepo := &postgres.UserRepo{DB: tx}
		refreshRepo := &postgres.RefreshTokenRepo{DB: tx}

		// Initialize services
		tokenManager, err := auth.NewTokenManager(auth.TokenConfig{
			SecretKey:  "test-secret",
			RefreshTTL: 24 * time.Hour,
		})
		require.NoError(t, err, "token manager should be created without errors")

		as, err := auth.NewService(auth.Config{}, tokenManager, userRepo, refreshRepo)
		require.NoError(t, err, "auth service starting error")

		us := user.NewService(auth.DefaultHasher, userRepo)

		router := handlers.NewRouter(as, us, logger.NewNoOpLogger())

		// Run http server with the router in transaction
		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(srv.URL, Services{
			AuthService: as,
			UserService: us,
		})
	})
}
