package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nvoronin/authsession/internal/handlers/middleware"
	"github.com/nvoronin/authsession/internal/logger"
	"github.com/nvoronin/authsession/internal/models"
)

type authService interface {
	Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	GrantPair(ctx context.Context, user models.User) (models.TokenPair, error)
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
	GetRefreshString(r *http.Request) (string, error)
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)
}

type userService interface {
	CreateUser(ctx context.Context, email string, password string, role string) (models.User, error)
}

// chain wraps the handler with middlewares. The first one is the outermost.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func NewRouter(auth authService, users userService, logger logger.Logger) http.Handler {
	mux := http.NewServeMux()

	withAuth := middleware.AuthMiddleware(auth)

	mux.Handle("POST /api/auth/register", handleRegister(users, auth, logger))
	mux.Handle("POST /api/auth/login", handleLogin(auth, logger))
	mux.Handle("POST /api/auth/refresh", handleTokenRefresh(auth, logger))
	mux.Handle("POST /api/auth/logout", chain(handleLogout(auth, logger), withAuth))
	mux.Handle("GET /api/auth/me", chain(handleUserMe(), withAuth))

	return chain(mux, middleware.LoggerMiddleware(logger))
}
