package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nvoronin/authsession/internal/apperrors"
	"github.com/nvoronin/authsession/internal/handlers/render"
	"github.com/nvoronin/authsession/internal/handlers/userctx"
	"github.com/nvoronin/authsession/internal/logger"
)

// Token pair as returned to API clients
type tokenPairResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       uuid.UUID `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func handleRegister(users userService, auth authService, logger logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role" validate:"omitempty,oneof=user admin"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := users.CreateUser(r.Context(), data.Email, data.Password, data.Role)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			default:
				logger.Error("Register failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		pair, err := auth.GrantPair(r.Context(), user)
		if err != nil {
			logger.Error("Token pair not granted on register", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		auth.SetTokenPairToResponse(w, pair)
		render.JSON(w, tokenPairResponse{
			AccessToken:  pair.Access.Value,
			RefreshToken: pair.Refresh.Value,
			UserID:       user.ID,
			ExpiresAt:    pair.Access.ExpiresAt,
		})
	})
}

func handleLogin(auth authService, logger logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := auth.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				// One message for every failure mode, nothing to enumerate
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			default:
				logger.Error("Login failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		auth.SetTokenPairToResponse(w, pair)
		render.JSON(w, tokenPairResponse{
			AccessToken:  pair.Access.Value,
			RefreshToken: pair.Refresh.Value,
			UserID:       user.ID,
			ExpiresAt:    pair.Access.ExpiresAt,
		})
	})
}

func handleTokenRefresh(auth authService, logger logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refresh_token"`
	}
	type response struct {
		AccessToken  string    `json:"access_token"`
		RefreshToken string    `json:"refresh_token"`
		ExpiresAt    time.Time `json:"expires_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Cookie first, JSON body as fallback for clients without a cookie jar
		refresh, err := auth.GetRefreshString(r)
		if err != nil {
			var req request
			if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr == nil {
				refresh = req.RefreshToken
			}
		}
		if refresh == "" {
			render.ServiceError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
			return
		}

		pair, err := auth.Refresh(r.Context(), refresh)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidOrExpiredToken):
				render.ServiceError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
			default:
				logger.Error("Refresh failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		auth.SetTokenPairToResponse(w, pair)
		render.JSON(w, response{
			AccessToken:  pair.Access.Value,
			RefreshToken: pair.Refresh.Value,
			ExpiresAt:    pair.Access.ExpiresAt,
		})
	})
}

func handleLogout(auth authService, logger logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Auth middleware has run already, user is always present
		user, _ := userctx.FromContext(r.Context())

		if err := auth.Logout(r.Context(), user.ID); err != nil {
			logger.Error("Logout failed", "error", err, "user_id", user.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Message: "Logged out successfully"})
	})
}

func handleUserMe() http.Handler {
	type response struct {
		ID    uuid.UUID `json:"id"`
		Email string    `json:"email"`
		Role  string    `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{ID: user.ID, Email: user.Email, Role: user.Role})
	})
}
