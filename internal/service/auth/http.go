package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nvoronin/authsession/internal/models"
)

// SetTokenPairToResponse writes the access token to the auth header and the
// refresh token to an http-only cookie
func (s *SessionService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	http.SetCookie(w, s.refreshCookie(pair.Refresh))
}

// SetTokenPairToRequest mirrors SetTokenPairToResponse for outgoing requests.
// Handy in tests and for clients built on net/http
func (s *SessionService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	r.AddCookie(s.refreshCookie(pair.Refresh))
}

// GetRefreshString extracts the refresh token from the request cookie,
// falling back is up to the handler
func (s *SessionService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", fmt.Errorf("refresh cookie not found: %w", err)
	}

	return cookie.Value, nil
}

// GetUserFromRequest authenticates a request by its bearer access token
func (s *SessionService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)

	value, found := strings.CutPrefix(header, s.accessAuthScheme+" ")
	if !found || value == "" {
		return models.User{}, fmt.Errorf("no %s token in %s header", s.accessAuthScheme, s.accessHeaderName)
	}

	claims, err := s.tokens.ParseAccess(value)
	if err != nil {
		return models.User{}, fmt.Errorf("access token rejected: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return models.User{}, fmt.Errorf("token owner not resolved: %w", err)
	}

	return user, nil
}

func (s *SessionService) refreshCookie(refresh models.IssuedToken) *http.Cookie {
	return &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    refresh.Value,
		Path:     "/",
		MaxAge:   int(time.Until(refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
