package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Login failed: unknown email or wrong password, deliberately not distinguished
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// Refresh failed: token not found, revoked or expired, deliberately not distinguished
	ErrInvalidOrExpiredToken = errors.New("refresh token invalid or expired")
)
