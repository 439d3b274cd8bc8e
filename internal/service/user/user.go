package user

import (
	"context"
	"fmt"

	"github.com/nvoronin/authsession/internal/models"
	"github.com/nvoronin/authsession/internal/repository"
	"github.com/nvoronin/authsession/internal/service/auth"
)

// UserService owns user registration.
// Session handling lives in service/auth, this package only creates accounts
type UserService struct {
	hasher   auth.PasswordHasher
	userRepo repository.UserRepo
}

func NewService(hasher auth.PasswordHasher, userRepo repository.UserRepo) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	return &UserService{
		hasher:   hasher,
		userRepo: userRepo,
	}
}

func (s *UserService) CreateUser(ctx context.Context, email string, password string, role string) (models.User, error) {
	var user models.User

	if role == "" {
		role = models.RoleUser
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.userRepo.CreateUser(ctx, email, hash, role)
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}
