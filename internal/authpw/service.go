// Package authpw provides email/password credential handling.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"investiflow/api/internal/store"
	"investiflow/api/internal/util"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	InsertUser(ctx context.Context, user store.User) (store.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
}

// Service provides email/password authentication
type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// RegisterRequest contains sign-up parameters
type RegisterRequest struct {
	Email         string
	Password      string
	FullName      string
	PhoneNumber   *string
	University    *string
	ResearchGroup *string
	Career        *string
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" || strings.TrimSpace(req.FullName) == "" {
		return store.User{}, errors.New("email, password, and full name are required")
	}
	if !strings.Contains(email, "@") {
		return store.User{}, errors.New("invalid email address")
	}
	if len(req.Password) < 8 {
		return store.User{}, ErrWeakPassword
	}

	taken, err := s.store.EmailTaken(ctx, email)
	if err != nil {
		return store.User{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return store.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.InsertUser(ctx, store.User{
		ID:            util.NewID("usr"),
		Email:         email,
		FullName:      strings.TrimSpace(req.FullName),
		PasswordHash:  string(hash),
		PhoneNumber:   req.PhoneNumber,
		University:    req.University,
		ResearchGroup: req.ResearchGroup,
		Career:        req.Career,
		IsActive:      true,
	})
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate checks credentials and returns the matching user. Lookup and
// comparison failures collapse into ErrInvalidCredentials so responses do not
// reveal which emails exist.
func (s *Service) Authenticate(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return store.User{}, ErrAccountDisabled
	}
	return user, nil
}

// ChangePassword verifies the current password before writing the new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
