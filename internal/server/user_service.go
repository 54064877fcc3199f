package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/patchnotes/internal/config"
	"github.com/jonathan/patchnotes/internal/types"
)

// UserStore is the account side of the store.
type UserStore interface {
	CheckEmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, email, passwordHash string) (uuid.UUID, error)
	GetUser(ctx context.Context, id uuid.UUID) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	ToggleBookmark(ctx context.Context, userID uuid.UUID, b types.Bookmark) (*types.User, bool, error)
}

// UserService provides business logic for accounts and bookmarks.
type UserService struct {
	store          UserStore
	passwordConfig *config.PasswordConfig
}

// NewUserService creates a new UserService with the given dependencies
func NewUserService(store UserStore, passwordConfig *config.PasswordConfig) *UserService {
	return &UserService{
		store:          store,
		passwordConfig: passwordConfig,
	}
}

// normalizeEmail lower-cases and trims an address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. A taken email fails with types.EmailTakenError.
func (s *UserService) Register(ctx context.Context, req *types.RegisterRequest) (*types.User, error) {
	email := normalizeEmail(req.Email)

	exists, err := s.store.CheckEmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return nil, &types.EmailTakenError{Email: email}
	}

	passwordHash, err := s.passwordConfig.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	// CreateUser reports EmailTakenError itself when a concurrent registration wins.
	userID, err := s.store.CreateUser(ctx, email, passwordHash)
	if err != nil {
		var taken *types.EmailTakenError
		if errors.As(err, &taken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.Get(ctx, userID)
}

// Login checks credentials. Unknown email and wrong password fail identically.
func (s *UserService) Login(ctx context.Context, req *types.LoginRequest) (*types.User, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	if user == nil || !s.passwordConfig.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, &ErrInvalidCredentials{}
	}
	return user, nil
}

// Get returns the account for userID.
func (s *UserService) Get(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, &ErrUserNotFound{UserID: userID}
	}
	return user, nil
}

// ToggleBookmark adds or removes a bookmark and reports whether it is now set.
func (s *UserService) ToggleBookmark(ctx context.Context, userID uuid.UUID, b types.Bookmark) (*types.User, bool, error) {
	user, added, err := s.store.ToggleBookmark(ctx, userID, b)
	if err != nil {
		return nil, false, fmt.Errorf("failed to toggle bookmark: %w", err)
	}
	if user == nil {
		return nil, false, &ErrUserNotFound{UserID: userID}
	}
	return user, added, nil
}
