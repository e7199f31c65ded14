package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chatcore/internal/domain"
	"chatcore/internal/security"
)

// AuthService handles registration and login.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher
	rt     Runtime
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher, rt Runtime) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
		rt:     rt.withDefaults(),
	}
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	Role        domain.Role
	PhoneNumber *string
}

type LoginInput struct {
	Username string
	Password string
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *domain.User `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("username, email and password are required: %w", domain.ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = domain.RoleGuest
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", in.Role, domain.ErrInvalidInput)
	}

	// Check username uniqueness
	if err := s.ensureFree(ctx, "username", func(ctx context.Context) (*domain.User, error) {
		return s.users.GetByUsername(ctx, in.Username)
	}); err != nil {
		return nil, err
	}

	// Check email uniqueness
	if err := s.ensureFree(ctx, "email", func(ctx context.Context) (*domain.User, error) {
		return s.users.GetByEmail(ctx, in.Email)
	}); err != nil {
		return nil, err
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:             uuid.New(),
		Username:       in.Username,
		Email:          in.Email,
		HashedPassword: hashed,
		Role:           in.Role,
		PhoneNumber:    in.PhoneNumber,
		CreatedAt:      s.rt.now(),
	}
	if err := writeStore(ctx, s.rt, "users.create", func(ctx context.Context) error {
		return s.users.Create(ctx, user)
	}); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	user, err := readStore(ctx, s.rt, "users.by_username", func(ctx context.Context) (*domain.User, error) {
		return s.users.GetByUsername(ctx, in.Username)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("incorrect username or password: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		return nil, fmt.Errorf("incorrect username or password: %w", domain.ErrUnauthorized)
	}

	token, err := s.tokens.CreateForUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}, nil
}

func (s *AuthService) ensureFree(ctx context.Context, field string, lookup func(context.Context) (*domain.User, error)) error {
	_, err := readStore(ctx, s.rt, "users.by_"+field, lookup)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check %s: %w", field, err)
	}
	return fmt.Errorf("%s already registered: %w", field, domain.ErrConflict)
}
