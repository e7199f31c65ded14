package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

// UserService provides user-related operations.
type UserService struct {
	users domain.UserRepository
	rt    Runtime
}

func NewUserService(users domain.UserRepository, rt Runtime) *UserService {
	return &UserService{users: users, rt: rt.withDefaults()}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return readStore(ctx, s.rt, "users.get", func(ctx context.Context) (*domain.User, error) {
		return s.users.GetByID(ctx, id)
	})
}

// DeleteAccount removes the principal with everything they sent or
// received. Either all of it is gone afterwards or none of it is.
func (s *UserService) DeleteAccount(ctx context.Context, principal *domain.User) error {
	if principal == nil {
		return domain.ErrUnauthorized
	}
	err := writeStore(ctx, s.rt, "users.delete", func(ctx context.Context) error {
		return s.users.DeleteCascade(ctx, principal.ID)
	})
	if err != nil {
		return fmt.Errorf("delete account %s: %w", principal.ID, err)
	}
	s.rt.Logger.Info("account deleted", "user", principal.ID)
	return nil
}
