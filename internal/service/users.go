package service

import (
	"context"

	"github.com/StricklySoft/taskhub/pkg/auth"
	"github.com/StricklySoft/taskhub/pkg/models"
)

// Users serves user profiles.
type Users struct {
	guard *auth.Guard
	users UserStore
}

// NewUsers returns the user service.
func NewUsers(guard *auth.Guard, users UserStore) *Users {
	return &Users{guard: guard, users: users}
}

// Me returns the caller's user record, creating it on first use.
func (s *Users) Me(ctx context.Context) (models.User, error) {
	return s.guard.CurrentUser(ctx)
}

// Get returns any user. Admin only.
func (s *Users) Get(ctx context.Context, id int64) (models.User, error) {
	if _, err := s.guard.RequireAdmin(ctx); err != nil {
		return models.User{}, err
	}
	return s.users.Get(ctx, id)
}

// List returns a page of all users. Admin only.
func (s *Users) List(ctx context.Context, req models.PageRequest) (models.Page[models.User], error) {
	if _, err := s.guard.RequireAdmin(ctx); err != nil {
		return models.Page[models.User]{}, err
	}
	return s.users.List(ctx, req)
}
