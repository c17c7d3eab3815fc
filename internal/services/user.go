package services

import (
	"context"

	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// UserList returns end users only; admins are never listed.
func (s *UserService) UserList(ctx context.Context, page db.Page) ([]models.User, db.Pagination, error) {
	return s.users.ListByRole(ctx, models.RoleUser, page)
}
