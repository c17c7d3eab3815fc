package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

type UserService interface {
	UserList(ctx context.Context, page db.Page) ([]models.User, db.Pagination, error)
}

type UserHandler struct {
	service UserService
	logger  *zap.Logger
}

func NewUserHandler(service UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, p, err := h.service.UserList(r.Context(), pageFromQuery(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"page":  p.Page,
		"pages": p.TotalPages,
		"total": p.TotalRecords,
	})
}
