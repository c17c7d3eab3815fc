package handlers

import (
	"context"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/auth"
	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/models"
	"github.com/aurum-chit/chitfund-backend/internal/services"
)

type ChitPlanService interface {
	Create(ctx context.Context, merchant *models.Merchant, in services.ChitPlanInput) (*models.ChitPlan, error)
	Update(ctx context.Context, merchantID, planID primitive.ObjectID, in services.ChitPlanPatch) (*models.ChitPlan, error)
	Delete(ctx context.Context, merchantID, planID primitive.ObjectID) error
	Subscribe(ctx context.Context, planID, userID primitive.ObjectID) error
	List(ctx context.Context, keyword string, page db.Page) ([]models.ChitPlan, db.Pagination, error)
	ListByMerchant(ctx context.Context, merchantID primitive.ObjectID, page db.Page) ([]models.ChitPlan, db.Pagination, error)
}

type ChitPlanHandler struct {
	service ChitPlanService
	logger  *zap.Logger
}

func NewChitPlanHandler(service ChitPlanService, logger *zap.Logger) *ChitPlanHandler {
	return &ChitPlanHandler{service: service, logger: logger}
}

func writePlans(w http.ResponseWriter, plans []models.ChitPlan, p db.Pagination) {
	if plans == nil {
		plans = []models.ChitPlan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plans": plans,
		"page":  p.Page,
		"pages": p.TotalPages,
		"total": p.TotalRecords,
	})
}

func (h *ChitPlanHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, p, err := h.service.List(r.Context(), r.URL.Query().Get("keyword"), pageFromQuery(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writePlans(w, plans, p)
}

func (h *ChitPlanHandler) ListByMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	plans, p, err := h.service.ListByMerchant(r.Context(), merchantID, pageFromQuery(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writePlans(w, plans, p)
}

func (h *ChitPlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := principalFrom(r).(auth.MerchantPrincipal)
	if !ok {
		writeError(w, h.logger, apperr.Auth("Not authorized as a merchant"))
		return
	}
	var req services.ChitPlanInput
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	plan, err := h.service.Create(r.Context(), caller.Merchant, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (h *ChitPlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	planID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req services.ChitPlanPatch
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	plan, err := h.service.Update(r.Context(), principalFrom(r).AccountID(), planID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *ChitPlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	planID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), principalFrom(r).AccountID(), planID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Chit plan removed")
}

func (h *ChitPlanHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	planID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.service.Subscribe(r.Context(), planID, principalFrom(r).AccountID()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Subscribed successfully")
}
