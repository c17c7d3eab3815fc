package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/auth"
	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/models"
	"github.com/aurum-chit/chitfund-backend/internal/services"
)

type MerchantService interface {
	List(ctx context.Context, f db.MerchantFilter) ([]models.Merchant, db.Pagination, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Merchant, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	UpdateProfile(ctx context.Context, caller auth.Principal, id primitive.ObjectID, in services.MerchantUpdate) (*models.Merchant, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.MerchantStatus) (*models.Merchant, error)
	RenewPlan(ctx context.Context, id primitive.ObjectID, rawPlan string) (*models.Merchant, error)
}

type RenewalOrders interface {
	CreateRenewalOrder(ctx context.Context, merchantID primitive.ObjectID, rawPlan string) (*services.RenewalOrder, error)
	VerifyRenewal(ctx context.Context, merchantID primitive.ObjectID, cb services.RenewalCallback) (*services.RenewalResult, error)
}

type MerchantHandler struct {
	merchants MerchantService
	orders    RenewalOrders
	logger    *zap.Logger
}

func NewMerchantHandler(merchants MerchantService, orders RenewalOrders, logger *zap.Logger) *MerchantHandler {
	return &MerchantHandler{merchants: merchants, orders: orders, logger: logger}
}

type planRequest struct {
	Plan string `json:"plan" validate:"required"`
}

type renewalVerification struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
	Plan      string `json:"plan" validate:"required"`
}

type statusRequest struct {
	Status models.MerchantStatus `json:"status" validate:"required"`
}

func (h *MerchantHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	merchants, pagination, err := h.merchants.List(r.Context(), db.MerchantFilter{
		Status:             models.MerchantStatus(q.Get("status")),
		SubscriptionStatus: models.SubscriptionStatus(q.Get("subscriptionStatus")),
		Keyword:            q.Get("keyword"),
		Sort:               q.Get("sort"),
		Page:               pageFromQuery(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if merchants == nil {
		merchants = []models.Merchant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"merchants": merchants, "pagination": pagination})
}

func (h *MerchantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	merchant, err := h.merchants.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, merchant)
}

func (h *MerchantHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req services.MerchantUpdate
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	merchant, err := h.merchants.UpdateProfile(r.Context(), principalFrom(r), id, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, merchant)
}

func (h *MerchantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.merchants.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Merchant removed")
}

func (h *MerchantHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	merchant, err := h.merchants.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, merchant)
}

// RenewPlan is the admin override that renews a merchant without a payment.
func (h *MerchantHandler) RenewPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req planRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	merchant, err := h.merchants.RenewPlan(r.Context(), id, req.Plan)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, merchant)
}

func (h *MerchantHandler) CreateRenewalOrder(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	order, err := h.orders.CreateRenewalOrder(r.Context(), principalFrom(r).AccountID(), req.Plan)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *MerchantHandler) VerifyRenewal(w http.ResponseWriter, r *http.Request) {
	var req renewalVerification
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.orders.VerifyRenewal(r.Context(), principalFrom(r).AccountID(), services.RenewalCallback{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Plan:      req.Plan,
	})
	if errors.Is(err, services.ErrInvalidSignature) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid Signature"})
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "merchant": res.Merchant})
}
