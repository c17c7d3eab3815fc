package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/gateway"
	"github.com/aurum-chit/chitfund-backend/internal/models"
	"github.com/aurum-chit/chitfund-backend/internal/services"
)

type PaymentOrders interface {
	CreateSubscriptionOrder(ctx context.Context, rawAmount, currency string) (*gateway.Order, error)
	VerifySubscriptionPayment(orderID, paymentID, signature string) error
	InitiateChitPayment(ctx context.Context, userID primitive.ObjectID, rawPlanID, rawAmount string) (*services.ChitPaymentLink, error)
	ExecuteChitPayment(ctx context.Context, ret services.ChitPaymentReturn) (*models.Payment, error)
}

type PaymentHistory interface {
	ListForUser(ctx context.Context, userID primitive.ObjectID, page db.Page) ([]models.Payment, db.Pagination, error)
	ListForMerchant(ctx context.Context, merchantID primitive.ObjectID, page db.Page) ([]models.Payment, db.Pagination, error)
}

type PaymentHandler struct {
	orders  PaymentOrders
	history PaymentHistory
	logger  *zap.Logger
}

func NewPaymentHandler(orders PaymentOrders, history PaymentHistory, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{orders: orders, history: history, logger: logger}
}

type payRequest struct {
	ChitPlanID string      `json:"chitPlanId" validate:"required"`
	Amount     amountField `json:"amount" validate:"required"`
}

type subscriptionOrderRequest struct {
	Amount   amountField `json:"amount" validate:"required"`
	Currency string      `json:"currency"`
}

type subscriptionVerification struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

func (h *PaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	link, err := h.orders.InitiateChitPayment(r.Context(), principalFrom(r).AccountID(), req.ChitPlanID, string(req.Amount))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"approvalUrl": link.ApprovalURL})
}

// Success is the redirect gateway's return URL.
func (h *PaymentHandler) Success(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payment, err := h.orders.ExecuteChitPayment(r.Context(), services.ChitPaymentReturn{
		PaymentID:  q.Get("paymentId"),
		PayerID:    q.Get("PayerID"),
		UserID:     q.Get("userId"),
		ChitPlanID: q.Get("chitPlanId"),
		Amount:     q.Get("amount"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Payment Successful", "payment": payment})
}

func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, "Payment Cancelled")
}

func (h *PaymentHandler) CreateSubscriptionOrder(w http.ResponseWriter, r *http.Request) {
	var req subscriptionOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	order, err := h.orders.CreateSubscriptionOrder(r.Context(), string(req.Amount), req.Currency)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *PaymentHandler) VerifySubscriptionPayment(w http.ResponseWriter, r *http.Request) {
	var req subscriptionVerification
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	err := h.orders.VerifySubscriptionPayment(req.OrderID, req.PaymentID, req.Signature)
	if errors.Is(err, services.ErrInvalidSignature) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "failure", "message": "Invalid signature"})
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Payment verified"})
}

func writePayments(w http.ResponseWriter, payments []models.Payment, p db.Pagination) {
	if payments == nil {
		payments = []models.Payment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments, "pagination": p})
}

func (h *PaymentHandler) Mine(w http.ResponseWriter, r *http.Request) {
	payments, p, err := h.history.ListForUser(r.Context(), principalFrom(r).AccountID(), pageFromQuery(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writePayments(w, payments, p)
}

func (h *PaymentHandler) ForMerchant(w http.ResponseWriter, r *http.Request) {
	payments, p, err := h.history.ListForMerchant(r.Context(), principalFrom(r).AccountID(), pageFromQuery(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writePayments(w, payments, p)
}
