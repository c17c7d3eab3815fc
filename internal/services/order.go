package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/billing"
	"github.com/aurum-chit/chitfund-backend/internal/events"
	"github.com/aurum-chit/chitfund-backend/internal/gateway"
	"github.com/aurum-chit/chitfund-backend/internal/idempotency"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

const (
	renewalCurrency     = "INR"
	chitPaymentCurrency = "USD"
)

var (
	ErrInvalidSignature = &apperr.Error{Kind: apperr.ErrAuth, Message: "Invalid Signature"}
	// ErrOrderMismatch rejects a signed payment whose order was opened for
	// another plan, price or merchant.
	ErrOrderMismatch = &apperr.Error{Kind: apperr.ErrValidation, Message: "Payment does not match the renewal order"}
)

// Order notes written on renewal orders and checked on verification.
const (
	noteMerchantID = "merchantId"
	notePlan       = "plan"
)

// OrderService drives both payment flows: merchant subscription orders
// through the order gateway, and chit plan instalments through the redirect
// gateway.
type OrderService struct {
	orders        OrderGateway
	redirects     RedirectGateway
	merchants     *MerchantService
	payments      *PaymentService
	plans         ChitPlanStore
	merchantStore MerchantStore
	claims        idempotency.Store
	events        events.Publisher
	keySecret     string
	publicBaseURL string
	logger        *zap.Logger
	now           func() time.Time
}

type OrderServiceConfig struct {
	// KeySecret signs order gateway callbacks.
	KeySecret string
	// PublicBaseURL is where the redirect gateway returns the payer.
	PublicBaseURL string
}

func NewOrderService(cfg OrderServiceConfig, orders OrderGateway, redirects RedirectGateway, merchants *MerchantService, payments *PaymentService, plans ChitPlanStore, merchantStore MerchantStore, claims idempotency.Store, publisher events.Publisher, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders:        orders,
		redirects:     redirects,
		merchants:     merchants,
		payments:      payments,
		plans:         plans,
		merchantStore: merchantStore,
		claims:        claims,
		events:        publisher,
		keySecret:     cfg.KeySecret,
		publicBaseURL: cfg.PublicBaseURL,
		logger:        logger,
		now:           time.Now,
	}
}

type RenewalOrder struct {
	Order *gateway.Order `json:"order"`
	KeyID string         `json:"keyId"`
}

// CreateRenewalOrder prices the requested plan and opens an order for it.
// The plan gate is checked first so a blocked merchant never reaches the
// gateway.
func (s *OrderService) CreateRenewalOrder(ctx context.Context, merchantID primitive.ObjectID, rawPlan string) (*RenewalOrder, error) {
	plan, err := billing.ParsePlan(rawPlan)
	if err != nil {
		return nil, err
	}
	count, err := s.plans.CountByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if err := billing.CanSelectPlan(count, plan); err != nil {
		return nil, err
	}
	price, err := billing.Price(plan)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   billing.ToMinorUnits(decimal.NewFromInt(price)),
		Currency: renewalCurrency,
		Receipt:  fmt.Sprintf("rnw_%d", s.now().UnixMilli()),
		Notes: gateway.Notes{
			noteMerchantID: merchantID.Hex(),
			notePlan:       string(plan),
		},
	})
	if err != nil {
		return nil, err
	}
	return &RenewalOrder{Order: order, KeyID: s.orders.KeyID()}, nil
}

// CreateSubscriptionOrder opens an order for a free-form amount such as
// "₹1500/mo".
func (s *OrderService) CreateSubscriptionOrder(ctx context.Context, rawAmount, currency string) (*gateway.Order, error) {
	amount, err := billing.ParseAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	if currency == "" {
		currency = renewalCurrency
	}
	return s.orders.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   billing.ToMinorUnits(amount),
		Currency: currency,
		Receipt:  fmt.Sprintf("receipt_%d", s.now().UnixMilli()),
	})
}

func (s *OrderService) VerifySubscriptionPayment(orderID, paymentID, signature string) error {
	if !billing.VerifySignature(orderID, paymentID, signature, s.keySecret) {
		return ErrInvalidSignature
	}
	return nil
}

type RenewalCallback struct {
	OrderID   string
	PaymentID string
	Signature string
	Plan      string
}

type RenewalResult struct {
	Merchant *models.Merchant
	// Duplicate is set when this payment had already been applied.
	Duplicate bool
}

// VerifyRenewal authenticates an order gateway callback and, for the first
// delivery of a payment id, extends the merchant's subscription. The plan
// applied is the one the paid order was opened for.
func (s *OrderService) VerifyRenewal(ctx context.Context, merchantID primitive.ObjectID, cb RenewalCallback) (*RenewalResult, error) {
	if !billing.VerifySignature(cb.OrderID, cb.PaymentID, cb.Signature, s.keySecret) {
		s.logger.Warn("renewal callback with invalid signature",
			zap.String("merchantId", merchantID.Hex()),
			zap.String("orderId", cb.OrderID),
		)
		return nil, ErrInvalidSignature
	}

	plan, err := billing.ParsePlan(cb.Plan)
	if err != nil {
		return nil, err
	}
	count, err := s.plans.CountByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if err := billing.CanSelectPlan(count, plan); err != nil {
		return nil, err
	}
	if err := s.checkRenewalOrder(ctx, merchantID, plan, cb.OrderID); err != nil {
		return nil, err
	}

	key := idempotency.Key("renewal", cb.PaymentID)
	claimed, err := s.claims.Claim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to claim renewal callback: %w", err)
	}
	if !claimed {
		return s.duplicateRenewal(ctx, merchantID, cb.PaymentID)
	}

	merchant, err := s.merchants.ApplyRenewal(ctx, merchantID, plan, cb.PaymentID)
	if errors.Is(err, errRenewalApplied) {
		// The claim has expired but the merchant already holds this payment.
		return s.duplicateRenewal(ctx, merchantID, cb.PaymentID)
	}
	if err != nil {
		s.compensateRenewal(ctx, key, merchantID, plan, cb, err)
		return nil, err
	}
	return &RenewalResult{Merchant: s.merchants.present(merchant)}, nil
}

func (s *OrderService) duplicateRenewal(ctx context.Context, merchantID primitive.ObjectID, paymentID string) (*RenewalResult, error) {
	s.logger.Info("duplicate renewal callback", zap.String("paymentId", paymentID))
	merchant, err := s.merchantStore.FindByID(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return &RenewalResult{Merchant: s.merchants.present(merchant), Duplicate: true}, nil
}

// checkRenewalOrder reads the order back from the gateway and requires it to
// have been opened by this merchant for this plan at this plan's price. The
// callback signature covers only the order and payment ids.
func (s *OrderService) checkRenewalOrder(ctx context.Context, merchantID primitive.ObjectID, plan billing.Plan, orderID string) error {
	order, err := s.orders.FetchOrder(ctx, orderID)
	if err != nil {
		return err
	}
	price, err := billing.Price(plan)
	if err != nil {
		return err
	}
	want := billing.ToMinorUnits(decimal.NewFromInt(price))
	if order.Amount != want || order.Currency != renewalCurrency ||
		order.Notes[notePlan] != string(plan) || order.Notes[noteMerchantID] != merchantID.Hex() {
		s.logger.Warn("renewal callback does not match its order",
			zap.String("merchantId", merchantID.Hex()),
			zap.String("orderId", orderID),
			zap.String("plan", string(plan)),
			zap.Int64("orderAmount", order.Amount),
			zap.String("orderPlan", order.Notes[notePlan]),
		)
		return ErrOrderMismatch
	}
	return nil
}

// compensateRenewal runs when a verified payment could not be applied: the
// claim is released so the callback can be retried, and the payment is
// queued for reconciliation.
func (s *OrderService) compensateRenewal(ctx context.Context, key string, merchantID primitive.ObjectID, plan billing.Plan, cb RenewalCallback, cause error) {
	if err := s.claims.Release(ctx, key); err != nil {
		s.logger.Error("failed to release renewal claim", zap.String("key", key), zap.Error(err))
	}
	price, _ := billing.Price(plan)
	err := s.events.PublishReconciliation(ctx, events.Reconciliation{
		Kind:       events.KindRenewalNotApplied,
		Reason:     cause.Error(),
		MerchantID: merchantID.Hex(),
		OrderID:    cb.OrderID,
		PaymentID:  cb.PaymentID,
		Plan:       string(plan),
		Amount:     float64(price),
	})
	if err != nil {
		s.logger.Error("failed to queue renewal for reconciliation",
			zap.String("paymentId", cb.PaymentID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

type ChitPaymentLink struct {
	PaymentID   string `json:"paymentId"`
	ApprovalURL string `json:"approvalUrl"`
}

// InitiateChitPayment starts an instalment payment to the merchant that
// owns the chit plan and returns the payer approval URL.
func (s *OrderService) InitiateChitPayment(ctx context.Context, userID primitive.ObjectID, rawPlanID, rawAmount string) (*ChitPaymentLink, error) {
	planID, err := primitive.ObjectIDFromHex(rawPlanID)
	if err != nil {
		return nil, apperr.Validation("Invalid chit plan id")
	}
	amount, err := billing.ParseAmount(rawAmount)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	merchant, err := s.merchantStore.FindByID(ctx, plan.Merchant)
	if err != nil {
		return nil, err
	}
	if merchant.BankDetails.VerificationStatus != models.BankVerified {
		return nil, apperr.Forbidden("Merchant is not verified to receive payments. Verification Status: %s", firstNonEmpty(string(merchant.BankDetails.VerificationStatus), string(models.BankPending)))
	}
	if merchant.PaypalEmail == "" {
		return nil, apperr.Validation("Merchant does not have a PayPal account linked")
	}

	total := amount.StringFixed(2)
	returnQuery := url.Values{}
	returnQuery.Set("userId", userID.Hex())
	returnQuery.Set("chitPlanId", plan.ID.Hex())
	returnQuery.Set("amount", total)

	created, err := s.redirects.CreatePayment(ctx, gateway.ChitPaymentRequest{
		ChitPlanID: plan.ID.Hex(),
		PlanName:   plan.PlanName,
		PayeeEmail: merchant.PaypalEmail,
		Amount:     amount,
		Currency:   chitPaymentCurrency,
		ReturnURL:  s.publicBaseURL + "/api/payments/success?" + returnQuery.Encode(),
		CancelURL:  s.publicBaseURL + "/api/payments/cancel",
	})
	if err != nil {
		return nil, err
	}
	return &ChitPaymentLink{PaymentID: created.ID, ApprovalURL: created.ApprovalURL}, nil
}

// ChitPaymentReturn holds the query parameters of the redirect gateway's
// return URL. Every field is caller supplied.
type ChitPaymentReturn struct {
	PaymentID  string
	PayerID    string
	UserID     string
	ChitPlanID string
	Amount     string
}

// ExecuteChitPayment captures an approved payment and records it.
func (s *OrderService) ExecuteChitPayment(ctx context.Context, ret ChitPaymentReturn) (*models.Payment, error) {
	if ret.PaymentID == "" || ret.PayerID == "" {
		return nil, apperr.Validation("paymentId and PayerID are required")
	}
	userID, err := primitive.ObjectIDFromHex(ret.UserID)
	if err != nil {
		return nil, apperr.Validation("Invalid user id")
	}
	planID, err := primitive.ObjectIDFromHex(ret.ChitPlanID)
	if err != nil {
		return nil, apperr.Validation("Invalid chit plan id")
	}
	amount, err := billing.ParseAmount(ret.Amount)
	if err != nil {
		return nil, err
	}
	if _, err := s.plans.FindByID(ctx, planID); err != nil {
		return nil, err
	}

	details, err := s.redirects.ExecutePayment(ctx, ret.PaymentID, ret.PayerID, amount, chitPaymentCurrency)
	if err != nil {
		return nil, err
	}

	return s.payments.ApplyPaymentCompletion(ctx, Completion{
		ChitPlanID: planID,
		UserID:     userID,
		Amount:     amount,
		PaymentID:  ret.PaymentID,
		Details:    details,
	})
}
