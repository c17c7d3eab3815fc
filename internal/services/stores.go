package services

import (
	"context"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/gateway"
	"github.com/aurum-chit/chitfund-backend/internal/models"
	"github.com/aurum-chit/chitfund-backend/internal/notify"
)

// The interfaces below are satisfied by the repositories in internal/db and
// the clients in internal/gateway.

type MerchantStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Merchant, error)
	FindByEmail(ctx context.Context, email string) (*models.Merchant, error)
	Create(ctx context.Context, merchant *models.Merchant) error
	Save(ctx context.Context, merchant *models.Merchant) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, f db.MerchantFilter) ([]models.Merchant, db.Pagination, error)
}

type ChitPlanStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.ChitPlan, error)
	Create(ctx context.Context, plan *models.ChitPlan) error
	Save(ctx context.Context, plan *models.ChitPlan) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	CountByMerchant(ctx context.Context, merchantID primitive.ObjectID) (int, error)
	AddSubscriber(ctx context.Context, planID primitive.ObjectID, sub models.Subscription) (bool, error)
	ListByMerchant(ctx context.Context, merchantID primitive.ObjectID, page db.Page) ([]models.ChitPlan, db.Pagination, error)
	List(ctx context.Context, keyword string, page db.Page) ([]models.ChitPlan, db.Pagination, error)
}

type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID, page db.Page) ([]models.Payment, db.Pagination, error)
	ListByMerchant(ctx context.Context, merchantID primitive.ObjectID, page db.Page) ([]models.Payment, db.Pagination, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Save(ctx context.Context, user *models.User) error
	ListByRole(ctx context.Context, role string, page db.Page) ([]models.User, db.Pagination, error)
}

type VerificationStore interface {
	Replace(ctx context.Context, email, otp string) error
	Consume(ctx context.Context, email, otp string) (bool, error)
}

// OrderGateway creates provider-side orders for merchant subscriptions.
type OrderGateway interface {
	CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error)
	KeyID() string
}

// RedirectGateway takes chit plan instalments through an approve-then-execute flow.
type RedirectGateway interface {
	CreatePayment(ctx context.Context, req gateway.ChitPaymentRequest) (*gateway.CreatedPayment, error)
	ExecutePayment(ctx context.Context, paymentID, payerID string, amount decimal.Decimal, currency string) (map[string]any, error)
}

// Dispatcher sends mail without waiting for delivery.
type Dispatcher interface {
	Dispatch(msg notify.Message)
}

// FieldCipher protects bank account numbers at rest.
type FieldCipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(value string) (string, error)
}
