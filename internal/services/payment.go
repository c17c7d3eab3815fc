package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/events"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

type PaymentService struct {
	plans     ChitPlanStore
	merchants MerchantStore
	payments  PaymentStore
	events    events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewPaymentService(plans ChitPlanStore, merchants MerchantStore, payments PaymentStore, publisher events.Publisher, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		plans:     plans,
		merchants: merchants,
		payments:  payments,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Completion is a gateway-confirmed instalment on a chit plan.
type Completion struct {
	ChitPlanID primitive.ObjectID
	UserID     primitive.ObjectID
	Amount     decimal.Decimal
	PaymentID  string
	Details    map[string]any
}

// ApplyPaymentCompletion records the payment and enrolls the user on the
// chit plan. The merchant is taken from the plan, not from anything the
// gateway echoed back. Replays of the same gateway payment id return the
// stored record.
func (s *PaymentService) ApplyPaymentCompletion(ctx context.Context, c Completion) (*models.Payment, error) {
	plan, err := s.plans.FindByID(ctx, c.ChitPlanID)
	if err != nil {
		return nil, err
	}
	if _, err := s.merchants.FindByID(ctx, plan.Merchant); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payment, created, err := s.payments.Create(ctx, &models.Payment{
		User:           c.UserID,
		Merchant:       plan.Merchant,
		ChitPlan:       plan.ID,
		Amount:         c.Amount.InexactFloat64(),
		PaymentID:      c.PaymentID,
		Status:         models.PaymentCompleted,
		PaymentDate:    now,
		PaymentDetails: c.Details,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Info("duplicate payment completion", zap.String("paymentId", c.PaymentID))
	}

	added, err := s.plans.AddSubscriber(ctx, plan.ID, models.Subscription{
		User:     c.UserID,
		JoinedAt: now,
		Status:   models.SubscriberActive,
	})
	if err != nil {
		// The money has moved and the payment is stored; the enrolment is
		// handed to reconciliation rather than failing the callback.
		s.logger.Error("failed to enroll paying user",
			zap.String("paymentId", c.PaymentID),
			zap.String("chitPlanId", plan.ID.Hex()),
			zap.Error(err),
		)
		pubErr := s.events.PublishReconciliation(ctx, events.Reconciliation{
			Kind:       events.KindSubscriberNotRecorded,
			Reason:     err.Error(),
			MerchantID: plan.Merchant.Hex(),
			UserID:     c.UserID.Hex(),
			ChitPlanID: plan.ID.Hex(),
			PaymentID:  c.PaymentID,
			Amount:     payment.Amount,
		})
		if pubErr != nil {
			return nil, fmt.Errorf("enrolment failed and could not be queued for reconciliation: %w (publish: %v)", err, pubErr)
		}
		return payment, nil
	}
	if added {
		s.logger.Info("user enrolled on chit plan", zap.String("chitPlanId", plan.ID.Hex()), zap.String("userId", c.UserID.Hex()))
	}
	return payment, nil
}

func (s *PaymentService) ListForUser(ctx context.Context, userID primitive.ObjectID, page db.Page) ([]models.Payment, db.Pagination, error) {
	return s.payments.ListByUser(ctx, userID, page)
}

func (s *PaymentService) ListForMerchant(ctx context.Context, merchantID primitive.ObjectID, page db.Page) ([]models.Payment, db.Pagination, error) {
	return s.payments.ListByMerchant(ctx, merchantID, page)
}
