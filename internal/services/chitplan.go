package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/db"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

type ChitPlanService struct {
	plans  ChitPlanStore
	logger *zap.Logger
	now    func() time.Time
}

func NewChitPlanService(plans ChitPlanStore, logger *zap.Logger) *ChitPlanService {
	return &ChitPlanService{plans: plans, logger: logger, now: time.Now}
}

type ChitPlanInput struct {
	PlanName       string  `json:"planName" validate:"required"`
	MonthlyAmount  float64 `json:"monthlyAmount" validate:"gt=0"`
	DurationMonths int     `json:"durationMonths" validate:"gt=0"`
	TotalAmount    float64 `json:"totalAmount" validate:"gte=0"`
	Description    string  `json:"description"`
}

// ChitPlanPatch updates a plan. Zero fields keep their stored value.
type ChitPlanPatch struct {
	PlanName       string  `json:"planName"`
	MonthlyAmount  float64 `json:"monthlyAmount" validate:"gte=0"`
	DurationMonths int     `json:"durationMonths" validate:"gte=0"`
	TotalAmount    float64 `json:"totalAmount" validate:"gte=0"`
	Description    string  `json:"description"`
}

// Create publishes a plan for merchant. Only merchants with verified bank
// details can take payments, so only they may publish.
func (s *ChitPlanService) Create(ctx context.Context, merchant *models.Merchant, in ChitPlanInput) (*models.ChitPlan, error) {
	if merchant.BankDetails.VerificationStatus != models.BankVerified {
		return nil, apperr.Forbidden("Bank details verification required to create chit plans.")
	}
	plan := &models.ChitPlan{
		Merchant:       merchant.ID,
		PlanName:       in.PlanName,
		MonthlyAmount:  in.MonthlyAmount,
		DurationMonths: in.DurationMonths,
		TotalAmount:    models.TotalAmount(in.MonthlyAmount, in.DurationMonths, in.TotalAmount),
		Description:    in.Description,
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}
	s.logger.Info("chit plan created", zap.String("chitPlanId", plan.ID.Hex()), zap.String("merchantId", merchant.ID.Hex()))
	return plan, nil
}

func (s *ChitPlanService) Update(ctx context.Context, merchantID, planID primitive.ObjectID, in ChitPlanPatch) (*models.ChitPlan, error) {
	plan, err := s.owned(ctx, merchantID, planID, "update")
	if err != nil {
		return nil, err
	}

	plan.PlanName = firstNonEmpty(in.PlanName, plan.PlanName)
	plan.Description = firstNonEmpty(in.Description, plan.Description)
	if in.MonthlyAmount > 0 {
		plan.MonthlyAmount = in.MonthlyAmount
	}
	if in.DurationMonths > 0 {
		plan.DurationMonths = in.DurationMonths
	}
	switch {
	case in.TotalAmount > 0:
		plan.TotalAmount = in.TotalAmount
	case in.MonthlyAmount > 0 || in.DurationMonths > 0:
		plan.TotalAmount = models.TotalAmount(plan.MonthlyAmount, plan.DurationMonths, 0)
	}

	if err := s.plans.Save(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *ChitPlanService) Delete(ctx context.Context, merchantID, planID primitive.ObjectID) error {
	if _, err := s.owned(ctx, merchantID, planID, "delete"); err != nil {
		return err
	}
	return s.plans.Delete(ctx, planID)
}

func (s *ChitPlanService) owned(ctx context.Context, merchantID, planID primitive.ObjectID, action string) (*models.ChitPlan, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Merchant != merchantID {
		return nil, apperr.Forbidden("Not authorized to %s this plan", action)
	}
	return plan, nil
}

// Subscribe enrolls userID once; a second attempt is rejected.
func (s *ChitPlanService) Subscribe(ctx context.Context, planID, userID primitive.ObjectID) error {
	added, err := s.plans.AddSubscriber(ctx, planID, models.Subscription{
		User:     userID,
		JoinedAt: s.now().UTC(),
		Status:   models.SubscriberActive,
	})
	if err != nil {
		return err
	}
	if !added {
		return apperr.Validation("Already subscribed")
	}
	return nil
}

func (s *ChitPlanService) List(ctx context.Context, keyword string, page db.Page) ([]models.ChitPlan, db.Pagination, error) {
	return s.plans.List(ctx, keyword, page)
}

func (s *ChitPlanService) ListByMerchant(ctx context.Context, merchantID primitive.ObjectID, page db.Page) ([]models.ChitPlan, db.Pagination, error) {
	return s.plans.ListByMerchant(ctx, merchantID, page)
}
