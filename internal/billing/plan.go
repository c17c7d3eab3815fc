// Package billing holds the merchant subscription rules: plan pricing, the
// plan-count gate, subscription window arithmetic and gateway signature
// verification. Nothing in here touches storage or the network.
package billing

import (
	"errors"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
)

type Plan string

const (
	PlanStandard Plan = "Standard"
	PlanPremium  Plan = "Premium"
)

// PremiumThreshold is the chit plan count from which only Premium may be selected.
const PremiumThreshold = 6

var (
	ErrInvalidPlan = &apperr.Error{Kind: apperr.ErrValidation, Message: "Invalid plan selected"}
	ErrPlanGate    = &apperr.Error{Kind: apperr.ErrValidation, Message: "upgrade required: you have utilized 6 or more chits, you must upgrade to Premium Plan"}
)

// prices are whole rupees per 30-day renewal.
var prices = map[Plan]int64{
	PlanStandard: 1500,
	PlanPremium:  5000,
}

func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if _, ok := prices[p]; !ok {
		return "", ErrInvalidPlan
	}
	return p, nil
}

// Price returns the renewal price of p in whole currency units.
func Price(p Plan) (int64, error) {
	price, ok := prices[p]
	if !ok {
		return 0, ErrInvalidPlan
	}
	return price, nil
}

// CanSelectPlan reports whether a merchant owning existingPlanCount chit plans
// may renew onto requested. It returns ErrPlanGate when the merchant must
// upgrade to Premium.
func CanSelectPlan(existingPlanCount int, requested Plan) error {
	if existingPlanCount < 0 {
		return apperr.Validation("plan count cannot be negative")
	}
	if _, ok := prices[requested]; !ok {
		return ErrInvalidPlan
	}
	if existingPlanCount >= PremiumThreshold && requested != PlanPremium {
		return ErrPlanGate
	}
	return nil
}

// IsPlanGate reports whether err was produced by the plan-count gate.
func IsPlanGate(err error) bool {
	return errors.Is(err, ErrPlanGate)
}
