package billing

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
)

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

var hundred = decimal.NewFromInt(100)

// ParseAmount reads a possibly decorated price such as "₹1500/mo" by dropping
// everything but digits and dots. The result must be positive.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := nonNumeric.ReplaceAllString(raw, "")
	if cleaned == "" {
		return decimal.Zero, apperr.Validation("invalid amount %q", raw)
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, apperr.Validation("invalid amount %q", raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, apperr.Validation("amount must be positive")
	}
	return amount, nil
}

// ToMinorUnits converts whole currency units to paisa/cents, rounding half
// away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
