package billing

import "time"

// PeriodDays is the length of one paid subscription period.
const PeriodDays = 30

// Window is a merchant subscription interval. Start records the last
// renewal (or approval) time, not necessarily the beginning of paid time.
type Window struct {
	Start  time.Time
	Expiry time.Time
}

// ComputeRenewal extends a still-valid subscription from its current expiry,
// preserving unused time, and starts a fresh period from now otherwise.
// Repeated renewals stack.
func ComputeRenewal(now time.Time, currentExpiry *time.Time) Window {
	base := now
	if currentExpiry != nil && currentExpiry.After(now) {
		base = *currentExpiry
	}
	return Window{
		Start:  now,
		Expiry: base.AddDate(0, 0, PeriodDays),
	}
}

// InitialWindow is the period granted on a merchant's first approval.
func InitialWindow(now time.Time) Window {
	return Window{Start: now, Expiry: now.AddDate(0, 0, PeriodDays)}
}
