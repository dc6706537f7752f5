package coupon

import "time"

// Result is the outcome of validating a coupon at a point in time.
type Result struct {
	Valid  bool
	Reason string
}

// Validate decides whether c can be redeemed at now. Expiry is reported
// before exhaustion.
func Validate(c Coupon, now time.Time) Result {
	if !c.ValidUntil.After(now) {
		return Result{Reason: ReasonExpired}
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return Result{Reason: ReasonUsageLimitReached}
	}
	return Result{Valid: true}
}

// Err maps a rejected result to its sentinel error.
func (r Result) Err() error {
	switch {
	case r.Valid:
		return nil
	case r.Reason == ReasonExpired:
		return ErrExpired
	default:
		return ErrUsageLimitReached
	}
}
