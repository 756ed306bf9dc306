package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Check reports whether t may be applied at now.
//
// Checks run in a fixed order so the first failing rule decides the error:
// inactive, not yet valid, expired, usage limit reached.
func Check(t *Ticket, now time.Time) error {
	if !t.IsActive {
		return ErrNotFound
	}
	if t.ValidFrom != nil && t.ValidFrom.After(now) {
		return ErrNotYetValid
	}
	if t.ValidUntil != nil && t.ValidUntil.Before(now) {
		return ErrExpired
	}
	if t.UsageLimit > 0 && t.UsageCount >= t.UsageLimit {
		return ErrLimitReached
	}
	return nil
}

// Validate looks the code up through f and checks it at now.
//
// The usage check here is advisory: it reads a counter that a concurrent sale
// may be about to bump. The conditional increment performed by the store at
// commit is what enforces the limit.
func Validate(ctx context.Context, f Finder, code string, now time.Time) (*Applied, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrNotFound
	}

	t, err := f.TicketByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if err := Check(t, now); err != nil {
		return nil, err
	}

	return &Applied{
		TicketID:        t.ID,
		Code:            t.Code,
		DiscountPercent: t.DiscountPercent,
	}, nil
}
