package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no active ticket matches the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrNotYetValid is returned before the ticket's validity window opens.
	ErrNotYetValid = errors.New("coupon not yet valid")
	// ErrExpired is returned after the ticket's validity window closed.
	ErrExpired = errors.New("coupon expired")
	// ErrLimitReached is returned when a ticket has exhausted its allowed uses.
	ErrLimitReached = errors.New("coupon usage limit reached")
)

// Ticket is a promotional coupon.
//
// UsageLimit of zero means unlimited. A nil ValidFrom or ValidUntil leaves
// that side of the window open.
type Ticket struct {
	ID              string
	Code            string
	DiscountPercent decimal.Decimal
	UsageLimit      int
	UsageCount      int
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	IsActive        bool
}

// Applied is a ticket accepted for a sale.
type Applied struct {
	TicketID        string
	Code            string
	DiscountPercent decimal.Decimal
}

// Finder looks tickets up by code. Implementations return ErrNotFound when
// no ticket carries the code.
type Finder interface {
	TicketByCode(ctx context.Context, code string) (*Ticket, error)
}

// NormalizeCode returns the canonical stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
