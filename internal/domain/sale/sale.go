// Package sale implements sale creation and status transitions on top of the
// transactional retry executor.
package sale

import (
	"strings"
	"time"

	"github.com/xenking/pos-engine/internal/money"
)

// Status is the lifecycle state of a sale.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus parses a status name, ignoring case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// PaymentType is how a sale is paid.
type PaymentType string

const (
	PaymentMoney      PaymentType = "MONEY"
	PaymentPix        PaymentType = "PIX"
	PaymentCreditCard PaymentType = "CREDIT_CARD"
	PaymentDebitCard  PaymentType = "DEBIT_CARD"
)

// Valid reports whether p is a known payment type.
func (p PaymentType) Valid() bool {
	switch p {
	case PaymentMoney, PaymentPix, PaymentCreditCard, PaymentDebitCard:
		return true
	default:
		return false
	}
}

// Deferred reports whether payment is confirmed asynchronously, in which case
// the sale starts as PENDING.
func (p PaymentType) Deferred() bool {
	return p == PaymentPix
}

// ParsePaymentType parses a payment type name, ignoring case.
func ParsePaymentType(s string) (PaymentType, error) {
	p := PaymentType(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", ErrInvalidPaymentType
	}
	return p, nil
}

// Item is a sale line. Price is the product price at the time of sale.
type Item struct {
	ProductID string
	Quantity  int
	Price     money.Money
}

// Sale is a recorded checkout. Items are ordered by ascending product id.
type Sale struct {
	ID            string
	ClientID      string
	TicketID      string
	Items         []Item
	Subtotal      money.Money
	Total         money.Money
	TotalDiscount money.Money
	PaymentType   PaymentType
	Status        Status
	CreatedAt     time.Time
}

// Profit is the reporting ledger entry written once per sale.
type Profit struct {
	SaleID    string
	Amount    money.Money
	CreatedAt time.Time
}
