package sale

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/money"
	"github.com/xenking/pos-engine/internal/txn"
)

// Sentinel errors for sale validation and lookup.
var (
	ErrEmptyItems         = errors.New("items required")
	ErrEmptyProductID     = errors.New("product id required")
	ErrInvalidPaymentType = errors.New("invalid payment type")
	ErrInvalidStatus      = errors.New("invalid sale status")
	ErrNotFound           = errors.New("sale not found")
)

// InvalidQuantityError indicates a product quantity is not positive or
// exceeds MaxQuantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	if e.Quantity > MaxQuantity {
		return fmt.Sprintf("quantity must not exceed %d for product %s, got %d", MaxQuantity, e.ProductID, e.Quantity)
	}
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// InvalidProductError lists requested products that do not exist.
type InvalidProductError struct {
	Missing []string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("unknown products: %s", strings.Join(e.Missing, ", "))
}

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

var validationErrors = []error{
	ErrEmptyItems,
	ErrEmptyProductID,
	ErrInvalidPaymentType,
	ErrInvalidStatus,
	coupon.ErrNotFound,
	coupon.ErrNotYetValid,
	coupon.ErrExpired,
	coupon.ErrLimitReached,
	client.ErrNotFound,
	money.ErrInvalidAmount,
}

// KindOf returns the kind of err. Unrecognized errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, txn.ErrConflict) {
		return KindConflict
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, product.ErrNotFound) {
		return KindNotFound
	}

	var (
		qtyErr     *InvalidQuantityError
		productErr *InvalidProductError
		stockErr   *product.InsufficientStockError
	)
	if errors.As(err, &qtyErr) || errors.As(err, &productErr) || errors.As(err, &stockErr) {
		return KindValidation
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return KindValidation
		}
	}
	return KindInternal
}
