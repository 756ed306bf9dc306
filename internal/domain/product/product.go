package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-engine/internal/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for sale.
type Product struct {
	ID    string
	Name  string
	Price money.Money
	Cost  money.Money
	// Stock may be negative in legacy data; the engine never drives it below zero.
	Stock   int
	Weight  *decimal.Decimal
	Measure string
}

// InsufficientStockError is returned when a completed sale would drive a
// product's stock below zero.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}
