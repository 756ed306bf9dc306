package sale

import (
	"context"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/txn"
)

// Tx is the transactional view of the store used by Service. Every write of
// a sale operation goes through one Tx so that a failed attempt leaves
// nothing behind.
type Tx interface {
	txn.Handle
	coupon.Finder

	// LockProducts locks and returns the products with the given ids in
	// ascending id order. Unknown ids are skipped.
	LockProducts(ctx context.Context, ids []string) ([]product.Product, error)
	// AdjustStock adds delta to a product's stock. A negative delta that
	// would leave stock below zero fails with *product.InsufficientStockError.
	AdjustStock(ctx context.Context, productID string, delta int) error

	// ClientForUpdate locks a client row; client.ErrNotFound if absent.
	ClientForUpdate(ctx context.Context, id string) (*client.Client, error)
	SaveClient(ctx context.Context, c *client.Client) error

	// IncrementTicketUsage bumps a ticket's usage count by one. It fails
	// with coupon.ErrLimitReached when the ticket has no uses left.
	IncrementTicketUsage(ctx context.Context, ticketID string) error

	InsertSale(ctx context.Context, s *Sale) error
	// SaleForUpdate locks a sale row and returns it with its items;
	// ErrNotFound if absent.
	SaleForUpdate(ctx context.Context, id string) (*Sale, error)
	UpdateSaleStatus(ctx context.Context, id string, status Status) error
	InsertProfit(ctx context.Context, p *Profit) error
}

// Reader provides non-transactional sale reads for reporting.
type Reader interface {
	GetSale(ctx context.Context, id string) (*Sale, error)
}

// Store is everything Service needs from persistence.
type Store interface {
	txn.Beginner[Tx]
	Reader
}
