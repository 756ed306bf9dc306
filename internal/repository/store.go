package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/domain/sale"
	"github.com/xenking/pos-engine/internal/money"
	"github.com/xenking/pos-engine/internal/txn"
)

const (
	adjustStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND ($2 >= 0 OR stock + $2 >= 0)
		RETURNING stock`

	getStockSQL = `SELECT stock FROM products WHERE id = $1`

	clientForUpdateSQL = `SELECT id, name, total_spent, purchase_count, is_premium, premium_since
		FROM clients WHERE id = $1 FOR UPDATE`

	saveClientSQL = `UPDATE clients
		SET total_spent = $2, purchase_count = $3, is_premium = $4, premium_since = $5
		WHERE id = $1`
)

var (
	_ sale.Store = (*Store)(nil)
	_ sale.Tx    = (*Tx)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store opens sale engine transactions on a PostgreSQL pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Begin starts a transaction at the requested isolation level.
func (s *Store) Begin(ctx context.Context, opts txn.TxOptions) (sale.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.TxIsoLevel(opts.Isolation)})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// GetSale returns a committed sale with its items.
func (s *Store) GetSale(ctx context.Context, id string) (*sale.Sale, error) {
	return loadSale(ctx, s.pool, getSaleSQL, id)
}

// Tx implements sale.Tx on a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback aborts the transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// LockProducts locks the requested product rows in ascending id order.
func (t *Tx) LockProducts(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := t.tx.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	return products, nil
}

// AdjustStock adds delta to a product's stock. The guard in the UPDATE keeps
// a decrement from taking stock below zero.
func (t *Tx) AdjustStock(ctx context.Context, productID string, delta int) error {
	var stock int32
	err := t.tx.QueryRow(ctx, adjustStockSQL, productID, delta).Scan(&stock)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("adjusting stock of %q: %w", productID, err)
	}

	if err := t.tx.QueryRow(ctx, getStockSQL, productID).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("reading stock of %q: %w", productID, err)
	}
	return &product.InsufficientStockError{
		ProductID: productID,
		Available: int(stock),
		Requested: -delta,
	}
}

// ClientForUpdate locks and returns a client.
func (t *Tx) ClientForUpdate(ctx context.Context, id string) (*client.Client, error) {
	var (
		c          client.Client
		totalSpent decimal.Decimal
		count      int32
		since      *time.Time
	)
	err := t.tx.QueryRow(ctx, clientForUpdateSQL, id).Scan(
		&c.ID, &c.Name, &totalSpent, &count, &c.IsPremium, &since,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrNotFound
		}
		return nil, fmt.Errorf("locking client %q: %w", id, err)
	}
	c.TotalSpent = money.Signed(totalSpent)
	c.PurchaseCount = int(count)
	c.PremiumSince = since
	return &c, nil
}

// SaveClient writes a client's aggregates.
func (t *Tx) SaveClient(ctx context.Context, c *client.Client) error {
	tag, err := t.tx.Exec(ctx, saveClientSQL,
		c.ID, c.TotalSpent.Decimal(), c.PurchaseCount, c.IsPremium, c.PremiumSince,
	)
	if err != nil {
		return fmt.Errorf("saving client %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return client.ErrNotFound
	}
	return nil
}

func checkViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23514" &&
		pgErr.ConstraintName == constraint
}
