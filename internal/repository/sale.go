package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-engine/internal/domain/sale"
	"github.com/xenking/pos-engine/internal/money"
)

const (
	saleColumns = `id, client_id, ticket_id, subtotal, total, total_discount, payment_type, status, created_at`

	getSaleSQL = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`

	saleForUpdateSQL = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1 FOR UPDATE`

	listSaleItemsSQL = `SELECT product_id, quantity, price
		FROM sale_items WHERE sale_id = $1 ORDER BY product_id`

	insertSaleSQL = `INSERT INTO sales (` + saleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertSaleItemSQL = `INSERT INTO sale_items (sale_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)`

	updateSaleStatusSQL = `UPDATE sales SET status = $2 WHERE id = $1`

	insertProfitSQL = `INSERT INTO profits (sale_id, amount, created_at) VALUES ($1, $2, $3)`
)

// InsertSale persists a sale and its items. Items are written in the order
// given, which the engine keeps sorted by product id.
func (t *Tx) InsertSale(ctx context.Context, s *sale.Sale) error {
	_, err := t.tx.Exec(ctx, insertSaleSQL,
		s.ID, nullable(s.ClientID), nullable(s.TicketID),
		s.Subtotal.Decimal(), s.Total.Decimal(), s.TotalDiscount.Decimal(),
		string(s.PaymentType), string(s.Status), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating sale %q: %w", s.ID, err)
	}

	batch := &pgx.Batch{}
	for _, item := range s.Items {
		batch.Queue(insertSaleItemSQL, s.ID, item.ProductID, item.Quantity, item.Price.Decimal())
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating items of sale %q: %w", s.ID, err)
	}
	return nil
}

// SaleForUpdate locks a sale row and returns it with its items.
func (t *Tx) SaleForUpdate(ctx context.Context, id string) (*sale.Sale, error) {
	return loadSale(ctx, t.tx, saleForUpdateSQL, id)
}

// UpdateSaleStatus persists a new status.
func (t *Tx) UpdateSaleStatus(ctx context.Context, id string, status sale.Status) error {
	tag, err := t.tx.Exec(ctx, updateSaleStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of sale %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return sale.ErrNotFound
	}
	return nil
}

// InsertProfit appends a profit ledger entry.
func (t *Tx) InsertProfit(ctx context.Context, p *sale.Profit) error {
	_, err := t.tx.Exec(ctx, insertProfitSQL, p.SaleID, p.Amount.Decimal(), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating profit of sale %q: %w", p.SaleID, err)
	}
	return nil
}

func loadSale(ctx context.Context, q querier, query, id string) (*sale.Sale, error) {
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting sale %q: %w", id, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sale.ErrNotFound
		}
		return nil, fmt.Errorf("getting sale %q: %w", id, err)
	}

	rows, err = q.Query(ctx, listSaleItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of sale %q: %w", id, err)
	}
	s.Items, err = pgx.CollectRows(rows, scanSaleItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of sale %q: %w", id, err)
	}
	return &s, nil
}

func scanSale(row pgx.CollectableRow) (sale.Sale, error) {
	var (
		s                         sale.Sale
		clientID, ticketID        *string
		subtotal, total, discount decimal.Decimal
		paymentType, status       string
		createdAt                 time.Time
	)
	err := row.Scan(
		&s.ID, &clientID, &ticketID, &subtotal, &total, &discount,
		&paymentType, &status, &createdAt,
	)
	if clientID != nil {
		s.ClientID = *clientID
	}
	if ticketID != nil {
		s.TicketID = *ticketID
	}
	s.Subtotal = money.Signed(subtotal)
	s.Total = money.Signed(total)
	s.TotalDiscount = money.Signed(discount)
	s.PaymentType = sale.PaymentType(paymentType)
	s.Status = sale.Status(status)
	s.CreatedAt = createdAt.UTC()
	return s, err
}

func scanSaleItem(row pgx.CollectableRow) (sale.Item, error) {
	var (
		item  sale.Item
		qty   int32
		price decimal.Decimal
	)
	err := row.Scan(&item.ProductID, &qty, &price)
	item.Quantity = int(qty)
	item.Price = money.Signed(price)
	return item, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
