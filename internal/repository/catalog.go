package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, price, cost, stock, weight, measure)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price, cost = EXCLUDED.cost,
			stock = EXCLUDED.stock, weight = EXCLUDED.weight, measure = EXCLUDED.measure,
			updated_at = now()`

	upsertClientSQL = `INSERT INTO clients (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	// Re-importing a ticket never resets how often it has been used.
	upsertTicketSQL = `INSERT INTO promotional_tickets
		(id, code, discount_percent, usage_limit, usage_count, valid_from, valid_until, is_active)
		VALUES ($1, UPPER($2), $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			discount_percent = EXCLUDED.discount_percent,
			usage_limit = GREATEST(EXCLUDED.usage_limit, promotional_tickets.usage_count),
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			is_active = EXCLUDED.is_active`

	listTicketCodesSQL = `SELECT code FROM promotional_tickets`
)

// Catalog writes reference data: products, clients and promotional tickets.
// It is used by the seeding and import tools, never by the sale engine.
type Catalog struct {
	pool *pgxpool.Pool
}

// NewCatalog returns a Catalog that uses the given pool.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// UpsertProduct inserts or replaces a product.
func (c *Catalog) UpsertProduct(ctx context.Context, p *product.Product) error {
	_, err := c.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Price.Decimal(), p.Cost.Decimal(), p.Stock, p.Weight, p.Measure,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertClient inserts a client or renames an existing one. Aggregates are
// left untouched.
func (c *Catalog) UpsertClient(ctx context.Context, cl *client.Client) error {
	_, err := c.pool.Exec(ctx, upsertClientSQL, cl.ID, cl.Name)
	if err != nil {
		return fmt.Errorf("upserting client %q: %w", cl.ID, err)
	}
	return nil
}

// UpsertTicket inserts a ticket or updates the terms of the ticket with the
// same code.
func (c *Catalog) UpsertTicket(ctx context.Context, t *coupon.Ticket) error {
	_, err := c.pool.Exec(ctx, upsertTicketSQL, ticketArgs(t)...)
	if err != nil {
		return fmt.Errorf("upserting ticket %q: %w", t.Code, err)
	}
	return nil
}

// UpsertTickets upserts tickets in a single batch.
func (c *Catalog) UpsertTickets(ctx context.Context, tickets []coupon.Ticket) error {
	batch := &pgx.Batch{}
	for i := range tickets {
		batch.Queue(upsertTicketSQL, ticketArgs(&tickets[i])...)
	}
	if err := c.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d tickets: %w", len(tickets), err)
	}
	return nil
}

// CopyTickets bulk-inserts tickets with COPY. Any existing code makes the
// whole copy fail, so callers must only pass codes known to be new.
func (c *Catalog) CopyTickets(ctx context.Context, tickets []coupon.Ticket) (int64, error) {
	n, err := c.pool.CopyFrom(ctx,
		pgx.Identifier{"promotional_tickets"},
		[]string{"id", "code", "discount_percent", "usage_limit", "usage_count", "valid_from", "valid_until", "is_active"},
		pgx.CopyFromSlice(len(tickets), func(i int) ([]any, error) {
			t := &tickets[i]
			return []any{
				t.ID, coupon.NormalizeCode(t.Code), t.DiscountPercent, t.UsageLimit, t.UsageCount,
				t.ValidFrom, t.ValidUntil, t.IsActive,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copying %d tickets: %w", len(tickets), err)
	}
	return n, nil
}

// TicketCodes streams every stored ticket code to fn.
func (c *Catalog) TicketCodes(ctx context.Context, fn func(code string)) error {
	rows, err := c.pool.Query(ctx, listTicketCodesSQL)
	if err != nil {
		return fmt.Errorf("listing ticket codes: %w", err)
	}
	var code string
	_, err = pgx.ForEachRow(rows, []any{&code}, func() error {
		fn(code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing ticket codes: %w", err)
	}
	return nil
}

func ticketArgs(t *coupon.Ticket) []any {
	return []any{
		t.ID, t.Code, t.DiscountPercent, t.UsageLimit, t.UsageCount,
		t.ValidFrom, t.ValidUntil, t.IsActive,
	}
}
