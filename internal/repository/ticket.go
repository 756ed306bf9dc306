package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-engine/internal/domain/coupon"
)

const (
	ticketColumns = `id, code, discount_percent, usage_limit, usage_count, valid_from, valid_until, is_active`

	getTicketByCodeSQL = `SELECT ` + ticketColumns + `
		FROM promotional_tickets WHERE code = UPPER($1)`

	// The WHERE clause is the authoritative usage-limit gate: with no
	// remaining uses no row is updated.
	incrementTicketUsageSQL = `UPDATE promotional_tickets SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`

	ticketExistsSQL = `SELECT EXISTS (SELECT 1 FROM promotional_tickets WHERE id = $1)`

	usageWithinLimitConstraint = "promotional_tickets_usage_within_limit"
)

// TicketByCode looks up a ticket by its code (case-insensitive).
// Returns coupon.ErrNotFound when no ticket carries the code.
func (t *Tx) TicketByCode(ctx context.Context, code string) (*coupon.Ticket, error) {
	rows, err := t.tx.Query(ctx, getTicketByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding ticket by code %q: %w", code, err)
	}

	ticket, err := pgx.CollectExactlyOneRow(rows, scanTicket)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding ticket by code %q: %w", code, err)
	}
	return &ticket, nil
}

// IncrementTicketUsage consumes one use of a ticket.
func (t *Tx) IncrementTicketUsage(ctx context.Context, ticketID string) error {
	tag, err := t.tx.Exec(ctx, incrementTicketUsageSQL, ticketID)
	if err != nil {
		if checkViolation(err, usageWithinLimitConstraint) {
			return coupon.ErrLimitReached
		}
		return fmt.Errorf("incrementing usage of ticket %q: %w", ticketID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, ticketExistsSQL, ticketID).Scan(&exists); err != nil {
		return fmt.Errorf("checking ticket %q: %w", ticketID, err)
	}
	if !exists {
		return coupon.ErrNotFound
	}
	return coupon.ErrLimitReached
}

func scanTicket(row pgx.CollectableRow) (coupon.Ticket, error) {
	var (
		ticket     coupon.Ticket
		percent    decimal.Decimal
		limit      int32
		count      int32
		validFrom  *time.Time
		validUntil *time.Time
	)
	err := row.Scan(
		&ticket.ID, &ticket.Code, &percent, &limit, &count,
		&validFrom, &validUntil, &ticket.IsActive,
	)
	ticket.DiscountPercent = percent
	ticket.UsageLimit = int(limit)
	ticket.UsageCount = int(count)
	ticket.ValidFrom = validFrom
	ticket.ValidUntil = validUntil
	return ticket, err
}
