package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/money"
	"github.com/xenking/pos-engine/internal/txn"
)

func TestCommit_DetectsStaleRead(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutProduct(product.Product{ID: "A", Price: money.MustParse("1"), Stock: 10})

	first, err := s.Begin(ctx, txn.TxOptions{})
	require.NoError(t, err)
	second, err := s.Begin(ctx, txn.TxOptions{})
	require.NoError(t, err)

	require.NoError(t, first.AdjustStock(ctx, "A", -3))
	require.NoError(t, second.AdjustStock(ctx, "A", -4))

	require.NoError(t, first.Commit(ctx))
	err = second.Commit(ctx)
	require.ErrorIs(t, err, txn.ErrSerialization)
	assert.True(t, txn.IsTransient(err))

	p, _ := s.Product("A")
	assert.Equal(t, 7, p.Stock)
}

func TestRollback_DiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutProduct(product.Product{ID: "A", Stock: 10})

	tx, err := s.Begin(ctx, txn.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, tx.AdjustStock(ctx, "A", -3))
	require.NoError(t, tx.Rollback(ctx))

	p, _ := s.Product("A")
	assert.Equal(t, 10, p.Stock)
	require.Error(t, tx.Commit(ctx))
}

func TestAdjustStock_RejectsNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutProduct(product.Product{ID: "A", Stock: 2})

	tx, err := s.Begin(ctx, txn.TxOptions{})
	require.NoError(t, err)

	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, tx.AdjustStock(ctx, "A", -3), &stockErr)
	assert.Equal(t, 2, stockErr.Available)

	require.ErrorIs(t, tx.AdjustStock(ctx, "missing", 1), product.ErrNotFound)
}

func TestIncrementTicketUsage_Gate(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutTicket(coupon.Ticket{ID: "t1", Code: "once", IsActive: true, UsageLimit: 1})

	tx, err := s.Begin(ctx, txn.TxOptions{})
	require.NoError(t, err)

	got, err := tx.TicketByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, "ONCE", got.Code)

	require.NoError(t, tx.IncrementTicketUsage(ctx, "t1"))
	require.ErrorIs(t, tx.IncrementTicketUsage(ctx, "t1"), coupon.ErrLimitReached)
	require.NoError(t, tx.Commit(ctx))

	ticket, _ := s.Ticket("t1")
	assert.Equal(t, 1, ticket.UsageCount)
}

func TestInjectConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.InjectConflicts(1)

	tx, err := s.Begin(ctx, txn.TxOptions{})
	require.NoError(t, err)
	require.ErrorIs(t, tx.Commit(ctx), txn.ErrSerialization)

	tx, err = s.Begin(ctx, txn.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, s.Commits())
}
