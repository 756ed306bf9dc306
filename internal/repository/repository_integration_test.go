//go:build integration

package repository

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/domain/sale"
	"github.com/xenking/pos-engine/internal/money"
	"github.com/xenking/pos-engine/internal/repository/pgtest"
	"github.com/xenking/pos-engine/internal/txn"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dsn, terminate, err := pgtest.Start(ctx)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer terminate()

	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Printf("pool: %v", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Printf("migrations: %v", err)
		return 1
	}
	return m.Run()
}

func newTestService(t *testing.T) *sale.Service {
	t.Helper()
	exec, err := txn.NewExecutor(txn.Options{
		MaxRetries: 30,
		BaseDelay:  2 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
	}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return sale.NewService(NewStore(testPool), exec)
}

// seedProduct creates a product with a unique id and returns the id.
func seedProduct(t *testing.T, price string, stock int) string {
	t.Helper()
	p := &product.Product{
		ID:    "p-" + uuid.NewString(),
		Name:  "Product",
		Price: money.MustParse(price),
		Cost:  money.MustParse("1.00"),
		Stock: stock,
	}
	require.NoError(t, NewCatalog(testPool).UpsertProduct(context.Background(), p))
	return p.ID
}

func seedTicket(t *testing.T, percent string, limit, used int) coupon.Ticket {
	t.Helper()
	ticket := coupon.Ticket{
		ID:              uuid.NewString(),
		Code:            "T" + uuid.NewString()[:8],
		DiscountPercent: decimal.RequireFromString(percent),
		UsageLimit:      limit,
		UsageCount:      used,
		IsActive:        true,
	}
	require.NoError(t, NewCatalog(testPool).UpsertTicket(context.Background(), &ticket))
	ticket.Code = coupon.NormalizeCode(ticket.Code)
	return ticket
}

func stockOf(t *testing.T, id string) int {
	t.Helper()
	p, err := NewProductRepository(testPool).GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func usageOf(t *testing.T, ticketID string) int {
	t.Helper()
	var n int
	require.NoError(t, testPool.QueryRow(context.Background(),
		`SELECT usage_count FROM promotional_tickets WHERE id = $1`, ticketID).Scan(&n))
	return n
}

func TestCreateAndTransition(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	productID := seedProduct(t, "10.00", 5)
	ticket := seedTicket(t, "10", 0, 0)

	clientID := "c-" + uuid.NewString()
	require.NoError(t, NewCatalog(testPool).UpsertClient(ctx, &client.Client{ID: clientID, Name: "Ana"}))

	created, err := svc.Create(ctx, sale.CreateRequest{
		Items:       []sale.LineItem{{ProductID: productID, Quantity: 2}},
		ClientID:    clientID,
		CouponCode:  ticket.Code,
		PaymentType: sale.PaymentPix,
	})
	require.NoError(t, err)
	assert.Equal(t, sale.StatusPending, created.Status)
	assert.Equal(t, "18.00", created.Total.String())
	assert.Equal(t, "2.00", created.TotalDiscount.String())
	assert.Equal(t, 5, stockOf(t, productID))
	assert.Equal(t, 1, usageOf(t, ticket.ID))

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, stored.TicketID)
	assert.Equal(t, clientID, stored.ClientID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "10.00", stored.Items[0].Price.String())

	var profit decimal.Decimal
	require.NoError(t, testPool.QueryRow(ctx, `SELECT amount FROM profits WHERE sale_id = $1`, created.ID).Scan(&profit))
	assert.Equal(t, "16.00", profit.StringFixed(2))

	_, err = svc.TransitionStatus(ctx, created.ID, sale.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, productID))

	_, err = svc.TransitionStatus(ctx, created.ID, sale.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, productID))

	_, err = svc.TransitionStatus(ctx, uuid.NewString(), sale.StatusCancelled)
	require.ErrorIs(t, err, sale.ErrNotFound)
}

func TestConcurrentStockConservation(t *testing.T) {
	const buyers = 10
	svc := newTestService(t)
	a := seedProduct(t, "1.00", 100)
	b := seedProduct(t, "2.00", 100)

	var g errgroup.Group
	for i := range buyers {
		g.Go(func() error {
			items := []sale.LineItem{{ProductID: a, Quantity: 3}, {ProductID: b, Quantity: 1}}
			if i%2 == 1 {
				items[0], items[1] = items[1], items[0]
			}
			_, err := svc.Create(context.Background(), sale.CreateRequest{
				Items:       items,
				PaymentType: sale.PaymentMoney,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 100-3*buyers, stockOf(t, a))
	assert.Equal(t, 100-buyers, stockOf(t, b))
}

func TestConcurrentSingleUseCoupon(t *testing.T) {
	const buyers = 8
	svc := newTestService(t)
	productID := seedProduct(t, "10.00", 100)
	ticket := seedTicket(t, "50", 1, 0)

	var (
		mu      sync.Mutex
		ok      int
		limited int
	)
	var wg sync.WaitGroup
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), sale.CreateRequest{
				Items:       []sale.LineItem{{ProductID: productID, Quantity: 1}},
				CouponCode:  ticket.Code,
				PaymentType: sale.PaymentMoney,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			default:
				assert.ErrorIs(t, err, coupon.ErrLimitReached)
				limited++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, buyers-1, limited)
	assert.Equal(t, 1, usageOf(t, ticket.ID))
	assert.Equal(t, 99, stockOf(t, productID))
}

func TestExhaustedCouponLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	productID := seedProduct(t, "10.00", 5)
	ticket := seedTicket(t, "10", 5, 5)

	_, err := svc.Create(ctx, sale.CreateRequest{
		Items:       []sale.LineItem{{ProductID: productID, Quantity: 2}},
		CouponCode:  ticket.Code,
		PaymentType: sale.PaymentMoney,
	})

	require.ErrorIs(t, err, coupon.ErrLimitReached)
	assert.Equal(t, 5, stockOf(t, productID))
	assert.Equal(t, 5, usageOf(t, ticket.ID))
}

func TestIncrementTicketUsage_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	ticket := seedTicket(t, "5", 1, 1)

	tx, err := NewStore(testPool).Begin(ctx, txn.TxOptions{Isolation: txn.ReadCommitted})
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	require.ErrorIs(t, tx.IncrementTicketUsage(ctx, ticket.ID), coupon.ErrLimitReached)
	require.ErrorIs(t, tx.IncrementTicketUsage(ctx, uuid.NewString()), coupon.ErrNotFound)
}

func TestAdjustStock_Guard(t *testing.T) {
	ctx := context.Background()
	productID := seedProduct(t, "1.00", 2)

	tx, err := NewStore(testPool).Begin(ctx, txn.TxOptions{Isolation: txn.ReadCommitted})
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, tx.AdjustStock(ctx, productID, -3), &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)

	require.NoError(t, tx.AdjustStock(ctx, productID, -2))
	require.ErrorIs(t, tx.AdjustStock(ctx, "missing-"+uuid.NewString(), 1), product.ErrNotFound)
}

func TestCatalog_CopyAndCodes(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(testPool)

	tickets := []coupon.Ticket{
		{ID: uuid.NewString(), Code: "bulk" + uuid.NewString()[:8], DiscountPercent: decimal.NewFromInt(5), IsActive: true},
		{ID: uuid.NewString(), Code: "bulk" + uuid.NewString()[:8], DiscountPercent: decimal.NewFromInt(7), IsActive: true},
	}
	n, err := catalog.CopyTickets(ctx, tickets)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	codes := map[string]bool{}
	require.NoError(t, catalog.TicketCodes(ctx, func(code string) { codes[code] = true }))
	for _, ticket := range tickets {
		assert.True(t, codes[coupon.NormalizeCode(ticket.Code)], ticket.Code)
	}

	// Upsert by code keeps the usage count and the original id.
	updated := tickets[0]
	updated.ID = uuid.NewString()
	updated.DiscountPercent = decimal.NewFromInt(9)
	require.NoError(t, catalog.UpsertTickets(ctx, []coupon.Ticket{updated}))

	var percent decimal.Decimal
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT discount_percent FROM promotional_tickets WHERE id = $1`, tickets[0].ID).Scan(&percent))
	assert.True(t, decimal.NewFromInt(9).Equal(percent))
}
