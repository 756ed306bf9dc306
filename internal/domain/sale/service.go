package sale

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/money"
	"github.com/xenking/pos-engine/internal/txn"
)

// Service encapsulates sale creation and status transitions.
type Service struct {
	store  Store
	exec   *txn.Executor
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithIDGenerator overrides sale id generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// NewService creates a sale Service.
func NewService(store Store, exec *txn.Executor, opts ...Option) *Service {
	s := &Service{
		store:  store,
		exec:   exec,
		tracer: noop.NewTracerProvider().Tracer(""),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create records a sale for req.
//
// The request is validated before any transaction opens. The sale id and
// creation time are fixed once, so a retried attempt writes the same sale.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Sale, rerr error) {
	items, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	id := s.newID()
	createdAt := s.now().UTC()

	ctx, span := s.tracer.Start(ctx, "sale.Create", trace.WithAttributes(
		attribute.String("sale.id", id),
		attribute.String("sale.payment_type", string(req.PaymentType)),
		attribute.Int("sale.items", len(items)),
	))
	defer func() { endSpan(span, rerr) }()

	created, err := txn.Run(ctx, s.exec, s.store, func(ctx context.Context, tx Tx) (*Sale, error) {
		return s.create(ctx, tx, id, createdAt, items, req)
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Sale created",
		zap.String("sale_id", created.ID),
		zap.String("status", string(created.Status)),
		zap.Stringer("total", created.Total),
		zap.Stringer("discount", created.TotalDiscount),
	)
	return created, nil
}

func (s *Service) create(ctx context.Context, tx Tx, id string, createdAt time.Time, items []LineItem, req CreateRequest) (*Sale, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	var applied *coupon.Applied
	if req.CouponCode != "" {
		applied, err = coupon.Validate(ctx, tx, req.CouponCode, s.now())
		if err != nil {
			return nil, err
		}
	}

	var buyer *client.Client
	if req.ClientID != "" {
		buyer, err = tx.ClientForUpdate(ctx, req.ClientID)
		if err != nil {
			return nil, err
		}
	}

	sale := &Sale{
		ID:          id,
		ClientID:    req.ClientID,
		Items:       make([]Item, len(items)),
		PaymentType: req.PaymentType,
		Status:      StatusCompleted,
		CreatedAt:   createdAt,
	}
	if req.PaymentType.Deferred() {
		sale.Status = StatusPending
	}

	subtotal, totalCost := money.Zero, money.Zero
	for i, item := range items {
		p := products[item.ProductID]
		sale.Items[i] = Item{ProductID: p.ID, Quantity: item.Quantity, Price: p.Price}
		subtotal = subtotal.Add(p.Price.MulInt(item.Quantity))
		totalCost = totalCost.Add(p.Cost.MulInt(item.Quantity))
	}

	discount := money.Zero
	if applied != nil {
		sale.TicketID = applied.TicketID
		discount = subtotal.Percent(applied.DiscountPercent).Round()
	}
	sale.Subtotal = subtotal
	sale.TotalDiscount = discount
	sale.Total = subtotal.Sub(discount)
	if sale.Total.IsNegative() {
		return nil, errors.Wrapf(money.ErrInvalidAmount, "negative total %s", sale.Total)
	}

	if sale.Status == StatusCompleted {
		if err := checkStock(products, sale.Items); err != nil {
			return nil, err
		}
	}

	if err := tx.InsertSale(ctx, sale); err != nil {
		return nil, errors.Wrap(err, "insert sale")
	}
	if sale.Status == StatusCompleted {
		if err := adjustStock(ctx, tx, sale.Items, -1); err != nil {
			return nil, err
		}
	}
	if buyer != nil {
		updated := buyer.Apply(client.Purchase{Total: sale.Total, At: createdAt})
		if err := tx.SaveClient(ctx, &updated); err != nil {
			return nil, errors.Wrap(err, "save client")
		}
	}
	if applied != nil {
		if err := tx.IncrementTicketUsage(ctx, applied.TicketID); err != nil {
			if errors.Is(err, coupon.ErrLimitReached) {
				return nil, coupon.ErrLimitReached
			}
			return nil, errors.Wrap(err, "increment coupon usage")
		}
	}
	profit := &Profit{
		SaleID:    sale.ID,
		Amount:    sale.Total.Sub(totalCost),
		CreatedAt: createdAt,
	}
	if err := tx.InsertProfit(ctx, profit); err != nil {
		return nil, errors.Wrap(err, "insert profit")
	}

	return sale, nil
}

// TransitionStatus moves a sale to status, reconciling stock when the sale
// enters or leaves COMPLETED. Moving a sale to its current status is a no-op.
func (s *Service) TransitionStatus(ctx context.Context, id string, status Status) (_ *Sale, rerr error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	ctx, span := s.tracer.Start(ctx, "sale.TransitionStatus", trace.WithAttributes(
		attribute.String("sale.id", id),
		attribute.String("sale.status", string(status)),
	))
	defer func() { endSpan(span, rerr) }()

	var from Status
	updated, err := txn.Run(ctx, s.exec, s.store, func(ctx context.Context, tx Tx) (*Sale, error) {
		cur, err := tx.SaleForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		from = cur.Status
		if cur.Status == status {
			return cur, nil
		}

		entering := cur.Status != StatusCompleted && status == StatusCompleted
		leaving := cur.Status == StatusCompleted && status != StatusCompleted
		if entering || leaving {
			items := slices.Clone(cur.Items)
			slices.SortFunc(items, func(a, b Item) int { return cmp.Compare(a.ProductID, b.ProductID) })

			ids := make([]string, len(items))
			for i, item := range items {
				ids[i] = item.ProductID
			}
			products, err := lockProducts(ctx, tx, ids)
			if err != nil {
				return nil, err
			}

			sign := 1
			if entering {
				if err := checkStock(products, items); err != nil {
					return nil, err
				}
				sign = -1
			}
			if err := adjustStock(ctx, tx, items, sign); err != nil {
				return nil, err
			}
		}

		if err := tx.UpdateSaleStatus(ctx, id, status); err != nil {
			return nil, errors.Wrap(err, "update status")
		}
		cur.Status = status
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Sale status changed",
		zap.String("sale_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
	)
	return updated, nil
}

// Get returns a sale with its items.
func (s *Service) Get(ctx context.Context, id string) (*Sale, error) {
	return s.store.GetSale(ctx, id)
}

// lockProducts locks ids (already in ascending order) and fails with
// InvalidProductError if any of them is unknown.
func lockProducts(ctx context.Context, tx Tx, ids []string) (map[string]product.Product, error) {
	locked, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}
	byID := make(map[string]product.Product, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}
	if len(byID) != len(ids) {
		var missing []string
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, &InvalidProductError{Missing: missing}
	}
	return byID, nil
}

// checkStock rejects items whose product stock cannot cover the quantity.
// Stock that is already negative never covers anything.
func checkStock(products map[string]product.Product, items []Item) error {
	for _, item := range items {
		p := products[item.ProductID]
		if p.Stock < item.Quantity {
			return &product.InsufficientStockError{
				ProductID: p.ID,
				Available: p.Stock,
				Requested: item.Quantity,
			}
		}
	}
	return nil
}

// adjustStock applies sign*quantity to every item's product in item order.
func adjustStock(ctx context.Context, tx Tx, items []Item, sign int) error {
	for _, item := range items {
		if err := tx.AdjustStock(ctx, item.ProductID, sign*item.Quantity); err != nil {
			var stockErr *product.InsufficientStockError
			if errors.As(err, &stockErr) {
				return stockErr
			}
			return errors.Wrapf(err, "adjust stock of %s", item.ProductID)
		}
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}
