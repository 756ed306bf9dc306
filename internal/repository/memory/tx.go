package memory

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/domain/sale"
	"github.com/xenking/pos-engine/internal/txn"
)

// Tx is a transaction on Store. It is not safe for concurrent use.
type Tx struct {
	s *Store

	// reads maps a row key to the version observed; 0 means absent.
	reads map[string]uint64

	products map[string]product.Product
	clients  map[string]client.Client
	tickets  map[string]coupon.Ticket
	sales    map[string]sale.Sale
	profits  []sale.Profit

	done bool
}

func productKey(id string) string { return "product/" + id }
func clientKey(id string) string  { return "client/" + id }
func ticketKey(id string) string  { return "ticket/" + id }
func saleKey(id string) string    { return "sale/" + id }

func observe[T any](tx *Tx, key string, rows map[string]row[T], id string) (T, bool) {
	tx.s.mu.Lock()
	r, ok := rows[id]
	tx.s.mu.Unlock()
	if _, seen := tx.reads[key]; !seen {
		tx.reads[key] = r.ver
	}
	return r.val, ok
}

func (tx *Tx) product(id string) (product.Product, bool) {
	if p, ok := tx.products[id]; ok {
		return p, true
	}
	return observe(tx, productKey(id), tx.s.products, id)
}

func (tx *Tx) ticket(id string) (coupon.Ticket, bool) {
	if t, ok := tx.tickets[id]; ok {
		return t, true
	}
	return observe(tx, ticketKey(id), tx.s.tickets, id)
}

// LockProducts returns the known products among ids in ascending id order.
func (tx *Tx) LockProducts(_ context.Context, ids []string) ([]product.Product, error) {
	if tx.done {
		return nil, errTxDone
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]product.Product, 0, len(sorted))
	for _, id := range sorted {
		if p, ok := tx.product(id); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// AdjustStock stages stock + delta.
func (tx *Tx) AdjustStock(_ context.Context, productID string, delta int) error {
	if tx.done {
		return errTxDone
	}
	p, ok := tx.product(productID)
	if !ok {
		return product.ErrNotFound
	}
	if delta < 0 && p.Stock+delta < 0 {
		return &product.InsufficientStockError{ProductID: productID, Available: p.Stock, Requested: -delta}
	}
	p.Stock += delta
	tx.products[productID] = p
	return nil
}

// TicketByCode returns the ticket carrying code.
func (tx *Tx) TicketByCode(_ context.Context, code string) (*coupon.Ticket, error) {
	if tx.done {
		return nil, errTxDone
	}
	tx.s.mu.Lock()
	id, ok := tx.s.codes[coupon.NormalizeCode(code)]
	tx.s.mu.Unlock()
	if !ok {
		return nil, coupon.ErrNotFound
	}
	t, ok := tx.ticket(id)
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &t, nil
}

// IncrementTicketUsage stages usage + 1 unless the limit is exhausted.
func (tx *Tx) IncrementTicketUsage(_ context.Context, ticketID string) error {
	if tx.done {
		return errTxDone
	}
	t, ok := tx.ticket(ticketID)
	if !ok {
		return coupon.ErrNotFound
	}
	if t.UsageLimit > 0 && t.UsageCount >= t.UsageLimit {
		return coupon.ErrLimitReached
	}
	t.UsageCount++
	tx.tickets[ticketID] = t
	return nil
}

// ClientForUpdate returns a client.
func (tx *Tx) ClientForUpdate(_ context.Context, id string) (*client.Client, error) {
	if tx.done {
		return nil, errTxDone
	}
	if c, ok := tx.clients[id]; ok {
		return &c, nil
	}
	c, ok := observe(tx, clientKey(id), tx.s.clients, id)
	if !ok {
		return nil, client.ErrNotFound
	}
	return &c, nil
}

// SaveClient stages c.
func (tx *Tx) SaveClient(_ context.Context, c *client.Client) error {
	if tx.done {
		return errTxDone
	}
	if _, seen := tx.reads[clientKey(c.ID)]; !seen {
		return errors.Errorf("client %s saved without being read", c.ID)
	}
	tx.clients[c.ID] = *c
	return nil
}

// InsertSale stages a new sale.
func (tx *Tx) InsertSale(_ context.Context, s *sale.Sale) error {
	if tx.done {
		return errTxDone
	}
	if _, ok := tx.sales[s.ID]; ok {
		return errors.Errorf("duplicate sale %s", s.ID)
	}
	if _, exists := observe(tx, saleKey(s.ID), tx.s.sales, s.ID); exists {
		return errors.Errorf("duplicate sale %s", s.ID)
	}
	tx.sales[s.ID] = cloneSale(*s)
	return nil
}

// SaleForUpdate returns a sale with its items.
func (tx *Tx) SaleForUpdate(_ context.Context, id string) (*sale.Sale, error) {
	if tx.done {
		return nil, errTxDone
	}
	if s, ok := tx.sales[id]; ok {
		v := cloneSale(s)
		return &v, nil
	}
	s, ok := observe(tx, saleKey(id), tx.s.sales, id)
	if !ok {
		return nil, sale.ErrNotFound
	}
	v := cloneSale(s)
	return &v, nil
}

// UpdateSaleStatus stages a status change.
func (tx *Tx) UpdateSaleStatus(ctx context.Context, id string, status sale.Status) error {
	s, err := tx.SaleForUpdate(ctx, id)
	if err != nil {
		return err
	}
	s.Status = status
	tx.sales[id] = *s
	return nil
}

// InsertProfit stages a profit entry.
func (tx *Tx) InsertProfit(_ context.Context, p *sale.Profit) error {
	if tx.done {
		return errTxDone
	}
	tx.profits = append(tx.profits, *p)
	return nil
}

// Commit validates every observed row version and applies staged writes.
func (tx *Tx) Commit(context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true

	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.injected > 0 {
		s.injected--
		return errors.Wrap(txn.ErrSerialization, "injected conflict")
	}
	for _, key := range slices.Sorted(maps.Keys(tx.reads)) {
		if s.version(key) != tx.reads[key] {
			return errors.Wrapf(txn.ErrSerialization, "%s changed", key)
		}
	}

	for id, p := range tx.products {
		s.products[id] = row[product.Product]{val: p, ver: s.products[id].ver + 1}
	}
	for id, c := range tx.clients {
		s.clients[id] = row[client.Client]{val: c, ver: s.clients[id].ver + 1}
	}
	for id, t := range tx.tickets {
		s.tickets[id] = row[coupon.Ticket]{val: t, ver: s.tickets[id].ver + 1}
	}
	for id, v := range tx.sales {
		s.sales[id] = row[sale.Sale]{val: v, ver: s.sales[id].ver + 1}
	}
	s.profits = append(s.profits, tx.profits...)
	s.commits++
	return nil
}

// Rollback discards staged writes.
func (tx *Tx) Rollback(context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	return nil
}

func (s *Store) version(key string) uint64 {
	kind, id, _ := strings.Cut(key, "/")
	switch kind {
	case "product":
		return s.products[id].ver
	case "client":
		return s.clients[id].ver
	case "ticket":
		return s.tickets[id].ver
	case "sale":
		return s.sales[id].ver
	default:
		return 0
	}
}
