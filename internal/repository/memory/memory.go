// Package memory is an in-process sale store with optimistic concurrency.
//
// Transactions read committed rows, stage their writes privately and
// validate at commit that nothing they read has changed since. A failed
// validation is reported as txn.ErrSerialization, which makes the store
// behave like a serializable database for the retry executor.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/domain/sale"
	"github.com/xenking/pos-engine/internal/txn"
)

var (
	_ sale.Store         = (*Store)(nil)
	_ product.Repository = (*Store)(nil)
	_ sale.Tx            = (*Tx)(nil)
)

type row[T any] struct {
	val T
	ver uint64
}

// Store holds committed rows.
type Store struct {
	mu sync.Mutex

	products map[string]row[product.Product]
	clients  map[string]row[client.Client]
	tickets  map[string]row[coupon.Ticket]
	codes    map[string]string
	sales    map[string]row[sale.Sale]
	profits  []sale.Profit

	injected int
	commits  int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		products: make(map[string]row[product.Product]),
		clients:  make(map[string]row[client.Client]),
		tickets:  make(map[string]row[coupon.Ticket]),
		codes:    make(map[string]string),
		sales:    make(map[string]row[sale.Sale]),
	}
}

// InjectConflicts makes the next n commits fail with txn.ErrSerialization
// without applying their writes.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected += n
}

// Commits returns the number of successful commits.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = row[product.Product]{val: p, ver: s.products[p.ID].ver + 1}
}

// PutClient inserts or replaces a client.
func (s *Store) PutClient(c client.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = row[client.Client]{val: c, ver: s.clients[c.ID].ver + 1}
}

// PutTicket inserts or replaces a promotional ticket. The code is stored
// upper-case.
func (s *Store) PutTicket(t coupon.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Code = coupon.NormalizeCode(t.Code)
	s.tickets[t.ID] = row[coupon.Ticket]{val: t, ver: s.tickets[t.ID].ver + 1}
	s.codes[t.Code] = t.ID
}

// Product returns a committed product.
func (s *Store) Product(id string) (product.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.products[id]
	return r.val, ok
}

// Client returns a committed client.
func (s *Store) Client(id string) (client.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.clients[id]
	return r.val, ok
}

// Ticket returns a committed ticket.
func (s *Store) Ticket(id string) (coupon.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.tickets[id]
	return r.val, ok
}

// Profits returns the committed profit entries of a sale.
func (s *Store) Profits(saleID string) []sale.Profit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sale.Profit
	for _, p := range s.profits {
		if p.SaleID == saleID {
			out = append(out, p)
		}
	}
	return out
}

// SaleCount returns the number of committed sales.
func (s *Store) SaleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

// List returns all products ordered by id.
func (s *Store) List(context.Context) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]product.Product, 0, len(s.products))
	for _, r := range s.products {
		out = append(out, r.val)
	}
	slices.SortFunc(out, func(a, b product.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetByID returns a product. It satisfies product.Repository.
func (s *Store) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.Product(id)
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetSale returns a committed sale with its items.
func (s *Store) GetSale(_ context.Context, id string) (*sale.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.sales[id]
	if !ok {
		return nil, sale.ErrNotFound
	}
	v := cloneSale(sr.val)
	return &v, nil
}

// Begin starts a transaction. Every isolation level behaves as serializable.
func (s *Store) Begin(context.Context, txn.TxOptions) (sale.Tx, error) {
	return &Tx{
		s:        s,
		reads:    make(map[string]uint64),
		products: make(map[string]product.Product),
		clients:  make(map[string]client.Client),
		tickets:  make(map[string]coupon.Ticket),
		sales:    make(map[string]sale.Sale),
	}, nil
}

func cloneSale(s sale.Sale) sale.Sale {
	s.Items = slices.Clone(s.Items)
	return s
}

var errTxDone = errors.New("transaction already closed")
