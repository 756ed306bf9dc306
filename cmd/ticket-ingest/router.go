package main

import (
	"context"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"

	"github.com/xenking/pos-engine/internal/domain/coupon"
)

// ticketWriter is implemented by *repository.Catalog.
type ticketWriter interface {
	CopyTickets(ctx context.Context, tickets []coupon.Ticket) (int64, error)
	UpsertTickets(ctx context.Context, tickets []coupon.Ticket) error
}

// router sends tickets whose code is certainly new to COPY and the rest to an
// upsert. The bloom filter holds every stored code plus every code routed so
// far, so a false positive only costs an upsert.
type router struct {
	w         ticketWriter
	filter    *bloom.BloomFilter
	batchSize int

	fresh  []coupon.Ticket
	known  []coupon.Ticket
	copied int64
	merged int64
}

func newRouter(w ticketWriter, filter *bloom.BloomFilter, batchSize int) *router {
	return &router{w: w, filter: filter, batchSize: max(batchSize, 1)}
}

func (r *router) add(ctx context.Context, t coupon.Ticket) error {
	if r.filter.TestOrAddString(t.Code) {
		r.known = append(r.known, t)
		if len(r.known) >= r.batchSize {
			return r.flushKnown(ctx)
		}
		return nil
	}
	r.fresh = append(r.fresh, t)
	if len(r.fresh) >= r.batchSize {
		return r.flushFresh(ctx)
	}
	return nil
}

func (r *router) flushFresh(ctx context.Context) error {
	if len(r.fresh) == 0 {
		return nil
	}
	n, err := r.w.CopyTickets(ctx, r.fresh)
	if err != nil {
		return errors.Wrap(err, "copy")
	}
	r.copied += n
	r.fresh = r.fresh[:0]
	return nil
}

// flushKnown upserts pending duplicates. A duplicate may refer to a code
// still waiting in the COPY batch, which therefore has to land first.
func (r *router) flushKnown(ctx context.Context) error {
	if len(r.known) == 0 {
		return nil
	}
	if err := r.flushFresh(ctx); err != nil {
		return err
	}
	if err := r.w.UpsertTickets(ctx, r.known); err != nil {
		return errors.Wrap(err, "upsert")
	}
	r.merged += int64(len(r.known))
	r.known = r.known[:0]
	return nil
}

func (r *router) flush(ctx context.Context) error {
	if err := r.flushFresh(ctx); err != nil {
		return err
	}
	return r.flushKnown(ctx)
}
