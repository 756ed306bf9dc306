package txn

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	uncappedBackoff = time.Hour
)

// Executor runs work functions in transactions and retries transient
// conflicts with exponential backoff and jitter.
type Executor struct {
	opts Options

	retries   metric.Int64Counter
	exhausted metric.Int64Counter

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n time.Duration) time.Duration
}

// NewExecutor creates an Executor. Counters are registered on meter.
func NewExecutor(opts Options, meter metric.Meter) (*Executor, error) {
	opts.setDefaults()

	retries, err := meter.Int64Counter("txn.retries",
		metric.WithDescription("Transaction attempts retried after a serialization conflict"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create retries counter")
	}
	exhausted, err := meter.Int64Counter("txn.conflicts.exhausted",
		metric.WithDescription("Transactions abandoned after exhausting retries"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create exhausted counter")
	}

	return &Executor{
		opts:      opts,
		retries:   retries,
		exhausted: exhausted,
		sleep:     sleepContext,
		jitter:    func(n time.Duration) time.Duration { return rand.N(n) },
	}, nil
}

// Options returns the effective executor options.
func (e *Executor) Options() Options { return e.opts }

// IsTransient reports whether err is a serialization failure or deadlock
// that warrants retrying the whole transaction.
func IsTransient(err error) bool {
	if errors.Is(err, ErrSerialization) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

// Run executes work inside a transaction opened by db, committing on success.
//
// A transient conflict reported by work or by commit discards the attempt and
// runs work again in a new transaction after a backoff. Any other error is
// returned unchanged. After MaxRetries retries the last conflict is returned
// as a *ConflictError. Work must therefore be safe to re-run: every write it
// performs has to go through the transaction handle.
func Run[H Handle, T any](ctx context.Context, e *Executor, db Beginner[H], work func(ctx context.Context, tx H) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := runOnce(ctx, e.opts.Isolation, db, work)
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if attempt >= e.opts.MaxRetries {
			e.exhausted.Add(ctx, 1)
			return zero, &ConflictError{Attempts: attempt + 1, Err: err}
		}

		delay := e.backoff(attempt)
		e.retries.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt+1)))
		zctx.From(ctx).Warn("Retrying transaction after conflict",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func runOnce[H Handle, T any](ctx context.Context, iso IsoLevel, db Beginner[H], work func(ctx context.Context, tx H) (T, error)) (T, error) {
	var zero T
	tx, err := db.Begin(ctx, TxOptions{Isolation: iso})
	if err != nil {
		return zero, errors.Wrap(err, "begin")
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback must run even when ctx is already cancelled.
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
			zctx.From(ctx).Debug("Rollback failed", zap.Error(err))
		}
	}()

	v, err := work(ctx, tx)
	if err != nil {
		return zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, errors.Wrap(err, "commit")
	}
	committed = true
	return v, nil
}

// backoff returns min(BaseDelay*2^attempt, MaxDelay) plus a uniform jitter
// in [0, BaseDelay). Without MaxDelay the exponential part stops at
// uncappedBackoff.
func (e *Executor) backoff(attempt int) time.Duration {
	base := e.opts.BaseDelay
	limit := e.opts.MaxDelay
	if limit <= 0 {
		limit = uncappedBackoff
	}
	d := limit
	if attempt < 63 && base <= limit>>attempt {
		d = base << attempt
	}
	return d + e.jitter(base)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
