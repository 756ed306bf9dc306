// Package txn runs units of work inside store transactions and retries them
// when the store reports a transient serialization conflict.
package txn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// IsoLevel is a transaction isolation level.
type IsoLevel string

const (
	Serializable   IsoLevel = "serializable"
	RepeatableRead IsoLevel = "repeatable read"
	ReadCommitted  IsoLevel = "read committed"
)

// ParseIsoLevel parses a configured isolation level. Case and surrounding
// blanks are ignored; "_" and "-" are accepted in place of spaces.
func ParseIsoLevel(s string) (IsoLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	switch l := IsoLevel(s); l {
	case Serializable, RepeatableRead, ReadCommitted:
		return l, nil
	case "":
		return Serializable, nil
	default:
		return "", errors.Errorf("unknown isolation level %q", s)
	}
}

// TxOptions are passed to Beginner.Begin for every attempt.
type TxOptions struct {
	Isolation IsoLevel
}

// Handle is an open transaction.
type Handle interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner opens transactions of type H.
type Beginner[H Handle] interface {
	Begin(ctx context.Context, opts TxOptions) (H, error)
}

var (
	// ErrSerialization marks a transient conflict reported by a store that is
	// not PostgreSQL (for example the in-memory store used in tests).
	ErrSerialization = errors.New("serialization failure")
	// ErrConflict is matched by the error returned once retries are exhausted.
	ErrConflict = errors.New("transaction conflict")
)

// ConflictError is returned when every attempt ended in a transient conflict.
type ConflictError struct {
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("transaction conflict after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Options configure an Executor.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the first backoff step.
	BaseDelay time.Duration
	// MaxDelay caps the exponential part of the backoff. Zero leaves it to
	// grow up to an hour.
	MaxDelay  time.Duration
	Isolation IsoLevel
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  50 * time.Millisecond,
		Isolation:  Serializable,
	}
}

func (o *Options) setDefaults() {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 50 * time.Millisecond
	}
	if o.Isolation == "" {
		o.Isolation = Serializable
	}
}
