package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// DefaultMaxAttempts bounds the attempts of one RunInTx call.
const DefaultMaxAttempts = 5

// Postgres error codes that mean "run the transaction again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

const idempotencyIndex = "orders_idempotency_idx"

var _ order.Store = (*Store)(nil)

// StoreOptions configures Store retries. Zero fields take defaults.
type StoreOptions struct {
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
}

func (o *StoreOptions) setDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 10 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 250 * time.Millisecond
	}
}

// Store runs commit transactions at SERIALIZABLE isolation. Product rows are
// additionally locked with SELECT ... FOR UPDATE in id order, so concurrent
// checkouts over the same products queue on the row lock instead of failing
// late at commit.
type Store struct {
	pool *pgxpool.Pool
	opts StoreOptions
}

// NewStore returns a Store over pool.
func NewStore(pool *pgxpool.Pool, opts StoreOptions) *Store {
	opts.setDefaults()
	return &Store{pool: pool, opts: opts}
}

// RunInTx implements order.Store. Serialization failures, deadlocks and
// idempotency-key races are retried with exponential backoff; once the
// attempt budget is spent the last failure is returned as an
// *order.ConflictError.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.attempt(ctx, fn)
		if err != nil && !isRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil && isRetryable(err) {
		return &order.ConflictError{Attempts: attempts, Err: err}
	}
	return err
}

func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isRetryable reports whether err is a transient conflict between
// concurrent transactions.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	case codeUniqueViolation:
		// A concurrent submission with the same key won; the next attempt
		// replays its order.
		return pgErr.ConstraintName == idempotencyIndex
	default:
		return false
	}
}
