// Package memory is an in-process implementation of the product catalog,
// order repository and commit transaction store.
//
// Transactions are optimistic: every read records the version of the
// document it saw, writes are buffered, and commit validates under a single
// lock that none of the read versions moved. A failed validation retries the
// whole attempt, so overlapping transactions resolve first-committer-wins
// while disjoint ones never wait on each other beyond the commit critical
// section.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// DefaultMaxAttempts bounds the attempts of one RunInTx call.
const DefaultMaxAttempts = 5

var (
	_ order.Store        = (*Store)(nil)
	_ order.Repository   = (*OrderRepository)(nil)
	_ product.Repository = (*ProductRepository)(nil)
)

// errStale marks an attempt whose reads were invalidated by another commit.
var errStale = errors.New("stale read")

type productDoc struct {
	p       product.Product
	version uint64
}

type idemKey struct {
	customerID string
	key        string
}

type idemDoc struct {
	orderID string
	version uint64
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts sets the attempt budget of a transaction.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides the clock used for order timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBeforeCommit installs a hook run after a transaction function
// succeeded and before its writes are validated.
func WithBeforeCommit(fn func()) Option {
	return func(s *Store) { s.beforeCommit = fn }
}

// Store keeps products and orders in memory.
type Store struct {
	mu       sync.Mutex
	seq      uint64
	products map[string]*productDoc
	orders   map[string]order.Order
	idem     map[idemKey]*idemDoc
	last     time.Time

	maxAttempts  int
	now          func() time.Time
	beforeCommit func()
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		products:    make(map[string]*productDoc),
		orders:      make(map[string]order.Order),
		idem:        make(map[idemKey]*idemDoc),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Seed inserts or replaces catalog products. The status flag is derived
// from the stock counter.
func (s *Store) Seed(products ...product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		p.Status = product.StatusFor(p.Stock)
		s.seq++
		s.products[p.ID] = &productDoc{p: p, version: s.seq}
	}
}

// Remove deletes a product from the catalog.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.products, id)
}

// Products returns the catalog view of the store.
func (s *Store) Products() *ProductRepository {
	return &ProductRepository{s: s}
}

// Orders returns the order view of the store.
func (s *Store) Orders() *OrderRepository {
	return &OrderRepository{s: s}
}

// OrderCount returns the number of committed orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.orders)
}

// RunInTx implements order.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := newTx(s)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit()
		}
		err := s.commit(tx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errStale) {
			return err
		}
		lastErr = err
	}
	return &order.ConflictError{Attempts: s.maxAttempts, Err: lastErr}
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, seen := range tx.productReads {
		var current uint64
		if d, ok := s.products[id]; ok {
			current = d.version
		}
		if current != seen {
			return errors.Wrapf(errStale, "product %s", id)
		}
	}
	for k, seen := range tx.idemReads {
		var current uint64
		if d, ok := s.idem[k]; ok {
			current = d.version
		}
		if current != seen {
			return errors.Wrapf(errStale, "idempotency key %s", k.key)
		}
	}

	for id := range tx.stockWrites {
		if _, ok := s.products[id]; !ok {
			return errors.Errorf("write to missing product %s", id)
		}
	}
	for _, o := range tx.inserts {
		if _, ok := s.orders[o.ID]; ok {
			return errors.Errorf("order %s already exists", o.ID)
		}
	}

	for id, stock := range tx.stockWrites {
		d := s.products[id]
		s.seq++
		d.p.Stock = stock
		d.p.Status = product.StatusFor(stock)
		d.version = s.seq
	}
	for _, o := range tx.inserts {
		o.CreatedAt = s.timestamp()
		s.orders[o.ID] = cloneOrder(*o)
		if o.IdempotencyKey != "" {
			s.seq++
			s.idem[idemKey{o.CustomerID, o.IdempotencyKey}] = &idemDoc{orderID: o.ID, version: s.seq}
		}
	}
	return nil
}

// timestamp returns a creation time strictly after the previous one.
func (s *Store) timestamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func cloneOrder(o order.Order) order.Order {
	o.Items = append([]order.LineItem(nil), o.Items...)
	return o
}
