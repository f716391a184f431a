package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

func seeded(opts ...Option) *Store {
	s := New(opts...)
	s.Seed(
		product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 3, SellerID: "shop-1"},
		product.Product{ID: "B", Name: "Mug", Price: decimal.NewFromInt(50), Stock: 0, SellerID: "shop-2"},
	)
	return s
}

func TestSeed_DerivesStatus(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	a, err := s.Products().GetByID(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, product.StatusActive, a.Status)

	b, err := s.Products().GetByID(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, product.StatusOutOfStock, b.Status)

	_, err = s.Products().GetByID(ctx, "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestRunInTx_AppliesWrites(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx order.Tx) error {
		current, err := tx.LockProducts(ctx, []string{"A"})
		require.NoError(t, err)
		require.NoError(t, tx.SetStock(ctx, "A", current["A"].Stock-3))
		return tx.InsertOrder(ctx, &order.Order{ID: "o1", CustomerID: "c1", SellerID: "shop-1"})
	})
	require.NoError(t, err)

	a, err := s.Products().GetByID(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Stock)
	assert.Equal(t, product.StatusOutOfStock, a.Status)

	o, err := s.Orders().GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, o.CreatedAt.IsZero())
}

func TestRunInTx_FunctionErrorDiscardsWrites(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context, tx order.Tx) error {
		_, _ = tx.LockProducts(ctx, []string{"A"})
		_ = tx.SetStock(ctx, "A", 0)
		_ = tx.InsertOrder(ctx, &order.Order{ID: "o1"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := s.Products().GetByID(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.Stock)
	assert.Equal(t, 0, s.OrderCount())
}

func TestRunInTx_RetriesStaleRead(t *testing.T) {
	var s *Store
	interfered := false
	s = seeded(WithBeforeCommit(func() {
		// One concurrent writer lands between read and commit.
		if !interfered {
			interfered = true
			s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 1, SellerID: "shop-1"})
		}
	}))
	ctx := context.Background()

	attempts := 0
	var seen int64
	err := s.RunInTx(ctx, func(ctx context.Context, tx order.Tx) error {
		attempts++
		current, err := tx.LockProducts(ctx, []string{"A"})
		if err != nil {
			return err
		}
		seen = current["A"].Stock
		return tx.SetStock(ctx, "A", seen-1)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(1), seen, "second attempt must observe the interfering write")

	a, err := s.Products().GetByID(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Stock)
}

func TestRunInTx_ConflictAfterMaxAttempts(t *testing.T) {
	var s *Store
	s = seeded(
		WithMaxAttempts(3),
		WithBeforeCommit(func() {
			s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 3, SellerID: "shop-1"})
		}),
	)
	ctx := context.Background()

	attempts := 0
	err := s.RunInTx(ctx, func(ctx context.Context, tx order.Tx) error {
		attempts++
		_, err := tx.LockProducts(ctx, []string{"A"})
		if err != nil {
			return err
		}
		return tx.SetStock(ctx, "A", 0)
	})
	require.ErrorIs(t, err, order.ErrCommitConflict)
	assert.Equal(t, 3, attempts)

	var conflict *order.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, conflict.Attempts)
}

func TestRunInTx_CancelledContext(t *testing.T) {
	s := seeded()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunInTx(ctx, func(context.Context, order.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestOrderRepository_ListsNewestFirst(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tick := 0
	s := seeded(WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))
	ctx := context.Background()

	for _, o := range []order.Order{
		{ID: "o1", CustomerID: "c1", SellerID: "shop-1"},
		{ID: "o2", CustomerID: "c2", SellerID: "shop-1"},
		{ID: "o3", CustomerID: "c1", SellerID: "shop-2"},
	} {
		err := s.RunInTx(ctx, func(ctx context.Context, tx order.Tx) error {
			return tx.InsertOrder(ctx, &o)
		})
		require.NoError(t, err)
	}

	byCustomer, err := s.Orders().ListByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, byCustomer, 2)
	assert.Equal(t, "o3", byCustomer[0].ID)
	assert.Equal(t, "o1", byCustomer[1].ID)

	bySeller, err := s.Orders().ListBySeller(ctx, "shop-1")
	require.NoError(t, err)
	require.Len(t, bySeller, 2)
	assert.Equal(t, "o2", bySeller[0].ID)

	_, err = s.Orders().GetByID(ctx, "nope")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestTimestamp_Monotonic(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return fixed }))

	first := s.timestamp()
	second := s.timestamp()
	assert.True(t, second.After(first))
}

func TestAPIKeyRepository_Upsert(t *testing.T) {
	r := NewAPIKeyRepository()
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, auth.APIKeyInfo{ID: "default", KeyHash: "aa"}))
	require.NoError(t, r.Upsert(ctx, auth.APIKeyInfo{ID: "default", KeyHash: "bb"}))

	_, err := r.FindByHash(ctx, "aa")
	require.ErrorIs(t, err, auth.ErrUnknownKey)

	info, err := r.FindByHash(ctx, "bb")
	require.NoError(t, err)
	assert.Equal(t, "default", info.ID)
}
