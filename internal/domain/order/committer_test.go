package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/storage/memory"
)

// --- Helpers ---

var testBilling = order.Billing{
	FullName: "Asha Rao",
	Phone:    "+91 98000 00000",
	Email:    "asha@example.com",
	Address:  "12 MG Road, Bengaluru",
}

func newCommitter(t *testing.T, store order.Store) *order.Committer {
	t.Helper()

	c, err := order.NewCommitter(store, order.CommitterOptions{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  noop.NewMeterProvider(),
	})
	require.NoError(t, err)
	return c
}

func item(id string, qty int64) order.LineItem {
	return order.LineItem{ProductID: id, Quantity: qty}
}

func commitReq(customer string, items ...order.LineItem) order.CommitRequest {
	return order.CommitRequest{
		CustomerID:    customer,
		Items:         items,
		Billing:       testBilling,
		PaymentMethod: order.PaymentCard,
	}
}

func stockOf(t *testing.T, s *memory.Store, id string) int64 {
	t.Helper()

	p, err := s.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

type failingStore struct {
	err error
}

func (f failingStore) RunInTx(context.Context, func(context.Context, order.Tx) error) error {
	return f.err
}

// --- Tests ---

func TestCommit_SingleUnitWithDeliveryFee(t *testing.T) {
	s := memory.New()
	s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 1, SellerID: "shop-1"})
	c := newCommitter(t, s)

	o, err := c.Commit(context.Background(), commitReq("cust-1", item("A", 1)))
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, decimal.NewFromInt(150).Equal(o.TotalAmount), "total %s", o.TotalAmount)
	assert.True(t, decimal.NewFromInt(50).Equal(o.DeliveryCharge))
	assert.True(t, decimal.NewFromInt(100).Equal(o.ItemsTotal))
	assert.Equal(t, "shop-1", o.SellerID)
	assert.False(t, o.CreatedAt.IsZero())

	assert.Equal(t, int64(0), stockOf(t, s, "A"))
	p, err := s.Products().GetByID(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, product.StatusOutOfStock, p.Status)
}

func TestCommit_MultiLineFreeDelivery(t *testing.T) {
	s := memory.New()
	s.Seed(
		product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 5, SellerID: "shop-1"},
		product.Product{ID: "B", Name: "Mug", Price: decimal.NewFromInt(50), Stock: 5, SellerID: "shop-2"},
	)
	c := newCommitter(t, s)

	o, err := c.Commit(context.Background(), commitReq("cust-1", item("A", 2), item("B", 1)))
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(250).Equal(o.TotalAmount), "total %s", o.TotalAmount)
	assert.True(t, o.DeliveryCharge.IsZero())
	assert.Equal(t, int64(3), stockOf(t, s, "A"))
	assert.Equal(t, int64(4), stockOf(t, s, "B"))
	assert.Equal(t, 1, s.OrderCount())

	stored, err := s.Orders().GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "Kettle", stored.Items[0].Name)
	assert.Equal(t, "shop-2", stored.Items[1].SellerID)
	assert.Equal(t, testBilling, stored.Billing)
}

func TestCommit_InsufficientStockIsAllOrNothing(t *testing.T) {
	s := memory.New()
	s.Seed(
		product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 5, SellerID: "shop-1"},
		product.Product{ID: "B", Name: "Mug", Price: decimal.NewFromInt(50), Stock: 1, SellerID: "shop-2"},
	)
	c := newCommitter(t, s)

	_, err := c.Commit(context.Background(), commitReq("cust-1", item("A", 2), item("B", 2)))

	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "B", stockErr.ProductID)
	assert.Equal(t, int64(2), stockErr.Requested)
	assert.Equal(t, int64(1), stockErr.Available)

	assert.Equal(t, int64(5), stockOf(t, s, "A"), "sufficient line must not be decremented")
	assert.Equal(t, int64(1), stockOf(t, s, "B"))
	assert.Zero(t, s.OrderCount())
}

func TestCommit_ProductGone(t *testing.T) {
	s := memory.New()
	s.Seed(
		product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 5, SellerID: "shop-1"},
		product.Product{ID: "B", Name: "Mug", Price: decimal.NewFromInt(50), Stock: 5, SellerID: "shop-2"},
	)
	c := newCommitter(t, s)

	// Resolved earlier, then deleted before commit.
	s.Remove("B")

	_, err := c.Commit(context.Background(), commitReq("cust-1", item("A", 1), item("B", 1)))

	var goneErr *order.ProductGoneError
	require.ErrorAs(t, err, &goneErr)
	assert.Equal(t, "B", goneErr.ProductID)
	assert.True(t, order.IsRejection(err))
	assert.Equal(t, int64(5), stockOf(t, s, "A"))
	assert.Zero(t, s.OrderCount())
}

func TestCommit_UsesLedgerPriceNotCallerPrice(t *testing.T) {
	s := memory.New()
	s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 5, SellerID: "shop-1"})
	c := newCommitter(t, s)

	forged := order.LineItem{ProductID: "A", Name: "Kettle", UnitPrice: decimal.NewFromInt(1), Quantity: 3}
	o, err := c.Commit(context.Background(), commitReq("cust-1", forged))
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(100).Equal(o.Items[0].UnitPrice))
	assert.True(t, decimal.NewFromInt(300).Equal(o.TotalAmount))
}

func TestCommit_InvalidInput(t *testing.T) {
	c := newCommitter(t, memory.New())

	_, err := c.Commit(context.Background(), commitReq("cust-1"))
	require.ErrorIs(t, err, order.ErrEmptyCart)

	_, err = c.Commit(context.Background(), commitReq("cust-1", item("A", -1)))
	var iqErr *order.InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
}

func TestCommit_LastUnitRace(t *testing.T) {
	s := memory.New()
	s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 1, SellerID: "shop-1"})
	c := newCommitter(t, s)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
		plced = make([]*order.Order, 2)
	)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			plced[i], errs[i] = c.Commit(context.Background(), commitReq("cust", item("A", 1)))
		}()
	}
	close(start)
	wg.Wait()

	var (
		wins     int
		stockErr *order.InsufficientStockError
	)
	for i := range 2 {
		if errs[i] == nil {
			wins++
			assert.True(t, decimal.NewFromInt(150).Equal(plced[i].TotalAmount))
			continue
		}
		require.ErrorAs(t, errs[i], &stockErr)
		assert.Equal(t, "A", stockErr.ProductID)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(0), stockOf(t, s, "A"))
	assert.Equal(t, 1, s.OrderCount())
}

func TestCommit_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	const (
		initialStock = 20
		buyers       = 50
	)
	s := memory.New(memory.WithMaxAttempts(100))
	s.Seed(
		product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: initialStock, SellerID: "shop-1"},
		product.Product{ID: "B", Name: "Mug", Price: decimal.NewFromInt(50), Stock: 1000, SellerID: "shop-2"},
	)
	c := newCommitter(t, s)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			qty := int64(i%2 + 1)
			_, err := c.Commit(context.Background(), commitReq("cust", item("A", qty), item("B", 1)))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted += int(qty)
			case order.IsRejection(err):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	stockA := stockOf(t, s, "A")
	assert.GreaterOrEqual(t, stockA, int64(0))
	assert.Equal(t, int64(initialStock), stockA+int64(accepted), "every sold unit accounted for")
	assert.Equal(t, int64(1000-s.OrderCount()), stockOf(t, s, "B"))
	assert.Positive(t, rejected)
}

func TestCommit_DisjointProductsDoNotConflict(t *testing.T) {
	s := memory.New(memory.WithMaxAttempts(1))
	s.Seed(
		product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 100, SellerID: "shop-1"},
		product.Product{ID: "B", Name: "Mug", Price: decimal.NewFromInt(50), Stock: 100, SellerID: "shop-2"},
	)
	c := newCommitter(t, s)

	// With a single attempt, any cross-product interference would surface
	// as a conflict.
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "A"
			if i%2 == 1 {
				id = "B"
			}
			_, err := c.Commit(context.Background(), commitReq("cust", item(id, 1)))
			if errors.Is(err, order.ErrCommitConflict) {
				// Same-product contention can still conflict; only check
				// that nothing was lost.
				return
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200), stockOf(t, s, "A")+stockOf(t, s, "B")+int64(s.OrderCount()))
}

func TestCommit_ConflictExhaustion(t *testing.T) {
	var s *memory.Store
	s = memory.New(
		memory.WithMaxAttempts(3),
		memory.WithBeforeCommit(func() {
			// A restock lands between every read and commit.
			s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 5, SellerID: "shop-1"})
		}),
	)
	s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 5, SellerID: "shop-1"})
	c := newCommitter(t, s)

	_, err := c.Commit(context.Background(), commitReq("cust-1", item("A", 1)))
	require.ErrorIs(t, err, order.ErrCommitConflict)
	assert.False(t, order.IsRejection(err))
	assert.Equal(t, int64(5), stockOf(t, s, "A"))
	assert.Zero(t, s.OrderCount())
}

func TestCommit_IdempotencyKeyReplaysOrder(t *testing.T) {
	s := memory.New()
	s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 5, SellerID: "shop-1"})
	c := newCommitter(t, s)

	req := commitReq("cust-1", item("A", 1))
	req.IdempotencyKey = "checkout-7f3c"

	first, err := c.Commit(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Commit(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(4), stockOf(t, s, "A"))
	assert.Equal(t, 1, s.OrderCount())

	// The key is scoped to the customer.
	other := commitReq("cust-2", item("A", 1))
	other.IdempotencyKey = "checkout-7f3c"
	third, err := c.Commit(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestCommit_ConcurrentDuplicateSubmission(t *testing.T) {
	s := memory.New(memory.WithMaxAttempts(20))
	s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(100), Stock: 10, SellerID: "shop-1"})
	c := newCommitter(t, s)

	req := commitReq("cust-1", item("A", 1))
	req.IdempotencyKey = "double-click"

	var (
		wg  sync.WaitGroup
		ids = make([]string, 5)
	)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := c.Commit(context.Background(), req)
			if assert.NoError(t, err) {
				ids[i] = o.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int64(9), stockOf(t, s, "A"))
	assert.Equal(t, 1, s.OrderCount())
}

func TestCommit_StoreError(t *testing.T) {
	c := newCommitter(t, failingStore{err: errors.New("connection refused")})

	_, err := c.Commit(context.Background(), commitReq("cust-1", item("A", 1)))
	require.Error(t, err)
	assert.False(t, order.IsRejection(err))
	assert.NotErrorIs(t, err, order.ErrCommitConflict)
}

func TestCommit_CustomDeliveryPolicy(t *testing.T) {
	s := memory.New()
	s.Seed(product.Product{ID: "A", Name: "Kettle", Price: decimal.RequireFromString("19.99"), Stock: 10, SellerID: "shop-1"})
	c, err := order.NewCommitter(s, order.CommitterOptions{
		Delivery:       order.DeliveryPolicy{FlatFee: decimal.RequireFromString("4.50"), FreeFromItems: 5},
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  noop.NewMeterProvider(),
	})
	require.NoError(t, err)

	o, err := c.Commit(context.Background(), commitReq("cust-1", item("A", 4)))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("84.46").Equal(o.TotalAmount), "total %s", o.TotalAmount)
}
