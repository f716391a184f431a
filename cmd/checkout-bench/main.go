// Command checkout-bench races concurrent buyers for a single product and
// reports how the commits resolved. Accepted units never exceed the
// starting stock.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	fsstore "github.com/xenking/storefront-checkout/internal/storage/firestore"
	"github.com/xenking/storefront-checkout/internal/storage/memory"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

type options struct {
	store            string
	databaseURL      string
	firestoreProject string
	buyers           int
	stock            int64
	quantity         int64
	maxAttempts      int
}

type result struct {
	accepted  atomic.Int64
	rejected  atomic.Int64
	conflicts atomic.Int64
	failed    atomic.Int64
}

// target is a store prepared with a single benchmark product.
type target struct {
	store    order.Store
	products product.Repository
	upsert   func(ctx context.Context, p product.Product) error
	close    func()
}

func main() {
	var opts options
	flag.StringVar(&opts.store, "store", "memory", "store under test: memory, postgres or firestore")
	flag.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	flag.StringVar(&opts.firestoreProject, "firestore-project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "Firestore project id")
	flag.IntVar(&opts.buyers, "buyers", 100, "concurrent buyers")
	flag.Int64Var(&opts.stock, "stock", 10, "starting stock of the contested product")
	flag.Int64Var(&opts.quantity, "quantity", 1, "units each buyer requests")
	flag.IntVar(&opts.maxAttempts, "max-attempts", memory.DefaultMaxAttempts, "transaction attempts per commit")
	flag.Parse()

	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		return run(ctx, lg, m, opts)
	})
}

func run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, opts options) error {
	t, err := openTarget(ctx, opts)
	if err != nil {
		return err
	}
	defer t.close()

	contested := product.Product{
		ID:       "bench-" + uuid.NewString()[:8],
		Name:     "Benchmark item",
		Price:    decimal.NewFromInt(10),
		Stock:    opts.stock,
		Status:   product.StatusFor(opts.stock),
		SellerID: "bench",
	}
	if err := t.upsert(ctx, contested); err != nil {
		return errors.Wrap(err, "create benchmark product")
	}

	committer, err := order.NewCommitter(t.store, order.CommitterOptions{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create committer")
	}

	lg.Info("Starting benchmark",
		zap.String("store", opts.store),
		zap.String("product_id", contested.ID),
		zap.Int("buyers", opts.buyers),
		zap.Int64("stock", opts.stock),
	)

	var (
		res   result
		start = time.Now()
		g     errgroup.Group
	)
	for i := range opts.buyers {
		g.Go(func() error {
			_, err := committer.Commit(ctx, order.CommitRequest{
				CustomerID:    fmt.Sprintf("buyer-%d", i),
				Items:         []order.LineItem{{ProductID: contested.ID, Quantity: opts.quantity}},
				Billing:       benchBilling,
				PaymentMethod: order.PaymentCard,
			})
			res.record(err)
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	final, err := t.products.GetByID(ctx, contested.ID)
	if err != nil {
		return errors.Wrap(err, "read final stock")
	}

	lg.Info("Benchmark finished",
		zap.Duration("elapsed", elapsed),
		zap.Int64("accepted", res.accepted.Load()),
		zap.Int64("rejected", res.rejected.Load()),
		zap.Int64("conflicts", res.conflicts.Load()),
		zap.Int64("failed", res.failed.Load()),
		zap.Int64("final_stock", final.Stock),
	)

	sold := res.accepted.Load() * opts.quantity
	if sold+final.Stock != opts.stock {
		return errors.Errorf("stock mismatch: sold %d, left %d, started with %d", sold, final.Stock, opts.stock)
	}
	return nil
}

var benchBilling = order.Billing{
	FullName: "Bench Buyer",
	Phone:    "0000000000",
	Email:    "bench@example.com",
	Address:  "1 Bench Street",
}

func (r *result) record(err error) {
	switch {
	case err == nil:
		r.accepted.Add(1)
	case errors.Is(err, order.ErrCommitConflict):
		r.conflicts.Add(1)
	case order.IsRejection(err):
		r.rejected.Add(1)
	default:
		r.failed.Add(1)
	}
}

func openTarget(ctx context.Context, opts options) (*target, error) {
	switch opts.store {
	case "memory":
		s := memory.New(memory.WithMaxAttempts(opts.maxAttempts))
		return &target{
			store:    s,
			products: s.Products(),
			upsert: func(_ context.Context, p product.Product) error {
				s.Seed(p)
				return nil
			},
			close: func() {},
		}, nil
	case "postgres":
		if opts.databaseURL == "" {
			return nil, errors.New("database URL is required for the postgres store")
		}
		pool, err := postgres.NewPool(ctx, opts.databaseURL, postgres.WithMaxConns(int32(min(opts.buyers, 64))))
		if err != nil {
			return nil, errors.Wrap(err, "connect to database")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		products := postgres.NewProductRepository(pool)
		return &target{
			store:    postgres.NewStore(pool, postgres.StoreOptions{MaxAttempts: opts.maxAttempts}),
			products: products,
			upsert:   products.Upsert,
			close:    pool.Close,
		}, nil
	case "firestore":
		if opts.firestoreProject == "" {
			return nil, errors.New("firestore project is required for the firestore store")
		}
		client, err := fsstore.NewClient(ctx, fsstore.ClientConfig{ProjectID: opts.firestoreProject})
		if err != nil {
			return nil, errors.Wrap(err, "create firestore client")
		}
		products := fsstore.NewProductRepository(client)
		return &target{
			store:    fsstore.NewStore(client, opts.maxAttempts),
			products: products,
			upsert:   products.Upsert,
			close:    func() { _ = client.Close() },
		}, nil
	default:
		return nil, errors.Errorf("unknown store %q", opts.store)
	}
}
