package app

import (
	"bytes"
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/db"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/storage/firestore"
	"github.com/xenking/storefront-checkout/internal/storage/memory"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
	"github.com/xenking/storefront-checkout/pkg/health"
)

// poolSaturationRatio marks the API unready once this share of database
// connections is checked out.
const poolSaturationRatio = 0.9

// backend bundles the storage-dependent ports of one configured store.
type backend struct {
	products product.Repository
	orders   order.Repository
	store    order.Store
	apiKeys  auth.Repository
	ping     func(ctx context.Context) error
	// extra readiness checks keyed by name.
	checks map[string]health.CheckFunc
	close  func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	switch cfg.Store {
	case StorePostgres:
		return openPostgres(ctx, cfg)
	case StoreFirestore:
		return openFirestore(ctx, cfg)
	case StoreMemory:
		return openMemory(ctx, lg, cfg)
	default:
		return nil, errors.Errorf("unknown store %q", cfg.Store)
	}
}

func openPostgres(ctx context.Context, cfg *Config) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithMaxConns(cfg.DBMaxConns))
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &backend{
		products: postgres.NewProductRepository(pool),
		orders:   postgres.NewOrderRepository(pool),
		store:    postgres.NewStore(pool, postgres.StoreOptions{MaxAttempts: cfg.Checkout.MaxAttempts}),
		apiKeys:  postgres.NewAPIKeyRepository(pool),
		ping:     pool.Ping,
		checks: map[string]health.CheckFunc{
			"postgres_pool": health.PoolSaturationCheck(func() (int64, int64) {
				st := pool.Stat()
				return int64(st.AcquiredConns()), int64(st.MaxConns())
			}, poolSaturationRatio),
		},
		close: pool.Close,
	}, nil
}

func openFirestore(ctx context.Context, cfg *Config) (*backend, error) {
	client, err := firestore.NewClient(ctx, firestore.ClientConfig{
		ProjectID:       cfg.Firestore.ProjectID,
		CredentialsFile: cfg.Firestore.CredentialsFile,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create firestore client")
	}

	return &backend{
		products: firestore.NewProductRepository(client),
		orders:   firestore.NewOrderRepository(client),
		store:    firestore.NewStore(client, cfg.Checkout.MaxAttempts),
		apiKeys:  firestore.NewAPIKeyRepository(client),
		ping:     func(ctx context.Context) error { return firestore.Ping(ctx, client) },
		close:    func() { _ = client.Close() },
	}, nil
}

// openMemory starts an in-process store seeded with the embedded catalog.
func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	catalog, err := product.DecodeCatalog(bytes.NewReader(db.SeedProducts))
	if err != nil {
		return nil, errors.Wrap(err, "load embedded catalog")
	}
	store := memory.New(memory.WithMaxAttempts(cfg.Checkout.MaxAttempts))
	store.Seed(catalog...)

	keys := memory.NewAPIKeyRepository()
	if cfg.SeedAPIKey != "" {
		if err := keys.Upsert(ctx, auth.APIKeyInfo{
			ID:      "default",
			KeyHash: auth.HashKey([]byte(cfg.APIKeyPepper), cfg.SeedAPIKey),
			Name:    "Default key",
			Scopes:  []string{auth.ScopeCreateOrder, auth.ScopeReadOrders},
		}); err != nil {
			return nil, errors.Wrap(err, "register api key")
		}
	}
	lg.Warn("Using in-memory store, data is lost on exit", zap.Int("products", len(catalog)))

	return &backend{
		products: store.Products(),
		orders:   store.Orders(),
		store:    store,
		apiKeys:  keys,
		ping:     func(context.Context) error { return nil },
		close:    func() {},
	}, nil
}
