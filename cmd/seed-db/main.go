// Command seed-db loads the product catalog and a default API key into the
// configured store.
package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/db"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	fsstore "github.com/xenking/storefront-checkout/internal/storage/firestore"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

// upsertConcurrency bounds in-flight product writes.
const upsertConcurrency = 8

type options struct {
	store            string
	databaseURL      string
	firestoreProject string
	productsFile     string
	apiKey           string
	apiKeyPepper     string
}

// seedTarget is the write side of a store that seed-db fills.
type seedTarget interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertAPIKey(ctx context.Context, info auth.APIKeyInfo) error
	Close()
}

func main() {
	var opts options
	flag.StringVar(&opts.store, "store", "postgres", "target store: postgres or firestore")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.firestoreProject, "firestore-project", "", "Firestore project id (or GOOGLE_CLOUD_PROJECT env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "products JSON file, optionally gzipped; defaults to the embedded catalog")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()
	opts.fromEnv()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func (o *options) fromEnv() {
	if o.databaseURL == "" {
		o.databaseURL = os.Getenv("DATABASE_URL")
	}
	if o.firestoreProject == "" {
		o.firestoreProject = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if o.apiKey == "" {
		o.apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if o.apiKeyPepper == "" {
		o.apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	if opts.apiKey == "" {
		return errors.New("API key is required: set --api-key or SHOP_SEED_API_KEY")
	}

	catalog, err := loadCatalog(opts.productsFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	lg.Info("Catalog loaded", zap.Int("products", len(catalog)))

	target, err := openTarget(ctx, lg, opts)
	if err != nil {
		return err
	}
	defer target.Close()

	if err := seedProducts(ctx, lg, target, catalog); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := target.UpsertAPIKey(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(opts.apiKeyPepper), opts.apiKey),
		Name:    "Default key",
		Scopes:  []string{auth.ScopeCreateOrder, auth.ScopeReadOrders},
	}); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("Upserted API key", zap.String("id", "default"))
	return nil
}

// loadCatalog reads path, or the embedded catalog when path is empty.
// Files ending in .gz are decompressed.
func loadCatalog(path string) ([]product.Product, error) {
	if path == "" {
		return product.DecodeCatalog(bytes.NewReader(db.SeedProducts))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open products file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return product.DecodeCatalog(r)
}

func seedProducts(ctx context.Context, lg *zap.Logger, target seedTarget, catalog []product.Product) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(upsertConcurrency)
	for _, p := range catalog {
		g.Go(func() error {
			if err := target.UpsertProduct(ctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
			lg.Debug("Upserted product", zap.String("id", p.ID), zap.Int64("stock", p.Stock))
			return nil
		})
	}
	return g.Wait()
}

func openTarget(ctx context.Context, lg *zap.Logger, opts options) (seedTarget, error) {
	switch opts.store {
	case "postgres":
		if opts.databaseURL == "" {
			return nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		pool, err := postgres.NewPool(ctx, opts.databaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "connect to database")
		}
		lg.Info("Running migrations")
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &pgTarget{
			products: postgres.NewProductRepository(pool),
			keys:     postgres.NewAPIKeyRepository(pool),
			close:    pool.Close,
		}, nil
	case "firestore":
		if opts.firestoreProject == "" {
			return nil, errors.New("firestore project is required: set --firestore-project or GOOGLE_CLOUD_PROJECT")
		}
		client, err := fsstore.NewClient(ctx, fsstore.ClientConfig{ProjectID: opts.firestoreProject})
		if err != nil {
			return nil, errors.Wrap(err, "create firestore client")
		}
		return &fsTarget{
			client:   client,
			products: fsstore.NewProductRepository(client),
			keys:     fsstore.NewAPIKeyRepository(client),
		}, nil
	default:
		return nil, errors.Errorf("unknown store %q", opts.store)
	}
}

type pgTarget struct {
	products *postgres.ProductRepository
	keys     *postgres.APIKeyRepository
	close    func()
}

func (t *pgTarget) UpsertProduct(ctx context.Context, p product.Product) error {
	return t.products.Upsert(ctx, p)
}

func (t *pgTarget) UpsertAPIKey(ctx context.Context, info auth.APIKeyInfo) error {
	return t.keys.Upsert(ctx, info)
}

func (t *pgTarget) Close() { t.close() }

type fsTarget struct {
	client   *firestore.Client
	products *fsstore.ProductRepository
	keys     *fsstore.APIKeyRepository
}

func (t *fsTarget) UpsertProduct(ctx context.Context, p product.Product) error {
	return t.products.Upsert(ctx, p)
}

func (t *fsTarget) UpsertAPIKey(ctx context.Context, info auth.APIKeyInfo) error {
	return t.keys.Upsert(ctx, info)
}

func (t *fsTarget) Close() { _ = t.client.Close() }
