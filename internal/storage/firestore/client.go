// Package firestore stores the catalog, the stock ledger and orders in
// Cloud Firestore. Commit transactions use Firestore's optimistic
// transactions: reads are tracked and the commit aborts if any read
// document changed, after which the client library reruns the attempt.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/go-faster/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Collection names.
const (
	productsCollection    = "products"
	ordersCollection      = "orders"
	idempotencyCollection = "order_idempotency"
	apiKeysCollection     = "api_keys"
)

// ClientConfig selects the Firestore project. When FIRESTORE_EMULATOR_HOST is
// set in the environment the client library connects to the emulator.
type ClientConfig struct {
	ProjectID       string
	CredentialsFile string
}

// NewClient creates a Firestore client for cfg.
func NewClient(ctx context.Context, cfg ClientConfig) (*firestore.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client (project=%s): %w", cfg.ProjectID, err)
	}
	return client, nil
}

// Ping checks that the products collection is readable.
func Ping(ctx context.Context, client *firestore.Client) error {
	it := client.Collection(productsCollection).Limit(1).Documents(ctx)
	defer it.Stop()

	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}
