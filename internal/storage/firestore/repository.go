package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/go-faster/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ order.Repository   = (*OrderRepository)(nil)
	_ auth.Repository    = (*APIKeyRepository)(nil)
)

// ProductRepository implements product.Repository backed by Firestore.
type ProductRepository struct {
	client *firestore.Client
}

// NewProductRepository returns a ProductRepository over client.
func NewProductRepository(client *firestore.Client) *ProductRepository {
	return &ProductRepository{client: client}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	snap, err := r.client.Collection(productsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	var d productDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding product %q: %w", id, err)
	}
	p, err := fromProductDoc(id, d)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	col := r.client.Collection(productsCollection)
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = col.Doc(id)
	}

	snaps, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}

	out := make([]product.Product, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var d productDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decoding product %q: %w", snap.Ref.ID, err)
		}
		p, err := fromProductDoc(snap.Ref.ID, d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Upsert creates a catalog product or refreshes the name, price and seller
// of an existing one. Stock and status of an existing document are only
// ever written by checkout transactions.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	ref := r.client.Collection(productsCollection).Doc(p.ID)
	doc := toProductDoc(p)

	_, err := ref.Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		_, err = ref.Set(ctx, catalogFields(doc), firestore.MergeAll)
	}
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// OrderRepository implements order.Repository backed by Firestore.
type OrderRepository struct {
	client *firestore.Client
}

// NewOrderRepository returns an OrderRepository over client.
func NewOrderRepository(client *firestore.Client) *OrderRepository {
	return &OrderRepository{client: client}
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	snap, err := r.client.Collection(ordersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return decodeOrder(snap)
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return r.list(ctx, "userId", customerID)
}

// ListBySeller returns orders whose primary seller is sellerID, newest first.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string) ([]order.Order, error) {
	return r.list(ctx, "shopId", sellerID)
}

func (r *OrderRepository) list(ctx context.Context, field, value string) ([]order.Order, error) {
	it := r.client.Collection(ordersCollection).
		Where(field, "==", value).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)
	defer it.Stop()

	out := make([]order.Order, 0)
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing orders by %s: %w", field, err)
		}
		o, err := decodeOrder(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

// APIKeyRepository provides API key lookups backed by Firestore.
type APIKeyRepository struct {
	client *firestore.Client
}

// NewAPIKeyRepository returns an APIKeyRepository over client.
func NewAPIKeyRepository(client *firestore.Client) *APIKeyRepository {
	return &APIKeyRepository{client: client}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	it := r.client.Collection(apiKeysCollection).
		Where("keyHash", "==", hash).
		Where("active", "==", true).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return nil, fmt.Errorf("api key not found: %w", auth.ErrUnknownKey)
	}
	if err != nil {
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}

	var d apiKeyDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding api key %q: %w", snap.Ref.ID, err)
	}
	return &auth.APIKeyInfo{
		ID:      snap.Ref.ID,
		KeyHash: d.KeyHash,
		Name:    d.Name,
		Scopes:  d.Scopes,
	}, nil
}

// Upsert stores an active API key.
func (r *APIKeyRepository) Upsert(ctx context.Context, info auth.APIKeyInfo) error {
	_, err := r.client.Collection(apiKeysCollection).Doc(info.ID).Set(ctx, apiKeyDoc{
		KeyHash: info.KeyHash,
		Name:    info.Name,
		Scopes:  info.Scopes,
		Active:  true,
	})
	if err != nil {
		return fmt.Errorf("upserting api key %q: %w", info.ID, err)
	}
	return nil
}
