package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

var _ order.Tx = (*fsTx)(nil)

type fsTx struct {
	s  *Store
	tx *firestore.Transaction

	// inserted is the order created by this attempt, if any.
	inserted *order.Order
}

func (t *fsTx) LockProducts(_ context.Context, ids []string) (map[string]product.Product, error) {
	col := t.s.client.Collection(productsCollection)
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = col.Doc(id)
	}

	snaps, err := t.tx.GetAll(refs)
	if err != nil {
		return nil, fmt.Errorf("reading products: %w", err)
	}

	out := make(map[string]product.Product, len(snaps))
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
		out[p.ID] = p
	}
	return out, nil
}

func (t *fsTx) SetStock(_ context.Context, productID string, stock int64) error {
	ref := t.s.client.Collection(productsCollection).Doc(productID)
	err := t.tx.Update(ref, []firestore.Update{
		{Path: "stock", Value: stock},
		{Path: "status", Value: string(product.StatusFor(stock))},
	})
	if err != nil {
		return fmt.Errorf("setting stock of %q: %w", productID, err)
	}
	return nil
}

func (t *fsTx) FindOrderByIdempotencyKey(_ context.Context, customerID, key string) (*order.Order, error) {
	ref := t.s.client.Collection(idempotencyCollection).Doc(idempotencyDocID(customerID, key))
	snap, err := t.tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("reading idempotency key: %w", err)
	}

	var idem idempotencyDoc
	if err := snap.DataTo(&idem); err != nil {
		return nil, fmt.Errorf("decoding idempotency key: %w", err)
	}

	orderSnap, err := t.tx.Get(t.s.client.Collection(ordersCollection).Doc(idem.OrderID))
	if err != nil {
		return nil, fmt.Errorf("reading order %q: %w", idem.OrderID, err)
	}
	return decodeOrder(orderSnap)
}

// InsertOrder leaves o.CreatedAt zero so the document takes the commit's
// server timestamp.
func (t *fsTx) InsertOrder(_ context.Context, o *order.Order) error {
	o.CreatedAt = time.Time{}

	ref := t.s.client.Collection(ordersCollection).Doc(o.ID)
	if err := t.tx.Create(ref, toOrderDoc(o)); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	if o.IdempotencyKey != "" {
		idemRef := t.s.client.Collection(idempotencyCollection).Doc(idempotencyDocID(o.CustomerID, o.IdempotencyKey))
		if err := t.tx.Create(idemRef, idempotencyDoc{OrderID: o.ID}); err != nil {
			return fmt.Errorf("recording idempotency key: %w", err)
		}
	}
	t.inserted = o
	return nil
}

func decodeOrder(snap *firestore.DocumentSnapshot) (*order.Order, error) {
	var d orderDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding order %q: %w", snap.Ref.ID, err)
	}
	o, err := fromOrderDoc(snap.Ref.ID, d)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
