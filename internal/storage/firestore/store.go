package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// DefaultMaxAttempts bounds the attempts of one RunInTx call.
const DefaultMaxAttempts = 5

var _ order.Store = (*Store)(nil)

// Store runs commit transactions with Client.RunTransaction.
type Store struct {
	client      *firestore.Client
	maxAttempts int
}

// NewStore returns a Store over client. maxAttempts <= 0 selects
// DefaultMaxAttempts.
func NewStore(client *firestore.Client, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Store{
		client:      client,
		maxAttempts: maxAttempts,
	}
}

// RunInTx implements order.Store. Firestore reruns fn when the commit is
// aborted by a concurrent write to a document fn read; once MaxAttempts is
// reached the abort is returned as an *order.ConflictError.
//
// Orders get their createdAt from the commit's server timestamp, which is
// read back into the inserted order once the transaction succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	var (
		attempts int
		inserted *order.Order
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts++
		ftx := &fsTx{s: s, tx: tx}
		err := fn(ctx, ftx)
		inserted = ftx.inserted
		return err
	}, firestore.MaxAttempts(s.maxAttempts))
	if err != nil {
		if status.Code(err) == codes.Aborted {
			return &order.ConflictError{Attempts: attempts, Err: err}
		}
		return err
	}
	if inserted != nil {
		s.readCreatedAt(ctx, inserted)
	}
	return nil
}

// readCreatedAt fills o.CreatedAt from the stored order. The order is already
// committed, so a failed read falls back to the local clock instead of
// failing the checkout.
func (s *Store) readCreatedAt(ctx context.Context, o *order.Order) {
	snap, err := s.client.Collection(ordersCollection).Doc(o.ID).Get(ctx)
	if err == nil {
		var stored *order.Order
		if stored, err = decodeOrder(snap); err == nil {
			o.CreatedAt = stored.CreatedAt
			return
		}
	}
	o.CreatedAt = time.Now().UTC()
	zctx.From(ctx).Warn("Reading order creation time",
		zap.String("order_id", o.ID),
		zap.Error(err),
	)
}
