package memory

import (
	"context"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

var _ order.Tx = (*memTx)(nil)

// memTx records read versions and buffers writes for one attempt.
type memTx struct {
	s            *Store
	productReads map[string]uint64
	idemReads    map[idemKey]uint64
	stockWrites  map[string]int64
	inserts      []*order.Order
}

func newTx(s *Store) *memTx {
	return &memTx{
		s:            s,
		productReads: make(map[string]uint64),
		idemReads:    make(map[idemKey]uint64),
		stockWrites:  make(map[string]int64),
	}
}

func (tx *memTx) LockProducts(_ context.Context, ids []string) (map[string]product.Product, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	out := make(map[string]product.Product, len(ids))
	for _, id := range ids {
		d, ok := tx.s.products[id]
		if !ok {
			tx.productReads[id] = 0
			continue
		}
		tx.productReads[id] = d.version
		out[id] = d.p
	}
	return out, nil
}

func (tx *memTx) SetStock(_ context.Context, productID string, stock int64) error {
	tx.stockWrites[productID] = stock
	return nil
}

func (tx *memTx) FindOrderByIdempotencyKey(_ context.Context, customerID, key string) (*order.Order, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	k := idemKey{customerID: customerID, key: key}
	d, ok := tx.s.idem[k]
	if !ok {
		tx.idemReads[k] = 0
		return nil, nil
	}
	tx.idemReads[k] = d.version

	o := cloneOrder(tx.s.orders[d.orderID])
	return &o, nil
}

func (tx *memTx) InsertOrder(_ context.Context, o *order.Order) error {
	tx.inserts = append(tx.inserts, o)
	return nil
}
