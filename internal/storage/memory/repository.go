package memory

import (
	"context"
	"sort"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// ProductRepository implements product.Repository over a Store.
type ProductRepository struct {
	s *Store
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p := d.p
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.s.products[id]; ok {
			out = append(out, d.p)
		}
	}
	return out, nil
}

// OrderRepository implements order.Repository over a Store.
type OrderRepository struct {
	s *Store
}

// GetByID returns a committed order.
func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	return r.list(func(o order.Order) bool { return o.CustomerID == customerID }), nil
}

// ListBySeller returns orders whose primary seller is sellerID, newest first.
func (r *OrderRepository) ListBySeller(_ context.Context, sellerID string) ([]order.Order, error) {
	return r.list(func(o order.Order) bool { return o.SellerID == sellerID }), nil
}

func (r *OrderRepository) list(match func(order.Order) bool) []order.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]order.Order, 0)
	for _, o := range r.s.orders {
		if match(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
