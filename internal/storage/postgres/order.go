package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

const orderColumns = `id, customer_id, seller_id, items, items_total, delivery_charge,
		total_amount, status, billing, payment_method, idempotency_key, created_at`

const (
	getOrderByIDSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE id = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id`

	listOrdersBySellerSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE seller_id = $1 ORDER BY created_at DESC, id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of customer %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListBySeller returns orders whose primary seller is sellerID, newest first.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersBySellerSQL, sellerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of seller %q: %w", sellerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// marshalOrderDocs serializes the JSONB columns of o.
func marshalOrderDocs(o *order.Order) (items, billing []byte, err error) {
	items, err = json.Marshal(o.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling order items: %w", err)
	}
	billing, err = json.Marshal(o.Billing)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling order billing: %w", err)
	}
	return items, billing, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                     order.Order
		items, billing        []byte
		status, paymentMethod string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.SellerID, &items, &o.ItemsTotal, &o.DeliveryCharge,
		&o.TotalAmount, &status, &billing, &paymentMethod, &o.IdempotencyKey, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(billing, &o.Billing); err != nil {
		return o, fmt.Errorf("unmarshaling billing of order %q: %w", o.ID, err)
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}
