package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

const (
	lockProductsSQL = `SELECT id, name, price, stock, status, seller_id
		FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	setStockSQL = `UPDATE products SET stock = $2, status = $3, updated_at = now()
		WHERE id = $1`

	getOrderByIdempotencyKeySQL = `SELECT ` + orderColumns + `
		FROM orders WHERE customer_id = $1 AND idempotency_key = $2`

	insertOrderSQL = `INSERT INTO orders (id, customer_id, seller_id, items, items_total,
		delivery_charge, total_amount, status, billing, payment_method, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`
)

var _ order.Tx = (*pgTx)(nil)

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]product.Product, error) {
	rows, err := t.tx.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}

	out := make(map[string]product.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (t *pgTx) SetStock(ctx context.Context, productID string, stock int64) error {
	tag, err := t.tx.Exec(ctx, setStockSQL, productID, stock, string(product.StatusFor(stock)))
	if err != nil {
		return fmt.Errorf("setting stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("setting stock of %q: %w", productID, product.ErrNotFound)
	}
	return nil
}

func (t *pgTx) FindOrderByIdempotencyKey(ctx context.Context, customerID, key string) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, getOrderByIdempotencyKeySQL, customerID, key)
	if err != nil {
		return nil, fmt.Errorf("finding order by idempotency key: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding order by idempotency key: %w", err)
	}
	return &o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *order.Order) error {
	items, billing, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	err = t.tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.CustomerID, o.SellerID, items, o.ItemsTotal,
		o.DeliveryCharge, o.TotalAmount, string(o.Status), billing,
		string(o.PaymentMethod), o.IdempotencyKey,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}
