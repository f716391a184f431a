package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Status is the availability flag kept next to the stock counter.
type Status string

const (
	// StatusActive marks a product with at least one unit in stock.
	StatusActive Status = "active"
	// StatusOutOfStock marks a product whose stock counter is zero.
	StatusOutOfStock Status = "out_of_stock"
)

// StatusFor derives the status flag from a stock counter. Every write of
// the stock counter writes this value alongside it.
func StatusFor(stock int64) Status {
	if stock <= 0 {
		return StatusOutOfStock
	}
	return StatusActive
}

// Product is the authoritative catalog record: price, seller and the stock
// ledger entry for one item.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Stock    int64
	Status   Status
	SellerID string
}

// Available reports whether qty units can be taken from the current stock.
func (p Product) Available(qty int64) bool {
	return qty > 0 && p.Stock-qty >= 0
}

// Repository defines read operations for the product catalog. Reads through
// this interface are never used to decide a stock write.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
