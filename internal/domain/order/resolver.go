package order

import (
	"context"
	"fmt"

	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// Resolver turns cart lines into line items priced from the catalog.
type Resolver struct {
	products product.Repository
}

// NewResolver creates a Resolver reading from products.
func NewResolver(products product.Repository) *Resolver {
	return &Resolver{products: products}
}

// Resolve validates lines, fetches every referenced product in a single
// batch and returns line items in input order. Lines naming the same
// product are merged at the position of the first one. Stock is not checked
// here; the commit transaction re-reads it.
func (r *Resolver) Resolve(ctx context.Context, lines []CartLine) ([]LineItem, error) {
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(merged))
	for i, l := range merged {
		ids[i] = l.ProductID
	}

	fetched, err := r.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	items := make([]LineItem, len(merged))
	for i, l := range merged {
		p, ok := productMap[l.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
		items[i] = freeze(p, l.Quantity)
	}
	return items, nil
}

// mergeLines validates cart lines and folds duplicates together.
func mergeLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	out := make([]CartLine, 0, len(lines))
	pos := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, &InvalidQuantityError{ProductID: l.ProductID, Quantity: l.Quantity}
		}
		if i, ok := pos[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		pos[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func freeze(p product.Product, qty int64) LineItem {
	return LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  qty,
		SellerID:  p.SellerID,
	}
}
