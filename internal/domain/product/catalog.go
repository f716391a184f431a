package product

import (
	"encoding/json"
	"io"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

type catalogEntry struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int64           `json:"stock"`
	SellerID string          `json:"sellerId"`
}

// DecodeCatalog reads a JSON array of catalog products. Status is derived
// from stock.
func DecodeCatalog(r io.Reader) ([]Product, error) {
	var entries []catalogEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}

	out := make([]Product, 0, len(entries))
	for i, e := range entries {
		switch {
		case e.ID == "":
			return nil, errors.Errorf("catalog entry %d: missing id", i)
		case e.Price.IsNegative():
			return nil, errors.Errorf("product %s: negative price", e.ID)
		case e.Stock < 0:
			return nil, errors.Errorf("product %s: negative stock", e.ID)
		}
		out = append(out, Product{
			ID:       e.ID,
			Name:     e.Name,
			Price:    e.Price,
			Stock:    e.Stock,
			Status:   StatusFor(e.Stock),
			SellerID: e.SellerID,
		})
	}
	return out, nil
}
