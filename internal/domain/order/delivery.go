package order

import "github.com/shopspring/decimal"

// DeliveryPolicy charges a flat fee to carts with fewer than FreeFromItems
// units in total.
type DeliveryPolicy struct {
	FlatFee       decimal.Decimal
	FreeFromItems int64
}

// DefaultDeliveryPolicy is 50 per order below three units, free from three.
func DefaultDeliveryPolicy() DeliveryPolicy {
	return DeliveryPolicy{
		FlatFee:       decimal.NewFromInt(50),
		FreeFromItems: 3,
	}
}

// Charge returns the delivery charge for items.
func (p DeliveryPolicy) Charge(items []LineItem) decimal.Decimal {
	if ItemCount(items) < p.FreeFromItems {
		return p.FlatFee
	}
	return decimal.Zero
}

// ItemCount returns the sum of quantities.
func ItemCount(items []LineItem) int64 {
	var n int64
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

// ItemsTotal returns the sum of line subtotals.
func ItemsTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}
