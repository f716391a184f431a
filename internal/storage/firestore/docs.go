package firestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// Money is stored as decimal strings; Firestore has no exact numeric type.

type productDoc struct {
	Name     string `firestore:"name"`
	Price    string `firestore:"price"`
	Stock    int64  `firestore:"stock"`
	Status   string `firestore:"status"`
	SellerID string `firestore:"shopId"`
}

// catalogFields are the product fields a catalog refresh may overwrite.
func catalogFields(d productDoc) map[string]any {
	return map[string]any{
		"name":   d.Name,
		"price":  d.Price,
		"shopId": d.SellerID,
	}
}

type lineItemDoc struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Price     string `firestore:"price"`
	Quantity  int64  `firestore:"quantity"`
	SellerID  string `firestore:"shopId"`
}

type customerDoc struct {
	FullName    string `firestore:"fullName"`
	Phone       string `firestore:"phone"`
	Email       string `firestore:"email"`
	FullAddress string `firestore:"fullAddress"`
}

type orderDoc struct {
	UserID         string        `firestore:"userId"`
	ShopID         string        `firestore:"shopId"`
	Items          []lineItemDoc `firestore:"items"`
	ItemsTotal     string        `firestore:"itemsTotal"`
	DeliveryCharge string        `firestore:"deliveryCharge"`
	TotalAmount    string        `firestore:"totalAmount"`
	Status         string        `firestore:"status"`
	Customer       customerDoc   `firestore:"customer"`
	PaymentMethod  string        `firestore:"paymentMethod"`
	IdempotencyKey string        `firestore:"idempotencyKey,omitempty"`
	CreatedAt      time.Time     `firestore:"createdAt,serverTimestamp"`
}

type idempotencyDoc struct {
	OrderID string `firestore:"orderId"`
}

type apiKeyDoc struct {
	KeyHash string   `firestore:"keyHash"`
	Name    string   `firestore:"name"`
	Scopes  []string `firestore:"scopes"`
	Active  bool     `firestore:"active"`
}

func toProductDoc(p product.Product) productDoc {
	return productDoc{
		Name:     p.Name,
		Price:    p.Price.String(),
		Stock:    p.Stock,
		Status:   string(product.StatusFor(p.Stock)),
		SellerID: p.SellerID,
	}
}

func fromProductDoc(id string, d productDoc) (product.Product, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return product.Product{}, fmt.Errorf("parsing price of product %q: %w", id, err)
	}
	return product.Product{
		ID:       id,
		Name:     d.Name,
		Price:    price,
		Stock:    d.Stock,
		Status:   product.Status(d.Status),
		SellerID: d.SellerID,
	}, nil
}

func toOrderDoc(o *order.Order) orderDoc {
	items := make([]lineItemDoc, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemDoc{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.UnitPrice.String(),
			Quantity:  it.Quantity,
			SellerID:  it.SellerID,
		}
	}
	return orderDoc{
		UserID:         o.CustomerID,
		ShopID:         o.SellerID,
		Items:          items,
		ItemsTotal:     o.ItemsTotal.StringFixed(2),
		DeliveryCharge: o.DeliveryCharge.StringFixed(2),
		TotalAmount:    o.TotalAmount.StringFixed(2),
		Status:         string(o.Status),
		Customer: customerDoc{
			FullName:    o.Billing.FullName,
			Phone:       o.Billing.Phone,
			Email:       o.Billing.Email,
			FullAddress: o.Billing.Address,
		},
		PaymentMethod:  string(o.PaymentMethod),
		IdempotencyKey: o.IdempotencyKey,
		CreatedAt:      o.CreatedAt,
	}
}

func fromOrderDoc(id string, d orderDoc) (order.Order, error) {
	o := order.Order{
		ID:         id,
		CustomerID: d.UserID,
		SellerID:   d.ShopID,
		Items:      make([]order.LineItem, len(d.Items)),
		Status:     order.Status(d.Status),
		Billing: order.Billing{
			FullName: d.Customer.FullName,
			Phone:    d.Customer.Phone,
			Email:    d.Customer.Email,
			Address:  d.Customer.FullAddress,
		},
		PaymentMethod:  order.PaymentMethod(d.PaymentMethod),
		IdempotencyKey: d.IdempotencyKey,
		CreatedAt:      d.CreatedAt.UTC(),
	}
	for i, it := range d.Items {
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			return order.Order{}, fmt.Errorf("parsing item price of order %q: %w", id, err)
		}
		o.Items[i] = order.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: price,
			Quantity:  it.Quantity,
			SellerID:  it.SellerID,
		}
	}

	var err error
	if o.ItemsTotal, err = decimal.NewFromString(d.ItemsTotal); err != nil {
		return order.Order{}, fmt.Errorf("parsing items total of order %q: %w", id, err)
	}
	if o.DeliveryCharge, err = decimal.NewFromString(d.DeliveryCharge); err != nil {
		return order.Order{}, fmt.Errorf("parsing delivery charge of order %q: %w", id, err)
	}
	if o.TotalAmount, err = decimal.NewFromString(d.TotalAmount); err != nil {
		return order.Order{}, fmt.Errorf("parsing total of order %q: %w", id, err)
	}
	return o, nil
}

// idempotencyDocID scopes an idempotency key to its customer. Hashing keeps
// client-supplied values out of the document path.
func idempotencyDocID(customerID, key string) string {
	sum := sha256.Sum256([]byte(customerID + "\x00" + key))
	return hex.EncodeToString(sum[:])
}
