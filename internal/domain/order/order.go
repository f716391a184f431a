package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// ErrNotFound is returned when an order id does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the order lifecycle state.
type Status string

const (
	// StatusPending is the state every order is created in.
	StatusPending Status = "pending"
	// StatusDelivered marks a fulfilled order.
	StatusDelivered Status = "delivered"
	// StatusCancelled marks an order cancelled after placement.
	StatusCancelled Status = "cancelled"
)

// PaymentMethod is how the customer paid before the order was committed.
type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentUPI  PaymentMethod = "upi"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentUPI:
		return true
	default:
		return false
	}
}

// Billing is the customer contact block stored on the order.
type Billing struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Address  string `json:"fullAddress"`
}

// CartLine is a client-supplied (product, quantity) pair. It carries no
// price or availability; those come from the catalog.
type CartLine struct {
	ProductID string
	Quantity  int64
}

// LineItem is a cart line resolved against the catalog. Once written into an
// order its fields never change, even if the product does.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	SellerID  string          `json:"shopId"`
}

// Subtotal returns UnitPrice * Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// Order is an immutable record of a committed checkout.
type Order struct {
	ID             string
	CustomerID     string
	Items          []LineItem
	ItemsTotal     decimal.Decimal
	DeliveryCharge decimal.Decimal
	TotalAmount    decimal.Decimal
	Status         Status
	CreatedAt      time.Time
	Billing        Billing
	PaymentMethod  PaymentMethod
	// SellerID is the seller of the first line item; seller-facing order
	// views filter on it.
	SellerID       string
	IdempotencyKey string
}

// Repository is the read side over committed orders. Lists are ordered by
// CreatedAt, newest first.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Order, error)
}

// Tx is the view of the store inside one attempt of a commit transaction.
// Every read made through Tx participates in the conflict detection of the
// enclosing transaction.
type Tx interface {
	// LockProducts reads the current ledger entries for ids. Missing ids are
	// absent from the result.
	LockProducts(ctx context.Context, ids []string) (map[string]product.Product, error)
	// SetStock writes a new stock value and the status derived from it.
	SetStock(ctx context.Context, productID string, stock int64) error
	// FindOrderByIdempotencyKey returns the order previously committed by
	// customerID under key, or nil when there is none.
	FindOrderByIdempotencyKey(ctx context.Context, customerID, key string) (*Order, error)
	// InsertOrder writes a new order document and assigns its CreatedAt.
	InsertOrder(ctx context.Context, o *Order) error
}

// Store runs fn as a single atomic unit. Implementations retry fn on
// engine-level conflicts a bounded number of times and then return an error
// wrapping ErrCommitConflict. Errors returned by fn itself abort the
// transaction without retry.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
