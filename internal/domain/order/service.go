package order

import (
	"context"
	"strings"
)

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	CustomerID    string
	Lines         []CartLine
	Billing       Billing
	PaymentMethod PaymentMethod
	// IdempotencyKey, when set, makes repeated submissions by the same
	// customer return the first order instead of creating another.
	IdempotencyKey string
}

// Service encapsulates order placement and the order read APIs.
type Service struct {
	resolver  *Resolver
	committer *Committer
	orders    Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(resolver *Resolver, committer *Committer, orders Repository) *Service {
	return &Service{
		resolver:  resolver,
		committer: committer,
		orders:    orders,
	}
}

// PlaceOrder validates the request, resolves the cart against the catalog
// and commits the order. Validation failures return before any transaction
// starts; a failed call never changes stock.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, ErrMissingCustomer
	}
	if err := req.Billing.Validate(); err != nil {
		return nil, err
	}
	if !req.PaymentMethod.Valid() {
		return nil, ErrUnknownPaymentMethod
	}

	items, err := s.resolver.Resolve(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	// Caller gave up before the transaction began.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.committer.Commit(ctx, CommitRequest{
		CustomerID:     req.CustomerID,
		Items:          items,
		Billing:        req.Billing,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	})
}

// GetOrder returns a committed order by id.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// CustomerOrders lists a customer's orders, newest first.
func (s *Service) CustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	return s.orders.ListByCustomer(ctx, customerID)
}

// SellerOrders lists orders whose primary seller is sellerID, newest first.
func (s *Service) SellerOrders(ctx context.Context, sellerID string) ([]Order, error) {
	return s.orders.ListBySeller(ctx, sellerID)
}
