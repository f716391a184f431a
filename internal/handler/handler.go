// Package handler serves the storefront checkout HTTP API.
package handler

import (
	"net/http"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler exposes order placement and the order and product read APIs,
// delegating business logic to the order service and product repository.
type Handler struct {
	products     product.Repository
	orderService *order.Service
	auth         *auth.Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	orderService *order.Service,
	authenticator *auth.Authenticator,
) *Handler {
	return &Handler{
		products:     products,
		orderService: orderService,
		auth:         authenticator,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/order", h.requireScope(auth.ScopeCreateOrder, http.HandlerFunc(h.PlaceOrder)))
	mux.Handle("GET /api/order/{orderId}", h.requireScope(auth.ScopeReadOrders, http.HandlerFunc(h.GetOrder)))
	mux.Handle("GET /api/customer/{customerId}/orders", h.requireScope(auth.ScopeReadOrders, http.HandlerFunc(h.CustomerOrders)))
	mux.Handle("GET /api/seller/{sellerId}/orders", h.requireScope(auth.ScopeReadOrders, http.HandlerFunc(h.SellerOrders)))
	mux.HandleFunc("GET /api/product/{productId}", h.GetProduct)
}
