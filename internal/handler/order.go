package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// retryAfterSeconds is advertised on 503 responses to commit conflicts.
const retryAfterSeconds = "1"

// PlaceOrder decodes the request, delegates to the order service, and maps
// the result (or error) back to an HTTP response.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}
	req, err := decodePlaceOrder(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	placed, err := h.orderService.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, placed)
	writeJSON(w, http.StatusOK, &e)
}

// GetOrder returns a single order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderService.GetOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.writeInternal(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}

// CustomerOrders lists a customer's orders, newest first.
func (h *Handler) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	h.writeOrders(w, r, func(ctx context.Context) ([]order.Order, error) {
		return h.orderService.CustomerOrders(ctx, r.PathValue("customerId"))
	})
}

// SellerOrders lists a seller's orders, newest first.
func (h *Handler) SellerOrders(w http.ResponseWriter, r *http.Request) {
	h.writeOrders(w, r, func(ctx context.Context) ([]order.Order, error) {
		return h.orderService.SellerOrders(ctx, r.PathValue("sellerId"))
	})
}

func (h *Handler) writeOrders(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]order.Order, error)) {
	orders, err := list(r.Context())
	if err != nil {
		h.writeInternal(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

// writeOrderError converts domain errors to HTTP error responses.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr    *order.InvalidQuantityError
		pnfErr   *order.ProductNotFoundError
		bfErr    *order.BillingFieldError
		stockErr *order.InsufficientStockError
		goneErr  *order.ProductGoneError
	)
	switch {
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrMissingCustomer),
		errors.Is(err, order.ErrUnknownPaymentMethod),
		errors.As(err, &bfErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr), errors.As(err, &pnfErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &stockErr), errors.As(err, &goneErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrCommitConflict):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, "checkout is busy, retry shortly")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.writeInternal(w, r, err)
	}
}

func (h *Handler) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
