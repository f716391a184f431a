package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order validation.
var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrMissingCustomer      = errors.New("customer id required")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	// ErrCommitConflict is returned when the store could not commit the
	// transaction within its retry budget. Retrying the whole checkout later
	// may succeed.
	ErrCommitConflict = errors.New("commit conflict")
)

// InvalidQuantityError indicates a cart line with a quantity below one.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s (got %d)", e.ProductID, e.Quantity)
}

// ProductNotFoundError indicates a cart line references an unknown product
// at resolution time.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductGoneError indicates a product disappeared between resolution and
// commit.
type ProductGoneError struct {
	ProductID string
}

func (e *ProductGoneError) Error() string {
	return fmt.Sprintf("product %s no longer exists", e.ProductID)
}

// InsufficientStockError indicates the ledger cannot cover a line item.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// ConflictError is returned by a Store that exhausted its retry budget on
// engine-level conflicts. It matches ErrCommitConflict with errors.Is.
type ConflictError struct {
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("commit conflict after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConflictError) Is(target error) bool { return target == ErrCommitConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

// BillingFieldError indicates a required billing field is blank.
type BillingFieldError struct {
	Field string
}

func (e *BillingFieldError) Error() string {
	return fmt.Sprintf("billing field %s is required", e.Field)
}

// IsRejection reports whether err is a business-rule rejection raised inside
// the commit transaction.
func IsRejection(err error) bool {
	var (
		isErr   *InsufficientStockError
		goneErr *ProductGoneError
	)
	return errors.As(err, &isErr) || errors.As(err, &goneErr)
}
