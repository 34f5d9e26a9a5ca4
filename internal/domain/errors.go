package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindInvalidSeller       Kind = "invalid_seller"
	KindProductsUnavailable Kind = "products_unavailable"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindInvalidTransition   Kind = "invalid_transition"
	KindOrderNotFound       Kind = "order_not_found"
	KindNotEligible         Kind = "not_eligible"
	KindDuplicateReview     Kind = "duplicate_review"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindPersistence         Kind = "persistence_error"
)

var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrInvalidSeller       = &Error{Kind: KindInvalidSeller}
	ErrProductsUnavailable = &Error{Kind: KindProductsUnavailable}
	ErrInsufficientStock   = &Error{Kind: KindInsufficientStock}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrOrderNotFound       = &Error{Kind: KindOrderNotFound}
	ErrNotEligible         = &Error{Kind: KindNotEligible}
	ErrDuplicateReview     = &Error{Kind: KindDuplicateReview}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
	ErrPersistence         = &Error{Kind: KindPersistence}
)

// Error is a typed fulfillment failure. Detail is safe to show to end users;
// the storage cause, if any, is only reachable through Unwrap.
type Error struct {
	Kind   Kind
	Detail string

	ProductID string
	Available int
	Requested int

	From OrderStatus
	To   OrderStatus

	Err error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the package sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the whole operation may be attempted again.
func (e *Error) Retryable() bool { return e.Kind == KindConcurrencyConflict }

func InvalidInput(detail string) *Error {
	return &Error{Kind: KindInvalidInput, Detail: detail}
}

func InvalidSeller(sellerID string) *Error {
	return &Error{Kind: KindInvalidSeller, Detail: fmt.Sprintf("seller %s is not a valid seller account", sellerID)}
}

func ProductsUnavailable(detail string) *Error {
	return &Error{Kind: KindProductsUnavailable, Detail: detail}
}

func InsufficientStock(p Product, requested int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Detail:    fmt.Sprintf("insufficient stock for %q: available %d, requested %d", p.Name, p.Stock, requested),
		ProductID: p.ID,
		Available: p.Stock,
		Requested: requested,
	}
}

func InvalidTransition(from, to OrderStatus) *Error {
	return &Error{
		Kind:   KindInvalidTransition,
		Detail: fmt.Sprintf("cannot change order status from %s to %s", from, to),
		From:   from,
		To:     to,
	}
}

func OrderNotFound(orderID string) *Error {
	return &Error{Kind: KindOrderNotFound, Detail: fmt.Sprintf("order %s not found", orderID)}
}

func NotEligible(productID string) *Error {
	return &Error{
		Kind:      KindNotEligible,
		Detail:    "only products from a delivered order can be reviewed",
		ProductID: productID,
	}
}

func DuplicateReview(productID string) *Error {
	return &Error{
		Kind:      KindDuplicateReview,
		Detail:    "a review for this product already exists",
		ProductID: productID,
	}
}

func ConcurrencyConflict(err error) *Error {
	return &Error{
		Kind:   KindConcurrencyConflict,
		Detail: "stock changed while the order was being confirmed, please retry",
		Err:    err,
	}
}

func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Detail: "storage failure", Err: err}
}

// AsError normalizes err into an *Error. Unknown errors become persistence
// failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Persistence(err)
}
