package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a cart operation can return.
type ErrorKind string

const (
	KindInvalidArgument       ErrorKind = "invalid_argument"
	KindNotFound              ErrorKind = "not_found"
	KindNotFoundInCart        ErrorKind = "not_found_in_cart"
	KindUnavailable           ErrorKind = "unavailable"
	KindStockExceeded         ErrorKind = "stock_exceeded"
	KindDependencyUnavailable ErrorKind = "dependency_unavailable"
	KindConflict              ErrorKind = "conflict"
	KindCatalogInconsistent   ErrorKind = "catalog_inconsistent"
)

// Error is the typed failure returned by the cart engine.
// MaxQuantity is only set for KindStockExceeded.
type Error struct {
	Kind        ErrorKind
	Message     string
	MaxQuantity int
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "product not found"}
	ErrNotFoundInCart        = &Error{Kind: KindNotFoundInCart, Message: "product not in cart"}
	ErrUnavailable           = &Error{Kind: KindUnavailable, Message: "product unavailable"}
	ErrStockExceeded         = &Error{Kind: KindStockExceeded, Message: "stock exceeded"}
	ErrDependencyUnavailable = &Error{Kind: KindDependencyUnavailable, Message: "dependency unavailable"}
	ErrConflict              = &Error{Kind: KindConflict, Message: "concurrent cart update"}
	ErrCatalogInconsistent   = &Error{Kind: KindCatalogInconsistent, Message: "catalog inconsistent"}
)

func InvalidArgument(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NotFound(productID string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("product %s not found", productID)}
}

func NotFoundInCart(productID string) error {
	return &Error{Kind: KindNotFoundInCart, Message: fmt.Sprintf("product %s is not in the cart", productID)}
}

func Unavailable(productID string) error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf("product %s is not available", productID)}
}

// StockExceeded reports the largest quantity the caller may still request.
func StockExceeded(productID string, maxQuantity int) error {
	if maxQuantity < 0 {
		maxQuantity = 0
	}
	return &Error{
		Kind:        KindStockExceeded,
		Message:     fmt.Sprintf("cannot add more than %d items of product %s", maxQuantity, productID),
		MaxQuantity: maxQuantity,
	}
}

func DependencyUnavailable(what string, err error) error {
	return &Error{Kind: KindDependencyUnavailable, Message: what + " unavailable", Err: err}
}

func Conflict(sessionID string) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf("cart %s was modified concurrently", sessionID)}
}

func CatalogInconsistent(productID string, err error) error {
	return &Error{
		Kind:    KindCatalogInconsistent,
		Message: fmt.Sprintf("product %s in cart can no longer be priced", productID),
		Err:     err,
	}
}

// KindOf returns the kind of a cart error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MaxQuantityOf extracts the allowed quantity from a stock error.
func MaxQuantityOf(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindStockExceeded {
		return e.MaxQuantity, true
	}
	return 0, false
}
