package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nakshjewels/cart-service/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	// ErrConflict means the stored version moved since the cart was loaded.
	ErrConflict = errors.New("cart version conflict")
)

// CartRepository defines the interface for cart data operations
type CartRepository interface {
	// GetCart returns ErrCartNotFound when the session has no stored cart.
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	// SaveCart replaces the stored cart only if its version still equals
	// cart.Version (0 meaning "must not exist yet"). On success cart.Version
	// is advanced and timestamps are set; on mismatch ErrConflict is returned.
	// Clearing saves an empty cart, so versions never go backwards while
	// the record lives; idle records are expired by the store.
	SaveCart(ctx context.Context, cart *domain.Cart) error
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// prepareSave returns the cart as it should be written: next version and
// fresh timestamps. The caller's cart is updated only after the write succeeds.
func prepareSave(cart *domain.Cart) domain.Cart {
	now := time.Now().UTC()

	next := *cart
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	next.Version = cart.Version + 1
	return next
}
