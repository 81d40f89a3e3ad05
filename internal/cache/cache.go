package cache

import (
	"context"
	"errors"

	"github.com/nakshjewels/cart-service/internal/domain"
)

// CartCache holds copies of stored carts keyed by session. Entries only ever
// move forward in version: a fill that read an older cart than the one
// already cached, or one that races an invalidation, is dropped.
type CartCache interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	// SetIfNewer caches cart unless the entry holds the same or a newer
	// version or was invalidated recently. It reports whether it wrote.
	SetIfNewer(ctx context.Context, cart *domain.Cart) (bool, error)
	// Invalidate drops the entry and fences off fills for a short while.
	Invalidate(ctx context.Context, sessionID string) error
}

var ErrCacheMiss = errors.New("cache miss")
