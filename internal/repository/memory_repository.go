package repository

import (
	"context"
	"sync"

	"github.com/nakshjewels/cart-service/internal/domain"
)

// MemoryRepository implements CartRepository with in-memory storage
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart // sessionID -> cart
}

// NewMemoryRepository creates a new in-memory cart store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		carts: make(map[string]*domain.Cart),
	}
}

func (s *MemoryRepository) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, exists := s.carts[sessionID]
	if !exists {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (s *MemoryRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if stored, exists := s.carts[cart.SessionID]; exists {
		current = stored.Version
	}
	if current != cart.Version {
		return ErrConflict
	}

	next := prepareSave(cart)
	s.carts[cart.SessionID] = next.Clone()
	*cart = next
	return nil
}

func (s *MemoryRepository) Ping(context.Context) error {
	return nil
}
