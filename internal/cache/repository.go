package cache

import (
	"context"
	"errors"
	"time"

	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/nakshjewels/cart-service/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CachedRepository puts a read-through cache in front of a CartRepository.
// Cache failures are logged and never fail the call. Fills and write-throughs
// are conditional on the cart version, so a slow fill cannot put back a cart
// that a later save replaced.
type CachedRepository struct {
	repo   repository.CartRepository
	cache  CartCache
	logger *zap.Logger
	sfg    singleflight.Group // Prevents cache stampede
}

func NewCachedRepository(repo repository.CartRepository, cache CartCache, logger *zap.Logger) *CachedRepository {
	return &CachedRepository{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

func (r *CachedRepository) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	v, err, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		cart, err := r.cache.Get(ctx, sessionID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			r.logger.Warn("cache get error", zap.String("session_id", sessionID), zap.Error(err))
		}

		cart, err = r.repo.GetCart(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		toCache := cart.Clone()
		go r.fill(toCache)

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing a flight each get their own copy
	return v.(*domain.Cart).Clone(), nil
}

func (r *CachedRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	err := r.repo.SaveCart(ctx, cart)
	if errors.Is(err, repository.ErrConflict) {
		r.invalidate(cart.SessionID)
		return err
	}
	if err != nil {
		return err
	}

	if _, err := r.cache.SetIfNewer(ctx, cart); err != nil {
		r.logger.Warn("cache set error", zap.String("session_id", cart.SessionID), zap.Error(err))
		r.invalidate(cart.SessionID)
	}
	return nil
}

// Ping delegates to the underlying store when it supports health checks.
func (r *CachedRepository) Ping(ctx context.Context) error {
	if p, ok := r.repo.(repository.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (r *CachedRepository) fill(cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	written, err := r.cache.SetIfNewer(ctx, cart)
	if err != nil {
		r.logger.Warn("cache set error", zap.String("session_id", cart.SessionID), zap.Error(err))
		return
	}
	if !written {
		r.logger.Debug("cache fill skipped, entry is newer",
			zap.String("session_id", cart.SessionID),
			zap.Int64("version", cart.Version))
	}
}

func (r *CachedRepository) invalidate(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.cache.Invalidate(ctx, sessionID); err != nil {
		r.logger.Warn("cache invalidate error", zap.String("session_id", sessionID), zap.Error(err))
	}
}
