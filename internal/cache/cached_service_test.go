package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nakshjewels/cart-service/internal/catalog"
	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/nakshjewels/cart-service/internal/repository"
	"github.com/nakshjewels/cart-service/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gatedCache holds back the first SetIfNewer until release is closed.
type gatedCache struct {
	*RedisCache
	once    sync.Once
	parked  chan struct{}
	release chan struct{}
	done    chan struct{}
}

func newGatedCache(inner *RedisCache) *gatedCache {
	return &gatedCache{
		RedisCache: inner,
		parked:     make(chan struct{}),
		release:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (g *gatedCache) SetIfNewer(ctx context.Context, cart *domain.Cart) (bool, error) {
	first := false
	g.once.Do(func() { first = true })
	if !first {
		return g.RedisCache.SetIfNewer(ctx, cart)
	}

	close(g.parked)
	<-g.release
	defer close(g.done)
	// the fill's own deadline may have passed while parked
	return g.RedisCache.SetIfNewer(context.Background(), cart)
}

func TestCachedService_SlowFillDoesNotResurrectClearedCart(t *testing.T) {
	redisCache, _, cleanup := setupTestRedis(t)
	defer cleanup()
	gated := newGatedCache(redisCache)

	store := repository.NewMemoryRepository()
	cat := catalog.NewMemoryCatalog(domain.Product{
		ID: "diamond-stud", Name: "Diamond Stud", Price: decimal.NewFromInt(45000), Stock: 3, IsAvailable: true,
	})
	ctx := context.Background()

	// seeded straight into the store so the first cached read is a miss
	seed := service.NewCartService(store, cat, zap.NewNop(), service.DefaultOptions())
	_, err := seed.AddItem(ctx, "sess-1", "diamond-stud", 2)
	require.NoError(t, err)

	svc := service.NewCartService(NewCachedRepository(store, gated, zap.NewNop()), cat, zap.NewNop(), service.DefaultOptions())

	view, err := svc.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	select {
	case <-gated.parked:
	case <-time.After(time.Second):
		t.Fatal("cache fill never started")
	}

	view, err = svc.ClearCart(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	close(gated.release)
	select {
	case <-gated.done:
	case <-time.After(time.Second):
		t.Fatal("cache fill never finished")
	}

	cached, err := redisCache.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, cached.Items)
	assert.Equal(t, int64(2), cached.Version)

	view, err = svc.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assertStored(t, store, "sess-1", 2)
}

func assertStored(t *testing.T, store *repository.MemoryRepository, sessionID string, version int64) {
	t.Helper()
	cart, err := store.GetCart(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, version, cart.Version)
}
