package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nakshjewels/cart-service/internal/catalog"
	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/nakshjewels/cart-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockRepository wraps the in-memory store and can inject failures.
type mockRepository struct {
	m         sync.RWMutex
	store     *repository.MemoryRepository
	err       error
	conflicts int // SaveCart returns ErrConflict this many times first
	saves     int
}

func newMockRepository() *mockRepository {
	return &mockRepository{store: repository.NewMemoryRepository()}
}

func (m *mockRepository) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	m.m.RLock()
	err := m.err
	m.m.RUnlock()
	if err != nil {
		return nil, err
	}
	return m.store.GetCart(ctx, sessionID)
}

func (m *mockRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	m.m.Lock()
	if m.err != nil {
		m.m.Unlock()
		return m.err
	}
	if m.conflicts > 0 {
		m.conflicts--
		m.m.Unlock()
		return repository.ErrConflict
	}
	m.saves++
	m.m.Unlock()
	return m.store.SaveCart(ctx, cart)
}

func (m *mockRepository) saveCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.saves
}

func (m *mockRepository) setErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.err = err
}

func (m *mockRepository) stored(t *testing.T, sessionID string) *domain.Cart {
	t.Helper()
	c, err := m.store.GetCart(context.Background(), sessionID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil
	}
	require.NoError(t, err)
	return c
}

type slowCatalog struct {
	catalog.Catalog
	delay time.Duration
}

func (s slowCatalog) Resolve(ctx context.Context, productID string) (*domain.Product, error) {
	select {
	case <-time.After(s.delay):
		return s.Catalog.Resolve(ctx, productID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type failingCatalog struct{}

func (failingCatalog) Resolve(context.Context, string) (*domain.Product, error) {
	return nil, errors.New("connection reset")
}

func product(id string, price int64, stock int) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        "Product " + id,
		Price:       decimal.NewFromInt(price),
		Stock:       stock,
		IsAvailable: true,
	}
}

func newTestService(t *testing.T, products ...domain.Product) (*CartService, *mockRepository, *catalog.MemoryCatalog) {
	t.Helper()
	repo := newMockRepository()
	cat := catalog.NewMemoryCatalog(products...)
	return NewCartService(repo, cat, zap.NewNop(), DefaultOptions()), repo, cat
}

// expectedTotal recomputes the total independently of Price.
func expectedTotal(t *testing.T, cat *catalog.MemoryCatalog, view *domain.CartView) decimal.Decimal {
	t.Helper()
	total := decimal.Zero
	for _, line := range view.Items {
		p, err := cat.Resolve(context.Background(), line.ProductID)
		require.NoError(t, err)
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

func assertTotal(t *testing.T, want int64, view *domain.CartView) {
	t.Helper()
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(want)), "total: want %d, got %s", want, view.TotalAmount)
}

func TestScenario_AddExceedSetRemove(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5))
	ctx := context.Background()

	view, err := sut.AddItem(ctx, "S", "P1", 3)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
	assertTotal(t, 300, view)

	_, err = sut.AddItem(ctx, "S", "P1", 3)
	require.ErrorIs(t, err, domain.ErrStockExceeded)
	max, ok := domain.MaxQuantityOf(err)
	require.True(t, ok)
	assert.Equal(t, 2, max)

	view, err = sut.GetCart(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, 3, view.Items[0].Quantity)
	assertTotal(t, 300, view)

	view, err = sut.SetItemQuantity(ctx, "S", "P1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assertTotal(t, 500, view)

	view, err = sut.RemoveItem(ctx, "S", "P1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assertTotal(t, 0, view)

	assert.Equal(t, 3, repo.saveCount())
}

func TestGetCart_AbsentIsEmptyAndNotPersisted(t *testing.T) {
	sut, repo, _ := newTestService(t)

	view, err := sut.GetCart(context.Background(), "fresh-session")
	require.NoError(t, err)
	assert.Equal(t, "fresh-session", view.SessionID)
	assert.Empty(t, view.Items)
	assertTotal(t, 0, view)
	assert.Nil(t, repo.stored(t, "fresh-session"))
}

func TestGetCart_UsesCurrentPrices(t *testing.T) {
	sut, _, cat := newTestService(t, product("P1", 100, 5))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 2)
	require.NoError(t, err)

	cat.SetProduct(product("P1", 150, 5))
	view, err := sut.GetCart(ctx, "S")
	require.NoError(t, err)
	assertTotal(t, 300, view)
	assert.True(t, view.Items[0].UnitPrice.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "Product P1", view.Items[0].Name)
}

func TestAddItem_MergesQuantities(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 10))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 2)
	require.NoError(t, err)
	view, err := sut.AddItem(ctx, "S", "P1", 4)
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, 6, view.Items[0].Quantity)
	assert.Equal(t, 6, view.ItemCount)

	stored := repo.stored(t, "S")
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 6, stored.Items[0].Quantity)
}

func TestAddItem_TotalOverSeveralProducts(t *testing.T) {
	sut, _, cat := newTestService(t,
		product("P1", 100, 10),
		domain.Product{ID: "P2", Name: "Chain", Price: decimal.RequireFromString("19.99"), Stock: 10, IsAvailable: true},
		product("P3", 45000, 2),
	)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 1)
	require.NoError(t, err)
	_, err = sut.AddItem(ctx, "S", "P2", 3)
	require.NoError(t, err)
	view, err := sut.AddItem(ctx, "S", "P3", 2)
	require.NoError(t, err)

	assert.True(t, view.TotalAmount.Equal(decimal.RequireFromString("90159.97")), view.TotalAmount.String())
	assert.True(t, view.TotalAmount.Equal(expectedTotal(t, cat, view)))

	// line order follows insertion
	assert.Equal(t, []string{"P1", "P2", "P3"}, []string{view.Items[0].ProductID, view.Items[1].ProductID, view.Items[2].ProductID})
}

func TestAddItem_StockExceededLeavesCartUnchanged(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5), product("P2", 50, 1))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 4)
	require.NoError(t, err)
	before := repo.stored(t, "S")

	_, err = sut.AddItem(ctx, "S", "P1", 2)
	assert.ErrorIs(t, err, domain.ErrStockExceeded)

	_, err = sut.AddItem(ctx, "S", "P2", 2)
	assert.ErrorIs(t, err, domain.ErrStockExceeded)

	after := repo.stored(t, "S")
	assert.Equal(t, before, after)
}

func TestAddItem_HugeQuantityDoesNotOverflow(t *testing.T) {
	sut, _, _ := newTestService(t, product("P1", 100, 5))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 1)
	require.NoError(t, err)
	_, err = sut.AddItem(ctx, "S", "P1", int(^uint(0)>>1))
	assert.ErrorIs(t, err, domain.ErrStockExceeded)
}

func TestAddItem_StockDroppedBelowCart(t *testing.T) {
	sut, _, cat := newTestService(t, product("P1", 100, 5))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 4)
	require.NoError(t, err)
	require.NoError(t, cat.SetStock("P1", 2))

	_, err = sut.AddItem(ctx, "S", "P1", 1)
	max, ok := domain.MaxQuantityOf(err)
	require.True(t, ok)
	assert.Equal(t, 0, max)
}

func TestAddItem_NotFoundAndUnavailable(t *testing.T) {
	hidden := product("P2", 100, 5)
	hidden.IsAvailable = false
	sut, repo, _ := newTestService(t, hidden)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = sut.AddItem(ctx, "S", "P2", 1)
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	assert.Nil(t, repo.stored(t, "S"))
}

func TestInvalidArguments(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5))
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"empty session", func() error { _, err := sut.GetCart(ctx, ""); return err }},
		{"session with spaces", func() error { _, err := sut.AddItem(ctx, "a b", "P1", 1); return err }},
		{"session too long", func() error { _, err := sut.ClearCart(ctx, string(make([]byte, 200))); return err }},
		{"zero add", func() error { _, err := sut.AddItem(ctx, "S", "P1", 0); return err }},
		{"negative add", func() error { _, err := sut.AddItem(ctx, "S", "P1", -2); return err }},
		{"negative set", func() error { _, err := sut.SetItemQuantity(ctx, "S", "P1", -1); return err }},
		{"empty product", func() error { _, err := sut.RemoveItem(ctx, "S", ""); return err }},
		{"nil command", func() error { _, err := sut.Execute(ctx, "S", nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), domain.ErrInvalidArgument)
		})
	}
	assert.Equal(t, 0, repo.saveCount())
}

func TestSetItemQuantity_ReplacesNotAdds(t *testing.T) {
	sut, _, _ := newTestService(t, product("P1", 100, 10))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 4)
	require.NoError(t, err)
	view, err := sut.SetItemQuantity(ctx, "S", "P1", 2)
	require.NoError(t, err)

	assert.Equal(t, 2, view.Items[0].Quantity)
	assertTotal(t, 200, view)
}

func TestSetItemQuantity_NotInCart(t *testing.T) {
	sut, _, _ := newTestService(t, product("P1", 100, 10))

	_, err := sut.SetItemQuantity(context.Background(), "S", "P1", 2)
	assert.ErrorIs(t, err, domain.ErrNotFoundInCart)
}

func TestSetItemQuantity_StockExceededKeepsPrior(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 3)
	require.NoError(t, err)

	_, err = sut.SetItemQuantity(ctx, "S", "P1", 6)
	require.ErrorIs(t, err, domain.ErrStockExceeded)
	max, _ := domain.MaxQuantityOf(err)
	assert.Equal(t, 5, max)
	assert.Equal(t, 3, repo.stored(t, "S").Items[0].Quantity)
}

func TestSetItemQuantity_UnavailableOnlyBlocksIncrease(t *testing.T) {
	sut, _, cat := newTestService(t, product("P1", 100, 5))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 3)
	require.NoError(t, err)
	require.NoError(t, cat.SetAvailable("P1", false))

	_, err = sut.SetItemQuantity(ctx, "S", "P1", 4)
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	view, err := sut.SetItemQuantity(ctx, "S", "P1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Items[0].Quantity)
}

func TestSetZeroEqualsRemove(t *testing.T) {
	ctx := context.Background()
	run := func(final func(*CartService) (*domain.CartView, error)) *domain.CartView {
		sut, _, _ := newTestService(t, product("P1", 100, 5), product("P2", 40, 5))
		_, err := sut.AddItem(ctx, "S", "P1", 2)
		require.NoError(t, err)
		_, err = sut.AddItem(ctx, "S", "P2", 1)
		require.NoError(t, err)
		view, err := final(sut)
		require.NoError(t, err)
		return view
	}

	viaSet := run(func(s *CartService) (*domain.CartView, error) { return s.SetItemQuantity(ctx, "S", "P1", 0) })
	viaRemove := run(func(s *CartService) (*domain.CartView, error) { return s.RemoveItem(ctx, "S", "P1") })

	assert.Equal(t, viaRemove.Items, viaSet.Items)
	assert.True(t, viaRemove.TotalAmount.Equal(viaSet.TotalAmount))
	assertTotal(t, 40, viaSet)
}

func TestRemoveAndClear_Idempotent(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 1)
	require.NoError(t, err)
	before := repo.stored(t, "S")

	view, err := sut.RemoveItem(ctx, "S", "not-there")
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
	assert.Equal(t, before, repo.stored(t, "S"))

	view, err = sut.SetItemQuantity(ctx, "S", "not-there", 0)
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)

	for i := 0; i < 2; i++ {
		view, err = sut.ClearCart(ctx, "S")
		require.NoError(t, err)
		assert.Empty(t, view.Items)
		assertTotal(t, 0, view)
	}
	stored := repo.stored(t, "S")
	require.NotNil(t, stored)
	assert.Empty(t, stored.Items)
	assert.Equal(t, int64(2), stored.Version)

	view, err = sut.GetCart(ctx, "S")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, 2, repo.saveCount(), "the second clear has nothing to write")
}

func TestClearCart_NoCartWritesNothing(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5))

	view, err := sut.ClearCart(context.Background(), "S")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Nil(t, repo.stored(t, "S"))
	assert.Equal(t, 0, repo.saveCount())
}

// gatedRepository parks the first SaveCart of a session until release is
// closed, holding the cart version that writer loaded.
type gatedRepository struct {
	*mockRepository
	once    sync.Once
	parked  chan struct{}
	release chan struct{}
}

func (g *gatedRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.parked)
		<-g.release
	}
	return g.mockRepository.SaveCart(ctx, cart)
}

func TestClearCart_StaleWriterCannotResurrectLines(t *testing.T) {
	repo := newMockRepository()
	cat := catalog.NewMemoryCatalog(product("P1", 100, 10), product("P2", 50, 10))
	seed := NewCartService(repo, cat, zap.NewNop(), DefaultOptions())
	ctx := context.Background()

	_, err := seed.AddItem(ctx, "S", "P1", 3)
	require.NoError(t, err)

	gated := &gatedRepository{mockRepository: repo, parked: make(chan struct{}), release: make(chan struct{})}
	slow := NewCartService(gated, cat, zap.NewNop(), DefaultOptions())

	done := make(chan error, 1)
	go func() {
		_, err := slow.AddItem(ctx, "S", "P1", 1)
		done <- err
	}()
	<-gated.parked

	// the cart is cleared and refilled while the slow add still holds version 1
	_, err = seed.ClearCart(ctx, "S")
	require.NoError(t, err)
	_, err = seed.AddItem(ctx, "S", "P2", 1)
	require.NoError(t, err)

	close(gated.release)
	require.NoError(t, <-done)

	view, err := seed.GetCart(ctx, "S")
	require.NoError(t, err)
	quantities := map[string]int{}
	for _, line := range view.Items {
		quantities[line.ProductID] = line.Quantity
	}
	assert.Equal(t, map[string]int{"P1": 1, "P2": 1}, quantities, "the retried add starts from the cleared cart")
	assert.Equal(t, int64(4), repo.stored(t, "S").Version)
}

func TestStoreError_DependencyUnavailable(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5))
	repo.setErr(errors.New("mongo down"))
	ctx := context.Background()

	_, err := sut.GetCart(ctx, "S")
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	_, err = sut.AddItem(ctx, "S", "P1", 1)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	_, err = sut.ClearCart(ctx, "S")
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.ErrorContains(t, err, "mongo down")
}

func TestCatalogError_DependencyUnavailable(t *testing.T) {
	repo := newMockRepository()
	sut := NewCartService(repo, failingCatalog{}, zap.NewNop(), DefaultOptions())

	_, err := sut.AddItem(context.Background(), "S", "P1", 1)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalogTimeout_DependencyUnavailable(t *testing.T) {
	repo := newMockRepository()
	cat := slowCatalog{Catalog: catalog.NewMemoryCatalog(product("P1", 100, 5)), delay: time.Second}
	sut := NewCartService(repo, cat, zap.NewNop(), Options{CatalogTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := sut.AddItem(context.Background(), "S", "P1", 1)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Nil(t, repo.stored(t, "S"))
}

func TestCancelledRequest_NothingPersisted(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sut.AddItem(ctx, "S", "P1", 1)
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, repo.stored(t, "S"))
}

func TestConflict_RetriedThenSucceeds(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5))
	repo.conflicts = 2

	view, err := sut.AddItem(context.Background(), "S", "P1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.Equal(t, 2, repo.stored(t, "S").Items[0].Quantity)
}

func TestConflict_ExhaustedBecomesDependencyUnavailable(t *testing.T) {
	sut, repo, _ := newTestService(t, product("P1", 100, 5))
	repo.conflicts = 3

	_, err := sut.AddItem(context.Background(), "S", "P1", 2)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Nil(t, repo.stored(t, "S"))
}

func TestCatalogInconsistent_ProductDeletedAfterAdd(t *testing.T) {
	sut, repo, cat := newTestService(t, product("P1", 100, 5), product("P2", 10, 5))
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "S", "P1", 1)
	require.NoError(t, err)
	before := repo.stored(t, "S")
	cat.Delete("P1")

	_, err = sut.GetCart(ctx, "S")
	assert.ErrorIs(t, err, domain.ErrCatalogInconsistent)

	_, err = sut.AddItem(ctx, "S", "P2", 1)
	assert.ErrorIs(t, err, domain.ErrCatalogInconsistent)
	assert.Equal(t, before, repo.stored(t, "S"))

	// the broken line can still be removed
	view, err := sut.RemoveItem(ctx, "S", "P1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestConcurrentAdds_NoLostUpdates(t *testing.T) {
	repo := newMockRepository()
	cat := catalog.NewMemoryCatalog(product("P1", 100, 1000))
	sut := NewCartService(repo, cat, zap.NewNop(), Options{MaxAttempts: 100})

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sut.AddItem(context.Background(), "S", "P1", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := sut.GetCart(context.Background(), "S")
	require.NoError(t, err)
	assert.Equal(t, workers, view.Items[0].Quantity)
	assertTotal(t, 100*workers, view)
}

func TestConcurrentAdds_StockCeilingHolds(t *testing.T) {
	repo := newMockRepository()
	cat := catalog.NewMemoryCatalog(product("P1", 100, 5))
	sut := NewCartService(repo, cat, zap.NewNop(), Options{MaxAttempts: 100})

	var ok, exceeded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sut.AddItem(context.Background(), "S", "P1", 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrStockExceeded):
				exceeded.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(7), exceeded.Load())
	assert.Equal(t, 5, repo.stored(t, "S").Items[0].Quantity)
}

func TestSessionsAreIndependent(t *testing.T) {
	sut, _, _ := newTestService(t, product("P1", 100, 5))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sut.AddItem(ctx, fmt.Sprintf("session-%d", i), "P1", 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		view, err := sut.GetCart(ctx, fmt.Sprintf("session-%d", i))
		require.NoError(t, err)
		assert.Equal(t, 5, view.Items[0].Quantity)
	}
}
