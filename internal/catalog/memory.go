package catalog

import (
	"context"
	"sync"

	"github.com/nakshjewels/cart-service/internal/domain"
)

// MemoryCatalog implements Browser with in-memory storage
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]*domain.Product // productID -> product
	order    []string                   // insertion order, newest last
}

// NewMemoryCatalog creates a catalog preloaded with the given products
func NewMemoryCatalog(products ...domain.Product) *MemoryCatalog {
	c := &MemoryCatalog{
		products: make(map[string]*domain.Product),
	}
	for _, p := range products {
		c.SetProduct(p)
	}
	return c
}

// SetProduct adds or replaces a product
func (c *MemoryCatalog) SetProduct(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.products[p.ID]; !exists {
		c.order = append(c.order, p.ID)
	}
	c.products[p.ID] = &p
}

// SetStock changes the stock level of an existing product
func (c *MemoryCatalog) SetStock(productID string, stock int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, exists := c.products[productID]
	if !exists {
		return ErrProductNotFound
	}
	p.Stock = stock
	return nil
}

// SetAvailable toggles the availability flag of an existing product
func (c *MemoryCatalog) SetAvailable(productID string, available bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, exists := c.products[productID]
	if !exists {
		return ErrProductNotFound
	}
	p.IsAvailable = available
	return nil
}

// Delete removes a product, leaving carts that reference it unpriceable
func (c *MemoryCatalog) Delete(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.products, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *MemoryCatalog) Resolve(ctx context.Context, productID string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, exists := c.products[productID]
	if !exists {
		return nil, ErrProductNotFound
	}
	snapshot := *p
	return &snapshot, nil
}

// List returns matching products, newest first
func (c *MemoryCatalog) List(ctx context.Context, filter Filter) ([]*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*domain.Product, 0, len(c.order))
	for i := len(c.order) - 1; i >= 0; i-- {
		p := c.products[c.order[i]]
		if filter.Match(p) {
			snapshot := *p
			result = append(result, &snapshot)
		}
	}
	return result, nil
}
