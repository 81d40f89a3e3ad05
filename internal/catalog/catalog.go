package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Catalog defines the read-only product lookup used by the cart engine
type Catalog interface {
	Resolve(ctx context.Context, productID string) (*domain.Product, error)
}

// Browser is implemented by catalogs that can also serve product listings.
type Browser interface {
	Catalog
	List(ctx context.Context, filter Filter) ([]*domain.Product, error)
}

var ErrProductNotFound = errors.New("product not found")

// Filter narrows a product listing. Zero values mean "no constraint".
type Filter struct {
	Category string
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// Match applies the filter to a single product.
func (f Filter) Match(p *domain.Product) bool {
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}
	return true
}

const resolveConcurrency = 8

// ResolveMany looks up every id concurrently and waits for all of them, so a
// failed lookup never cuts its siblings short. The failure of the earliest id
// is returned as is, so callers can still tell ErrProductNotFound apart.
func ResolveMany(ctx context.Context, c Catalog, ids []string) (map[string]*domain.Product, error) {
	products := make([]*domain.Product, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(resolveConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := c.Resolve(ctx, id)
			if err != nil {
				errs[i] = &ResolveError{ProductID: id, Err: err}
				return nil
			}
			products[i] = p
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*domain.Product, len(ids))
	for i, id := range ids {
		if errs[i] != nil {
			return nil, errs[i]
		}
		out[id] = products[i]
	}
	return out, nil
}

// ResolveError names the product whose lookup failed.
type ResolveError struct {
	ProductID string
	Err       error
}

func (e *ResolveError) Error() string {
	return "resolve product " + e.ProductID + ": " + e.Err.Error()
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
