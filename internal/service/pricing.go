package service

import (
	"context"
	"errors"

	"github.com/nakshjewels/cart-service/internal/catalog"
	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Price totals the cart against the given product snapshots and sets
// cart.TotalAmount. Every line must have a snapshot.
func Price(cart *domain.Cart, products map[string]*domain.Product) (*domain.CartView, error) {
	view := &domain.CartView{
		SessionID: cart.SessionID,
		Items:     make([]domain.CartLine, 0, len(cart.Items)),
		UpdatedAt: cart.UpdatedAt,
	}

	total := decimal.Zero
	for _, item := range cart.Items {
		p, ok := products[item.ProductID]
		if !ok || p == nil {
			return nil, domain.CatalogInconsistent(item.ProductID, catalog.ErrProductNotFound)
		}

		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(lineTotal)

		view.Items = append(view.Items, domain.CartLine{
			ProductID: item.ProductID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
			LineTotal: lineTotal,
			ImageURL:  p.ImageURL,
		})
		view.ItemCount += item.Quantity
	}

	cart.TotalAmount = total
	view.TotalAmount = total
	return view, nil
}

// price resolves current prices for every line not already in known and totals
// the cart.
func (s *CartService) price(ctx context.Context, cart *domain.Cart, known map[string]*domain.Product) (*domain.CartView, error) {
	products := make(map[string]*domain.Product, len(cart.Items))
	var missing []string
	for _, item := range cart.Items {
		if p, ok := known[item.ProductID]; ok {
			products[item.ProductID] = p
			continue
		}
		missing = append(missing, item.ProductID)
	}

	if len(missing) > 0 {
		resolved, err := catalog.ResolveMany(ctx, s.catalog, missing)
		if err != nil {
			var re *catalog.ResolveError
			if errors.As(err, &re) && errors.Is(err, catalog.ErrProductNotFound) {
				return nil, domain.CatalogInconsistent(re.ProductID, err)
			}
			return nil, domain.DependencyUnavailable("catalog", err)
		}
		for id, p := range resolved {
			products[id] = p
		}
	}

	return Price(cart, products)
}
