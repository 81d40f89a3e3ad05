package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nakshjewels/cart-service/internal/catalog"
	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/nakshjewels/cart-service/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductHandler struct {
	catalog catalog.Browser
	timeout time.Duration
	logger  *zap.Logger
}

func NewProductHandler(browser catalog.Browser, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: browser,
		timeout: timeout,
		logger:  logger,
	}
}

// List serves GET /api/products?category=&minPrice=&maxPrice=&search=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	filter := catalog.Filter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}
	var err error
	if filter.MinPrice, err = parsePrice(q.Get("minPrice")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "minPrice must be a number")
		return
	}
	if filter.MaxPrice, err = parsePrice(q.Get("maxPrice")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "maxPrice must be a number")
		return
	}

	products, err := h.catalog.List(ctx, filter)
	if err != nil {
		handleServiceError(w, logger.WithContext(ctx, h.logger), domain.DependencyUnavailable("catalog", err))
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	count := len(products)
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true, Count: &count, Data: products})
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	product, err := h.catalog.Resolve(ctx, id)
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		handleServiceError(w, h.logger, domain.NotFound(id))
		return
	case err != nil:
		handleServiceError(w, logger.WithContext(ctx, h.logger), domain.DependencyUnavailable("catalog", err))
		return
	}

	respondData(w, http.StatusOK, "", product)
}

func parsePrice(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
