package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nakshjewels/cart-service/internal/domain"
)

type productEnvelope struct {
	Success bool            `json:"success"`
	Data    *domain.Product `json:"data"`
	Message string          `json:"message"`
}

type productListEnvelope struct {
	Success bool              `json:"success"`
	Data    []*domain.Product `json:"data"`
}

// HTTPCatalog resolves products from a remote catalog service speaking the
// {success, data} envelope.
type HTTPCatalog struct {
	client *resty.Client
}

func NewHTTPCatalog(baseURL string, timeout time.Duration) *HTTPCatalog {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTPCatalog{client: client}
}

func (c *HTTPCatalog) Resolve(ctx context.Context, productID string) (*domain.Product, error) {
	var env productEnvelope
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", productID).
		SetResult(&env).
		Get("/api/products/{id}")
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, ErrProductNotFound
	case resp.IsError():
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode())
	case !env.Success || env.Data == nil:
		return nil, ErrProductNotFound
	}

	return env.Data, nil
}

func (c *HTTPCatalog) List(ctx context.Context, filter Filter) ([]*domain.Product, error) {
	req := c.client.R().SetContext(ctx)
	if filter.Category != "" {
		req.SetQueryParam("category", filter.Category)
	}
	if filter.Search != "" {
		req.SetQueryParam("search", filter.Search)
	}
	if filter.MinPrice != nil {
		req.SetQueryParam("minPrice", filter.MinPrice.String())
	}
	if filter.MaxPrice != nil {
		req.SetQueryParam("maxPrice", filter.MaxPrice.String())
	}

	var env productListEnvelope
	resp, err := req.SetResult(&env).Get("/api/products")
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode())
	}

	return env.Data, nil
}

func (c *HTTPCatalog) Ping(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/api/health")
	if err != nil {
		return fmt.Errorf("catalog health failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("catalog health returned status %d", resp.StatusCode())
	}
	return nil
}
