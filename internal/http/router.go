package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nakshjewels/cart-service/internal/health"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// HealthReporter checks the service dependencies.
type HealthReporter interface {
	Run(ctx context.Context) health.Report
}

type RouterConfig struct {
	Cart               *CartHandler
	Products           *ProductHandler
	Health             HealthReporter
	Logger             *zap.Logger
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	CORSAllowedOrigin  string
	Version            string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.CORSAllowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Naksh Jewels API",
			"version": cfg.Version,
			"endpoints": map[string]string{
				"products": "/api/products",
				"cart":     "/api/cart",
				"health":   "/api/health",
			},
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler(cfg.Health))

		if cfg.Products != nil {
			r.Route("/products", func(r chi.Router) {
				r.Get("/", cfg.Products.List)
				r.Get("/{id}", cfg.Products.Get)
			})
		}

		r.Route("/cart", func(r chi.Router) {
			r.Post("/", cfg.Cart.AddItem)
			r.Put("/", cfg.Cart.UpdateItem)
			r.Delete("/", cfg.Cart.RemoveItem)
			r.Get("/{sessionId}", cfg.Cart.GetCart)
			r.Delete("/{sessionId}", cfg.Cart.ClearCart)
			r.Put("/{sessionId}/items/{productId}", cfg.Cart.UpdateItem)
			r.Delete("/{sessionId}/items/{productId}", cfg.Cart.RemoveItem)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not_found", "Not found - "+r.URL.Path)
	})

	return otelhttp.NewHandler(r, "cart-service",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func healthHandler(checker HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			respondJSON(w, http.StatusOK, map[string]any{
				"success":   true,
				"message":   "Server is running",
				"timestamp": time.Now().UTC(),
			})
			return
		}

		report := checker.Run(r.Context())
		status, message := http.StatusOK, "Server is running"
		if !report.Healthy() {
			status, message = http.StatusServiceUnavailable, "Dependencies unavailable"
		}
		respondJSON(w, status, map[string]any{
			"success":   report.Healthy(),
			"message":   message,
			"timestamp": report.CheckedAt,
			"checks":    report.Checks,
		})
	}
}
