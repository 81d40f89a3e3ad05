package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/nakshjewels/cart-service/pkg/logger"
	"go.uber.org/zap"
)

// CartService is the part of the cart engine the HTTP layer drives.
type CartService interface {
	GetCart(ctx context.Context, sessionID string) (*domain.CartView, error)
	AddItem(ctx context.Context, sessionID, productID string, quantity int) (*domain.CartView, error)
	SetItemQuantity(ctx context.Context, sessionID, productID string, quantity int) (*domain.CartView, error)
	RemoveItem(ctx context.Context, sessionID, productID string) (*domain.CartView, error)
	ClearCart(ctx context.Context, sessionID string) (*domain.CartView, error)
}

type CartHandler struct {
	service CartService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(service CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

type CartItemRequestDTO struct {
	SessionID string `json:"sessionId"`
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.service.GetCart(ctx, chi.URLParam(r, "sessionId"))
	if err != nil {
		handleServiceError(w, logger.WithContext(ctx, h.logger), err)
		return
	}

	respondData(w, http.StatusOK, "", view)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CartItemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "quantity is required")
		return
	}

	view, err := h.service.AddItem(ctx, req.SessionID, req.ProductID, *req.Quantity)
	if err != nil {
		handleServiceError(w, logger.WithContext(ctx, h.logger), err)
		return
	}

	respondData(w, http.StatusOK, "Item added to cart successfully", view)
}

// UpdateItem serves both PUT /api/cart and PUT /api/cart/{sessionId}/items/{productId}.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CartItemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	pathParams(r, &req)
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "quantity is required")
		return
	}

	view, err := h.service.SetItemQuantity(ctx, req.SessionID, req.ProductID, *req.Quantity)
	if err != nil {
		handleServiceError(w, logger.WithContext(ctx, h.logger), err)
		return
	}

	respondData(w, http.StatusOK, "Cart updated successfully", view)
}

// RemoveItem serves both DELETE /api/cart and DELETE /api/cart/{sessionId}/items/{productId}.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CartItemRequestDTO
	if chi.URLParam(r, "productId") == "" {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	pathParams(r, &req)

	view, err := h.service.RemoveItem(ctx, req.SessionID, req.ProductID)
	if err != nil {
		handleServiceError(w, logger.WithContext(ctx, h.logger), err)
		return
	}

	respondData(w, http.StatusOK, "Item removed from cart", view)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.service.ClearCart(ctx, chi.URLParam(r, "sessionId"))
	if err != nil {
		handleServiceError(w, logger.WithContext(ctx, h.logger), err)
		return
	}

	respondData(w, http.StatusOK, "Cart cleared successfully", view)
}

// pathParams lets the RESTful routes override body fields.
func pathParams(r *http.Request, req *CartItemRequestDTO) {
	if sid := chi.URLParam(r, "sessionId"); sid != "" {
		req.SessionID = sid
	}
	if pid := chi.URLParam(r, "productId"); pid != "" {
		req.ProductID = pid
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		respondError(w, http.StatusBadRequest, "invalid_argument", "request body is required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body")
		return false
	}
	return true
}
