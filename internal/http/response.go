package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nakshjewels/cart-service/internal/domain"
	"go.uber.org/zap"
)

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	MaxQuantity *int   `json:"max_quantity,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondData(w http.ResponseWriter, status int, message string, data any) {
	respondJSON(w, status, SuccessResponse{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// handleServiceError converts cart engine errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var httpStatus int
	var code string
	message := err.Error()

	switch domain.KindOf(err) {
	case domain.KindInvalidArgument:
		httpStatus, code = http.StatusBadRequest, "invalid_argument"
	case domain.KindNotFound:
		httpStatus, code = http.StatusNotFound, "product_not_found"
	case domain.KindNotFoundInCart:
		httpStatus, code = http.StatusNotFound, "item_not_in_cart"
	case domain.KindUnavailable:
		httpStatus, code = http.StatusConflict, "product_unavailable"
	case domain.KindStockExceeded:
		maxQty, _ := domain.MaxQuantityOf(err)
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:       message,
			Code:        "stock_exceeded",
			MaxQuantity: &maxQty,
		})
		return
	case domain.KindDependencyUnavailable:
		httpStatus, code = http.StatusServiceUnavailable, "dependency_unavailable"
		message = publicMessage(err)
	case domain.KindConflict:
		httpStatus, code = http.StatusConflict, "conflict"
	case domain.KindCatalogInconsistent:
		httpStatus, code = http.StatusInternalServerError, "catalog_inconsistent"
		message = publicMessage(err)
	default:
		httpStatus, code = http.StatusInternalServerError, "internal_error"
		message = "internal server error"
	}

	if httpStatus >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	respondError(w, httpStatus, code, message)
}

// publicMessage drops wrapped driver errors from the response body.
func publicMessage(err error) string {
	var e *domain.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
