package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartView is what callers receive: the priced cart with product names.
type CartView struct {
	SessionID   string          `json:"sessionId"`
	Items       []CartLine      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	ItemCount   int             `json:"itemCount"`
	UpdatedAt   time.Time       `json:"updatedAt,omitzero"`
}

type CartLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	ImageURL  string          `json:"imageUrl,omitempty"`
}
