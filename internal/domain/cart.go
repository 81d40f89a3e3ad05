package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is the stored aggregate for one browser session.
// TotalAmount is derived and only meaningful right after pricing; it is never
// used as an input to a new computation.
type Cart struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Items       []CartItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type CartItem struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// NewCart returns an empty, never persisted cart for the session.
func NewCart(sessionID string) *Cart {
	return &Cart{
		SessionID:   sessionID,
		Items:       []CartItem{},
		TotalAmount: decimal.Zero,
	}
}

// FindItem returns the index of the line for productID.
func (c *Cart) FindItem(productID string) (int, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// Quantity of productID currently in the cart, 0 when there is no line.
func (c *Cart) Quantity(productID string) int {
	if i, ok := c.FindItem(productID); ok {
		return c.Items[i].Quantity
	}
	return 0
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount is the sum of all line quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsNew reports whether the cart has never been saved.
func (c *Cart) IsNew() bool {
	return c.Version == 0
}

// Clone returns a deep copy so a rejected mutation never touches the loaded cart.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

// SameItems reports whether both carts hold identical lines in the same order.
func (c *Cart) SameItems(other *Cart) bool {
	if len(c.Items) != len(other.Items) {
		return false
	}
	for i := range c.Items {
		if c.Items[i].ProductID != other.Items[i].ProductID || c.Items[i].Quantity != other.Items[i].Quantity {
			return false
		}
	}
	return true
}
