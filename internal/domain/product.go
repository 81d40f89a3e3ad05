package domain

import "github.com/shopspring/decimal"

// Product is a read-only snapshot of a catalog entry taken at mutation time.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	IsAvailable bool            `json:"isAvailable"`
}
