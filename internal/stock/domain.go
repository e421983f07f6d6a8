package stock

import (
	"fmt"
	"time"

	"github.com/tebahq/teba/internal/shared"
)

// Level is the on-hand quantity for one (product, location) pair. Rows are
// created lazily on first mutation and never deleted, only zeroed.
type Level struct {
	ProductID  int64     `json:"product_id"`
	LocationID int64     `json:"location_id"`
	Quantity   int64     `json:"quantity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Credit returns the level with qty added.
func (l Level) Credit(qty int64) (Level, error) {
	if qty <= 0 {
		return Level{}, fmt.Errorf("%w: credit quantity must be positive, got %d", shared.ErrInvalidInput, qty)
	}
	l.Quantity += qty
	return l, nil
}

// Debit returns the level with qty removed. The quantity invariant lives
// here: a level can never go negative.
func (l Level) Debit(qty int64) (Level, error) {
	if qty <= 0 {
		return Level{}, fmt.Errorf("%w: debit quantity must be positive, got %d", shared.ErrInvalidInput, qty)
	}
	if l.Quantity < qty {
		return Level{}, fmt.Errorf("%w: product %d at location %d has %d, requested %d",
			shared.ErrInsufficientStock, l.ProductID, l.LocationID, l.Quantity, qty)
	}
	l.Quantity -= qty
	return l, nil
}

// WithQuantity overwrites the on-hand quantity, used by stocktake completion.
func (l Level) WithQuantity(qty int64) (Level, error) {
	if qty < 0 {
		return Level{}, fmt.Errorf("%w: quantity cannot be negative", shared.ErrInvalidInput)
	}
	l.Quantity = qty
	return l, nil
}

// LowStockItem pairs a product with its total on-hand quantity when the
// quantity has fallen to or below the product's reorder level.
type LowStockItem struct {
	ProductID    int64  `json:"product_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	ReorderLevel int64  `json:"reorder_level"`
	TotalStock   int64  `json:"total_stock"`
}
