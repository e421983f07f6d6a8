package stocktake

import (
	"fmt"
	"time"

	"github.com/tebahq/teba/internal/shared"
)

// Stocktake lifecycle.
const (
	StatusDraft      = "draft"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// StockTake is a physical count of one location. Completion overwrites stock
// levels for counted items only and is not reversible.
type StockTake struct {
	ID          int64      `json:"id"`
	Reference   string     `json:"reference"`
	LocationID  int64      `json:"location_id"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	Items       []Item     `json:"items,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Item snapshots one product's system quantity at creation time. Counted is
// nil until someone physically counts the product.
type Item struct {
	ID             int64  `json:"id"`
	StockTakeID    int64  `json:"stock_take_id"`
	ProductID      int64  `json:"product_id"`
	QuantityOnHand int64  `json:"quantity_on_hand"`
	Counted        *int64 `json:"quantity_counted,omitempty"`
	Variance       *int64 `json:"variance,omitempty"`
}

// WithCount records the physical count and derives the variance.
func (i Item) WithCount(counted int64) (Item, error) {
	if counted < 0 {
		return Item{}, fmt.Errorf("%w: counted quantity cannot be negative", shared.ErrInvalidInput)
	}
	variance := counted - i.QuantityOnHand
	i.Counted = &counted
	i.Variance = &variance
	return i, nil
}

// Start moves a draft to in_progress.
func (s StockTake) Start() (StockTake, error) {
	if s.Status != StatusDraft {
		return StockTake{}, fmt.Errorf("%w: stocktake %s is %s, only draft can be started",
			shared.ErrInvalidTransition, s.Reference, s.Status)
	}
	s.Status = StatusInProgress
	return s, nil
}

// Countable reports whether items may still be counted.
func (s StockTake) Countable() bool {
	return s.Status == StatusDraft || s.Status == StatusInProgress
}

// Complete finalises the count. A completed or cancelled stocktake cannot be
// completed again; the overwrite must run exactly once.
func (s StockTake) Complete(at time.Time) (StockTake, error) {
	if s.Status == StatusCompleted || s.Status == StatusCancelled {
		return StockTake{}, fmt.Errorf("%w: stocktake %s is already %s",
			shared.ErrInvalidTransition, s.Reference, s.Status)
	}
	s.Status = StatusCompleted
	s.CompletedAt = &at
	return s, nil
}

// Cancel abandons the count. No stock effect.
func (s StockTake) Cancel() (StockTake, error) {
	if s.Status == StatusCompleted || s.Status == StatusCancelled {
		return StockTake{}, fmt.Errorf("%w: stocktake %s is already %s",
			shared.ErrInvalidTransition, s.Reference, s.Status)
	}
	s.Status = StatusCancelled
	return s, nil
}
