package retail

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
)

// Level is the retail counter's quantity pool for one (product, location)
// pair. Unlike the main ledger it holds fractional quantities: the pool is
// fed by money-denominated sales, so thirds and halves of a unit are normal.
type Level struct {
	ProductID  int64           `json:"product_id"`
	LocationID int64           `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Sale is one retail counter sale, priced by amount of money handed over.
type Sale struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	LocationID    int64           `json:"location_id"`
	AmountGiven   decimal.Decimal `json:"amount_given"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	QuantityGiven decimal.Decimal `json:"quantity_given"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ComputeQuantity derives the quantity sold from money given and unit price.
// A zero or negative unit price is a domain error, not an arithmetic fault.
func ComputeQuantity(amountGiven, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	if !unitPrice.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: unit_price must be positive, got %s",
			shared.ErrInvalidInput, unitPrice)
	}
	if !amountGiven.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount_given must be positive, got %s",
			shared.ErrInvalidInput, amountGiven)
	}
	return amountGiven.Div(unitPrice), nil
}
