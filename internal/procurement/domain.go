package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
)

// Purchase is a completed goods receipt. It has no status: creating one
// credits stock immediately and the record is immutable afterwards.
type Purchase struct {
	ID         int64           `json:"id"`
	Reference  string          `json:"reference"`
	SupplierID *int64          `json:"supplier_id,omitempty"`
	LocationID int64           `json:"location_id"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	Notes      string          `json:"notes,omitempty"`
	Items      []PurchaseItem  `json:"items,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PurchaseItem is one received line.
type PurchaseItem struct {
	ID         int64           `json:"id"`
	PurchaseID int64           `json:"purchase_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int64           `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// Purchase order lifecycle.
const (
	OrderDraft     = "draft"
	OrderOrdered   = "ordered"
	OrderReceived  = "received"
	OrderCancelled = "cancelled"
)

// PurchaseOrder is a planned receipt. Stock moves only on MarkReceived.
type PurchaseOrder struct {
	ID           int64               `json:"id"`
	Reference    string              `json:"reference"`
	SupplierID   *int64              `json:"supplier_id,omitempty"`
	LocationID   int64               `json:"location_id"`
	Status       string              `json:"status"`
	ExpectedDate *time.Time          `json:"expected_date,omitempty"`
	TotalCost    decimal.Decimal     `json:"total_cost"`
	Notes        string              `json:"notes,omitempty"`
	Items        []PurchaseOrderItem `json:"items,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	ReceivedAt   *time.Time          `json:"received_at,omitempty"`
}

// PurchaseOrderItem is one planned line.
type PurchaseOrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// MarkOrdered transitions draft to ordered.
func (o PurchaseOrder) MarkOrdered() (PurchaseOrder, error) {
	if o.Status != OrderDraft {
		return PurchaseOrder{}, fmt.Errorf("%w: order %s is %s, only draft can be marked ordered",
			shared.ErrInvalidTransition, o.Reference, o.Status)
	}
	o.Status = OrderOrdered
	return o, nil
}

// MarkReceived transitions ordered to received. Receiving twice is a
// transition error, which is what keeps the stock credit single-shot.
func (o PurchaseOrder) MarkReceived(at time.Time) (PurchaseOrder, error) {
	if o.Status != OrderOrdered {
		return PurchaseOrder{}, fmt.Errorf("%w: order %s is %s, only ordered can be received",
			shared.ErrInvalidTransition, o.Reference, o.Status)
	}
	o.Status = OrderReceived
	o.ReceivedAt = &at
	return o, nil
}

// Cancel is allowed before goods arrive.
func (o PurchaseOrder) Cancel() (PurchaseOrder, error) {
	if o.Status != OrderDraft && o.Status != OrderOrdered {
		return PurchaseOrder{}, fmt.Errorf("%w: order %s is %s, only draft or ordered can be cancelled",
			shared.ErrInvalidTransition, o.Reference, o.Status)
	}
	o.Status = OrderCancelled
	return o, nil
}
