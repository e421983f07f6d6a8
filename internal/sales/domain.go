package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
)

// Sale invoice lifecycle.
const (
	SaleDraft     = "draft"
	SaleSent      = "sent"
	SalePaid      = "paid"
	SaleOverdue   = "overdue"
	SaleCancelled = "cancelled"
)

// Sale is an invoice-style document. Creating a sale or its items never moves
// stock; only a SaleOrder confirmation debits the ledger.
type Sale struct {
	ID          int64           `json:"id"`
	Reference   string          `json:"reference"`
	CustomerID  *int64          `json:"customer_id,omitempty"`
	LocationID  int64           `json:"location_id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Items       []SaleItem      `json:"items,omitempty"`
	Payments    []Payment       `json:"payments,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SaleItem is one invoice line. LineTotal is always quantity times unit price.
type SaleItem struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"sale_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Payment is money received against a sale.
type Payment struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"sale_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	PaidAt    time.Time       `json:"paid_at"`
}

// Editable reports whether items may still be added or changed.
func (s Sale) Editable() bool {
	return s.Status == SaleDraft || s.Status == SaleSent || s.Status == SaleOverdue
}

// WithTotal re-derives the document total from the full item set. Safe to
// re-run; the total is never maintained incrementally. Shrinking the total
// below what is already paid is rejected.
func (s Sale) WithTotal(items []SaleItem) (Sale, error) {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal)
	}
	if total.LessThan(s.PaidAmount) {
		return Sale{}, fmt.Errorf("%w: sale %s has %s paid, items cannot total %s",
			shared.ErrInvalidInput, s.Reference, s.PaidAmount, total)
	}
	s.TotalAmount = total
	s.Items = items
	return s, nil
}

// CheckPayment validates a prospective payment against the balance due.
func (s Sale) CheckPayment(amount decimal.Decimal) error {
	if s.Status == SaleCancelled {
		return fmt.Errorf("%w: sale %s is cancelled", shared.ErrInvalidTransition, s.Reference)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive", shared.ErrInvalidInput)
	}
	if s.PaidAmount.Add(amount).GreaterThan(s.TotalAmount) {
		return fmt.Errorf("%w: sale %s total %s, already paid %s, payment %s",
			shared.ErrOverpayment, s.Reference, s.TotalAmount, s.PaidAmount, amount)
	}
	return nil
}

// WithPayments recomputes paid_amount from the full payment set and derives
// the status: paid when fully covered, sent when partially paid, unchanged
// otherwise.
func (s Sale) WithPayments(payments []Payment) Sale {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	s.PaidAmount = paid
	s.Payments = payments
	switch {
	case paid.GreaterThanOrEqual(s.TotalAmount) && s.TotalAmount.IsPositive():
		s.Status = SalePaid
	case paid.IsPositive():
		s.Status = SaleSent
	}
	return s
}

// MarkSent moves a draft to sent.
func (s Sale) MarkSent() (Sale, error) {
	if s.Status != SaleDraft {
		return Sale{}, fmt.Errorf("%w: sale %s is %s, only draft can be sent",
			shared.ErrInvalidTransition, s.Reference, s.Status)
	}
	s.Status = SaleSent
	return s, nil
}

// MarkOverdue flags a sent sale past its due date.
func (s Sale) MarkOverdue() (Sale, error) {
	if s.Status != SaleSent {
		return Sale{}, fmt.Errorf("%w: sale %s is %s, only sent can become overdue",
			shared.ErrInvalidTransition, s.Reference, s.Status)
	}
	s.Status = SaleOverdue
	return s, nil
}

// Cancel voids an unpaid sale.
func (s Sale) Cancel() (Sale, error) {
	if s.Status == SalePaid || s.Status == SaleCancelled {
		return Sale{}, fmt.Errorf("%w: sale %s is %s and cannot be cancelled",
			shared.ErrInvalidTransition, s.Reference, s.Status)
	}
	s.Status = SaleCancelled
	return s, nil
}

// Sale order lifecycle.
const (
	OrderDraft     = "draft"
	OrderConfirmed = "confirmed"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// SaleOrder is a stock-moving sales document. Confirm debits every line.
type SaleOrder struct {
	ID          int64           `json:"id"`
	Reference   string          `json:"reference"`
	CustomerID  *int64          `json:"customer_id,omitempty"`
	LocationID  int64           `json:"location_id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes,omitempty"`
	Items       []SaleOrderItem `json:"items,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

// SaleOrderItem is one order line.
type SaleOrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Confirm transitions draft to confirmed. The caller debits stock for every
// line inside the same transaction.
func (o SaleOrder) Confirm(at time.Time) (SaleOrder, error) {
	if o.Status != OrderDraft {
		return SaleOrder{}, fmt.Errorf("%w: sale order %s is %s, only draft can be confirmed",
			shared.ErrInvalidTransition, o.Reference, o.Status)
	}
	o.Status = OrderConfirmed
	o.ConfirmedAt = &at
	return o, nil
}

// Deliver transitions confirmed to delivered. Stock moved at confirmation.
func (o SaleOrder) Deliver() (SaleOrder, error) {
	if o.Status != OrderConfirmed {
		return SaleOrder{}, fmt.Errorf("%w: sale order %s is %s, only confirmed can be delivered",
			shared.ErrInvalidTransition, o.Reference, o.Status)
	}
	o.Status = OrderDelivered
	return o, nil
}

// Cancel is allowed from draft only; a confirmed order has already moved
// stock and has no automatic restock path.
func (o SaleOrder) Cancel() (SaleOrder, error) {
	if o.Status != OrderDraft {
		return SaleOrder{}, fmt.Errorf("%w: sale order %s is %s, only draft can be cancelled",
			shared.ErrInvalidTransition, o.Reference, o.Status)
	}
	o.Status = OrderCancelled
	return o, nil
}
