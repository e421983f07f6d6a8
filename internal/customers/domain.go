package customers

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tebahq/teba/internal/shared"
)

// Customer carries a running balance: what the business has supplied on
// credit minus what the customer has paid back.
type Customer struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	LocationID *int64          `json:"location_id,omitempty"`
	TIN        string          `json:"tin,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SupplyEntry records goods handed over on credit. Inserting one credits the
// customer's balance in the same transaction.
type SupplyEntry struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	SuppliedAt time.Time       `json:"supplied_at"`
}

// CustomerPayment records money received against the balance.
type CustomerPayment struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	PaidAt     time.Time       `json:"paid_at"`
}

// Adjustment kinds.
const (
	AdjustmentCredit = "credit"
	AdjustmentDebit  = "debit"
)

// BalanceAdjustment is a manual correction to the running balance.
type BalanceAdjustment struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Ledger summarises a customer's account.
type Ledger struct {
	Customer      Customer        `json:"customer"`
	TotalSupplied decimal.Decimal `json:"total_supplied"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	Supplies      []SupplyEntry   `json:"supplies,omitempty"`
	Payments      []CustomerPayment `json:"payments,omitempty"`
	Adjustments   []BalanceAdjustment `json:"adjustments,omitempty"`
}

// CreditBalance adds to the running balance.
func (c Customer) CreditBalance(amount decimal.Decimal) (Customer, error) {
	if !amount.IsPositive() {
		return Customer{}, fmt.Errorf("%w: amount must be positive", shared.ErrInvalidInput)
	}
	c.Balance = c.Balance.Add(amount)
	return c, nil
}

// DebitBalance subtracts from the running balance. Paying off more than is
// owed is an overpayment.
func (c Customer) DebitBalance(amount decimal.Decimal) (Customer, error) {
	if !amount.IsPositive() {
		return Customer{}, fmt.Errorf("%w: amount must be positive", shared.ErrInvalidInput)
	}
	if amount.GreaterThan(c.Balance) {
		return Customer{}, fmt.Errorf("%w: customer %s owes %s, received %s",
			shared.ErrOverpayment, c.Name, c.Balance, amount)
	}
	c.Balance = c.Balance.Sub(amount)
	return c, nil
}
