package cashout

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cashout is the daily reconciliation row for one location. The entered
// figures are what the people on the floor report; the derived figures say
// whether the day's money adds up.
type Cashout struct {
	ID              int64           `json:"id"`
	Date            time.Time       `json:"date"`
	LocationID      *int64          `json:"location_id,omitempty"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`
	Paid            decimal.Decimal `json:"paid"`
	CustomerBalance decimal.Decimal `json:"customer_balance"`
	Wholesale       decimal.Decimal `json:"wholesale"`
	Debt            decimal.Decimal `json:"debt"`
	Cash            decimal.Decimal `json:"cash"`
	Accounts        decimal.Decimal `json:"accounts"`
	Expenses        decimal.Decimal `json:"expenses"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TotalSales is money that came in: payments plus credit extended plus
// wholesale turnover.
func (c Cashout) TotalSales() decimal.Decimal {
	return c.Paid.Add(c.CustomerBalance).Add(c.Wholesale)
}

// TotalCashout is money accounted for at close: debt, cash on hand, bank
// accounts, and expenses.
func (c Cashout) TotalCashout() decimal.Decimal {
	return c.Debt.Add(c.Cash).Add(c.Accounts).Add(c.Expenses)
}

// Difference is sales minus cashout. Zero means the day reconciles.
func (c Cashout) Difference() decimal.Decimal {
	return c.TotalSales().Sub(c.TotalCashout())
}

// LessExcess is the difference net of the opening balance. Negative means
// excess cash, positive means a shortfall.
func (c Cashout) LessExcess() decimal.Decimal {
	return c.Difference().Sub(c.OpeningBalance)
}

// Expense is a spend recorded against a day and location.
type Expense struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Notes    string          `json:"notes,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Location string          `json:"location,omitempty"`
	Date     time.Time       `json:"date"`
}

// ExpenseName is a reusable label for expense entry.
type ExpenseName struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Summary is a cashout row with its derived figures flattened for clients.
type Summary struct {
	Cashout
	TotalSales decimal.Decimal `json:"total_sales"`
	TotalCash  decimal.Decimal `json:"total_cashout"`
	Difference decimal.Decimal `json:"difference"`
	LessExcess decimal.Decimal `json:"less_excess"`
}

// Summarize derives the computed figures.
func Summarize(c Cashout) Summary {
	return Summary{
		Cashout:    c,
		TotalSales: c.TotalSales(),
		TotalCash:  c.TotalCashout(),
		Difference: c.Difference(),
		LessExcess: c.LessExcess(),
	}
}
