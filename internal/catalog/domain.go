package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Supplier is a procurement counterparty.
type Supplier struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Address       string `json:"address,omitempty"`
}

// Location is a stock-holding site (shop, warehouse, retail counter). The
// access-control layer owns who may write to which location; the core trusts
// the caller.
type Location struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a sellable item. Stock quantities live in the stock ledger, one
// row per location the product has ever touched.
type Product struct {
	ID           int64           `json:"id"`
	CategoryID   *int64          `json:"category_id,omitempty"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ReorderLevel int64           `json:"reorder_level"`
	CreatedAt    time.Time       `json:"created_at"`
}
