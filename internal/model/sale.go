package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const PaymentCash = "CASH"

type SaleItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// SaleRequest is the body submitted to the sale API at checkout.
type SaleRequest struct {
	CustomerID    *int64            `json:"customerId,omitempty"`
	Items         []SaleItemRequest `json:"items" validate:"dive"`
	BundleIDs     []int64           `json:"bundleIds" validate:"dive,gt=0"`
	Discount      decimal.Decimal   `json:"discount" validate:"gte=0"`
	PaymentMethod string            `json:"paymentMethod" validate:"required,oneof=CASH"`
}

// SaleRecord is what the sale API returns for a completed sale.
type SaleRecord struct {
	ID            int64           `json:"id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"paymentMethod"`
	CustomerID    *int64          `json:"customerId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Suggestion is a "frequently bought with" product for the current basket.
type Suggestion struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Frequency   int64           `json:"frequency"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
}
