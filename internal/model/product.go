package model

import (
	"github.com/shopspring/decimal"
)

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Barcode      string          `json:"barcode"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	CurrentStock int             `json:"currentStock"`
	MinStock     int             `json:"minStock"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
}

// BundleItem is one product of a bundle recipe.
type BundleItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Bundle is a fixed recipe of products sold at a flat price.
type Bundle struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
	Items  []BundleItem    `json:"items"`
}

// AvailableCount is how many whole bundles the current item stock could make.
func (b *Bundle) AvailableCount() int {
	if len(b.Items) == 0 {
		return 0
	}
	count := -1
	for _, item := range b.Items {
		if item.Quantity <= 0 {
			continue
		}
		n := item.Product.CurrentStock / item.Quantity
		if n < 0 {
			n = 0
		}
		if count < 0 || n < count {
			count = n
		}
	}
	if count < 0 {
		return 0
	}
	return count
}

// FirstShortItem returns the first item whose product stock cannot cover the
// quantity the recipe needs.
func (b *Bundle) FirstShortItem() (BundleItem, bool) {
	for _, item := range b.Items {
		if item.Product.CurrentStock < item.Quantity {
			return item, true
		}
	}
	return BundleItem{}, false
}
