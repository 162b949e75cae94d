package model

import "time"

// StoredCartLine is the persisted shape of a cart line. Prices and names are
// deliberately absent so a restore always re-derives them from the catalog.
type StoredCartLine struct {
	IsBundle  bool   `json:"isBundle"`
	Quantity  int    `json:"quantity"`
	ProductID *int64 `json:"productId,omitempty"`
	BundleID  *int64 `json:"bundleId,omitempty"`
}

// CartSnapshot is one key-value row of the durable cart store.
type CartSnapshot struct {
	SessionKey string    `gorm:"type:varchar(100);primaryKey" json:"session_key"`
	Value      string    `gorm:"type:text;not null" json:"value"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (CartSnapshot) TableName() string {
	return "pos_cart_snapshots"
}
