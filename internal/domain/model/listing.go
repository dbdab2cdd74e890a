package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "ACTIVE"
	ListingStatusSold     ListingStatus = "SOLD"
	ListingStatusInactive ListingStatus = "INACTIVE"
	ListingStatusExpired  ListingStatus = "EXPIRED"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusActive, ListingStatusSold, ListingStatusInactive, ListingStatusExpired:
		return true
	}
	return false
}

// 出品（農家が所有）。
// available_quantityだけが同時更新の対象になる。
type Listing struct {
	ID       int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	FarmerID int64 `gorm:"not null;index" json:"farmer_id"`

	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Unit        string `gorm:"type:varchar(50);not null" json:"unit"`
	Description string `gorm:"type:text" json:"description"`

	UnitPrice         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	AvailableQuantity int64           `gorm:"not null" json:"available_quantity"`
	Status            ListingStatus   `gorm:"type:varchar(20);not null;index" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// ACTIVEかつ在庫が足りるときだけ購入できる
func (l Listing) Purchasable(qty int64) bool {
	return l.Status == ListingStatusActive && l.AvailableQuantity >= qty
}
