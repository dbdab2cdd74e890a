package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusAccepted  OrderStatus = "ACCEPTED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// 前進のみ。REJECTED / CANCELLED / DELIVERED は終端。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusAccepted, OrderStatusRejected},
	OrderStatusAccepted:  {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusRejected:  {},
	OrderStatusCancelled: {},
	OrderStatusDelivered: {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// Step は PENDING からの遷移回数。遷移するたびに必ず1増える。
func (s OrderStatus) Step() int {
	switch s {
	case OrderStatusAccepted, OrderStatusRejected:
		return 1
	case OrderStatusShipped, OrderStatusCancelled:
		return 2
	case OrderStatusDelivered:
		return 3
	}
	return 0
}

// 在庫を戻す遷移か（却下・キャンセル）
func (s OrderStatus) ReleasesStock() bool {
	return s == OrderStatusRejected || s == OrderStatusCancelled
}

// Successors は from から遷移できるステータスのコピーを返す。
func Successors(from OrderStatus) []OrderStatus {
	next := orderTransitions[from]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// 注文。seller_idと単価は作成時に出品からコピーする（後の編集に影響されない）。
type Order struct {
	ID        int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID int64 `gorm:"not null;index" json:"listing_id"`
	BuyerID   int64 `gorm:"not null;index;uniqueIndex:idx_orders_buyer_idem" json:"buyer_id"`
	SellerID  int64 `gorm:"not null;index" json:"seller_id"`

	Quantity            int64           `gorm:"not null" json:"quantity"`
	UnitPriceAtPurchase decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price_at_purchase"`
	// 作成時に一度だけ計算。以後は再計算しない。
	TotalAmount decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`

	Status          OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	DeliveryAddress string      `gorm:"type:text;not null" json:"delivery_address"`
	Notes           *string     `gorm:"type:text" json:"notes,omitempty"`

	//二重送信防止キー（任意）
	IdempotencyKey *string `gorm:"type:varchar(255);uniqueIndex:idx_orders_buyer_idem" json:"-"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
