package model

import "time"

//購入以外の在庫の動き（出品者の在庫設定、キャンセル時の戻しなど）

type InventoryAdjustment struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID   int64     `gorm:"not null;index" json:"listing_id"`
	ActorUserID int64     `gorm:"not null;index" json:"actor_user_id"`
	Delta       int64     `gorm:"not null" json:"delta"`
	Reason      string    `gorm:"type:varchar(255);not null" json:"reason"`
	OrderID     *int64    `gorm:"index" json:"order_id,omitempty"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

const (
	AdjustmentReasonOrderRejected  = "order_rejected"
	AdjustmentReasonOrderCancelled = "order_cancelled"
)
