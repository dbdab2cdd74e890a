package repository

import (
	"context"

	"market/internal/domain/model"
)

// キャッシュに置く注文ステータス。閲覧権限の判定に買い手・売り手も持つ。
// Step は Status.Step()。古い値で新しい値を上書きしないために使う。
type OrderStatusSnapshot struct {
	OrderID  int64             `redis:"order_id"`
	BuyerID  int64             `redis:"buyer_id"`
	SellerID int64             `redis:"seller_id"`
	Status   model.OrderStatus `redis:"status"`
	Step     int               `redis:"step"`
}

func NewOrderStatusSnapshot(o model.Order) OrderStatusSnapshot {
	return OrderStatusSnapshot{
		OrderID:  o.ID,
		BuyerID:  o.BuyerID,
		SellerID: o.SellerID,
		Status:   o.Status,
		Step:     o.Status.Step(),
	}
}

// 注文ステータスの読み取りキャッシュ。正はDB。
type OrderStatusCache interface {
	// 置いてある Step 以下なら何もしない（written=false）
	SetIfNewer(ctx context.Context, snap OrderStatusSnapshot) (written bool, err error)
	Delete(ctx context.Context, orderID int64) error
	// 無ければ found=false
	Get(ctx context.Context, orderID int64) (OrderStatusSnapshot, bool, error)
}
