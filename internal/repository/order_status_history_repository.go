package repository

import (
	"context"

	"market/internal/domain/model"
)

// 注文ステータス履歴。追記と参照のみで、更新・削除は持たない。
type OrderStatusHistoryRepository interface {
	Append(ctx context.Context, entry model.OrderStatusHistory) error

	// 注文の履歴を全件返す。並び順は呼び出し側で作成時刻順にそろえる。
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error)
}
