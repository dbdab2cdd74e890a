package repository

import (
	"context"
	"time"

	"market/internal/domain/model"
)

type OrderListFilter struct {
	Page     int
	Limit    int
	Status   string
	BuyerID  *int64
	SellerID *int64
	From     *time.Time
	To       *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// 現在が from のときだけ to に変える。0件なら ErrStaleStatus（存在しなければ ErrNotFound）。
	UpdateStatusIfCurrent(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, buyerID int64, key string) (model.Order, bool, error)

	List(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)
}
