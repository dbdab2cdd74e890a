package repository

import (
	"context"

	"market/internal/domain/model"
	repo "market/internal/repository"

	"gorm.io/gorm"
)

// 追記のみ。Update/Delete は実装しない。
type orderStatusHistoryGormRepository struct {
	db *gorm.DB
}

func NewOrderStatusHistoryGormRepository(db *gorm.DB) repo.OrderStatusHistoryRepository {
	return &orderStatusHistoryGormRepository{db: db}
}

func (r *orderStatusHistoryGormRepository) Append(ctx context.Context, entry model.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *orderStatusHistoryGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error) {
	var entries []model.OrderStatusHistory
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
