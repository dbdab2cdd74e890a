package repository

import (
	"context"
	"errors"

	"market/internal/domain/model"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 調整履歴作成
func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	if err := r.db.WithContext(ctx).Create(&adj).Error; err != nil {
		return err
	}
	return nil
}

// 出品ごとの調整履歴（古い順）
func (r *InventoryGormRepository) ListAdjustments(ctx context.Context, listingID int64) ([]model.InventoryAdjustment, error) {
	var items []model.InventoryAdjustment
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
