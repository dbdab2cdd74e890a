package repository

import (
	"context"

	"market/internal/domain/model"
)

type InventoryRepository interface {
	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error

	ListAdjustments(ctx context.Context, listingID int64) ([]model.InventoryAdjustment, error)
}
