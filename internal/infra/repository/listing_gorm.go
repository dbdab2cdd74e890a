package repository

import (
	"context"
	"strings"
	"time"

	"market/internal/domain/model"
	repo "market/internal/repository"

	"gorm.io/gorm"
)

type ListingGormRepository struct {
	db *gorm.DB
}

// DI
func NewListingGormRepository(db *gorm.DB) *ListingGormRepository {
	return &ListingGormRepository{db: db}
}

// 公開中（ACTIVE）の出品を、検索/ページング付きで返す。
// FarmerID 指定時はその農家の ACTIVE な出品に絞る。
func (r *ListingGormRepository) ListPublic(ctx context.Context, q repo.ListingListQuery) ([]model.Listing, int64, error) {
	var listings []model.Listing
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Listing{})

	tx = tx.Where("status = ?", model.ListingStatusActive)
	if q.FarmerID != nil {
		tx = tx.Where("farmer_id = ?", *q.FarmerID)
	}

	// q titleを対象（postgres/sqlite 両方で動くよう LOWER で比較）
	if s := strings.TrimSpace(q.Q); s != "" {
		tx = tx.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%")
	}

	//total（件数）
	if err := tx.Count(&total).Error; err != nil {
		return []model.Listing{}, 0, err
	}

	offset := (q.Page - 1) * q.Limit
	if err := tx.Order("created_at desc").Order("id desc").Offset(offset).Limit(q.Limit).Find(&listings).Error; err != nil {
		return []model.Listing{}, 0, err
	}

	return listings, total, nil
}

// IDで出品を取得
func (r *ListingGormRepository) FindByID(ctx context.Context, id int64) (model.Listing, error) {
	var l model.Listing
	err := r.db.WithContext(ctx).First(&l, id).Error
	if isNotFound(err) {
		return model.Listing{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

// まとめて取得（1クエリ）
func (r *ListingGormRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Listing, error) {
	if len(ids) == 0 {
		return []model.Listing{}, nil
	}
	var listings []model.Listing
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id asc").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

// 出品の作成
func (r *ListingGormRepository) Create(ctx context.Context, l model.Listing) (model.Listing, error) {
	if err := r.db.WithContext(ctx).Create(&l).Error; err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

// 出品の更新（在庫数は対象外）
func (r *ListingGormRepository) Update(ctx context.Context, l model.Listing, expectedQty int64, expectedStatus model.ListingStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("id = ? AND available_quantity = ? AND status = ?", l.ID, expectedQty, expectedStatus).
		Updates(map[string]interface{}{
			"title":       l.Title,
			"unit":        l.Unit,
			"description": l.Description,
			"unit_price":  l.UnitPrice,
			"status":      l.Status,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// 読んだ在庫数のままのときだけ減らす（CAS）
func (r *ListingGormRepository) ConditionalDecrement(ctx context.Context, id int64, expectedQty int64, newQty int64, newStatus model.ListingStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND available_quantity = ? AND status = ?", id, expectedQty, model.ListingStatusActive).
		Updates(map[string]interface{}{
			"available_quantity": newQty,
			"status":             newStatus,
			"updated_at":         time.Now(),
		})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// 出品者の在庫設定。状態は問わず、数だけ CAS で守る。
func (r *ListingGormRepository) SetQuantityIfUnchanged(ctx context.Context, id int64, expectedQty int64, newQty int64, newStatus model.ListingStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND available_quantity = ?", id, expectedQty).
		Updates(map[string]interface{}{
			"available_quantity": newQty,
			"status":             newStatus,
			"updated_at":         time.Now(),
		})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// 在庫戻し（却下・キャンセル）
func (r *ListingGormRepository) Increment(ctx context.Context, id int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"available_quantity": gorm.Expr("available_quantity + ?", qty),
			"status":             gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", model.ListingStatusSold, model.ListingStatusActive),
			"updated_at":         time.Now(),
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
