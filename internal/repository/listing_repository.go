package repository

import (
	"context"

	"market/internal/domain/model"
)

// 一覧検索
type ListingListQuery struct {
	Page     int
	Limit    int
	Q        string
	FarmerID *int64
}

// 出品の永続化。
// 在庫数を変える書き込みは ConditionalDecrement / SetQuantityIfUnchanged / Increment だけ。
type ListingRepository interface {
	FindByID(ctx context.Context, id int64) (model.Listing, error)

	// まとめて取得。存在しないIDは結果に含まれない。
	FindByIDs(ctx context.Context, ids []int64) ([]model.Listing, error)

	ListPublic(ctx context.Context, q ListingListQuery) ([]model.Listing, int64, error)

	Create(ctx context.Context, l model.Listing) (model.Listing, error)

	// タイトル・単位・説明・価格・状態を更新（在庫数は触らない）。
	// 読んだときの在庫数と状態のままのときだけ書く。0件なら false。
	Update(ctx context.Context, l model.Listing, expectedQty int64, expectedStatus model.ListingStatus) (bool, error)

	// 在庫数が expectedQty のまま、かつ ACTIVE のときだけ newQty / newStatus を書く。
	// 0件更新なら false（他の予約が先に書いた）。
	ConditionalDecrement(ctx context.Context, id int64, expectedQty int64, newQty int64, newStatus model.ListingStatus) (bool, error)

	// 在庫数が expectedQty のままのときだけ newQty / newStatus を書く（出品者の在庫設定）。
	SetQuantityIfUnchanged(ctx context.Context, id int64, expectedQty int64, newQty int64, newStatus model.ListingStatus) (bool, error)

	// 在庫戻し。SOLD は ACTIVE に戻す。
	Increment(ctx context.Context, id int64, qty int64) error
}
