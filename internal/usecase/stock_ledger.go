package usecase

import (
	"context"
	"errors"
	"time"

	"market/internal/domain/model"
	repo "market/internal/repository"
)

// StockLedger は出品の在庫数と状態を動かす唯一の入口。
// 購入による減算は ConditionalDecrement（CAS）だけで行う。
type StockLedger struct {
	listings  repo.ListingRepository
	inventory repo.InventoryRepository
}

// トランザクション内では TxRepos の repo を渡して作る
func NewStockLedger(listings repo.ListingRepository, inventory repo.InventoryRepository) *StockLedger {
	return &StockLedger{listings: listings, inventory: inventory}
}

// 予約結果。Listing は減算前に読んだ値（単価・出品者の取得用）。
type Reservation struct {
	ListingID        int64
	PreviousQuantity int64
	NewQuantity      int64
	ResultingStatus  model.ListingStatus
	Listing          model.Listing
}

// ReserveStock は qty だけ在庫を減らす。0 になったら同じ書き込みで SOLD にする。
// 読んだ値から変わっていれば ErrStockConflict（部分適用はしない）。
func (l *StockLedger) ReserveStock(ctx context.Context, listingID int64, qty int64) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}

	cur, err := l.listings.FindByID(ctx, listingID)
	if errors.Is(err, repo.ErrNotFound) {
		return Reservation{}, ErrListingUnavailable
	}
	if err != nil {
		return Reservation{}, err
	}
	if cur.Status != model.ListingStatusActive {
		return Reservation{}, ErrListingUnavailable
	}
	if cur.AvailableQuantity < qty {
		return Reservation{}, ErrInsufficientStock
	}

	newQty := cur.AvailableQuantity - qty
	newStatus := cur.Status
	if newQty == 0 {
		newStatus = model.ListingStatusSold
	}

	ok, err := l.listings.ConditionalDecrement(ctx, listingID, cur.AvailableQuantity, newQty, newStatus)
	if err != nil {
		return Reservation{}, err
	}
	if !ok {
		return Reservation{}, ErrStockConflict
	}

	return Reservation{
		ListingID:        listingID,
		PreviousQuantity: cur.AvailableQuantity,
		NewQuantity:      newQty,
		ResultingStatus:  newStatus,
		Listing:          cur,
	}, nil
}

// RestoreStock は加算で在庫を戻し（SOLD は ACTIVE に戻る）、調整履歴を残す。
func (l *StockLedger) RestoreStock(ctx context.Context, listingID int64, qty int64, actorID int64, orderID *int64, reason string) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := l.listings.Increment(ctx, listingID, qty); err != nil {
		return err
	}
	return l.inventory.CreateAdjustment(ctx, model.InventoryAdjustment{
		ListingID:   listingID,
		ActorUserID: actorID,
		Delta:       qty,
		Reason:      reason,
		OrderID:     orderID,
		CreatedAt:   time.Now(),
	})
}
