package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"market/internal/domain/model"
	repo "market/internal/repository"

	"github.com/shopspring/decimal"
)

const maxBatchIDs = 100

type ListingUsecase struct {
	tx       repo.TransactionManager
	listings repo.ListingRepository
}

// DI
func NewListingUsecase(tx repo.TransactionManager, listings repo.ListingRepository) *ListingUsecase {
	return &ListingUsecase{tx: tx, listings: listings}
}

type ListingListInput struct {
	Page     int
	Limit    int
	Q        string
	FarmerID *int64
}

type ListingListOutput struct {
	Items []model.Listing `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ListingUsecase) ListPublic(ctx context.Context, in ListingListInput) (ListingListOutput, error) {
	if in.Page < 1 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ListingListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}

	items, total, err := u.listings.ListPublic(ctx, repo.ListingListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		FarmerID: in.FarmerID,
	})
	if err != nil {
		return ListingListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ListingListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

// Get は状態に関係なく返す（カート照合で INACTIVE を見分けるため）。
func (u *ListingUsecase) Get(ctx context.Context, id int64) (model.Listing, error) {
	if id <= 0 {
		return model.Listing{}, NewHTTPError(http.StatusBadRequest, "invalid listing id")
	}

	l, err := u.listings.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Listing{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Listing{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return l, nil
}

// GetMany はIDの一覧をまとめて引く。存在しないIDは結果に含まれない。
func (u *ListingUsecase) GetMany(ctx context.Context, ids []int64) ([]model.Listing, error) {
	if len(ids) == 0 {
		return []model.Listing{}, NewHTTPError(http.StatusBadRequest, "ids required")
	}

	seen := make(map[int64]struct{}, len(ids))
	uniq := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return []model.Listing{}, NewHTTPError(http.StatusBadRequest, "invalid ids")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	if len(uniq) > maxBatchIDs {
		return []model.Listing{}, NewHTTPError(http.StatusBadRequest, "too many ids")
	}

	items, err := u.listings.FindByIDs(ctx, uniq)
	if err != nil {
		return []model.Listing{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return items, nil
}

type CreateListingInput struct {
	Title       string
	Unit        string
	Description string
	UnitPrice   decimal.Decimal
	Quantity    int64
}

func (u *ListingUsecase) Create(ctx context.Context, actor model.Actor, in CreateListingInput) (model.Listing, error) {
	if actor.UserID <= 0 {
		return model.Listing{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if actor.Role != model.RoleFarmer {
		return model.Listing{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	title := strings.TrimSpace(in.Title)
	unit := strings.TrimSpace(in.Unit)
	if err := validateListingFields(title, unit, in.UnitPrice); err != nil {
		return model.Listing{}, err
	}
	if in.Quantity < 0 {
		return model.Listing{}, NewHTTPError(http.StatusBadRequest, "quantity must be >= 0")
	}

	//在庫0で作ったものは非公開
	status := model.ListingStatusActive
	if in.Quantity == 0 {
		status = model.ListingStatusInactive
	}

	now := time.Now()
	l, err := u.listings.Create(ctx, model.Listing{
		FarmerID:          actor.UserID,
		Title:             title,
		Unit:              unit,
		Description:       in.Description,
		UnitPrice:         in.UnitPrice,
		AvailableQuantity: in.Quantity,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return model.Listing{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return l, nil
}

// nil のフィールドは変更しない
type UpdateListingInput struct {
	Title       *string
	Unit        *string
	Description *string
	UnitPrice   *decimal.Decimal
	Status      *string
}

// Update は出品内容を更新し、監査ログを残す（在庫数は SetStock で）。
func (u *ListingUsecase) Update(ctx context.Context, actor model.Actor, id int64, in UpdateListingInput) (model.Listing, error) {
	if actor.UserID <= 0 {
		return model.Listing{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if actor.Role != model.RoleFarmer && actor.Role != model.RoleAdmin {
		return model.Listing{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if id <= 0 {
		return model.Listing{}, NewHTTPError(http.StatusBadRequest, "invalid listing id")
	}

	var out model.Listing

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := findOwnedListing(ctx, r.Listings(), actor, id)
		if err != nil {
			return err
		}

		next := cur
		if in.Title != nil {
			next.Title = strings.TrimSpace(*in.Title)
		}
		if in.Unit != nil {
			next.Unit = strings.TrimSpace(*in.Unit)
		}
		if in.Description != nil {
			next.Description = *in.Description
		}
		if in.UnitPrice != nil {
			next.UnitPrice = *in.UnitPrice
		}
		if err := validateListingFields(next.Title, next.Unit, next.UnitPrice); err != nil {
			return err
		}

		if in.Status != nil {
			s := model.ListingStatus(strings.ToUpper(strings.TrimSpace(*in.Status)))
			switch {
			case !s.Valid():
				return NewHTTPError(http.StatusBadRequest, "invalid status")
			case s == model.ListingStatusSold && cur.Status != model.ListingStatusSold:
				return NewHTTPError(http.StatusBadRequest, "status SOLD cannot be set manually")
			case s == model.ListingStatusActive && cur.AvailableQuantity == 0:
				return NewHTTPError(http.StatusBadRequest, "cannot activate listing without stock")
			}
			next.Status = s
		}

		ok, err := r.Listings().Update(ctx, next, cur.AvailableQuantity, cur.Status)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			return NewRetryableHTTPError(http.StatusConflict, "listing changed, please retry")
		}

		//監査ログ（UPDATE_LISTING）
		if err := r.AuditLogs().Append(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       model.AuditActionUpdateListing,
			ResourceType: model.AuditResourceListing,
			ResourceID:   id,
			BeforeJSON:   listingAuditJSON(cur),
			AfterJSON:    listingAuditJSON(next),
			CreatedAt:    time.Now(),
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = next
		return nil
	})
	if err != nil {
		return model.Listing{}, err
	}
	return out, nil
}

// SetStock は在庫数を直接設定する。読んだ値からの CAS で、購入と競合したら 409。
// 0 より多くすれば SOLD は ACTIVE に戻る。0 にしても状態は変えない。
func (u *ListingUsecase) SetStock(ctx context.Context, actor model.Actor, id int64, newQty int64, reason string) (model.Listing, error) {
	if actor.UserID <= 0 {
		return model.Listing{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if actor.Role != model.RoleFarmer && actor.Role != model.RoleAdmin {
		return model.Listing{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if id <= 0 {
		return model.Listing{}, NewHTTPError(http.StatusBadRequest, "invalid listing id")
	}
	if newQty < 0 {
		return model.Listing{}, NewHTTPError(http.StatusBadRequest, "quantity must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Listing{}, NewHTTPError(http.StatusBadRequest, "reason required")
	}

	var out model.Listing

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := findOwnedListing(ctx, r.Listings(), actor, id)
		if err != nil {
			return err
		}

		status := cur.Status
		if newQty > 0 && status == model.ListingStatusSold {
			status = model.ListingStatusActive
		}

		ok, err := r.Listings().SetQuantityIfUnchanged(ctx, id, cur.AvailableQuantity, newQty, status)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			return NewRetryableHTTPError(http.StatusConflict, "stock changed, please retry")
		}

		now := time.Now()
		if delta := newQty - cur.AvailableQuantity; delta != 0 {
			if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
				ListingID:   id,
				ActorUserID: actor.UserID,
				Delta:       delta,
				Reason:      reason,
				CreatedAt:   now,
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		next := cur
		next.AvailableQuantity = newQty
		next.Status = status
		next.UpdatedAt = now

		//監査ログを作成（在庫更新）
		if err := r.AuditLogs().Append(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceListing,
			ResourceID:   id,
			BeforeJSON:   listingAuditJSON(cur),
			AfterJSON:    listingAuditJSON(next),
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = next
		return nil
	})
	if err != nil {
		return model.Listing{}, err
	}
	return out, nil
}

// 農家は自分の出品だけ、管理者はすべて
func findOwnedListing(ctx context.Context, listings repo.ListingRepository, actor model.Actor, id int64) (model.Listing, error) {
	l, err := listings.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Listing{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Listing{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if actor.Role == model.RoleFarmer && l.FarmerID != actor.UserID {
		return model.Listing{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	return l, nil
}

func validateListingFields(title string, unit string, price decimal.Decimal) error {
	if title == "" {
		return NewHTTPError(http.StatusBadRequest, "title required")
	}
	if len(title) > 255 {
		return NewHTTPError(http.StatusBadRequest, "title too long")
	}
	if unit == "" {
		return NewHTTPError(http.StatusBadRequest, "unit required")
	}
	if len(unit) > 50 {
		return NewHTTPError(http.StatusBadRequest, "unit too long")
	}
	if !price.IsPositive() {
		return NewHTTPError(http.StatusBadRequest, "unit_price must be > 0")
	}
	if price.Exponent() < -2 && !price.Equal(price.Round(2)) {
		return NewHTTPError(http.StatusBadRequest, "unit_price must have at most 2 decimal places")
	}
	return nil
}

// 監査ログ用のスナップショット
type listingAuditView struct {
	Title             string              `json:"title"`
	Unit              string              `json:"unit"`
	Description       string              `json:"description"`
	UnitPrice         decimal.Decimal     `json:"unit_price"`
	AvailableQuantity int64               `json:"available_quantity"`
	Status            model.ListingStatus `json:"status"`
}

func listingAuditJSON(l model.Listing) string {
	b, err := json.Marshal(listingAuditView{
		Title:             l.Title,
		Unit:              l.Unit,
		Description:       l.Description,
		UnitPrice:         l.UnitPrice,
		AvailableQuantity: l.AvailableQuantity,
		Status:            l.Status,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}
