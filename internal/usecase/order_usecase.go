package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"market/internal/domain/model"
	repo "market/internal/repository"

	"github.com/shopspring/decimal"
)

// 注文イベントの通知先（コミット後にだけ呼ぶ）
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, order model.Order, remainingQuantity int64, listingStatus model.ListingStatus) error
	PublishOrderStatusChanged(ctx context.Context, order model.Order, from model.OrderStatus, actorUserID int64) error
}

type OrderUsecase struct {
	tx       repo.TransactionManager
	listings repo.ListingRepository
	orders   repo.OrderRepository
	history  repo.OrderStatusHistoryRepository

	// 無くても動く
	cache  repo.OrderStatusCache
	events OrderEventPublisher

	logger *slog.Logger
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	listings repo.ListingRepository,
	orders repo.OrderRepository,
	history repo.OrderStatusHistoryRepository,
	cache repo.OrderStatusCache,
	events OrderEventPublisher,
	logger *slog.Logger,
) *OrderUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderUsecase{
		tx:       tx,
		listings: listings,
		orders:   orders,
		history:  history,
		cache:    cache,
		events:   events,
		logger:   logger,
	}
}

type CreateOrderInput struct {
	ListingID       int64
	Quantity        int64
	DeliveryAddress string
	Notes           *string
	IdempotencyKey  string
}

type OrderOutput struct {
	ID                  int64           `json:"id"`
	ListingID           int64           `json:"listing_id"`
	BuyerID             int64           `json:"buyer_id"`
	SellerID            int64           `json:"seller_id"`
	Quantity            int64           `json:"quantity"`
	UnitPriceAtPurchase decimal.Decimal `json:"unit_price_at_purchase"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	Status              string          `json:"status"`
	DeliveryAddress     string          `json:"delivery_address"`
	Notes               *string         `json:"notes,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type CreateOrderOutput struct {
	Order             OrderOutput `json:"order"`
	RemainingQuantity int64       `json:"remaining_quantity"`
	ListingStatus     string      `json:"listing_status"`

	// 同じ X-Idempotency-Key で既に作られていた
	Replayed bool `json:"-"`
}

type HistoryEntryOutput struct {
	ID          int64     `json:"id"`
	FromStatus  *string   `json:"from_status"`
	ToStatus    string    `json:"to_status"`
	ActorUserID int64     `json:"actor_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderDetailOutput struct {
	Order   OrderOutput          `json:"order"`
	History []HistoryEntryOutput `json:"history"`
}

type OrderStatusOutput struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

const (
	maxAddressLen = 500
	maxNotesLen   = 1000
	maxKeyLen     = 255
)

// CreateOrder は在庫の予約・注文作成・初回履歴を1トランザクションで行う。
func (u *OrderUsecase) CreateOrder(ctx context.Context, actor model.Actor, in CreateOrderInput) (CreateOrderOutput, error) {
	if actor.UserID <= 0 {
		return CreateOrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	//買えるのは買い手と農家（他人の出品）だけ
	if actor.Role != model.RoleBuyer && actor.Role != model.RoleFarmer {
		return CreateOrderOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	if in.ListingID <= 0 {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid listing_id")
	}
	if in.Quantity <= 0 {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "quantity must be > 0")
	}
	address := strings.TrimSpace(in.DeliveryAddress)
	if address == "" {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "delivery_address required")
	}
	if len(address) > maxAddressLen {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "delivery_address too long")
	}
	var notes *string
	if in.Notes != nil {
		n := strings.TrimSpace(*in.Notes)
		if len(n) > maxNotesLen {
			return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "notes too long")
		}
		if n != "" {
			notes = &n
		}
	}
	var key *string
	if k := strings.TrimSpace(in.IdempotencyKey); k != "" {
		if len(k) > maxKeyLen {
			return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
		}
		key = &k

		// 同じキーなら同じ結果
		if out, found, err := u.replay(ctx, actor.UserID, k, in); err != nil || found {
			return out, err
		}
	}

	//自分の出品は買えない（出品者は不変なのでTx外で読んでよい）
	listing, err := u.listings.FindByID(ctx, in.ListingID)
	if errors.Is(err, repo.ErrNotFound) {
		return CreateOrderOutput{}, NewHTTPError(http.StatusConflict, "listing not found or inactive")
	}
	if err != nil {
		return CreateOrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if listing.FarmerID == actor.UserID {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "cannot purchase own listing")
	}

	var out CreateOrderOutput
	var created model.Order

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		res, err := NewStockLedger(r.Listings(), r.Inventory()).ReserveStock(ctx, in.ListingID, in.Quantity)
		if err != nil {
			return ledgerHTTPError(err)
		}

		//単価と出品者は予約時に読んだ値をコピー
		now := time.Now()
		price := res.Listing.UnitPrice
		order := model.Order{
			ListingID:           in.ListingID,
			BuyerID:             actor.UserID,
			SellerID:            res.Listing.FarmerID,
			Quantity:            in.Quantity,
			UnitPriceAtPurchase: price,
			TotalAmount:         price.Mul(decimal.NewFromInt(in.Quantity)),
			Status:              model.OrderStatusPending,
			DeliveryAddress:     address,
			Notes:               notes,
			IdempotencyKey:      key,
			CreatedAt:           now,
			UpdatedAt:           now,
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			//同時に同じキーが入った。ロールバック後に取り直す
			if errors.Is(err, repo.ErrDuplicate) {
				return err
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		order.ID = orderID

		//作成時の履歴 NULL -> PENDING
		if err := r.History().Append(ctx, model.OrderStatusHistory{
			OrderID:     orderID,
			FromStatus:  nil,
			ToStatus:    model.OrderStatusPending,
			ActorUserID: actor.UserID,
			CreatedAt:   now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		created = order
		out = CreateOrderOutput{
			Order:             toOrderOutput(order),
			RemainingQuantity: res.NewQuantity,
			ListingStatus:     string(res.ResultingStatus),
		}
		return nil
	})

	if errors.Is(err, repo.ErrDuplicate) && key != nil {
		replayed, found, rerr := u.replay(ctx, actor.UserID, *key, in)
		if rerr != nil {
			return CreateOrderOutput{}, rerr
		}
		if found {
			return replayed, nil
		}
		return CreateOrderOutput{}, NewHTTPError(http.StatusConflict, "idempotency conflict")
	}
	if err != nil {
		return CreateOrderOutput{}, err
	}

	_ = u.cacheStatus(ctx, created)
	if u.events != nil {
		if err := u.events.PublishOrderCreated(ctx, created, out.RemainingQuantity, model.ListingStatus(out.ListingStatus)); err != nil {
			u.logger.Warn("publish order created failed", slog.Int64("order_id", created.ID), slog.Any("err", err))
		}
	}

	return out, nil
}

// 既存注文を返す。残数は今の出品から読む。
// 同じキーで出品か数量が違えば 409。
func (u *OrderUsecase) replay(ctx context.Context, buyerID int64, key string, in CreateOrderInput) (CreateOrderOutput, bool, error) {
	existing, found, err := u.orders.FindByIdempotencyKey(ctx, buyerID, key)
	if err != nil {
		return CreateOrderOutput{}, false, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		return CreateOrderOutput{}, false, nil
	}
	if existing.ListingID != in.ListingID || existing.Quantity != in.Quantity {
		return CreateOrderOutput{}, false, NewHTTPError(http.StatusConflict, "idempotency key reused with different request")
	}

	l, err := u.listings.FindByID(ctx, existing.ListingID)
	if err != nil {
		return CreateOrderOutput{}, false, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return CreateOrderOutput{
		Order:             toOrderOutput(existing),
		RemainingQuantity: l.AvailableQuantity,
		ListingStatus:     string(l.Status),
		Replayed:          true,
	}, true, nil
}

// TransitionStatus は状態機械に沿ってステータスを進め、履歴を追記する。
// REJECTED / CANCELLED では予約分を在庫に戻す。
func (u *OrderUsecase) TransitionStatus(ctx context.Context, actor model.Actor, orderID int64, target string) (OrderOutput, error) {
	if actor.UserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	//買い手はステータスを直接変えられない（読む前に弾く）
	if actor.Role != model.RoleFarmer && actor.Role != model.RoleAdmin {
		return OrderOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	to := model.OrderStatus(strings.ToUpper(strings.TrimSpace(target)))
	if !to.Valid() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var updated model.Order
	var from model.OrderStatus

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//農家は自分が売り手の注文だけ
		if actor.Role == model.RoleFarmer && o.SellerID != actor.UserID {
			return NewHTTPError(http.StatusForbidden, "forbidden")
		}

		if !model.CanTransition(o.Status, to) {
			return NewHTTPError(http.StatusConflict, "invalid status transition")
		}

		from = o.Status
		if err := r.Orders().UpdateStatusIfCurrent(ctx, orderID, from, to); err != nil {
			if errors.Is(err, repo.ErrStaleStatus) {
				return NewHTTPError(http.StatusConflict, "order status changed")
			}
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		now := time.Now()
		prev := from
		if err := r.History().Append(ctx, model.OrderStatusHistory{
			OrderID:     orderID,
			FromStatus:  &prev,
			ToStatus:    to,
			ActorUserID: actor.UserID,
			CreatedAt:   now,
		}); err != nil {
			//ステータスだけ進んだ状態は残さない
			u.logger.Error("status history append failed",
				slog.Int64("order_id", orderID),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
				slog.Any("err", err),
			)
			return NewHTTPError(http.StatusInternalServerError, "status history append failed")
		}

		if to.ReleasesStock() {
			reason := model.AdjustmentReasonOrderCancelled
			if to == model.OrderStatusRejected {
				reason = model.AdjustmentReasonOrderRejected
			}
			id := orderID
			if err := NewStockLedger(r.Listings(), r.Inventory()).RestoreStock(ctx, o.ListingID, o.Quantity, actor.UserID, &id, reason); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		o.Status = to
		o.UpdatedAt = now
		updated = o
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.refreshStatusCache(ctx, updated)
	if u.events != nil {
		if err := u.events.PublishOrderStatusChanged(ctx, updated, from, actor.UserID); err != nil {
			u.logger.Warn("publish order status changed failed", slog.Int64("order_id", updated.ID), slog.Any("err", err))
		}
	}

	return toOrderOutput(updated), nil
}

// GetOrderDetail は注文と時系列順の履歴を返す。
// 買い手・売り手・管理者以外には存在しない扱い。
func (u *OrderUsecase) GetOrderDetail(ctx context.Context, actor model.Actor, orderID int64) (OrderDetailOutput, error) {
	if actor.UserID <= 0 {
		return OrderDetailOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderDetailOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderDetailOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return OrderDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !canView(actor, o.BuyerID, o.SellerID) {
		return OrderDetailOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	entries, err := u.history.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	SortHistory(entries)

	if replayed, ok := model.ReplayStatus(entries); !ok || replayed != o.Status {
		u.logger.Error("order history does not match status",
			slog.Int64("order_id", orderID),
			slog.String("status", string(o.Status)),
			slog.String("replayed", string(replayed)),
		)
	}

	hist := make([]HistoryEntryOutput, 0, len(entries))
	for _, e := range entries {
		var fromStr *string
		if e.FromStatus != nil {
			s := string(*e.FromStatus)
			fromStr = &s
		}
		hist = append(hist, HistoryEntryOutput{
			ID:          e.ID,
			FromStatus:  fromStr,
			ToStatus:    string(e.ToStatus),
			ActorUserID: e.ActorUserID,
			CreatedAt:   e.CreatedAt,
		})
	}

	return OrderDetailOutput{Order: toOrderOutput(o), History: hist}, nil
}

// GetOrderStatus はキャッシュを先に見て、無ければDBから読む。
func (u *OrderUsecase) GetOrderStatus(ctx context.Context, actor model.Actor, orderID int64) (OrderStatusOutput, error) {
	if actor.UserID <= 0 {
		return OrderStatusOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderStatusOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if u.cache != nil {
		snap, found, err := u.cache.Get(ctx, orderID)
		if err != nil {
			u.logger.Warn("order status cache get failed", slog.Int64("order_id", orderID), slog.Any("err", err))
		}
		if err == nil && found {
			if !canView(actor, snap.BuyerID, snap.SellerID) {
				return OrderStatusOutput{}, NewHTTPError(http.StatusNotFound, "not found")
			}
			return OrderStatusOutput{OrderID: orderID, Status: string(snap.Status)}, nil
		}
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderStatusOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return OrderStatusOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !canView(actor, o.BuyerID, o.SellerID) {
		return OrderStatusOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	_ = u.cacheStatus(ctx, o)
	return OrderStatusOutput{OrderID: orderID, Status: string(o.Status)}, nil
}

// 買い手としての注文一覧
func (u *OrderUsecase) ListMyOrders(ctx context.Context, actor model.Actor, page int, limit int) (OrderListOutput, error) {
	if actor.UserID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	buyer := actor.UserID
	return u.list(ctx, repo.OrderListFilter{Page: page, Limit: limit, BuyerID: &buyer})
}

// 売り手（農家）としての注文一覧
func (u *OrderUsecase) ListSellerOrders(ctx context.Context, actor model.Actor, page int, limit int, status string) (OrderListOutput, error) {
	if actor.UserID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if actor.Role != model.RoleFarmer {
		return OrderListOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	s, err := normalizeStatusFilter(status)
	if err != nil {
		return OrderListOutput{}, err
	}
	seller := actor.UserID
	return u.list(ctx, repo.OrderListFilter{Page: page, Limit: limit, Status: s, SellerID: &seller})
}

func (u *OrderUsecase) list(ctx context.Context, f repo.OrderListFilter) (OrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	orders, total, err := u.orders.List(ctx, f)
	if err != nil {
		return OrderListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	items := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items = append(items, toOrderOutput(o))
	}
	return OrderListOutput{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// コミット済みのステータスをキャッシュへ。失敗しても返さない。
// 置いてあるものより古ければ書かない。
func (u *OrderUsecase) cacheStatus(ctx context.Context, o model.Order) error {
	if u.cache == nil {
		return nil
	}
	_, err := u.cache.SetIfNewer(ctx, repo.NewOrderStatusSnapshot(o))
	if err != nil {
		u.logger.Warn("order status cache set failed", slog.Int64("order_id", o.ID), slog.Any("err", err))
	}
	return err
}

// 遷移後に書けなかったら古い値を残さない
func (u *OrderUsecase) refreshStatusCache(ctx context.Context, o model.Order) {
	if err := u.cacheStatus(ctx, o); err == nil {
		return
	}
	if err := u.cache.Delete(ctx, o.ID); err != nil {
		u.logger.Warn("order status cache delete failed", slog.Int64("order_id", o.ID), slog.Any("err", err))
	}
}

// SortHistory は履歴を作成時刻順（同時刻はID順）に並べる。
func SortHistory(entries []model.OrderStatusHistory) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

func canView(actor model.Actor, buyerID int64, sellerID int64) bool {
	return actor.Role == model.RoleAdmin || actor.UserID == buyerID || actor.UserID == sellerID
}

func normalizeStatusFilter(status string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(status))
	if s == "" {
		return "", nil
	}
	if !model.OrderStatus(s).Valid() {
		return "", NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	return s, nil
}

func toOrderOutput(o model.Order) OrderOutput {
	return OrderOutput{
		ID:                  o.ID,
		ListingID:           o.ListingID,
		BuyerID:             o.BuyerID,
		SellerID:            o.SellerID,
		Quantity:            o.Quantity,
		UnitPriceAtPurchase: o.UnitPriceAtPurchase,
		TotalAmount:         o.TotalAmount,
		Status:              string(o.Status),
		DeliveryAddress:     o.DeliveryAddress,
		Notes:               o.Notes,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}
