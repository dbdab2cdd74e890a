package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"market/internal/domain/model"
	repo "market/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func assertHTTPError(t *testing.T, err error, status int, msg string) *HTTPError {
	t.Helper()
	require.Error(t, err)
	he, ok := AsHTTPError(err)
	require.True(t, ok, "expected HTTPError, got %T: %v", err, err)
	assert.Equal(t, status, he.Status)
	if msg != "" {
		assert.Equal(t, msg, he.Message)
	}
	return he
}

func validInput(listingID int64) CreateOrderInput {
	return CreateOrderInput{ListingID: listingID, Quantity: 1, DeliveryAddress: "1-2-3 Tokyo"}
}

// =====================
// CreateOrder（mock）
// =====================

func TestCreateOrder_RoleAndValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  model.Actor
		in     CreateOrderInput
		status int
		msg    string
	}{
		{"unauthenticated", model.Actor{}, validInput(1), http.StatusUnauthorized, "unauthorized"},
		{"admin cannot buy", admin(1), validInput(1), http.StatusForbidden, "forbidden"},
		{"bad listing id", buyer(1), CreateOrderInput{Quantity: 1, DeliveryAddress: "x"}, http.StatusBadRequest, "invalid listing_id"},
		{"zero quantity", buyer(1), CreateOrderInput{ListingID: 1, DeliveryAddress: "x"}, http.StatusBadRequest, "quantity must be > 0"},
		{"negative quantity", buyer(1), CreateOrderInput{ListingID: 1, Quantity: -2, DeliveryAddress: "x"}, http.StatusBadRequest, "quantity must be > 0"},
		{"blank address", buyer(1), CreateOrderInput{ListingID: 1, Quantity: 1, DeliveryAddress: "  "}, http.StatusBadRequest, "delivery_address required"},
		{"long key", buyer(1), CreateOrderInput{ListingID: 1, Quantity: 1, DeliveryAddress: "x", IdempotencyKey: strings.Repeat("k", 256)}, http.StatusBadRequest, "invalid idempotency_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newOrderMocks()
			_, err := m.usecase().CreateOrder(ctx, tt.actor, tt.in)
			assertHTTPError(t, err, tt.status, tt.msg)

			//状態には一切触れない
			m.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
			m.listings.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateOrder_SelfPurchaseRejected(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	m.listings.On("FindByID", mock.Anything, int64(1)).
		Return(model.Listing{ID: 1, FarmerID: 5, Status: model.ListingStatusActive, AvailableQuantity: 3}, nil)

	_, err := m.usecase().CreateOrder(ctx, farmer(5), validInput(1))
	assertHTTPError(t, err, http.StatusBadRequest, "cannot purchase own listing")
	m.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestCreateOrder_FarmerMayBuyOthersListing(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	l := model.Listing{ID: 1, FarmerID: 5, Status: model.ListingStatusActive, AvailableQuantity: 3, UnitPrice: decimal.NewFromInt(100)}

	m.listings.On("FindByID", mock.Anything, int64(1)).Return(l, nil)
	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.listings.On("ConditionalDecrement", mock.Anything, int64(1), int64(3), int64(2), model.ListingStatusActive).Return(true, nil)
	m.orders.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.BuyerID == 6 && o.SellerID == 5 && o.Quantity == 1 && o.Status == model.OrderStatusPending
	})).Return(int64(10), nil)
	m.history.On("Append", mock.Anything, mock.MatchedBy(func(e model.OrderStatusHistory) bool {
		return e.OrderID == 10 && e.FromStatus == nil && e.ToStatus == model.OrderStatusPending && e.ActorUserID == 6
	})).Return(nil)
	m.cache.On("SetIfNewer", mock.Anything, repo.OrderStatusSnapshot{OrderID: 10, BuyerID: 6, SellerID: 5, Status: model.OrderStatusPending, Step: 0}).Return(true, nil)
	m.events.On("PublishOrderCreated", mock.Anything, mock.Anything, int64(2), model.ListingStatusActive).Return(nil)

	out, err := m.usecase().CreateOrder(ctx, farmer(6), validInput(1))
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.Order.ID)
	assert.Equal(t, int64(2), out.RemainingQuantity)
	assert.Equal(t, "ACTIVE", out.ListingStatus)
	assert.True(t, out.Order.TotalAmount.Equal(decimal.NewFromInt(100)))

	m.orders.AssertExpectations(t)
	m.history.AssertExpectations(t)
	m.cache.AssertExpectations(t)
	m.events.AssertExpectations(t)
}

// 残り1個に2人がほぼ同時に注文: 1人は作成、もう1人は再試行可能な競合
func TestCreateOrder_LastUnitScenario(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	l := model.Listing{ID: 1, FarmerID: 9, Status: model.ListingStatusActive, AvailableQuantity: 1, UnitPrice: decimal.NewFromInt(100)}

	//2人とも残数1を読んだ
	m.listings.On("FindByID", mock.Anything, int64(1)).Return(l, nil)
	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.listings.On("ConditionalDecrement", mock.Anything, int64(1), int64(1), int64(0), model.ListingStatusSold).Return(true, nil).Once()
	m.listings.On("ConditionalDecrement", mock.Anything, int64(1), int64(1), int64(0), model.ListingStatusSold).Return(false, nil).Once()
	m.orders.On("Create", mock.Anything, mock.Anything).Return(int64(1), nil).Once()
	m.history.On("Append", mock.Anything, mock.Anything).Return(nil).Once()
	m.cache.On("SetIfNewer", mock.Anything, mock.Anything).Return(true, nil)
	m.events.On("PublishOrderCreated", mock.Anything, mock.Anything, int64(0), model.ListingStatusSold).Return(nil)

	uc := m.usecase()

	first, err := uc.CreateOrder(ctx, buyer(1), validInput(1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.RemainingQuantity)
	assert.Equal(t, "SOLD", first.ListingStatus)

	_, err = uc.CreateOrder(ctx, buyer(2), validInput(1))
	he := assertHTTPError(t, err, http.StatusConflict, "stock changed, please retry")
	assert.True(t, he.Retryable)

	//負けた側は注文を作らない
	m.orders.AssertNumberOfCalls(t, "Create", 1)
	m.history.AssertNumberOfCalls(t, "Append", 1)
}

func TestCreateOrder_UnavailableIsNotRetryable(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	m.listings.On("FindByID", mock.Anything, int64(1)).
		Return(model.Listing{ID: 1, FarmerID: 9, Status: model.ListingStatusActive, AvailableQuantity: 1}, nil)
	m.tx.On("WithinTx", mock.Anything).Return(nil)

	in := validInput(1)
	in.Quantity = 2
	_, err := m.usecase().CreateOrder(ctx, buyer(1), in)
	he := assertHTTPError(t, err, http.StatusConflict, "insufficient stock")
	assert.False(t, he.Retryable)
	m.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrder_PublishFailureIsLoggedNotReturned(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	l := model.Listing{ID: 1, FarmerID: 9, Status: model.ListingStatusActive, AvailableQuantity: 5, UnitPrice: decimal.NewFromInt(100)}

	m.listings.On("FindByID", mock.Anything, int64(1)).Return(l, nil)
	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.listings.On("ConditionalDecrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	m.orders.On("Create", mock.Anything, mock.Anything).Return(int64(3), nil)
	m.history.On("Append", mock.Anything, mock.Anything).Return(nil)
	m.cache.On("SetIfNewer", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	m.events.On("PublishOrderCreated", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("queue full"))

	var buf bytes.Buffer
	uc := NewOrderUsecase(m.tx, m.listings, m.orders, m.history, m.cache, m.events, slog.New(slog.NewJSONHandler(&buf, nil)))

	out, err := uc.CreateOrder(ctx, buyer(1), validInput(1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Order.ID)
	assert.Contains(t, buf.String(), "order status cache set failed")
	assert.Contains(t, buf.String(), "publish order created failed")
}

func TestCreateOrder_IdempotencyKeyReplaysExistingOrder(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	existing := model.Order{ID: 42, ListingID: 1, BuyerID: 1, SellerID: 9, Quantity: 1, Status: model.OrderStatusAccepted}

	m.orders.On("FindByIdempotencyKey", mock.Anything, int64(1), "key-1").Return(existing, true, nil)
	m.listings.On("FindByID", mock.Anything, int64(1)).
		Return(model.Listing{ID: 1, FarmerID: 9, Status: model.ListingStatusActive, AvailableQuantity: 4}, nil)

	in := validInput(1)
	in.IdempotencyKey = "key-1"
	out, err := m.usecase().CreateOrder(ctx, buyer(1), in)
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, int64(42), out.Order.ID)
	assert.Equal(t, int64(4), out.RemainingQuantity)
	m.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

// =====================
// TransitionStatus（mock）
// =====================

func TestTransitionStatus_BuyerRejectedBeforeAnyRead(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()

	_, err := m.usecase().TransitionStatus(ctx, buyer(1), 1, "ACCEPTED")
	assertHTTPError(t, err, http.StatusForbidden, "forbidden")

	m.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
	m.orders.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestTransitionStatus_Guards(t *testing.T) {
	ctx := context.Background()
	order := model.Order{ID: 1, ListingID: 3, BuyerID: 2, SellerID: 5, Quantity: 1, Status: model.OrderStatusPending}

	tests := []struct {
		name   string
		actor  model.Actor
		target string
		status int
		msg    string
	}{
		{"unknown status", admin(1), "PAID", http.StatusBadRequest, "invalid status"},
		{"other farmer", farmer(6), "ACCEPTED", http.StatusForbidden, "forbidden"},
		{"skip state", farmer(5), "SHIPPED", http.StatusConflict, "invalid status transition"},
		{"backward", admin(1), "PENDING", http.StatusConflict, "invalid status transition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newOrderMocks()
			m.tx.On("WithinTx", mock.Anything).Return(nil)
			m.orders.On("FindByID", mock.Anything, int64(1)).Return(order, nil)

			_, err := m.usecase().TransitionStatus(ctx, tt.actor, 1, tt.target)
			assertHTTPError(t, err, tt.status, tt.msg)
			m.orders.AssertNotCalled(t, "UpdateStatusIfCurrent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestTransitionStatus_StaleStatusIsConflict(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.orders.On("FindByID", mock.Anything, int64(1)).
		Return(model.Order{ID: 1, SellerID: 5, Status: model.OrderStatusPending}, nil)
	m.orders.On("UpdateStatusIfCurrent", mock.Anything, int64(1), model.OrderStatusPending, model.OrderStatusAccepted).
		Return(repo.ErrStaleStatus)

	_, err := m.usecase().TransitionStatus(ctx, farmer(5), 1, "accepted")
	assertHTTPError(t, err, http.StatusConflict, "order status changed")
	m.history.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestTransitionStatus_HistoryFailureIsReported(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.orders.On("FindByID", mock.Anything, int64(1)).
		Return(model.Order{ID: 1, SellerID: 5, Status: model.OrderStatusPending}, nil)
	m.orders.On("UpdateStatusIfCurrent", mock.Anything, int64(1), model.OrderStatusPending, model.OrderStatusAccepted).Return(nil)
	m.history.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	var buf bytes.Buffer
	uc := NewOrderUsecase(m.tx, m.listings, m.orders, m.history, m.cache, m.events, slog.New(slog.NewJSONHandler(&buf, nil)))

	_, err := uc.TransitionStatus(ctx, farmer(5), 1, "ACCEPTED")
	assertHTTPError(t, err, http.StatusInternalServerError, "status history append failed")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), "status history append failed")

	//失敗したらキャッシュもイベントも出さない
	m.cache.AssertNotCalled(t, "SetIfNewer", mock.Anything, mock.Anything)
	m.events.AssertNotCalled(t, "PublishOrderStatusChanged", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransitionStatus_RejectRestocks(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.orders.On("FindByID", mock.Anything, int64(1)).
		Return(model.Order{ID: 1, ListingID: 3, BuyerID: 2, SellerID: 5, Quantity: 4, Status: model.OrderStatusPending}, nil)
	m.orders.On("UpdateStatusIfCurrent", mock.Anything, int64(1), model.OrderStatusPending, model.OrderStatusRejected).Return(nil)
	m.history.On("Append", mock.Anything, mock.MatchedBy(func(e model.OrderStatusHistory) bool {
		return e.FromStatus != nil && *e.FromStatus == model.OrderStatusPending && e.ToStatus == model.OrderStatusRejected && e.ActorUserID == 5
	})).Return(nil)
	m.listings.On("Increment", mock.Anything, int64(3), int64(4)).Return(nil)
	m.inventory.On("CreateAdjustment", mock.Anything, mock.MatchedBy(func(a model.InventoryAdjustment) bool {
		return a.ListingID == 3 && a.Delta == 4 && a.Reason == model.AdjustmentReasonOrderRejected && a.OrderID != nil && *a.OrderID == 1
	})).Return(nil)
	m.cache.On("SetIfNewer", mock.Anything, mock.Anything).Return(true, nil)
	m.events.On("PublishOrderStatusChanged", mock.Anything, mock.Anything, model.OrderStatusPending, int64(5)).Return(nil)

	out, err := m.usecase().TransitionStatus(ctx, farmer(5), 1, "REJECTED")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", out.Status)

	m.listings.AssertExpectations(t)
	m.inventory.AssertExpectations(t)
	m.events.AssertExpectations(t)
}

// 遷移後にキャッシュへ書けなければ消す（古いステータスを残さない）
func TestTransitionStatus_CacheWriteFailureDropsEntry(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	m.tx.On("WithinTx", mock.Anything).Return(nil)
	m.orders.On("FindByID", mock.Anything, int64(1)).
		Return(model.Order{ID: 1, BuyerID: 2, SellerID: 5, Status: model.OrderStatusPending}, nil)
	m.orders.On("UpdateStatusIfCurrent", mock.Anything, int64(1), model.OrderStatusPending, model.OrderStatusAccepted).Return(nil)
	m.history.On("Append", mock.Anything, mock.Anything).Return(nil)
	m.cache.On("SetIfNewer", mock.Anything, repo.OrderStatusSnapshot{OrderID: 1, BuyerID: 2, SellerID: 5, Status: model.OrderStatusAccepted, Step: 1}).
		Return(false, errors.New("redis timeout"))
	m.cache.On("Delete", mock.Anything, int64(1)).Return(nil)
	m.events.On("PublishOrderStatusChanged", mock.Anything, mock.Anything, model.OrderStatusPending, int64(5)).Return(nil)

	out, err := m.usecase().TransitionStatus(ctx, farmer(5), 1, "ACCEPTED")
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", out.Status)
	m.cache.AssertExpectations(t)
}

// =====================
// GetOrderStatus（mock）
// =====================

func TestGetOrderStatus_CacheHit(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	m.cache.On("Get", mock.Anything, int64(1)).
		Return(repo.OrderStatusSnapshot{OrderID: 1, BuyerID: 2, SellerID: 5, Status: model.OrderStatusShipped}, true, nil)

	out, err := m.usecase().GetOrderStatus(ctx, buyer(2), 1)
	require.NoError(t, err)
	assert.Equal(t, "SHIPPED", out.Status)
	m.orders.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)

	//関係ない人には見えない
	_, err = m.usecase().GetOrderStatus(ctx, buyer(3), 1)
	assertHTTPError(t, err, http.StatusNotFound, "not found")
}

func TestGetOrderStatus_CacheMissFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	m := newOrderMocks()
	order := model.Order{ID: 1, BuyerID: 2, SellerID: 5, Status: model.OrderStatusAccepted}
	m.cache.On("Get", mock.Anything, int64(1)).Return(repo.OrderStatusSnapshot{}, false, errors.New("redis down"))
	m.orders.On("FindByID", mock.Anything, int64(1)).Return(order, nil)
	m.cache.On("SetIfNewer", mock.Anything, repo.OrderStatusSnapshot{OrderID: 1, BuyerID: 2, SellerID: 5, Status: model.OrderStatusAccepted, Step: 1}).Return(true, nil)

	out, err := m.usecase().GetOrderStatus(ctx, farmer(5), 1)
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", out.Status)
	m.cache.AssertExpectations(t)
}
