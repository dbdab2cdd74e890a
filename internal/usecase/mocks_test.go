package usecase

import (
	"context"

	"market/internal/domain/model"
	repo "market/internal/repository"

	"github.com/stretchr/testify/mock"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	listings  repo.ListingRepository
	orders    repo.OrderRepository
	history   repo.OrderStatusHistoryRepository
	inventory repo.InventoryRepository
	auditLogs repo.AuditLogRepository
}

func (r *TxReposMock) Listings() repo.ListingRepository           { return r.listings }
func (r *TxReposMock) Orders() repo.OrderRepository               { return r.orders }
func (r *TxReposMock) History() repo.OrderStatusHistoryRepository { return r.history }
func (r *TxReposMock) Inventory() repo.InventoryRepository        { return r.inventory }
func (r *TxReposMock) AuditLogs() repo.AuditLogRepository         { return r.auditLogs }

// =====================
// Repository mocks
// =====================

type ListingRepoMock struct{ mock.Mock }

func (m *ListingRepoMock) FindByID(ctx context.Context, id int64) (model.Listing, error) {
	args := m.Called(ctx, id)
	l, _ := args.Get(0).(model.Listing)
	return l, args.Error(1)
}

func (m *ListingRepoMock) FindByIDs(ctx context.Context, ids []int64) ([]model.Listing, error) {
	args := m.Called(ctx, ids)
	ls, _ := args.Get(0).([]model.Listing)
	return ls, args.Error(1)
}

func (m *ListingRepoMock) ListPublic(ctx context.Context, q repo.ListingListQuery) ([]model.Listing, int64, error) {
	panic("not used")
}

func (m *ListingRepoMock) Create(ctx context.Context, l model.Listing) (model.Listing, error) {
	panic("not used")
}

func (m *ListingRepoMock) Update(ctx context.Context, l model.Listing, expectedQty int64, expectedStatus model.ListingStatus) (bool, error) {
	args := m.Called(ctx, l, expectedQty, expectedStatus)
	return args.Bool(0), args.Error(1)
}

func (m *ListingRepoMock) ConditionalDecrement(ctx context.Context, id int64, expectedQty int64, newQty int64, newStatus model.ListingStatus) (bool, error) {
	args := m.Called(ctx, id, expectedQty, newQty, newStatus)
	return args.Bool(0), args.Error(1)
}

func (m *ListingRepoMock) SetQuantityIfUnchanged(ctx context.Context, id int64, expectedQty int64, newQty int64, newStatus model.ListingStatus) (bool, error) {
	args := m.Called(ctx, id, expectedQty, newQty, newStatus)
	return args.Bool(0), args.Error(1)
}

func (m *ListingRepoMock) Increment(ctx context.Context, id int64, qty int64) error {
	args := m.Called(ctx, id, qty)
	return args.Error(0)
}

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) UpdateStatusIfCurrent(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) error {
	args := m.Called(ctx, orderID, from, to)
	return args.Error(0)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, buyerID int64, key string) (model.Order, bool, error) {
	args := m.Called(ctx, buyerID, key)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

func (m *OrderRepoMock) List(ctx context.Context, f repo.OrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

type HistoryRepoMock struct{ mock.Mock }

func (m *HistoryRepoMock) Append(ctx context.Context, entry model.OrderStatusHistory) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *HistoryRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error) {
	args := m.Called(ctx, orderID)
	entries, _ := args.Get(0).([]model.OrderStatusHistory)
	return entries, args.Error(1)
}

type InventoryRepoMock struct{ mock.Mock }

func (m *InventoryRepoMock) CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error {
	args := m.Called(ctx, adjustment)
	return args.Error(0)
}

func (m *InventoryRepoMock) ListAdjustments(ctx context.Context, listingID int64) ([]model.InventoryAdjustment, error) {
	panic("not used")
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Append(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]model.AuditLog), args.Get(1).(int64), args.Error(2)
}

type StatusCacheMock struct{ mock.Mock }

func (m *StatusCacheMock) SetIfNewer(ctx context.Context, snap repo.OrderStatusSnapshot) (bool, error) {
	args := m.Called(ctx, snap)
	return args.Bool(0), args.Error(1)
}

func (m *StatusCacheMock) Delete(ctx context.Context, orderID int64) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *StatusCacheMock) Get(ctx context.Context, orderID int64) (repo.OrderStatusSnapshot, bool, error) {
	args := m.Called(ctx, orderID)
	s, _ := args.Get(0).(repo.OrderStatusSnapshot)
	return s, args.Bool(1), args.Error(2)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) PublishOrderCreated(ctx context.Context, order model.Order, remainingQuantity int64, listingStatus model.ListingStatus) error {
	args := m.Called(ctx, order, remainingQuantity, listingStatus)
	return args.Error(0)
}

func (m *PublisherMock) PublishOrderStatusChanged(ctx context.Context, order model.Order, from model.OrderStatus, actorUserID int64) error {
	args := m.Called(ctx, order, from, actorUserID)
	return args.Error(0)
}

// 注文ユースケース用の mock 一式
type orderMocks struct {
	tx        *TxManagerMock
	listings  *ListingRepoMock
	orders    *OrderRepoMock
	history   *HistoryRepoMock
	inventory *InventoryRepoMock
	cache     *StatusCacheMock
	events    *PublisherMock
}

func newOrderMocks() orderMocks {
	m := orderMocks{
		listings:  &ListingRepoMock{},
		orders:    &OrderRepoMock{},
		history:   &HistoryRepoMock{},
		inventory: &InventoryRepoMock{},
		cache:     &StatusCacheMock{},
		events:    &PublisherMock{},
	}
	m.tx = &TxManagerMock{Repos: &TxReposMock{
		listings:  m.listings,
		orders:    m.orders,
		history:   m.history,
		inventory: m.inventory,
		auditLogs: &AuditRepoMock{},
	}}
	return m
}

func (m orderMocks) usecase() *OrderUsecase {
	return NewOrderUsecase(m.tx, m.listings, m.orders, m.history, m.cache, m.events, nil)
}
