package usecase

import (
	"context"
	"testing"

	"market/internal/domain/model"
	"market/internal/infra/db"
	infra "market/internal/infra/repository"
	repo "market/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// sqlite インメモリの実ストア
type testStore struct {
	db        *gorm.DB
	tx        *infra.TxManagerGorm
	listings  repo.ListingRepository
	orders    repo.OrderRepository
	history   repo.OrderStatusHistoryRepository
	inventory repo.InventoryRepository
	audit     repo.AuditLogRepository
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()

	gdb, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &testStore{
		db:        gdb,
		tx:        infra.NewTxManagerGorm(gdb),
		listings:  infra.NewListingGormRepository(gdb),
		orders:    infra.NewOrderGormRepository(gdb),
		history:   infra.NewOrderStatusHistoryGormRepository(gdb),
		inventory: infra.NewInventoryGormRepository(gdb),
		audit:     infra.NewAuditLogGormRepository(gdb),
	}
}

func (s *testStore) orderUsecase() *OrderUsecase {
	return NewOrderUsecase(s.tx, s.listings, s.orders, s.history, nil, nil, nil)
}

func (s *testStore) seedListing(t *testing.T, farmerID int64, qty int64, price int64) model.Listing {
	t.Helper()

	status := model.ListingStatusActive
	if qty == 0 {
		status = model.ListingStatusSold
	}
	l, err := s.listings.Create(context.Background(), model.Listing{
		FarmerID:          farmerID,
		Title:             "Tomato",
		Unit:              "kg",
		UnitPrice:         decimal.NewFromInt(price),
		AvailableQuantity: qty,
		Status:            status,
	})
	require.NoError(t, err)
	return l
}

func buyer(id int64) model.Actor  { return model.Actor{UserID: id, Role: model.RoleBuyer} }
func farmer(id int64) model.Actor { return model.Actor{UserID: id, Role: model.RoleFarmer} }
func admin(id int64) model.Actor  { return model.Actor{UserID: id, Role: model.RoleAdmin} }
