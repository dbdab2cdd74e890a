package repository

import (
	"context"
	"testing"

	"market/internal/domain/model"
	"market/internal/infra/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// テストごとに独立したインメモリDB
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func seedListing(t *testing.T, gdb *gorm.DB, farmerID int64, qty int64, status model.ListingStatus) model.Listing {
	t.Helper()

	l, err := NewListingGormRepository(gdb).Create(context.Background(), model.Listing{
		FarmerID:          farmerID,
		Title:             "Tomato",
		Unit:              "kg",
		UnitPrice:         decimal.NewFromInt(100),
		AvailableQuantity: qty,
		Status:            status,
	})
	require.NoError(t, err)
	return l
}
