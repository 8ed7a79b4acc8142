package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/ledger"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func newTestStockLevel(t *testing.T) *ledger.StockLevel {
	t.Helper()
	level, err := ledger.NewStockLevel(uuid.New(), uuid.New())
	require.NoError(t, err)
	return level
}

// TestUpdateWithVersion_OptimisticLocking tests the conditional-update protocol
func TestUpdateWithVersion_OptimisticLocking(t *testing.T) {
	t.Run("successful update advances the aggregate version", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormStockLevelRepository(db)

		level := newTestStockLevel(t)
		require.NoError(t, level.ApplyAdd(decimal.NewFromInt(10)))
		require.Equal(t, 0, level.Version)

		mock.ExpectExec(`UPDATE "stock_levels" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateWithVersion(context.Background(), level)

		assert.NoError(t, err)
		assert.Equal(t, 1, level.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero matched rows surfaces a concurrency conflict", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormStockLevelRepository(db)

		level := newTestStockLevel(t)
		require.NoError(t, level.ApplyAdd(decimal.NewFromInt(10)))

		// another transaction already advanced the stored version
		mock.ExpectExec(`UPDATE "stock_levels" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateWithVersion(context.Background(), level)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 0, level.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error propagates without touching the version", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormStockLevelRepository(db)

		level := newTestStockLevel(t)
		require.NoError(t, level.ApplyAdd(decimal.NewFromInt(10)))

		mock.ExpectExec(`UPDATE "stock_levels" SET`).
			WillReturnError(assert.AnError)

		err := repo.UpdateWithVersion(context.Background(), level)

		require.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 0, level.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestGetOrCreate_RaceCondition tests that GetOrCreate handles concurrent creation
func TestGetOrCreate_RaceCondition(t *testing.T) {
	t.Run("creates with ON CONFLICT when the pair is new", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormStockLevelRepository(db)

		itemID := uuid.New()
		warehouseID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "stock_levels" WHERE item_id`).
			WillReturnError(gorm.ErrRecordNotFound)

		mock.ExpectExec(`INSERT INTO "stock_levels"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		level, err := repo.GetOrCreate(context.Background(), itemID, warehouseID)

		require.NoError(t, err)
		assert.Equal(t, itemID, level.ItemID)
		assert.Equal(t, warehouseID, level.WarehouseID)
		assert.True(t, level.QtyOnHand.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns the existing row without inserting", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormStockLevelRepository(db)

		itemID := uuid.New()
		warehouseID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "item_id", "warehouse_id", "qty_on_hand", "qty_reserved", "version"}).
			AddRow(uuid.New(), itemID, warehouseID, decimal.NewFromInt(40), decimal.NewFromInt(5), 7)
		mock.ExpectQuery(`SELECT \* FROM "stock_levels" WHERE item_id`).
			WillReturnRows(rows)

		level, err := repo.GetOrCreate(context.Background(), itemID, warehouseID)

		require.NoError(t, err)
		assert.Equal(t, 7, level.Version)
		assert.True(t, level.QtyOnHand.Equal(decimal.NewFromInt(40)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestFindForAllocation tests the locking FIFO read
func TestFindForAllocation(t *testing.T) {
	t.Run("orders by receipt date with sequence tie-break and locks rows", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormLotRepository(db)

		itemID := uuid.New()
		warehouseID := uuid.New()
		receipt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

		rows := sqlmock.NewRows([]string{"id", "lot_number", "item_id", "warehouse_id", "sequence", "receipt_date", "available_qty", "reserved_qty", "status"}).
			AddRow(uuid.New(), "LOT-20260801-0001", itemID, warehouseID, 1, receipt, decimal.NewFromInt(5), decimal.Zero, "active").
			AddRow(uuid.New(), "LOT-20260801-0002", itemID, warehouseID, 2, receipt, decimal.NewFromInt(10), decimal.Zero, "active")

		mock.ExpectQuery(`SELECT \* FROM "lots" WHERE .* ORDER BY receipt_date ASC, sequence ASC FOR UPDATE`).
			WillReturnRows(rows)

		lots, err := repo.FindForAllocation(context.Background(), itemID, warehouseID)

		require.NoError(t, err)
		require.Len(t, lots, 2)
		assert.Equal(t, "LOT-20260801-0001", lots[0].LotNumber)
		assert.Equal(t, int64(1), lots[0].Sequence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestLotNumberGenerator tests the sequence-backed lot number allocator
func TestLotNumberGenerator(t *testing.T) {
	today := time.Now().Format("20060102")

	t.Run("formats the sequence value with the day prefix", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		gen := NewGormLotNumberGenerator(db)

		mock.ExpectQuery(`SELECT nextval\('lot_number_seq'\)`).
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))

		number, err := gen.NextLotNumber(context.Background())

		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("LOT-%s-0042", today), number)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("consecutive calls never repeat a number", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		gen := NewGormLotNumberGenerator(db)

		mock.ExpectQuery(`SELECT nextval\('lot_number_seq'\)`).
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(8))
		mock.ExpectQuery(`SELECT nextval\('lot_number_seq'\)`).
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(9))

		first, err := gen.NextLotNumber(context.Background())
		require.NoError(t, err)
		second, err := gen.NextLotNumber(context.Background())
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
		assert.Equal(t, fmt.Sprintf("LOT-%s-0008", today), first)
		assert.Equal(t, fmt.Sprintf("LOT-%s-0009", today), second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("suffix widens past four digits without colliding", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		gen := NewGormLotNumberGenerator(db)

		mock.ExpectQuery(`SELECT nextval\('lot_number_seq'\)`).
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(10000))

		number, err := gen.NextLotNumber(context.Background())

		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("LOT-%s-10000", today), number)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
