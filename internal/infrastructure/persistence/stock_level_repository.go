package persistence

import (
	"context"
	"errors"

	"github.com/wms/backend/internal/domain/ledger"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockLevelRepository implements StockLevelRepository using GORM
type GormStockLevelRepository struct {
	db *gorm.DB
}

// NewGormStockLevelRepository creates a new GormStockLevelRepository
func NewGormStockLevelRepository(db *gorm.DB) *GormStockLevelRepository {
	return &GormStockLevelRepository{db: db}
}

// FindByItemAndWarehouse finds the stock level for an item-warehouse pair
func (r *GormStockLevelRepository) FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID) (*ledger.StockLevel, error) {
	var level ledger.StockLevel
	if err := r.db.WithContext(ctx).
		Where("item_id = ? AND warehouse_id = ?", itemID, warehouseID).
		First(&level).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &level, nil
}

// GetOrCreate gets the existing stock level or creates a zero-quantity row
func (r *GormStockLevelRepository) GetOrCreate(ctx context.Context, itemID, warehouseID uuid.UUID) (*ledger.StockLevel, error) {
	// Try to find existing
	level, err := r.FindByItemAndWarehouse(ctx, itemID, warehouseID)
	if err == nil {
		return level, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	level, err = ledger.NewStockLevel(itemID, warehouseID)
	if err != nil {
		return nil, err
	}

	// Use ON CONFLICT to handle race conditions
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}, {Name: "warehouse_id"}},
			DoNothing: true,
		}).
		Create(level)
	if result.Error != nil {
		return nil, result.Error
	}

	// If the insert hit the conflict, fetch the row that won
	if result.RowsAffected == 0 {
		return r.FindByItemAndWarehouse(ctx, itemID, warehouseID)
	}

	return level, nil
}

// UpdateWithVersion persists the level with a conditional update on the
// version column: the write only lands if the stored row is still at the
// version the aggregate was loaded from, and a winning write advances the
// version by one. Zero matched rows means another transaction won the race.
func (r *GormStockLevelRepository) UpdateWithVersion(ctx context.Context, level *ledger.StockLevel) error {
	// the empty Model keeps GORM from writing the update map back into the
	// aggregate; the version only advances on a confirmed win
	result := r.db.WithContext(ctx).
		Model(&ledger.StockLevel{}).
		Where("id = ? AND version = ?", level.ID, level.Version).
		Updates(map[string]interface{}{
			"qty_on_hand":      level.QtyOnHand,
			"qty_reserved":     level.QtyReserved,
			"min_level":        level.MinLevel,
			"reorder_point":    level.ReorderPoint,
			"alert_sent":       level.AlertSent,
			"last_movement_at": level.LastMovementAt,
			"version":          level.Version + 1,
			"updated_at":       level.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	level.IncrementVersion()
	return nil
}

// FindByWarehouse finds all stock levels held at a warehouse
func (r *GormStockLevelRepository) FindByWarehouse(ctx context.Context, warehouseID uuid.UUID) ([]*ledger.StockLevel, error) {
	var levels []*ledger.StockLevel
	if err := r.db.WithContext(ctx).
		Where("warehouse_id = ?", warehouseID).
		Order("item_id").
		Find(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

// FindBelowReorderPoint finds levels whose available quantity is under their reorder point
func (r *GormStockLevelRepository) FindBelowReorderPoint(ctx context.Context) ([]*ledger.StockLevel, error) {
	var levels []*ledger.StockLevel
	if err := r.db.WithContext(ctx).
		Where("reorder_point IS NOT NULL AND reorder_point > 0 AND (qty_on_hand - qty_reserved) < reorder_point").
		Find(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

// Ensure GormStockLevelRepository implements StockLevelRepository
var _ ledger.StockLevelRepository = (*GormStockLevelRepository)(nil)
