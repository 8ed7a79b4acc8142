package persistence

import (
	"context"
	"time"

	"github.com/wms/backend/internal/domain/ledger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLotConsumptionRepository implements LotConsumptionRepository using GORM.
// Consumption rows are append-only; there are no update or delete paths.
type GormLotConsumptionRepository struct {
	db *gorm.DB
}

// NewGormLotConsumptionRepository creates a new GormLotConsumptionRepository
func NewGormLotConsumptionRepository(db *gorm.DB) *GormLotConsumptionRepository {
	return &GormLotConsumptionRepository{db: db}
}

// CreateBatch persists the consumption records of one allocation walk
func (r *GormLotConsumptionRepository) CreateBatch(ctx context.Context, consumptions []*ledger.LotConsumption) error {
	if len(consumptions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(consumptions).Error
}

// FindByLot lists consumptions of a lot, oldest first
func (r *GormLotConsumptionRepository) FindByLot(ctx context.Context, lotID uuid.UUID) ([]*ledger.LotConsumption, error) {
	var records []*ledger.LotConsumption
	if err := r.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("consumed_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByReference lists consumptions recorded against an originating document
func (r *GormLotConsumptionRepository) FindByReference(ctx context.Context, referenceType, referenceID string) ([]*ledger.LotConsumption, error) {
	var records []*ledger.LotConsumption
	if err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Order("consumed_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByItemAndWarehouse lists consumptions for a pair within a time range
func (r *GormLotConsumptionRepository) FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID, from, to time.Time) ([]*ledger.LotConsumption, error) {
	var records []*ledger.LotConsumption
	if err := r.db.WithContext(ctx).
		Where("item_id = ? AND warehouse_id = ? AND consumed_at BETWEEN ? AND ?", itemID, warehouseID, from, to).
		Order("consumed_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Ensure GormLotConsumptionRepository implements LotConsumptionRepository
var _ ledger.LotConsumptionRepository = (*GormLotConsumptionRepository)(nil)
