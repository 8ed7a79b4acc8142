package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wms/backend/internal/domain/ledger"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLotRepository implements LotRepository using GORM
type GormLotRepository struct {
	db *gorm.DB
}

// NewGormLotRepository creates a new GormLotRepository
func NewGormLotRepository(db *gorm.DB) *GormLotRepository {
	return &GormLotRepository{db: db}
}

// fifoOrder is the canonical walk order: receipt date ascending with the
// insertion sequence as a stable tie-break
const fifoOrder = "receipt_date ASC, sequence ASC"

// FindByID finds a lot by its ID
func (r *GormLotRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Lot, error) {
	var lot ledger.Lot
	if err := r.db.WithContext(ctx).First(&lot, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// FindByLotNumber finds a lot by its business number
func (r *GormLotRepository) FindByLotNumber(ctx context.Context, lotNumber string) (*ledger.Lot, error) {
	var lot ledger.Lot
	if err := r.db.WithContext(ctx).
		Where("lot_number = ?", lotNumber).
		First(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// FindForAllocation loads the active lots of a pair in FIFO order, locked for
// update so two concurrent walks cannot count the same units as available
func (r *GormLotRepository) FindForAllocation(ctx context.Context, itemID, warehouseID uuid.UUID) ([]*ledger.Lot, error) {
	var lots []*ledger.Lot
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND warehouse_id = ? AND status = ?", itemID, warehouseID, ledger.LotStatusActive).
		Order(fifoOrder).
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// FindByItemAndWarehouse lists all lots of a pair in FIFO order, depleted included
func (r *GormLotRepository) FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID) ([]*ledger.Lot, error) {
	var lots []*ledger.Lot
	if err := r.db.WithContext(ctx).
		Where("item_id = ? AND warehouse_id = ?", itemID, warehouseID).
		Order(fifoOrder).
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// FindExpiringBefore lists active lots whose expiry date falls before the cutoff
func (r *GormLotRepository) FindExpiringBefore(ctx context.Context, cutoff time.Time) ([]*ledger.Lot, error) {
	var lots []*ledger.Lot
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expiry_date IS NOT NULL AND expiry_date < ?", ledger.LotStatusActive, cutoff).
		Order("expiry_date ASC").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// Create persists a new lot. The sequence column is assigned by the database,
// so lots received at the same instant keep their insertion order.
func (r *GormLotRepository) Create(ctx context.Context, lot *ledger.Lot) error {
	return r.db.WithContext(ctx).Create(lot).Error
}

// SaveAll persists quantity and status changes for the given lots
func (r *GormLotRepository) SaveAll(ctx context.Context, lots []*ledger.Lot) error {
	for _, lot := range lots {
		result := r.db.WithContext(ctx).
			Model(lot).
			Where("id = ?", lot.ID).
			Updates(map[string]interface{}{
				"available_qty": lot.AvailableQty,
				"reserved_qty":  lot.ReservedQty,
				"status":        lot.Status,
				"updated_at":    lot.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
	}
	return nil
}

// Ensure GormLotRepository implements LotRepository
var _ ledger.LotRepository = (*GormLotRepository)(nil)

// GormLotNumberGenerator issues lot numbers of the form LOT-YYYYMMDD-XXXX.
// The suffix comes from a dedicated database sequence, so concurrent
// transactions and the lines of a multi-line receipt each get a distinct
// number.
type GormLotNumberGenerator struct {
	db *gorm.DB
}

// NewGormLotNumberGenerator creates a new GormLotNumberGenerator
func NewGormLotNumberGenerator(db *gorm.DB) *GormLotNumberGenerator {
	return &GormLotNumberGenerator{db: db}
}

// NextLotNumber generates a new unique lot number
func (g *GormLotNumberGenerator) NextLotNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := g.db.WithContext(ctx).
		Raw("SELECT nextval('lot_number_seq')").
		Scan(&seq).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("LOT-%s-%04d", time.Now().Format("20060102"), seq), nil
}

// Ensure GormLotNumberGenerator implements LotNumberGenerator
var _ ledger.LotNumberGenerator = (*GormLotNumberGenerator)(nil)
