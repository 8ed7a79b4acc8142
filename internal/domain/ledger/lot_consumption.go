package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// LotConsumption is an append-only record of quantity taken from a lot by a
// consume or deduct operation. Records are never updated or deleted; they are
// the costing audit trail.
type LotConsumption struct {
	shared.BaseEntity
	LotID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	LotNumber     string          `gorm:"size:50;not null"`
	ItemID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_consumption_item_warehouse,priority:1"`
	WarehouseID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_consumption_item_warehouse,priority:2"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	LineCost      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReferenceType string          `gorm:"size:50;not null;index:idx_consumption_reference,priority:1"`
	ReferenceID   string          `gorm:"size:100;not null;index:idx_consumption_reference,priority:2"`
	ConsumedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LotConsumption) TableName() string {
	return "lot_consumptions"
}

// NewLotConsumption records a consumption of the given lot. The unit cost is
// captured at consumption time so later lot cost changes cannot rewrite
// history.
func NewLotConsumption(lot *Lot, qty decimal.Decimal, referenceType, referenceID string) (*LotConsumption, error) {
	if lot == nil {
		return nil, shared.NewDomainError("INVALID_LOT", "Lot cannot be nil")
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}

	unitCost := lot.EffectiveUnitCost()
	return &LotConsumption{
		BaseEntity:    shared.NewBaseEntity(),
		LotID:         lot.ID,
		LotNumber:     lot.LotNumber,
		ItemID:        lot.ItemID,
		WarehouseID:   lot.WarehouseID,
		Quantity:      qty,
		UnitCost:      unitCost,
		LineCost:      unitCost.Mul(qty),
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		ConsumedAt:    time.Now(),
	}, nil
}
