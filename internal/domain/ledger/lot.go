package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// LotStatus represents the lifecycle state of a lot
type LotStatus string

const (
	// LotStatusActive means the lot still holds quantity
	LotStatusActive LotStatus = "active"
	// LotStatusDepleted means the lot reached zero available quantity.
	// Depleted is terminal; new intake always creates a new lot.
	LotStatusDepleted LotStatus = "depleted"
)

// Lot is a discrete batch of received stock. Lots are consumed in FIFO order
// by receipt date; Sequence breaks ties between lots received at the same
// instant, in insertion order.
type Lot struct {
	shared.BaseEntity
	LotNumber   string    `gorm:"size:50;not null;uniqueIndex"`
	ItemID      uuid.UUID `gorm:"type:uuid;not null;index:idx_lot_item_warehouse,priority:1"`
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;index:idx_lot_item_warehouse,priority:2"`
	Sequence    int64     `gorm:"not null;autoIncrement;uniqueIndex"`
	ReceiptDate time.Time `gorm:"not null"`
	ExpiryDate  *time.Time
	InitialQty  decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	AvailableQty decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReservedQty decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	UnitCost    *decimal.Decimal `gorm:"type:decimal(18,6)"`
	Status      LotStatus        `gorm:"size:20;not null;default:'active'"`
}

// TableName returns the table name for GORM
func (Lot) TableName() string {
	return "lots"
}

// NewLot creates an active lot from a stock receipt
func NewLot(lotNumber string, itemID, warehouseID uuid.UUID, qty decimal.Decimal, receiptDate time.Time, expiryDate *time.Time, unitCost *decimal.Decimal) (*Lot, error) {
	if lotNumber == "" {
		return nil, shared.NewDomainError("INVALID_LOT_NUMBER", "Lot number cannot be empty")
	}
	if itemID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ITEM", "Item ID cannot be empty")
	}
	if warehouseID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse ID cannot be empty")
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitCost != nil && unitCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_COST", "Unit cost cannot be negative")
	}
	if receiptDate.IsZero() {
		receiptDate = time.Now()
	}

	return &Lot{
		BaseEntity:   shared.NewBaseEntity(),
		LotNumber:    lotNumber,
		ItemID:       itemID,
		WarehouseID:  warehouseID,
		ReceiptDate:  receiptDate,
		ExpiryDate:   expiryDate,
		InitialQty:   qty,
		AvailableQty: qty,
		ReservedQty:  decimal.Zero,
		UnitCost:     unitCost,
		Status:       LotStatusActive,
	}, nil
}

// Reservable returns the quantity in this lot not yet earmarked
func (l *Lot) Reservable() decimal.Decimal {
	return l.AvailableQty.Sub(l.ReservedQty)
}

// EffectiveUnitCost returns the unit cost, treating an unknown cost as zero
func (l *Lot) EffectiveUnitCost() decimal.Decimal {
	if l.UnitCost == nil {
		return decimal.Zero
	}
	return *l.UnitCost
}

// IsExpired reports whether the lot's expiry date has passed
func (l *Lot) IsExpired(now time.Time) bool {
	return l.ExpiryDate != nil && l.ExpiryDate.Before(now)
}

// Reserve earmarks quantity within this lot
func (l *Lot) Reserve(qty decimal.Decimal) error {
	if l.Status != LotStatusActive {
		return shared.NewDomainError("LOT_DEPLETED", "Cannot reserve from a depleted lot")
	}
	if qty.GreaterThan(l.Reservable()) {
		return shared.ErrInsufficientStock
	}

	l.ReservedQty = l.ReservedQty.Add(qty)
	l.UpdatedAt = time.Now()
	return nil
}

// Release returns earmarked quantity to the reservable pool
func (l *Lot) Release(qty decimal.Decimal) error {
	if qty.GreaterThan(l.ReservedQty) {
		return shared.NewDomainError("INVALID_STATE", "Cannot release more than is reserved on the lot")
	}

	l.ReservedQty = l.ReservedQty.Sub(qty)
	l.UpdatedAt = time.Now()
	return nil
}

// Consume removes quantity from the lot. When fromReservation is true the
// same quantity leaves the reserved pool, floored at zero; either way the
// reserved pool is clamped so it never exceeds what remains available.
// The lot transitions to depleted when available quantity reaches zero.
func (l *Lot) Consume(qty decimal.Decimal, fromReservation bool) error {
	if l.Status != LotStatusActive {
		return shared.NewDomainError("LOT_DEPLETED", "Cannot consume from a depleted lot")
	}
	if qty.GreaterThan(l.AvailableQty) {
		return shared.ErrInsufficientStock
	}

	l.AvailableQty = l.AvailableQty.Sub(qty)
	if fromReservation {
		l.ReservedQty = decimal.Max(decimal.Zero, l.ReservedQty.Sub(qty))
	}
	if l.ReservedQty.GreaterThan(l.AvailableQty) {
		l.ReservedQty = l.AvailableQty
	}
	if l.AvailableQty.IsZero() {
		l.Status = LotStatusDepleted
	}
	l.UpdatedAt = time.Now()
	return nil
}
