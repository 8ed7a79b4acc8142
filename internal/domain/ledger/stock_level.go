package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// StockLevel summarizes on-hand and reserved stock for one item at one
// warehouse. It is the aggregate root for all ledger mutations; the version
// counter it inherits is the optimistic-concurrency guard for the pair.
//
// The composite identifier is ItemID + WarehouseID. Rows are created on the
// first stock addition and never deleted, even when quantities fall to zero.
type StockLevel struct {
	shared.BaseAggregateRoot
	ItemID         uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_stock_level_item_warehouse,priority:1"`
	WarehouseID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_stock_level_item_warehouse,priority:2"`
	QtyOnHand      decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	QtyReserved    decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	MinLevel       *decimal.Decimal `gorm:"type:decimal(18,4)"` // critical threshold, optional
	ReorderPoint   *decimal.Decimal `gorm:"type:decimal(18,4)"` // warning threshold, optional
	AlertSent      bool             `gorm:"not null;default:false"`
	LastMovementAt time.Time
}

// TableName returns the table name for GORM
func (StockLevel) TableName() string {
	return "stock_levels"
}

// NewStockLevel creates a stock level for an item-warehouse pair
func NewStockLevel(itemID, warehouseID uuid.UUID) (*StockLevel, error) {
	if itemID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ITEM", "Item ID cannot be empty")
	}
	if warehouseID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse ID cannot be empty")
	}

	return &StockLevel{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ItemID:            itemID,
		WarehouseID:       warehouseID,
		QtyOnHand:         decimal.Zero,
		QtyReserved:       decimal.Zero,
		LastMovementAt:    time.Now(),
	}, nil
}

// Available returns the quantity that is on hand and not reserved
func (l *StockLevel) Available() decimal.Decimal {
	return l.QtyOnHand.Sub(l.QtyReserved)
}

// CanReserve reports whether the unreserved quantity covers the request
func (l *StockLevel) CanReserve(qty decimal.Decimal) bool {
	return l.Available().GreaterThanOrEqual(qty)
}

// CanDeduct reports whether the on-hand quantity covers a deduction that was
// not preceded by a reservation
func (l *StockLevel) CanDeduct(qty decimal.Decimal) bool {
	return l.QtyOnHand.GreaterThanOrEqual(qty)
}

// ApplyAdd increases on-hand stock. Adding stock ends the current depletion
// episode, so the alert latch is reset.
func (l *StockLevel) ApplyAdd(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}

	l.QtyOnHand = l.QtyOnHand.Add(qty)
	l.AlertSent = false
	l.touch()
	return nil
}

// ApplyReserve earmarks quantity against future consumption
func (l *StockLevel) ApplyReserve(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if !l.CanReserve(qty) {
		return shared.ErrInsufficientStock
	}

	l.QtyReserved = l.QtyReserved.Add(qty)
	l.touch()
	return nil
}

// ApplyRelease returns a previously reserved quantity to the available pool
func (l *StockLevel) ApplyRelease(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if l.QtyReserved.LessThan(qty) {
		return shared.NewDomainError("INVALID_STATE", "Cannot release more than is reserved")
	}

	l.QtyReserved = l.QtyReserved.Sub(qty)
	l.touch()
	return nil
}

// ApplyConsume removes previously reserved quantity; the same amount leaves
// both the on-hand and the reserved pool
func (l *StockLevel) ApplyConsume(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if l.QtyReserved.LessThan(qty) {
		return shared.NewDomainError("INVALID_STATE", "Consumption exceeds the outstanding reservation")
	}

	l.QtyOnHand = l.QtyOnHand.Sub(qty)
	l.QtyReserved = l.QtyReserved.Sub(qty)
	l.touch()
	return nil
}

// ApplyDeduct removes quantity that was never reserved. reservedConsumed is
// the portion the lot walk had to take out of reservations when free stock
// could not cover the request; the reserved counter drops by the same amount
// so the level keeps matching the sum of its lots.
func (l *StockLevel) ApplyDeduct(qty, reservedConsumed decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if !l.CanDeduct(qty) {
		return shared.ErrInsufficientStock
	}
	if reservedConsumed.IsNegative() || reservedConsumed.GreaterThan(qty) || reservedConsumed.GreaterThan(l.QtyReserved) {
		return shared.ErrLedgerInconsistent
	}

	l.QtyOnHand = l.QtyOnHand.Sub(qty)
	l.QtyReserved = l.QtyReserved.Sub(reservedConsumed)
	l.touch()
	return nil
}

// SetThresholds sets the optional alert thresholds
func (l *StockLevel) SetThresholds(minLevel, reorderPoint *decimal.Decimal) error {
	if minLevel != nil && minLevel.IsNegative() {
		return shared.NewDomainError("INVALID_QUANTITY", "Minimum level cannot be negative")
	}
	if reorderPoint != nil && reorderPoint.IsNegative() {
		return shared.NewDomainError("INVALID_QUANTITY", "Reorder point cannot be negative")
	}
	l.MinLevel = minLevel
	l.ReorderPoint = reorderPoint
	l.touch()
	return nil
}

// AlertSeverity classifies a threshold breach
type AlertSeverity string

const (
	// AlertSeverityCritical means available quantity fell below the minimum level
	AlertSeverityCritical AlertSeverity = "critical"
	// AlertSeverityWarning means available quantity fell below the reorder point
	AlertSeverityWarning AlertSeverity = "warning"
)

// LowStockBreach describes a threshold crossing detected after a mutation
type LowStockBreach struct {
	Severity  AlertSeverity
	Threshold decimal.Decimal
	Available decimal.Decimal
}

// EvaluateThresholds compares available quantity against the configured
// thresholds, minimum level first. At most one alert fires per depletion
// episode: the latch is set here and cleared by ApplyAdd.
func (l *StockLevel) EvaluateThresholds() *LowStockBreach {
	if l.AlertSent {
		return nil
	}

	available := l.Available()
	var breach *LowStockBreach
	switch {
	case l.MinLevel != nil && l.MinLevel.GreaterThan(decimal.Zero) && available.LessThan(*l.MinLevel):
		breach = &LowStockBreach{Severity: AlertSeverityCritical, Threshold: *l.MinLevel, Available: available}
	case l.ReorderPoint != nil && l.ReorderPoint.GreaterThan(decimal.Zero) && available.LessThan(*l.ReorderPoint):
		breach = &LowStockBreach{Severity: AlertSeverityWarning, Threshold: *l.ReorderPoint, Available: available}
	default:
		return nil
	}

	l.AlertSent = true
	l.AddDomainEvent(NewLowStockAlertEvent(l, breach))
	return breach
}

// CheckInvariants verifies the quantity invariants that must hold after every
// mutation. A violation here indicates level/lot drift and is fatal.
func (l *StockLevel) CheckInvariants() error {
	if l.QtyOnHand.IsNegative() || l.QtyReserved.IsNegative() || l.QtyReserved.GreaterThan(l.QtyOnHand) {
		return shared.ErrLedgerInconsistent
	}
	return nil
}

// touch records a movement. The optimistic-lock version is bumped by the
// repository's conditional update, not here, so a transaction that applies
// several mutations to one aggregate still advances the version exactly once.
func (l *StockLevel) touch() {
	now := time.Now()
	l.LastMovementAt = now
	l.UpdatedAt = now
}
