package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Event type constants
const (
	EventTypeStockAdded          = "ledger.stock_added"
	EventTypeStockReserved       = "ledger.stock_reserved"
	EventTypeReservationReleased = "ledger.reservation_released"
	EventTypeStockConsumed       = "ledger.stock_consumed"
	EventTypeLowStockAlert       = "ledger.low_stock_alert"
)

const aggregateTypeStockLevel = "StockLevel"

// StockAddedEvent is published when stock is received into a lot
type StockAddedEvent struct {
	shared.BaseDomainEvent
	ItemID      uuid.UUID       `json:"item_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	LotNumber   string          `json:"lot_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	QtyOnHand   decimal.Decimal `json:"qty_on_hand"`
}

// NewStockAddedEvent creates a stock added event
func NewStockAddedEvent(level *StockLevel, lot *Lot, qty decimal.Decimal) *StockAddedEvent {
	return &StockAddedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockAdded, aggregateTypeStockLevel, level.ID),
		ItemID:          level.ItemID,
		WarehouseID:     level.WarehouseID,
		LotNumber:       lot.LotNumber,
		Quantity:        qty,
		QtyOnHand:       level.QtyOnHand,
	}
}

// StockReservedEvent is published when stock is earmarked
type StockReservedEvent struct {
	shared.BaseDomainEvent
	ItemID      uuid.UUID       `json:"item_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	QtyReserved decimal.Decimal `json:"qty_reserved"`
}

// NewStockReservedEvent creates a stock reserved event
func NewStockReservedEvent(level *StockLevel, qty decimal.Decimal) *StockReservedEvent {
	return &StockReservedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReserved, aggregateTypeStockLevel, level.ID),
		ItemID:          level.ItemID,
		WarehouseID:     level.WarehouseID,
		Quantity:        qty,
		QtyReserved:     level.QtyReserved,
	}
}

// ReservationReleasedEvent is published when a reservation is returned unused
type ReservationReleasedEvent struct {
	shared.BaseDomainEvent
	ItemID      uuid.UUID       `json:"item_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	QtyReserved decimal.Decimal `json:"qty_reserved"`
}

// NewReservationReleasedEvent creates a reservation released event
func NewReservationReleasedEvent(level *StockLevel, qty decimal.Decimal) *ReservationReleasedEvent {
	return &ReservationReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReservationReleased, aggregateTypeStockLevel, level.ID),
		ItemID:          level.ItemID,
		WarehouseID:     level.WarehouseID,
		Quantity:        qty,
		QtyReserved:     level.QtyReserved,
	}
}

// StockConsumedEvent is published when stock physically leaves a warehouse,
// whether from a reservation or by direct deduction
type StockConsumedEvent struct {
	shared.BaseDomainEvent
	ItemID          uuid.UUID       `json:"item_id"`
	WarehouseID     uuid.UUID       `json:"warehouse_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	FromReservation bool            `json:"from_reservation"`
	ReferenceType   string          `json:"reference_type"`
	ReferenceID     string          `json:"reference_id"`
}

// NewStockConsumedEvent creates a stock consumed event
func NewStockConsumedEvent(level *StockLevel, qty, totalCost decimal.Decimal, fromReservation bool, referenceType, referenceID string) *StockConsumedEvent {
	return &StockConsumedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockConsumed, aggregateTypeStockLevel, level.ID),
		ItemID:          level.ItemID,
		WarehouseID:     level.WarehouseID,
		Quantity:        qty,
		TotalCost:       totalCost,
		FromReservation: fromReservation,
		ReferenceType:   referenceType,
		ReferenceID:     referenceID,
	}
}

// LowStockAlertEvent is published at most once per depletion episode when
// available quantity crosses below a configured threshold
type LowStockAlertEvent struct {
	shared.BaseDomainEvent
	ItemID      uuid.UUID       `json:"item_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Severity    AlertSeverity   `json:"severity"`
	Threshold   decimal.Decimal `json:"threshold"`
	Available   decimal.Decimal `json:"available"`
}

// NewLowStockAlertEvent creates a low stock alert event
func NewLowStockAlertEvent(level *StockLevel, breach *LowStockBreach) *LowStockAlertEvent {
	return &LowStockAlertEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLowStockAlert, aggregateTypeStockLevel, level.ID),
		ItemID:          level.ItemID,
		WarehouseID:     level.WarehouseID,
		Severity:        breach.Severity,
		Threshold:       breach.Threshold,
		Available:       breach.Available,
	}
}
