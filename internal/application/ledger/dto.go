package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/ledger"
	"github.com/google/uuid"
)

// AddStockRequest is the request to receive stock into a warehouse
type AddStockRequest struct {
	ItemID          uuid.UUID        `json:"item_id" binding:"required"`
	WarehouseID     uuid.UUID        `json:"warehouse_id" binding:"required"`
	Quantity        decimal.Decimal  `json:"quantity" binding:"required"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	SupplierID      *uuid.UUID       `json:"supplier_id,omitempty"`
	ReceiptDate     *time.Time       `json:"receipt_date,omitempty"`
	ExpiryDate      *time.Time       `json:"expiry_date,omitempty"`
	ReferenceLineID string           `json:"reference_line_id,omitempty"`
}

// AddStockResponse reports the lot created by a stock receipt
type AddStockResponse struct {
	LotNumber   string          `json:"lot_number"`
	ItemID      uuid.UUID       `json:"item_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	QtyOnHand   decimal.Decimal `json:"qty_on_hand"`
}

// ReserveStockRequest is the request to earmark stock for later consumption
type ReserveStockRequest struct {
	ItemID      uuid.UUID       `json:"item_id" binding:"required"`
	WarehouseID uuid.UUID       `json:"warehouse_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
}

// ReserveStockResponse reports whether the reservation was satisfied.
// Reserved being false is a normal business outcome, not an error.
type ReserveStockResponse struct {
	Reserved  bool            `json:"reserved"`
	Available decimal.Decimal `json:"available"`
}

// ReleaseReservationRequest is the request to return an unused reservation
type ReleaseReservationRequest struct {
	ItemID      uuid.UUID       `json:"item_id" binding:"required"`
	WarehouseID uuid.UUID       `json:"warehouse_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
}

// ConsumeReservationRequest is the request to consume previously reserved stock
type ConsumeReservationRequest struct {
	ItemID          uuid.UUID       `json:"item_id" binding:"required"`
	WarehouseID     uuid.UUID       `json:"warehouse_id" binding:"required"`
	Quantity        decimal.Decimal `json:"quantity" binding:"required"`
	ReferenceLineID string          `json:"reference_line_id" binding:"required"`
}

// DeductStockRequest is the request to remove stock that was never reserved
type DeductStockRequest struct {
	ItemID      uuid.UUID       `json:"item_id" binding:"required"`
	WarehouseID uuid.UUID       `json:"warehouse_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	Reference   string          `json:"reference" binding:"required"`
}

// CostLine is the cost contribution of one lot to a consumption
type CostLine struct {
	LotNumber string          `json:"lot_number"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LineCost  decimal.Decimal `json:"line_cost"`
}

// ConsumeStockResponse reports the FIFO cost of a consumption or deduction
type ConsumeStockResponse struct {
	TotalCost decimal.Decimal `json:"total_cost"`
	LineCosts []CostLine      `json:"line_costs"`
}

// StockLevelResponse is the read model for one item-warehouse pair
type StockLevelResponse struct {
	ItemID         uuid.UUID        `json:"item_id"`
	WarehouseID    uuid.UUID        `json:"warehouse_id"`
	OnHand         decimal.Decimal  `json:"on_hand"`
	Reserved       decimal.Decimal  `json:"reserved"`
	Available      decimal.Decimal  `json:"available"`
	MinLevel       *decimal.Decimal `json:"min_level,omitempty"`
	ReorderPoint   *decimal.Decimal `json:"reorder_point,omitempty"`
	AlertSent      bool             `json:"alert_sent"`
	Version        int              `json:"version"`
	LastMovementAt time.Time        `json:"last_movement_at"`
}

// ToStockLevelResponse converts a stock level aggregate to its read model
func ToStockLevelResponse(level *ledger.StockLevel) StockLevelResponse {
	return StockLevelResponse{
		ItemID:         level.ItemID,
		WarehouseID:    level.WarehouseID,
		OnHand:         level.QtyOnHand,
		Reserved:       level.QtyReserved,
		Available:      level.Available(),
		MinLevel:       level.MinLevel,
		ReorderPoint:   level.ReorderPoint,
		AlertSent:      level.AlertSent,
		Version:        level.Version,
		LastMovementAt: level.LastMovementAt,
	}
}

// ConfigureThresholdsRequest sets the low-stock thresholds for a pair
type ConfigureThresholdsRequest struct {
	ItemID       uuid.UUID        `json:"item_id" binding:"required"`
	WarehouseID  uuid.UUID        `json:"warehouse_id" binding:"required"`
	MinLevel     *decimal.Decimal `json:"min_level,omitempty"`
	ReorderPoint *decimal.Decimal `json:"reorder_point,omitempty"`
}

// BatchAddStockRequest posts several receipt lines atomically
type BatchAddStockRequest struct {
	Lines []AddStockRequest `json:"lines" binding:"required,min=1,dive"`
}

// BatchReserveStockRequest attempts several reservation lines in one transaction
type BatchReserveStockRequest struct {
	Lines []ReserveStockRequest `json:"lines" binding:"required,min=1,dive"`
}

// FailedReservation identifies a reservation line that could not be satisfied
type FailedReservation struct {
	ItemID      uuid.UUID       `json:"item_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Requested   decimal.Decimal `json:"requested"`
	Available   decimal.Decimal `json:"available"`
}

// BatchReserveStockResponse reports the outcome of a reservation batch.
// Partial failure is a normal outcome: satisfied lines stay reserved and the
// unsatisfied ones are listed so the caller can decide how to proceed.
type BatchReserveStockResponse struct {
	Success     bool                `json:"success"`
	FailedItems []FailedReservation `json:"failed_items"`
}

// BatchConsumeStockRequest consumes several reservation lines atomically
type BatchConsumeStockRequest struct {
	Lines []ConsumeReservationRequest `json:"lines" binding:"required,min=1,dive"`
}

// BatchDeductStockRequest deducts several unreserved lines atomically
type BatchDeductStockRequest struct {
	Lines []DeductStockRequest `json:"lines" binding:"required,min=1,dive"`
}

// BatchConsumeStockResponse reports per-line and total FIFO costs
type BatchConsumeStockResponse struct {
	TotalCost decimal.Decimal        `json:"total_cost"`
	Lines     []ConsumeStockResponse `json:"lines"`
}

// ConsumptionResponse is the read model for one lot consumption record
type ConsumptionResponse struct {
	LotNumber     string          `json:"lot_number"`
	ItemID        uuid.UUID       `json:"item_id"`
	WarehouseID   uuid.UUID       `json:"warehouse_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	LineCost      decimal.Decimal `json:"line_cost"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	ConsumedAt    time.Time       `json:"consumed_at"`
}

// ToConsumptionResponse converts a consumption record to its read model
func ToConsumptionResponse(rec *ledger.LotConsumption) ConsumptionResponse {
	return ConsumptionResponse{
		LotNumber:     rec.LotNumber,
		ItemID:        rec.ItemID,
		WarehouseID:   rec.WarehouseID,
		Quantity:      rec.Quantity,
		UnitCost:      rec.UnitCost,
		LineCost:      rec.LineCost,
		ReferenceType: rec.ReferenceType,
		ReferenceID:   rec.ReferenceID,
		ConsumedAt:    rec.ConsumedAt,
	}
}

// LotResponse is the read model for a lot
type LotResponse struct {
	LotNumber    string           `json:"lot_number"`
	ItemID       uuid.UUID        `json:"item_id"`
	WarehouseID  uuid.UUID        `json:"warehouse_id"`
	ReceiptDate  time.Time        `json:"receipt_date"`
	ExpiryDate   *time.Time       `json:"expiry_date,omitempty"`
	InitialQty   decimal.Decimal  `json:"initial_qty"`
	AvailableQty decimal.Decimal  `json:"available_qty"`
	ReservedQty  decimal.Decimal  `json:"reserved_qty"`
	UnitCost     *decimal.Decimal `json:"unit_cost,omitempty"`
	Status       string           `json:"status"`
}

// ToLotResponse converts a lot to its read model
func ToLotResponse(lot *ledger.Lot) LotResponse {
	return LotResponse{
		LotNumber:    lot.LotNumber,
		ItemID:       lot.ItemID,
		WarehouseID:  lot.WarehouseID,
		ReceiptDate:  lot.ReceiptDate,
		ExpiryDate:   lot.ExpiryDate,
		InitialQty:   lot.InitialQty,
		AvailableQty: lot.AvailableQty,
		ReservedQty:  lot.ReservedQty,
		UnitCost:     lot.UnitCost,
		Status:       string(lot.Status),
	}
}
