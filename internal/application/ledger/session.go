package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/ledger"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Audit action names
const (
	auditActionAdd     = "stock.add"
	auditActionReserve = "stock.reserve"
	auditActionRelease = "stock.release"
	auditActionConsume = "stock.consume"
	auditActionDeduct  = "stock.deduct"
)

// Consumption reference types
const (
	referenceTypeConsumption = "consumption"
	referenceTypeDeduction   = "deduction"
)

type pairKey struct {
	itemID      uuid.UUID
	warehouseID uuid.UUID
}

// txSession accumulates the state of one ledger transaction. A multi-line
// document touches each (item, warehouse) pair through a single in-memory
// aggregate and a single lot set, so the pair gets exactly one version-guarded
// update and at most one threshold evaluation no matter how many lines hit it.
//
// Nothing is written until flush; a line failure therefore leaves the
// transaction clean to roll back.
type txSession struct {
	engine *ledger.AllocationEngine
	repos  TransactionalRepositories

	levels     map[pairKey]*ledger.StockLevel
	lots       map[pairKey][]*ledger.Lot
	pairOrder  []pairKey
	mutated    map[pairKey]bool
	alertPairs map[pairKey]bool

	newLots      []*ledger.Lot
	touchedLots  map[uuid.UUID]*ledger.Lot
	consumptions []*ledger.LotConsumption
	audits       []AuditEntry
}

func newTxSession(engine *ledger.AllocationEngine, repos TransactionalRepositories) *txSession {
	return &txSession{
		engine:      engine,
		repos:       repos,
		levels:      make(map[pairKey]*ledger.StockLevel),
		lots:        make(map[pairKey][]*ledger.Lot),
		mutated:     make(map[pairKey]bool),
		alertPairs:  make(map[pairKey]bool),
		touchedLots: make(map[uuid.UUID]*ledger.Lot),
	}
}

// level returns the session's aggregate for a pair, loading it on first use.
// When create is true a missing pair is initialized at zero quantity.
func (s *txSession) level(ctx context.Context, key pairKey, create bool) (*ledger.StockLevel, error) {
	if level, ok := s.levels[key]; ok {
		return level, nil
	}

	var level *ledger.StockLevel
	var err error
	if create {
		level, err = s.repos.LevelRepo().GetOrCreate(ctx, key.itemID, key.warehouseID)
	} else {
		level, err = s.repos.LevelRepo().FindByItemAndWarehouse(ctx, key.itemID, key.warehouseID)
	}
	if err != nil {
		return nil, err
	}

	s.levels[key] = level
	s.pairOrder = append(s.pairOrder, key)
	return level, nil
}

// lotsFor returns the pair's allocatable lots, loaded and locked on first use
func (s *txSession) lotsFor(ctx context.Context, key pairKey) ([]*ledger.Lot, error) {
	if lots, ok := s.lots[key]; ok {
		return lots, nil
	}

	lots, err := s.repos.LotRepo().FindForAllocation(ctx, key.itemID, key.warehouseID)
	if err != nil {
		return nil, err
	}
	s.lots[key] = lots
	return lots, nil
}

// addLine receives one line of stock into a freshly created lot
func (s *txSession) addLine(ctx context.Context, req AddStockRequest, lotNumber string) (*AddStockResponse, error) {
	key := pairKey{req.ItemID, req.WarehouseID}
	level, err := s.level(ctx, key, true)
	if err != nil {
		return nil, err
	}

	receiptDate := time.Now()
	if req.ReceiptDate != nil {
		receiptDate = *req.ReceiptDate
	}
	lot, err := ledger.NewLot(lotNumber, req.ItemID, req.WarehouseID, req.Quantity, receiptDate, req.ExpiryDate, req.UnitCost)
	if err != nil {
		return nil, err
	}

	if err := level.ApplyAdd(req.Quantity); err != nil {
		return nil, err
	}
	level.AddDomainEvent(ledger.NewStockAddedEvent(level, lot, req.Quantity))

	s.mutated[key] = true
	s.newLots = append(s.newLots, lot)
	if lots, ok := s.lots[key]; ok {
		s.lots[key] = append(lots, lot)
	}
	s.audits = append(s.audits, AuditEntry{
		Action:      auditActionAdd,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		Reference:   req.ReferenceLineID,
	})

	return &AddStockResponse{
		LotNumber:   lot.LotNumber,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		QtyOnHand:   level.QtyOnHand,
	}, nil
}

// reserveLine attempts one reservation line. An unsatisfiable line is reported
// as a failed reservation, not an error, and mutates nothing.
func (s *txSession) reserveLine(ctx context.Context, req ReserveStockRequest) (*ReserveStockResponse, *FailedReservation, error) {
	key := pairKey{req.ItemID, req.WarehouseID}
	level, err := s.level(ctx, key, false)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			failed := &FailedReservation{ItemID: req.ItemID, WarehouseID: req.WarehouseID, Requested: req.Quantity, Available: decimal.Zero}
			return &ReserveStockResponse{Reserved: false, Available: decimal.Zero}, failed, nil
		}
		return nil, nil, err
	}

	if !level.CanReserve(req.Quantity) {
		failed := &FailedReservation{ItemID: req.ItemID, WarehouseID: req.WarehouseID, Requested: req.Quantity, Available: level.Available()}
		return &ReserveStockResponse{Reserved: false, Available: level.Available()}, failed, nil
	}

	lots, err := s.lotsFor(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.engine.Allocate(req.Quantity, lots, ledger.ModeReserve)
	if err != nil {
		return nil, nil, err
	}
	if err := level.ApplyReserve(req.Quantity); err != nil {
		return nil, nil, err
	}
	level.AddDomainEvent(ledger.NewStockReservedEvent(level, req.Quantity))

	s.mutated[key] = true
	s.markTouched(result)
	s.audits = append(s.audits, AuditEntry{
		Action:      auditActionReserve,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
	})

	return &ReserveStockResponse{Reserved: true, Available: level.Available()}, nil, nil
}

// releaseLine returns one reservation line to the available pool
func (s *txSession) releaseLine(ctx context.Context, req ReleaseReservationRequest) error {
	key := pairKey{req.ItemID, req.WarehouseID}
	level, err := s.level(ctx, key, false)
	if err != nil {
		return err
	}
	if level.QtyReserved.LessThan(req.Quantity) {
		return shared.NewDomainError("INVALID_STATE", "Release exceeds the outstanding reservation")
	}

	lots, err := s.lotsFor(ctx, key)
	if err != nil {
		return err
	}
	result, err := s.engine.Allocate(req.Quantity, lots, ledger.ModeRelease)
	if err != nil {
		return err
	}
	if err := level.ApplyRelease(req.Quantity); err != nil {
		return err
	}
	level.AddDomainEvent(ledger.NewReservationReleasedEvent(level, req.Quantity))

	s.mutated[key] = true
	s.markTouched(result)
	s.audits = append(s.audits, AuditEntry{
		Action:      auditActionRelease,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
	})
	return nil
}

// consumeLine removes one line of previously reserved stock and records its
// FIFO cost
func (s *txSession) consumeLine(ctx context.Context, req ConsumeReservationRequest) (*ConsumeStockResponse, error) {
	key := pairKey{req.ItemID, req.WarehouseID}
	level, err := s.level(ctx, key, false)
	if err != nil {
		return nil, err
	}
	if level.QtyReserved.LessThan(req.Quantity) {
		return nil, shared.NewDomainError("INVALID_STATE", "Consumption exceeds the outstanding reservation")
	}

	resp, err := s.consume(ctx, key, level, req.Quantity, ledger.ModeConsume, referenceTypeConsumption, req.ReferenceLineID)
	if err != nil {
		return nil, err
	}

	s.audits = append(s.audits, AuditEntry{
		Action:      auditActionConsume,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		Reference:   req.ReferenceLineID,
		TotalCost:   &resp.TotalCost,
	})
	return resp, nil
}

// deductLine removes one line of stock that was never reserved
func (s *txSession) deductLine(ctx context.Context, req DeductStockRequest) (*ConsumeStockResponse, error) {
	key := pairKey{req.ItemID, req.WarehouseID}
	level, err := s.level(ctx, key, false)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInsufficientStock
		}
		return nil, err
	}
	if !level.CanDeduct(req.Quantity) {
		return nil, shared.ErrInsufficientStock
	}

	resp, err := s.consume(ctx, key, level, req.Quantity, ledger.ModeDeduct, referenceTypeDeduction, req.Reference)
	if err != nil {
		return nil, err
	}

	s.audits = append(s.audits, AuditEntry{
		Action:      auditActionDeduct,
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		Reference:   req.Reference,
		TotalCost:   &resp.TotalCost,
	})
	return resp, nil
}

// consume runs the shared walk for the consume and deduct modes
func (s *txSession) consume(ctx context.Context, key pairKey, level *ledger.StockLevel, qty decimal.Decimal, mode ledger.AllocationMode, referenceType, referenceID string) (*ConsumeStockResponse, error) {
	lots, err := s.lotsFor(ctx, key)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Allocate(qty, lots, mode)
	if err != nil {
		return nil, err
	}
	fromReservation := mode == ledger.ModeConsume
	if fromReservation {
		err = level.ApplyConsume(qty)
	} else {
		err = level.ApplyDeduct(qty, result.ReservedConsumed)
	}
	if err != nil {
		return nil, err
	}
	level.AddDomainEvent(ledger.NewStockConsumedEvent(level, qty, result.TotalCost, fromReservation, referenceType, referenceID))

	resp := &ConsumeStockResponse{TotalCost: result.TotalCost}
	for _, line := range result.Allocations {
		rec, err := ledger.NewLotConsumption(line.Lot, line.Quantity, referenceType, referenceID)
		if err != nil {
			return nil, err
		}
		s.consumptions = append(s.consumptions, rec)
		resp.LineCosts = append(resp.LineCosts, CostLine{
			LotNumber: line.Lot.LotNumber,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
			LineCost:  line.LineCost,
		})
	}

	s.mutated[key] = true
	s.markTouched(result)
	s.alertPairs[key] = true
	return resp, nil
}

func (s *txSession) markTouched(result *ledger.AllocationResult) {
	for _, line := range result.Allocations {
		s.touchedLots[line.Lot.ID] = line.Lot
	}
}

// flush evaluates thresholds once per consuming pair, then persists every
// aggregate and lot the session touched. The version-guarded level updates go
// first so a lost race is detected before any other rows are written.
func (s *txSession) flush(ctx context.Context) error {
	for _, key := range s.pairOrder {
		if s.alertPairs[key] {
			s.levels[key].EvaluateThresholds()
		}
	}

	for _, key := range s.pairOrder {
		if !s.mutated[key] {
			continue
		}
		level := s.levels[key]
		if err := level.CheckInvariants(); err != nil {
			return err
		}
		if err := s.repos.LevelRepo().UpdateWithVersion(ctx, level); err != nil {
			return err
		}
	}

	for _, lot := range s.newLots {
		if err := s.repos.LotRepo().Create(ctx, lot); err != nil {
			return err
		}
	}

	if len(s.touchedLots) > 0 {
		touched := make([]*ledger.Lot, 0, len(s.touchedLots))
		for _, lot := range s.touchedLots {
			touched = append(touched, lot)
		}
		if err := s.repos.LotRepo().SaveAll(ctx, touched); err != nil {
			return err
		}
	}

	if len(s.consumptions) > 0 {
		if err := s.repos.ConsumptionRepo().CreateBatch(ctx, s.consumptions); err != nil {
			return err
		}
	}
	return nil
}

// mutatedLevels returns the aggregates whose state changed, in first-touch order
func (s *txSession) mutatedLevels() []*ledger.StockLevel {
	var levels []*ledger.StockLevel
	for _, key := range s.pairOrder {
		if s.mutated[key] {
			levels = append(levels, s.levels[key])
		}
	}
	return levels
}
