package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/wms/backend/internal/domain/ledger"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxUpdateAttempts bounds the optimistic-lock retry loop. Each attempt is a
// full read-compute-update cycle in its own transaction; when the budget is
// exhausted the conflict surfaces to the caller as a transient failure.
const maxUpdateAttempts = 3

// LedgerService exposes the stock ledger operations to calling workflows
type LedgerService struct {
	txScope          TransactionScope
	lotNumbers       ledger.LotNumberGenerator
	engine           *ledger.AllocationEngine
	eventPublisher   shared.EventPublisher
	auditSink        AuditSink
	cacheInvalidator CacheInvalidator
	logger           *zap.Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(txScope TransactionScope, lotNumbers ledger.LotNumberGenerator) *LedgerService {
	return &LedgerService{
		txScope:    txScope,
		lotNumbers: lotNumbers,
		engine:     ledger.NewAllocationEngine(),
		logger:     zap.NewNop(),
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *LedgerService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetAuditSink sets the best-effort audit sink
func (s *LedgerService) SetAuditSink(sink AuditSink) {
	s.auditSink = sink
}

// SetCacheInvalidator sets the best-effort cache invalidator
func (s *LedgerService) SetCacheInvalidator(invalidator CacheInvalidator) {
	s.cacheInvalidator = invalidator
}

// SetLogger sets the logger
func (s *LedgerService) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// runSession executes fn inside a transaction, retrying the whole
// read-compute-update cycle on version conflicts. A fresh session is built
// per attempt so retried attempts never see stale aggregates.
func (s *LedgerService) runSession(ctx context.Context, fn func(sess *txSession) error) error {
	var err error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		var sess *txSession
		err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			sess = newTxSession(s.engine, repos)
			if err := fn(sess); err != nil {
				return err
			}
			return sess.flush(ctx)
		})
		if err == nil {
			s.afterCommit(ctx, sess)
			return nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		s.logger.Warn("stock level version conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxUpdateAttempts))
	}
	return err
}

// afterCommit performs the best-effort side effects of a committed
// transaction: domain event publication, audit records and cache
// invalidation. Failures here are logged and never propagated.
func (s *LedgerService) afterCommit(ctx context.Context, sess *txSession) {
	levels := sess.mutatedLevels()

	if s.eventPublisher != nil {
		for _, level := range levels {
			events := level.GetDomainEvents()
			if len(events) == 0 {
				continue
			}
			if err := s.eventPublisher.Publish(ctx, events...); err != nil {
				s.logger.Warn("failed to publish domain events", zap.Error(err))
			}
			level.ClearDomainEvents()
		}
	}

	if s.auditSink != nil {
		for _, entry := range sess.audits {
			if err := s.auditSink.Record(ctx, entry); err != nil {
				s.logger.Warn("failed to record audit entry",
					zap.String("action", entry.Action),
					zap.Error(err))
			}
		}
	}

	if s.cacheInvalidator != nil {
		for _, level := range levels {
			if err := s.cacheInvalidator.InvalidateStockLevel(ctx, level.ItemID, level.WarehouseID); err != nil {
				s.logger.Warn("failed to invalidate stock level cache",
					zap.String("item_id", level.ItemID.String()),
					zap.String("warehouse_id", level.WarehouseID.String()),
					zap.Error(err))
			}
		}
	}
}

func validateQuantity(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	return nil
}

// AddStock receives stock into a new lot and raises the pair's on-hand figure
func (s *LedgerService) AddStock(ctx context.Context, req AddStockRequest) (*AddStockResponse, error) {
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}

	lotNumber, err := s.lotNumbers.NextLotNumber(ctx)
	if err != nil {
		return nil, err
	}

	var resp *AddStockResponse
	err = s.runSession(ctx, func(sess *txSession) error {
		var err error
		resp, err = sess.addLine(ctx, req, lotNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ReserveStock earmarks stock for later consumption. A false result means the
// available quantity does not cover the request; nothing was changed.
func (s *LedgerService) ReserveStock(ctx context.Context, req ReserveStockRequest) (*ReserveStockResponse, error) {
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}

	var resp *ReserveStockResponse
	err := s.runSession(ctx, func(sess *txSession) error {
		var err error
		resp, _, err = sess.reserveLine(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ReleaseReservation returns an unused reservation to the available pool
func (s *LedgerService) ReleaseReservation(ctx context.Context, req ReleaseReservationRequest) error {
	if err := validateQuantity(req.Quantity); err != nil {
		return err
	}

	return s.runSession(ctx, func(sess *txSession) error {
		return sess.releaseLine(ctx, req)
	})
}

// ConsumeReservation removes previously reserved stock and returns its FIFO cost
func (s *LedgerService) ConsumeReservation(ctx context.Context, req ConsumeReservationRequest) (*ConsumeStockResponse, error) {
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}
	if req.ReferenceLineID == "" {
		return nil, shared.NewDomainError("INVALID_REFERENCE", "Reference line ID is required")
	}

	var resp *ConsumeStockResponse
	err := s.runSession(ctx, func(sess *txSession) error {
		var err error
		resp, err = sess.consumeLine(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DeductStock removes stock that was never reserved and returns its FIFO cost
func (s *LedgerService) DeductStock(ctx context.Context, req DeductStockRequest) (*ConsumeStockResponse, error) {
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		return nil, shared.NewDomainError("INVALID_REFERENCE", "Reference is required")
	}

	var resp *ConsumeStockResponse
	err := s.runSession(ctx, func(sess *txSession) error {
		var err error
		resp, err = sess.deductLine(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetStockLevel returns the current figures for a pair. An unknown pair reads
// as zero stock rather than an error.
func (s *LedgerService) GetStockLevel(ctx context.Context, itemID, warehouseID uuid.UUID) (*StockLevelResponse, error) {
	var resp *StockLevelResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		level, err := repos.LevelRepo().FindByItemAndWarehouse(ctx, itemID, warehouseID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				resp = &StockLevelResponse{
					ItemID:      itemID,
					WarehouseID: warehouseID,
					OnHand:      decimal.Zero,
					Reserved:    decimal.Zero,
					Available:   decimal.Zero,
				}
				return nil
			}
			return err
		}
		r := ToStockLevelResponse(level)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ConfigureThresholds sets the low-stock thresholds for a pair, creating the
// level row if the pair has never held stock
func (s *LedgerService) ConfigureThresholds(ctx context.Context, req ConfigureThresholdsRequest) (*StockLevelResponse, error) {
	var resp *StockLevelResponse
	err := s.runSession(ctx, func(sess *txSession) error {
		key := pairKey{req.ItemID, req.WarehouseID}
		level, err := sess.level(ctx, key, true)
		if err != nil {
			return err
		}
		if err := level.SetThresholds(req.MinLevel, req.ReorderPoint); err != nil {
			return err
		}
		sess.mutated[key] = true
		r := ToStockLevelResponse(level)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// BatchAddStock posts a multi-line receipt atomically: every line lands or
// none do
func (s *LedgerService) BatchAddStock(ctx context.Context, req BatchAddStockRequest) ([]AddStockResponse, error) {
	if len(req.Lines) == 0 {
		return nil, shared.NewDomainError("EMPTY_BATCH", "Batch must contain at least one line")
	}
	lotNumbers := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		if err := validateQuantity(line.Quantity); err != nil {
			return nil, err
		}
		number, err := s.lotNumbers.NextLotNumber(ctx)
		if err != nil {
			return nil, err
		}
		lotNumbers[i] = number
	}

	var responses []AddStockResponse
	err := s.runSession(ctx, func(sess *txSession) error {
		responses = responses[:0]
		for i, line := range req.Lines {
			resp, err := sess.addLine(ctx, line, lotNumbers[i])
			if err != nil {
				return err
			}
			responses = append(responses, *resp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// BatchReserveStock attempts every reservation line in one transaction.
// Unsatisfiable lines are collected rather than aborting the batch; satisfied
// lines remain reserved and the caller decides what to do with the failures.
func (s *LedgerService) BatchReserveStock(ctx context.Context, req BatchReserveStockRequest) (*BatchReserveStockResponse, error) {
	if len(req.Lines) == 0 {
		return nil, shared.NewDomainError("EMPTY_BATCH", "Batch must contain at least one line")
	}
	for _, line := range req.Lines {
		if err := validateQuantity(line.Quantity); err != nil {
			return nil, err
		}
	}

	var failed []FailedReservation
	err := s.runSession(ctx, func(sess *txSession) error {
		failed = failed[:0]
		for _, line := range req.Lines {
			_, failure, err := sess.reserveLine(ctx, line)
			if err != nil {
				return err
			}
			if failure != nil {
				failed = append(failed, *failure)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BatchReserveStockResponse{Success: len(failed) == 0, FailedItems: failed}, nil
}

// BatchConsumeStock consumes a multi-line reservation atomically. Thresholds
// are evaluated once per distinct pair after all lines have been applied.
func (s *LedgerService) BatchConsumeStock(ctx context.Context, req BatchConsumeStockRequest) (*BatchConsumeStockResponse, error) {
	if len(req.Lines) == 0 {
		return nil, shared.NewDomainError("EMPTY_BATCH", "Batch must contain at least one line")
	}
	for _, line := range req.Lines {
		if err := validateQuantity(line.Quantity); err != nil {
			return nil, err
		}
		if line.ReferenceLineID == "" {
			return nil, shared.NewDomainError("INVALID_REFERENCE", "Reference line ID is required")
		}
	}

	var resp *BatchConsumeStockResponse
	err := s.runSession(ctx, func(sess *txSession) error {
		resp = &BatchConsumeStockResponse{TotalCost: decimal.Zero}
		for _, line := range req.Lines {
			lineResp, err := sess.consumeLine(ctx, line)
			if err != nil {
				return err
			}
			resp.Lines = append(resp.Lines, *lineResp)
			resp.TotalCost = resp.TotalCost.Add(lineResp.TotalCost)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// BatchDeductStock deducts a multi-line issue atomically
func (s *LedgerService) BatchDeductStock(ctx context.Context, req BatchDeductStockRequest) (*BatchConsumeStockResponse, error) {
	if len(req.Lines) == 0 {
		return nil, shared.NewDomainError("EMPTY_BATCH", "Batch must contain at least one line")
	}
	for _, line := range req.Lines {
		if err := validateQuantity(line.Quantity); err != nil {
			return nil, err
		}
		if line.Reference == "" {
			return nil, shared.NewDomainError("INVALID_REFERENCE", "Reference is required")
		}
	}

	var resp *BatchConsumeStockResponse
	err := s.runSession(ctx, func(sess *txSession) error {
		resp = &BatchConsumeStockResponse{TotalCost: decimal.Zero}
		for _, line := range req.Lines {
			lineResp, err := sess.deductLine(ctx, line)
			if err != nil {
				return err
			}
			resp.Lines = append(resp.Lines, *lineResp)
			resp.TotalCost = resp.TotalCost.Add(lineResp.TotalCost)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetLots lists a pair's lots in FIFO order, depleted lots included
func (s *LedgerService) GetLots(ctx context.Context, itemID, warehouseID uuid.UUID) ([]LotResponse, error) {
	var responses []LotResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		lots, err := repos.LotRepo().FindByItemAndWarehouse(ctx, itemID, warehouseID)
		if err != nil {
			return err
		}
		for _, lot := range lots {
			responses = append(responses, ToLotResponse(lot))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// GetConsumptionsByReference lists the consumption trail of an originating document
func (s *LedgerService) GetConsumptionsByReference(ctx context.Context, referenceType, referenceID string) ([]ConsumptionResponse, error) {
	var responses []ConsumptionResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		records, err := repos.ConsumptionRepo().FindByReference(ctx, referenceType, referenceID)
		if err != nil {
			return err
		}
		for _, rec := range records {
			responses = append(responses, ToConsumptionResponse(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// GetConsumptionHistory lists a pair's consumptions within a time range
func (s *LedgerService) GetConsumptionHistory(ctx context.Context, itemID, warehouseID uuid.UUID, from, to time.Time) ([]ConsumptionResponse, error) {
	var responses []ConsumptionResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		records, err := repos.ConsumptionRepo().FindByItemAndWarehouse(ctx, itemID, warehouseID, from, to)
		if err != nil {
			return err
		}
		for _, rec := range records {
			responses = append(responses, ToConsumptionResponse(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// GetExpiringLots lists active lots that expire before the cutoff
func (s *LedgerService) GetExpiringLots(ctx context.Context, cutoff time.Time) ([]LotResponse, error) {
	var responses []LotResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		lots, err := repos.LotRepo().FindExpiringBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, lot := range lots {
			responses = append(responses, ToLotResponse(lot))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// GetLowStockLevels lists pairs whose available quantity sits under their
// reorder point
func (s *LedgerService) GetLowStockLevels(ctx context.Context) ([]StockLevelResponse, error) {
	var responses []StockLevelResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		levels, err := repos.LevelRepo().FindBelowReorderPoint(ctx)
		if err != nil {
			return err
		}
		for _, level := range levels {
			responses = append(responses, ToStockLevelResponse(level))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}
