package ledger

import (
	"context"

	"github.com/wms/backend/internal/domain/ledger"
)

// TransactionScope provides transactional access to ledger repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Aggregate boundary notes:
//   - LevelRepo: Repository for the StockLevel aggregate root. The level's version column
//     is the optimistic-concurrency guard for every mutation of an item-warehouse pair.
//   - LotRepo: Lots are consumed strictly through the level aggregate's allocation walk,
//     but have separate storage so FIFO reads can lock exactly the rows a walk will touch.
//   - ConsumptionRepo: Append-only repository for lot consumption records.
type TransactionalRepositories interface {
	// LevelRepo returns the stock level repository scoped to the current transaction
	LevelRepo() ledger.StockLevelRepository
	// LotRepo returns the lot repository scoped to the current transaction
	LotRepo() ledger.LotRepository
	// ConsumptionRepo returns the lot consumption repository scoped to the current transaction
	ConsumptionRepo() ledger.LotConsumptionRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	levelRepo       ledger.StockLevelRepository
	lotRepo         ledger.LotRepository
	consumptionRepo ledger.LotConsumptionRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	levelRepo ledger.StockLevelRepository,
	lotRepo ledger.LotRepository,
	consumptionRepo ledger.LotConsumptionRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		levelRepo:       levelRepo,
		lotRepo:         lotRepo,
		consumptionRepo: consumptionRepo,
	}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// LevelRepo returns the stock level repository.
func (s *NoOpTransactionScope) LevelRepo() ledger.StockLevelRepository {
	return s.levelRepo
}

// LotRepo returns the lot repository.
func (s *NoOpTransactionScope) LotRepo() ledger.LotRepository {
	return s.lotRepo
}

// ConsumptionRepo returns the lot consumption repository.
func (s *NoOpTransactionScope) ConsumptionRepo() ledger.LotConsumptionRepository {
	return s.consumptionRepo
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
