package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StockLevelRepository provides access to stock level aggregates
type StockLevelRepository interface {
	// FindByItemAndWarehouse loads the level for a pair, or ErrNotFound
	FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID) (*StockLevel, error)
	// GetOrCreate loads the level for a pair, creating a zero-quantity row
	// if none exists yet. Concurrent creation of the same pair is safe.
	GetOrCreate(ctx context.Context, itemID, warehouseID uuid.UUID) (*StockLevel, error)
	// UpdateWithVersion persists the level only if the stored version still
	// matches the version the aggregate was loaded at, returning
	// ErrConcurrencyConflict when another writer got there first
	UpdateWithVersion(ctx context.Context, level *StockLevel) error
	// FindByWarehouse lists all levels held at a warehouse
	FindByWarehouse(ctx context.Context, warehouseID uuid.UUID) ([]*StockLevel, error)
	// FindBelowReorderPoint lists levels whose available quantity is under
	// their configured reorder point
	FindBelowReorderPoint(ctx context.Context) ([]*StockLevel, error)
}

// LotRepository provides access to lots
type LotRepository interface {
	// FindByID loads a lot by ID, or ErrNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*Lot, error)
	// FindByLotNumber loads a lot by its business number, or ErrNotFound
	FindByLotNumber(ctx context.Context, lotNumber string) (*Lot, error)
	// FindForAllocation loads the lots of a pair that an allocation walk may
	// touch, in FIFO order, locked for update within the ambient transaction
	FindForAllocation(ctx context.Context, itemID, warehouseID uuid.UUID) ([]*Lot, error)
	// FindByItemAndWarehouse lists all lots of a pair, FIFO ordered
	FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID) ([]*Lot, error)
	// FindExpiringBefore lists active lots whose expiry date falls before the cutoff
	FindExpiringBefore(ctx context.Context, cutoff time.Time) ([]*Lot, error)
	// Create persists a new lot and assigns its insertion sequence
	Create(ctx context.Context, lot *Lot) error
	// SaveAll persists quantity and status changes for the given lots
	SaveAll(ctx context.Context, lots []*Lot) error
}

// LotConsumptionRepository provides access to the append-only consumption trail
type LotConsumptionRepository interface {
	// CreateBatch persists consumption records produced by one allocation walk
	CreateBatch(ctx context.Context, consumptions []*LotConsumption) error
	// FindByLot lists consumptions of a lot, oldest first
	FindByLot(ctx context.Context, lotID uuid.UUID) ([]*LotConsumption, error)
	// FindByReference lists consumptions recorded against an originating document
	FindByReference(ctx context.Context, referenceType, referenceID string) ([]*LotConsumption, error)
	// FindByItemAndWarehouse lists consumptions for a pair within a time range
	FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID, from, to time.Time) ([]*LotConsumption, error)
}

// LotNumberGenerator issues unique business numbers for new lots
type LotNumberGenerator interface {
	NextLotNumber(ctx context.Context) (string, error)
}
