package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/google/uuid"
)

// AuditEntry describes one committed ledger mutation for the audit trail
type AuditEntry struct {
	Action      string
	ItemID      uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal
	Reference   string
	TotalCost   *decimal.Decimal
}

// AuditSink records committed mutations. Recording is best-effort: a sink
// failure is logged and never fails the business operation.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// CacheInvalidator evicts externally cached stock figures after a commit.
// Invalidation is best-effort; the ledger itself never caches levels.
type CacheInvalidator interface {
	InvalidateStockLevel(ctx context.Context, itemID, warehouseID uuid.UUID) error
}
