package persistence

import (
	"context"
	"time"

	appledger "github.com/wms/backend/internal/application/ledger"
	"github.com/shopspring/decimal"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is one committed ledger mutation as stored in the audit trail
type AuditLog struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey"`
	Action      string           `gorm:"size:50;not null;index"`
	ItemID      uuid.UUID        `gorm:"type:uuid;not null;index:idx_audit_item_warehouse,priority:1"`
	WarehouseID uuid.UUID        `gorm:"type:uuid;not null;index:idx_audit_item_warehouse,priority:2"`
	Quantity    decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	Reference   string           `gorm:"size:100"`
	TotalCost   *decimal.Decimal `gorm:"type:decimal(18,4)"`
	RecordedAt  time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditLog) TableName() string {
	return "audit_logs"
}

// GormAuditSink records committed ledger mutations into the audit_logs table.
// It writes outside the business transaction: entries are flushed after
// commit and a write failure never fails the operation that produced them.
type GormAuditSink struct {
	db *gorm.DB
}

// NewGormAuditSink creates a new GormAuditSink
func NewGormAuditSink(db *gorm.DB) *GormAuditSink {
	return &GormAuditSink{db: db}
}

// Record persists one audit entry
func (s *GormAuditSink) Record(ctx context.Context, entry appledger.AuditEntry) error {
	row := AuditLog{
		ID:          uuid.New(),
		Action:      entry.Action,
		ItemID:      entry.ItemID,
		WarehouseID: entry.WarehouseID,
		Quantity:    entry.Quantity,
		Reference:   entry.Reference,
		TotalCost:   entry.TotalCost,
		RecordedAt:  time.Now(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Ensure GormAuditSink implements AuditSink
var _ appledger.AuditSink = (*GormAuditSink)(nil)
