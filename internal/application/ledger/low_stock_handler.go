package ledger

import (
	"context"
	"fmt"

	"github.com/wms/backend/internal/domain/ledger"
	"github.com/wms/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LowStockAlertHandler forwards low-stock alert events to the configured
// alert sink. The ledger transaction has already committed by the time this
// runs, so sink failures are logged and swallowed.
type LowStockAlertHandler struct {
	logger   *zap.Logger
	notifier LowStockNotifier
}

// LowStockNotifier is the interface for delivering low-stock alerts.
// Implementations can support different channels (in-app, email, webhook).
type LowStockNotifier interface {
	// Notify delivers one low-stock alert
	Notify(ctx context.Context, alert LowStockAlert) error
}

// LowStockAlert represents a low-stock alert ready for delivery
type LowStockAlert struct {
	ItemID      string `json:"item_id"`
	WarehouseID string `json:"warehouse_id"`
	Severity    string `json:"severity"`
	Threshold   string `json:"threshold"`
	Available   string `json:"available"`
}

// NewLowStockAlertHandler creates a new handler for low-stock alert events
func NewLowStockAlertHandler(logger *zap.Logger) *LowStockAlertHandler {
	return &LowStockAlertHandler{
		logger: logger,
	}
}

// WithNotifier sets the notifier for delivering alerts
func (h *LowStockAlertHandler) WithNotifier(notifier LowStockNotifier) *LowStockAlertHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *LowStockAlertHandler) EventTypes() []string {
	return []string{ledger.EventTypeLowStockAlert}
}

// Handle processes a LowStockAlertEvent
func (h *LowStockAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	alertEvent, ok := event.(*ledger.LowStockAlertEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", ledger.EventTypeLowStockAlert),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			ledger.EventTypeLowStockAlert, event.EventType())
	}

	h.logger.Warn("low stock detected",
		zap.String("item_id", alertEvent.ItemID.String()),
		zap.String("warehouse_id", alertEvent.WarehouseID.String()),
		zap.String("severity", string(alertEvent.Severity)),
		zap.String("threshold", alertEvent.Threshold.String()),
		zap.String("available", alertEvent.Available.String()),
	)

	if h.notifier == nil {
		return nil
	}

	alert := LowStockAlert{
		ItemID:      alertEvent.ItemID.String(),
		WarehouseID: alertEvent.WarehouseID.String(),
		Severity:    string(alertEvent.Severity),
		Threshold:   alertEvent.Threshold.String(),
		Available:   alertEvent.Available.String(),
	}
	if err := h.notifier.Notify(ctx, alert); err != nil {
		// delivery failure must not fail event handling
		h.logger.Error("failed to deliver low stock alert",
			zap.String("item_id", alert.ItemID),
			zap.Error(err),
		)
	}
	return nil
}

// Ensure LowStockAlertHandler implements shared.EventHandler
var _ shared.EventHandler = (*LowStockAlertHandler)(nil)

// LoggingLowStockNotifier is a simple notifier that logs alerts.
// This is useful for development and testing.
type LoggingLowStockNotifier struct {
	logger *zap.Logger
}

// NewLoggingLowStockNotifier creates a new logging notifier
func NewLoggingLowStockNotifier(logger *zap.Logger) *LoggingLowStockNotifier {
	return &LoggingLowStockNotifier{
		logger: logger,
	}
}

// Notify logs the low-stock alert
func (n *LoggingLowStockNotifier) Notify(ctx context.Context, alert LowStockAlert) error {
	n.logger.Warn("LOW STOCK ALERT",
		zap.String("severity", alert.Severity),
		zap.String("item_id", alert.ItemID),
		zap.String("warehouse_id", alert.WarehouseID),
		zap.String("threshold", alert.Threshold),
		zap.String("available", alert.Available),
	)
	return nil
}

// Ensure LoggingLowStockNotifier implements LowStockNotifier
var _ LowStockNotifier = (*LoggingLowStockNotifier)(nil)
