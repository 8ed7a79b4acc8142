package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	ledgerapp "github.com/wms/backend/internal/application/ledger"
	"github.com/wms/backend/internal/interfaces/http/middleware"
)

// parseDateTime parses a datetime string in the formats clients send
func parseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// LedgerHandler handles stock ledger API endpoints
type LedgerHandler struct {
	BaseHandler
	ledgerService *ledgerapp.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledgerService *ledgerapp.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

// bindJSON binds the request body and writes the error response on failure.
// Returns false when the request was rejected.
func (h *LedgerHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			middleware.HandleValidationError(c, err)
		} else {
			h.BadRequest(c, err.Error())
		}
		return false
	}
	return true
}

// pairFromQuery reads the item_id and warehouse_id query parameters
func (h *LedgerHandler) pairFromQuery(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	itemIDStr := c.Query("item_id")
	warehouseIDStr := c.Query("warehouse_id")

	if itemIDStr == "" || warehouseIDStr == "" {
		h.BadRequest(c, "item_id and warehouse_id are required")
		return uuid.Nil, uuid.Nil, false
	}

	itemID, err := uuid.Parse(itemIDStr)
	if err != nil {
		h.BadRequest(c, "Invalid item ID format")
		return uuid.Nil, uuid.Nil, false
	}

	warehouseID, err := uuid.Parse(warehouseIDStr)
	if err != nil {
		h.BadRequest(c, "Invalid warehouse ID format")
		return uuid.Nil, uuid.Nil, false
	}

	return itemID, warehouseID, true
}

// AddStock receives stock into a new lot
func (h *LedgerHandler) AddStock(c *gin.Context) {
	var req ledgerapp.AddStockRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerService.AddStock(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// ReserveStock earmarks stock for later consumption. A shortfall is a
// normal outcome reported in the body, not an error status.
func (h *LedgerHandler) ReserveStock(c *gin.Context) {
	var req ledgerapp.ReserveStockRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerService.ReserveStock(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ReleaseReservation returns an unused reservation to available stock
func (h *LedgerHandler) ReleaseReservation(c *gin.Context) {
	var req ledgerapp.ReleaseReservationRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.ledgerService.ReleaseReservation(c.Request.Context(), req); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// ConsumeReservation consumes previously reserved stock and reports its FIFO cost
func (h *LedgerHandler) ConsumeReservation(c *gin.Context) {
	var req ledgerapp.ConsumeReservationRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerService.ConsumeReservation(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// DeductStock removes stock that was never reserved
func (h *LedgerHandler) DeductStock(c *gin.Context) {
	var req ledgerapp.DeductStockRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerService.DeductStock(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// GetStockLevel returns the level for one item-warehouse pair
func (h *LedgerHandler) GetStockLevel(c *gin.Context) {
	itemID, warehouseID, ok := h.pairFromQuery(c)
	if !ok {
		return
	}

	level, err := h.ledgerService.GetStockLevel(c.Request.Context(), itemID, warehouseID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, level)
}

// ConfigureThresholds sets the low-stock thresholds for a pair
func (h *LedgerHandler) ConfigureThresholds(c *gin.Context) {
	var req ledgerapp.ConfigureThresholdsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	level, err := h.ledgerService.ConfigureThresholds(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, level)
}

// BatchAddStock posts several receipt lines atomically
func (h *LedgerHandler) BatchAddStock(c *gin.Context) {
	var req ledgerapp.BatchAddStockRequest
	if !h.bindJSON(c, &req) {
		return
	}

	results, err := h.ledgerService.BatchAddStock(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, results)
}

// BatchReserveStock attempts several reservation lines in one transaction.
// Lines that cannot be satisfied are listed in the response.
func (h *LedgerHandler) BatchReserveStock(c *gin.Context) {
	var req ledgerapp.BatchReserveStockRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerService.BatchReserveStock(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// BatchConsumeStock consumes several reservation lines atomically
func (h *LedgerHandler) BatchConsumeStock(c *gin.Context) {
	var req ledgerapp.BatchConsumeStockRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerService.BatchConsumeStock(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// BatchDeductStock deducts several unreserved lines atomically
func (h *LedgerHandler) BatchDeductStock(c *gin.Context) {
	var req ledgerapp.BatchDeductStockRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledgerService.BatchDeductStock(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// ListLots returns the lots of a pair in FIFO order
func (h *LedgerHandler) ListLots(c *gin.Context) {
	itemID, warehouseID, ok := h.pairFromQuery(c)
	if !ok {
		return
	}

	lots, err := h.ledgerService.GetLots(c.Request.Context(), itemID, warehouseID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, lots)
}

// ListExpiringLots returns active lots expiring within the given number of days
func (h *LedgerHandler) ListExpiringLots(c *gin.Context) {
	days := 30
	if daysStr := c.Query("within_days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed <= 0 {
			h.BadRequest(c, "within_days must be a positive integer")
			return
		}
		days = parsed
	}

	cutoff := time.Now().AddDate(0, 0, days)
	lots, err := h.ledgerService.GetExpiringLots(c.Request.Context(), cutoff)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, lots)
}

// ListConsumptionsByReference returns the consumption trail of a document
func (h *LedgerHandler) ListConsumptionsByReference(c *gin.Context) {
	referenceType := c.Query("reference_type")
	referenceID := c.Query("reference_id")

	if referenceType == "" || referenceID == "" {
		h.BadRequest(c, "reference_type and reference_id are required")
		return
	}

	consumptions, err := h.ledgerService.GetConsumptionsByReference(c.Request.Context(), referenceType, referenceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, consumptions)
}

// ConsumptionHistory returns the consumptions of a pair within a time range
func (h *LedgerHandler) ConsumptionHistory(c *gin.Context) {
	itemID, warehouseID, ok := h.pairFromQuery(c)
	if !ok {
		return
	}

	from := time.Time{}
	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := parseDateTime(fromStr)
		if err != nil {
			h.BadRequest(c, "Invalid from date format")
			return
		}
		from = parsed
	}

	to := time.Now()
	if toStr := c.Query("to"); toStr != "" {
		parsed, err := parseDateTime(toStr)
		if err != nil {
			h.BadRequest(c, "Invalid to date format")
			return
		}
		to = parsed
	}

	consumptions, err := h.ledgerService.GetConsumptionHistory(c.Request.Context(), itemID, warehouseID, from, to)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, consumptions)
}

// ListLowStockLevels returns the levels currently under their reorder point
func (h *LedgerHandler) ListLowStockLevels(c *gin.Context) {
	levels, err := h.ledgerService.GetLowStockLevels(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, levels)
}
