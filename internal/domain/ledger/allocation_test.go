package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLot(t *testing.T, number string, qty int64, receipt time.Time, seq int64, cost *decimal.Decimal) *Lot {
	t.Helper()
	lot, err := NewLot(number, uuid.New(), uuid.New(), decimal.NewFromInt(qty), receipt, nil, cost)
	require.NoError(t, err)
	lot.Sequence = seq
	return lot
}

func TestAllocationEngine_Reserve_FIFOAcrossLots(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	lotA := makeLot(t, "LOT-A", 5, base, 1, nil)
	lotB := makeLot(t, "LOT-B", 10, base.Add(24*time.Hour), 2, nil)

	result, err := engine.Allocate(decimal.NewFromInt(7), []*Lot{lotB, lotA}, ModeReserve)
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, "LOT-A", result.Allocations[0].Lot.LotNumber)
	assert.True(t, result.Allocations[0].Quantity.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "LOT-B", result.Allocations[1].Lot.LotNumber)
	assert.True(t, result.Allocations[1].Quantity.Equal(decimal.NewFromInt(2)))

	assert.True(t, lotA.ReservedQty.Equal(decimal.NewFromInt(5)))
	assert.True(t, lotB.ReservedQty.Equal(decimal.NewFromInt(2)))
}

func TestAllocationEngine_SameReceiptDateBreaksTiesBySequence(t *testing.T) {
	engine := NewAllocationEngine()
	receipt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	first := makeLot(t, "LOT-1", 3, receipt, 1, nil)
	second := makeLot(t, "LOT-2", 3, receipt, 2, nil)

	result, err := engine.Allocate(decimal.NewFromInt(4), []*Lot{second, first}, ModeReserve)
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, "LOT-1", result.Allocations[0].Lot.LotNumber)
	assert.True(t, result.Allocations[0].Quantity.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "LOT-2", result.Allocations[1].Lot.LotNumber)
}

func TestAllocationEngine_Reserve_SkipsFullyReservedLots(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	full := makeLot(t, "LOT-FULL", 5, base, 1, nil)
	require.NoError(t, full.Reserve(decimal.NewFromInt(5)))
	open := makeLot(t, "LOT-OPEN", 5, base.Add(time.Hour), 2, nil)

	result, err := engine.Allocate(decimal.NewFromInt(3), []*Lot{full, open}, ModeReserve)
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, "LOT-OPEN", result.Allocations[0].Lot.LotNumber)
}

func TestAllocationEngine_Shortfall_LeavesLotsUntouched(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	lotA := makeLot(t, "LOT-A", 3, base, 1, nil)
	lotB := makeLot(t, "LOT-B", 2, base.Add(time.Hour), 2, nil)

	_, err := engine.Allocate(decimal.NewFromInt(6), []*Lot{lotA, lotB}, ModeReserve)
	assert.True(t, errors.Is(err, shared.ErrLedgerInconsistent))

	assert.True(t, lotA.ReservedQty.IsZero())
	assert.True(t, lotB.ReservedQty.IsZero())
}

func TestAllocationEngine_Consume_DrawsOnlyFromReservations(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	reserved := makeLot(t, "LOT-R", 10, base, 1, nil)
	require.NoError(t, reserved.Reserve(decimal.NewFromInt(4)))
	unreserved := makeLot(t, "LOT-U", 10, base.Add(time.Hour), 2, nil)

	result, err := engine.Allocate(decimal.NewFromInt(4), []*Lot{reserved, unreserved}, ModeConsume)
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, "LOT-R", result.Allocations[0].Lot.LotNumber)
	assert.True(t, reserved.AvailableQty.Equal(decimal.NewFromInt(6)))
	assert.True(t, reserved.ReservedQty.IsZero())
	assert.True(t, unreserved.AvailableQty.Equal(decimal.NewFromInt(10)))
}

func TestAllocationEngine_Release_RoundTripRestoresLots(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	lotA := makeLot(t, "LOT-A", 5, base, 1, nil)
	lotB := makeLot(t, "LOT-B", 5, base.Add(time.Hour), 2, nil)
	lots := []*Lot{lotA, lotB}

	_, err := engine.Allocate(decimal.NewFromInt(7), lots, ModeReserve)
	require.NoError(t, err)
	_, err = engine.Allocate(decimal.NewFromInt(7), lots, ModeRelease)
	require.NoError(t, err)

	assert.True(t, lotA.ReservedQty.IsZero())
	assert.True(t, lotB.ReservedQty.IsZero())
	assert.True(t, lotA.AvailableQty.Equal(decimal.NewFromInt(5)))
	assert.True(t, lotB.AvailableQty.Equal(decimal.NewFromInt(5)))
}

func TestAllocationEngine_Deduct_DepletesOldestLot(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	lotA := makeLot(t, "LOT-A", 5, base, 1, nil)
	lotB := makeLot(t, "LOT-B", 5, base.Add(time.Hour), 2, nil)

	result, err := engine.Allocate(decimal.NewFromInt(6), []*Lot{lotA, lotB}, ModeDeduct)
	require.NoError(t, err)

	assert.True(t, result.TotalQuantity.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, LotStatusDepleted, lotA.Status)
	assert.True(t, lotB.AvailableQty.Equal(decimal.NewFromInt(4)))
}

func TestAllocationEngine_Deduct_PrefersFreeStockOverReservations(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	reserved := makeLot(t, "LOT-R", 5, base, 1, nil)
	require.NoError(t, reserved.Reserve(decimal.NewFromInt(5)))
	free := makeLot(t, "LOT-F", 5, base.Add(24*time.Hour), 2, nil)

	// the older lot is fully reserved, so the deduct skips it
	result, err := engine.Allocate(decimal.NewFromInt(5), []*Lot{reserved, free}, ModeDeduct)
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, "LOT-F", result.Allocations[0].Lot.LotNumber)
	assert.True(t, result.ReservedConsumed.IsZero())
	assert.True(t, reserved.ReservedQty.Equal(decimal.NewFromInt(5)))
	assert.True(t, reserved.AvailableQty.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, LotStatusDepleted, free.Status)
}

func TestAllocationEngine_Deduct_BreaksIntoReservationsLast(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	reserved := makeLot(t, "LOT-R", 5, base, 1, nil)
	require.NoError(t, reserved.Reserve(decimal.NewFromInt(5)))
	free := makeLot(t, "LOT-F", 5, base.Add(24*time.Hour), 2, nil)

	result, err := engine.Allocate(decimal.NewFromInt(8), []*Lot{reserved, free}, ModeDeduct)
	require.NoError(t, err)

	// 5 free units plus 3 taken out of the reservation
	assert.True(t, result.TotalQuantity.Equal(decimal.NewFromInt(8)))
	assert.True(t, result.ReservedConsumed.Equal(decimal.NewFromInt(3)))
	assert.True(t, reserved.ReservedQty.Equal(decimal.NewFromInt(2)))
	assert.True(t, reserved.AvailableQty.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, LotStatusDepleted, free.Status)
}

func TestAllocationEngine_FIFOCosting(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cost50 := decimal.NewFromInt(50)
	cost100 := decimal.NewFromInt(100)
	lotA := makeLot(t, "LOT-A", 10, base, 1, &cost50)
	lotB := makeLot(t, "LOT-B", 5, base.Add(time.Hour), 2, &cost100)
	lots := []*Lot{lotA, lotB}

	_, err := engine.Allocate(decimal.NewFromInt(12), lots, ModeReserve)
	require.NoError(t, err)

	result, err := engine.Allocate(decimal.NewFromInt(12), lots, ModeConsume)
	require.NoError(t, err)

	// 10 units at 50 plus 2 units at 100
	assert.True(t, result.TotalCost.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, LotStatusDepleted, lotA.Status)
}

func TestAllocationEngine_UnknownCostContributesZero(t *testing.T) {
	engine := NewAllocationEngine()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cost := decimal.NewFromInt(30)
	costed := makeLot(t, "LOT-C", 5, base, 1, &cost)
	uncosted := makeLot(t, "LOT-N", 5, base.Add(time.Hour), 2, nil)

	result, err := engine.Allocate(decimal.NewFromInt(8), []*Lot{costed, uncosted}, ModeDeduct)
	require.NoError(t, err)

	// 5 units at 30 plus 3 units at unknown cost
	assert.True(t, result.TotalCost.Equal(decimal.NewFromInt(150)))
}
