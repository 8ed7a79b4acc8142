package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/shared"
)

// AllocationMode selects how the FIFO walk reads and mutates lots
type AllocationMode string

const (
	// ModeReserve earmarks quantity without removing it
	ModeReserve AllocationMode = "reserve"
	// ModeRelease returns earmarked quantity to the reservable pool
	ModeRelease AllocationMode = "release"
	// ModeConsume removes previously reserved quantity
	ModeConsume AllocationMode = "consume"
	// ModeDeduct removes quantity that was never reserved
	ModeDeduct AllocationMode = "deduct"
)

// LotAllocation is one line of an allocation plan: how much was taken from
// which lot and at what captured unit cost
type LotAllocation struct {
	Lot      *Lot
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	LineCost decimal.Decimal
}

// AllocationResult is the outcome of a FIFO walk over a lot set.
// ReservedConsumed is the reserved quantity a plain deduct had to take when
// free stock could not cover the request; the caller reduces the level's
// reserved counter by the same amount so level and lots stay in step.
type AllocationResult struct {
	Allocations      []LotAllocation
	TotalQuantity    decimal.Decimal
	TotalCost        decimal.Decimal
	ReservedConsumed decimal.Decimal
}

// AllocationEngine distributes a requested quantity across lots in FIFO
// order. Callers verify availability at the stock-level aggregate before
// invoking the engine, so a walk that cannot satisfy the request means the
// level and its lots have drifted apart.
type AllocationEngine struct{}

// NewAllocationEngine creates an allocation engine
func NewAllocationEngine() *AllocationEngine {
	return &AllocationEngine{}
}

// SortLotsFIFO orders lots by receipt date ascending, breaking ties by the
// insertion sequence so the walk is deterministic
func SortLotsFIFO(lots []*Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		if lots[i].ReceiptDate.Equal(lots[j].ReceiptDate) {
			return lots[i].Sequence < lots[j].Sequence
		}
		return lots[i].ReceiptDate.Before(lots[j].ReceiptDate)
	})
}

// Allocate walks the lots oldest first, taking from each the lesser of the
// remaining request and the lot's eligible quantity for the mode, and applies
// the per-mode mutation to each touched lot. The input quantity is assumed
// positive; callers validate before delegating here.
//
// If the walk ends with quantity still unallocated the lot records no longer
// back the stock-level figures and ErrLedgerInconsistent is returned with no
// lots mutated.
func (e *AllocationEngine) Allocate(qty decimal.Decimal, lots []*Lot, mode AllocationMode) (*AllocationResult, error) {
	SortLotsFIFO(lots)

	plan, reservedConsumed := e.plan(qty, lots, mode)
	if plan == nil {
		return nil, shared.ErrLedgerInconsistent
	}

	result := &AllocationResult{
		TotalQuantity:    decimal.Zero,
		TotalCost:        decimal.Zero,
		ReservedConsumed: reservedConsumed,
	}
	for _, line := range plan {
		if err := e.apply(line.Lot, line.Quantity, mode); err != nil {
			return nil, err
		}
		result.Allocations = append(result.Allocations, line)
		result.TotalQuantity = result.TotalQuantity.Add(line.Quantity)
		result.TotalCost = result.TotalCost.Add(line.LineCost)
	}
	return result, nil
}

// plan computes the walk without mutating any lot, so a shortfall leaves the
// lot set untouched. Returns a nil plan when the lots cannot cover the
// request; the second value is the reserved quantity a deduct plan consumes.
func (e *AllocationEngine) plan(qty decimal.Decimal, lots []*Lot, mode AllocationMode) ([]LotAllocation, decimal.Decimal) {
	if mode == ModeDeduct {
		return e.planDeduct(qty, lots)
	}

	remaining := qty
	var plan []LotAllocation
	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}

		eligible := e.eligible(lot, mode)
		if eligible.LessThanOrEqual(decimal.Zero) {
			continue
		}

		take := decimal.Min(remaining, eligible)
		unitCost := lot.EffectiveUnitCost()
		plan = append(plan, LotAllocation{
			Lot:      lot,
			Quantity: take,
			UnitCost: unitCost,
			LineCost: unitCost.Mul(take),
		})
		remaining = remaining.Sub(take)
	}

	if remaining.GreaterThan(decimal.Zero) {
		return nil, decimal.Zero
	}
	return plan, decimal.Zero
}

// planDeduct walks free quantity first so a deduct only breaks into
// reservations when unreserved stock cannot cover the request. The second
// pass runs after every lot's free quantity is planned, so the reserved
// amount it takes equals exactly what Lot.Consume will clamp away.
func (e *AllocationEngine) planDeduct(qty decimal.Decimal, lots []*Lot) ([]LotAllocation, decimal.Decimal) {
	remaining := qty
	var plan []LotAllocation
	index := make(map[*Lot]int)
	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		if lot.Status != LotStatusActive {
			continue
		}

		free := lot.Reservable()
		if free.LessThanOrEqual(decimal.Zero) {
			continue
		}

		take := decimal.Min(remaining, free)
		unitCost := lot.EffectiveUnitCost()
		index[lot] = len(plan)
		plan = append(plan, LotAllocation{
			Lot:      lot,
			Quantity: take,
			UnitCost: unitCost,
			LineCost: unitCost.Mul(take),
		})
		remaining = remaining.Sub(take)
	}

	reservedConsumed := decimal.Zero
	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		if lot.Status != LotStatusActive || lot.ReservedQty.LessThanOrEqual(decimal.Zero) {
			continue
		}

		take := decimal.Min(remaining, lot.ReservedQty)
		unitCost := lot.EffectiveUnitCost()
		if i, ok := index[lot]; ok {
			plan[i].Quantity = plan[i].Quantity.Add(take)
			plan[i].LineCost = plan[i].LineCost.Add(unitCost.Mul(take))
		} else {
			plan = append(plan, LotAllocation{
				Lot:      lot,
				Quantity: take,
				UnitCost: unitCost,
				LineCost: unitCost.Mul(take),
			})
		}
		reservedConsumed = reservedConsumed.Add(take)
		remaining = remaining.Sub(take)
	}

	if remaining.GreaterThan(decimal.Zero) {
		return nil, decimal.Zero
	}
	return plan, reservedConsumed
}

// eligible returns how much of the lot the mode may draw on
func (e *AllocationEngine) eligible(lot *Lot, mode AllocationMode) decimal.Decimal {
	switch mode {
	case ModeReserve:
		if lot.Status != LotStatusActive {
			return decimal.Zero
		}
		return lot.Reservable()
	case ModeRelease, ModeConsume:
		return lot.ReservedQty
	default:
		return decimal.Zero
	}
}

// apply performs the mode's mutation on a single lot
func (e *AllocationEngine) apply(lot *Lot, qty decimal.Decimal, mode AllocationMode) error {
	switch mode {
	case ModeReserve:
		return lot.Reserve(qty)
	case ModeRelease:
		return lot.Release(qty)
	case ModeConsume:
		return lot.Consume(qty, true)
	case ModeDeduct:
		return lot.Consume(qty, false)
	default:
		return shared.NewDomainError("INVALID_MODE", "Unknown allocation mode")
	}
}
