package finance

import (
	"sort"
	"time"

	"github.com/erp/settlement/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// AllocationTarget is an open obligation considered by an allocation strategy
type AllocationTarget struct {
	Key       ObligationKey
	Number    string          // for display purposes
	Remaining decimal.Decimal // amount still outstanding
	DueDate   *time.Time      // FIFO ordering; nil sorts last
	CreatedAt time.Time       // tie-break
}

// TargetFromObligation builds an allocation target from a ledger row
func TargetFromObligation(o *Obligation) AllocationTarget {
	return AllocationTarget{
		Key:       o.Key(),
		Number:    o.Number,
		Remaining: o.Remaining(),
		DueDate:   o.DueDate,
		CreatedAt: o.CreatedAt,
	}
}

// PlannedAllocation is one step of an allocation plan
type PlannedAllocation struct {
	Target AllocationTarget
	Amount decimal.Decimal
}

// AllocationPlan is the result of running a strategy over a set of targets
type AllocationPlan struct {
	Steps          []PlannedAllocation
	TotalAllocated decimal.Decimal
	Remaining      decimal.Decimal
}

// FullyAllocated reports whether the whole amount found a target
func (p *AllocationPlan) FullyAllocated() bool {
	return p.Remaining.IsZero()
}

// AllocationStrategy distributes an amount across open obligations
type AllocationStrategy interface {
	strategy.Strategy
	Plan(amount decimal.Decimal, targets []AllocationTarget) (*AllocationPlan, error)
}

// FIFOAllocationStrategy allocates to the oldest due obligation first
type FIFOAllocationStrategy struct {
	strategy.Descriptor
}

// NewFIFOAllocationStrategy creates a new FIFO allocation strategy
func NewFIFOAllocationStrategy() *FIFOAllocationStrategy {
	return &FIFOAllocationStrategy{
		Descriptor: strategy.Describe(
			"fifo_due_date",
			strategy.KindAllocation,
			"Allocates to the obligation with the earliest due date first; obligations without a due date are processed last",
		),
	}
}

// Plan walks targets in FIFO order, allocating min(remaining payment, remaining obligation)
// to each until the amount or the targets are exhausted.
func (s *FIFOAllocationStrategy) Plan(amount decimal.Decimal, targets []AllocationTarget) (*AllocationPlan, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount.WithDetails(map[string]any{"requested": amount.String()})
	}

	sorted := make([]AllocationTarget, len(targets))
	copy(sorted, targets)
	SortFIFO(sorted)

	plan := &AllocationPlan{
		Steps:          make([]PlannedAllocation, 0, len(sorted)),
		TotalAllocated: decimal.Zero,
		Remaining:      amount,
	}
	for _, target := range sorted {
		if plan.Remaining.IsZero() {
			break
		}
		if target.Remaining.LessThanOrEqual(decimal.Zero) {
			continue
		}
		step := decimal.Min(plan.Remaining, target.Remaining)
		plan.Steps = append(plan.Steps, PlannedAllocation{Target: target, Amount: step})
		plan.TotalAllocated = plan.TotalAllocated.Add(step)
		plan.Remaining = plan.Remaining.Sub(step)
	}
	return plan, nil
}

// SortFIFO orders targets by due date ascending with nil due dates last,
// then by creation time, then by id so the order is total.
func SortFIFO(targets []AllocationTarget) {
	sort.SliceStable(targets, func(i, j int) bool {
		return fifoLess(targets[i], targets[j])
	})
}

func fifoLess(a, b AllocationTarget) bool {
	switch {
	case a.DueDate != nil && b.DueDate != nil:
		if !a.DueDate.Equal(*b.DueDate) {
			return a.DueDate.Before(*b.DueDate)
		}
	case a.DueDate != nil:
		return true
	case b.DueDate != nil:
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Key.ID.String() < b.Key.ID.String()
}
