package finance

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func target(remaining int64, due *time.Time) AllocationTarget {
	return AllocationTarget{
		Key:       ObligationKey{ID: uuid.New(), Type: ObligationTypeSales},
		Remaining: decimal.NewFromInt(remaining),
		DueDate:   due,
		CreatedAt: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFIFOAllocationStrategy_Plan(t *testing.T) {
	s := NewFIFOAllocationStrategy()
	assert.Equal(t, "fifo_due_date", s.Name())

	t.Run("oldest due date first", func(t *testing.T) {
		jan10 := target(100, datePtr(2026, 1, 10))
		jan20 := target(50, datePtr(2026, 1, 20))
		jan5 := target(30, datePtr(2026, 1, 5))

		plan, err := s.Plan(decimal.NewFromInt(110), []AllocationTarget{jan10, jan20, jan5})
		require.NoError(t, err)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, jan5.Key, plan.Steps[0].Target.Key)
		assert.True(t, plan.Steps[0].Amount.Equal(decimal.NewFromInt(30)))
		assert.Equal(t, jan10.Key, plan.Steps[1].Target.Key)
		assert.True(t, plan.Steps[1].Amount.Equal(decimal.NewFromInt(80)))
		assert.True(t, plan.Remaining.IsZero())
		assert.True(t, plan.FullyAllocated())
		assert.True(t, plan.TotalAllocated.Equal(decimal.NewFromInt(110)))
	})

	t.Run("nil due dates are processed last", func(t *testing.T) {
		undated := target(40, nil)
		dated := target(40, datePtr(2026, 3, 1))
		plan, err := s.Plan(decimal.NewFromInt(60), []AllocationTarget{undated, dated})
		require.NoError(t, err)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, dated.Key, plan.Steps[0].Target.Key)
		assert.True(t, plan.Steps[1].Amount.Equal(decimal.NewFromInt(20)))
	})

	t.Run("equal due dates tie-break by creation time", func(t *testing.T) {
		due := datePtr(2026, 2, 1)
		later := target(10, due)
		later.CreatedAt = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
		earlier := target(10, due)
		earlier.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		plan, err := s.Plan(decimal.NewFromInt(10), []AllocationTarget{later, earlier})
		require.NoError(t, err)
		require.Len(t, plan.Steps, 1)
		assert.Equal(t, earlier.Key, plan.Steps[0].Target.Key)
	})

	t.Run("leftover is reported", func(t *testing.T) {
		plan, err := s.Plan(decimal.NewFromInt(500), []AllocationTarget{target(100, datePtr(2026, 1, 1))})
		require.NoError(t, err)
		assert.True(t, plan.Remaining.Equal(decimal.NewFromInt(400)))
		assert.False(t, plan.FullyAllocated())
	})

	t.Run("skips targets with nothing remaining", func(t *testing.T) {
		plan, err := s.Plan(decimal.NewFromInt(10), []AllocationTarget{target(0, datePtr(2026, 1, 1)), target(5, datePtr(2026, 1, 2))})
		require.NoError(t, err)
		require.Len(t, plan.Steps, 1)
		assert.True(t, plan.Steps[0].Amount.Equal(decimal.NewFromInt(5)))
	})

	t.Run("no targets", func(t *testing.T) {
		plan, err := s.Plan(decimal.NewFromInt(10), nil)
		require.NoError(t, err)
		assert.Empty(t, plan.Steps)
		assert.True(t, plan.Remaining.Equal(decimal.NewFromInt(10)))
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := s.Plan(decimal.Zero, []AllocationTarget{target(10, nil)})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("does not reorder caller slice", func(t *testing.T) {
		a := target(10, datePtr(2026, 5, 1))
		b := target(10, datePtr(2026, 4, 1))
		in := []AllocationTarget{a, b}
		_, err := s.Plan(decimal.NewFromInt(5), in)
		require.NoError(t, err)
		assert.Equal(t, a.Key, in[0].Key)
	})
}
