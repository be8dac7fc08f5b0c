package finance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory ledger. Execute serializes transactions with a
// single mutex and commits the staged allocation set only when fn succeeds.
type memStore struct {
	mu          sync.Mutex
	payments    map[uuid.UUID]finance.Payment
	obligations map[finance.ObligationKey]finance.Obligation
	allocations map[uuid.UUID]finance.Allocation
	loans       map[uuid.UUID]finance.Loan
	loanPays    map[uuid.UUID][]finance.LoanPayment

	// failNext makes the next n Execute calls fail with err before running fn
	failNext int
	failErr  error
	execs    int
}

func newMemStore() *memStore {
	return &memStore{
		payments:    make(map[uuid.UUID]finance.Payment),
		obligations: make(map[finance.ObligationKey]finance.Obligation),
		allocations: make(map[uuid.UUID]finance.Allocation),
		loans:       make(map[uuid.UUID]finance.Loan),
		loanPays:    make(map[uuid.UUID][]finance.LoanPayment),
	}
}

func (s *memStore) addPayment(p finance.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
}

func (s *memStore) addObligation(o finance.Obligation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obligations[o.Key()] = o
}

func (s *memStore) allocationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.allocations)
}

func (s *memStore) executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs
}

// Execute implements TransactionScope
func (s *memStore) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs++
	if s.failNext > 0 {
		s.failNext--
		return s.failErr
	}

	staged := make(map[uuid.UUID]finance.Allocation, len(s.allocations))
	for id, a := range s.allocations {
		staged[id] = a
	}
	v := &memView{s: s, allocs: staged, held: true}
	if err := fn(v); err != nil {
		return err
	}
	s.allocations = staged
	return nil
}

func (s *memStore) committed() *memView {
	return &memView{s: s}
}

// memView reads either the committed state or a transaction's staged state
type memView struct {
	s      *memStore
	allocs map[uuid.UUID]finance.Allocation
	held   bool
}

func (v *memView) guard() func() {
	if v.held {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *memView) current() map[uuid.UUID]finance.Allocation {
	if v.allocs != nil {
		return v.allocs
	}
	return v.s.allocations
}

func (v *memView) Payments() finance.PaymentRepository       { return memPayments{v} }
func (v *memView) Obligations() finance.ObligationRepository { return memObligations{v} }
func (v *memView) Allocations() finance.AllocationRepository { return memAllocations{v} }

func (v *memView) sumPayment(id uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, a := range v.current() {
		if a.PaymentID == id {
			total = total.Add(a.Amount)
		}
	}
	return total
}

func (v *memView) sumObligation(key finance.ObligationKey) decimal.Decimal {
	total := decimal.Zero
	for _, a := range v.current() {
		if a.ObligationKey() == key {
			total = total.Add(a.Amount)
		}
	}
	return total
}

type memPayments struct{ v *memView }

func (r memPayments) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*finance.Payment, error) {
	defer r.v.guard()()
	p, ok := r.v.s.payments[id]
	if !ok || p.TenantID != tenantID {
		return nil, nil
	}
	p.Allocated = r.v.sumPayment(id)
	return &p, nil
}

func (r memPayments) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*finance.Payment, error) {
	return r.FindByID(ctx, tenantID, id)
}

type memObligations struct{ v *memView }

func (r memObligations) load(tenantID uuid.UUID, key finance.ObligationKey) *finance.Obligation {
	o, ok := r.v.s.obligations[key]
	if !ok || o.TenantID != tenantID {
		return nil
	}
	o.Allocated = r.v.sumObligation(key)
	return &o
}

func (r memObligations) FindByKey(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) (*finance.Obligation, error) {
	defer r.v.guard()()
	return r.load(tenantID, key), nil
}

func (r memObligations) FindByKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) (*finance.Obligation, error) {
	return r.FindByKey(ctx, tenantID, key)
}

func (r memObligations) FindByIDs(ctx context.Context, tenantID uuid.UUID, obligationType finance.ObligationType, ids []uuid.UUID) ([]finance.Obligation, error) {
	defer r.v.guard()()
	var out []finance.Obligation
	for _, id := range ids {
		if o := r.load(tenantID, finance.ObligationKey{ID: id, Type: obligationType}); o != nil {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r memObligations) ListOpen(ctx context.Context, tenantID uuid.UUID, filter finance.OpenObligationFilter) ([]finance.Obligation, error) {
	defer r.v.guard()()
	var out []finance.Obligation
	for key := range r.v.s.obligations {
		o := r.load(tenantID, key)
		if o == nil || o.Type != filter.Type {
			continue
		}
		if filter.CounterpartyID != nil && o.CounterpartyID != *filter.CounterpartyID {
			continue
		}
		if filter.Currency != nil && o.Currency != *filter.Currency {
			continue
		}
		if filter.RequireDueDate && o.DueDate == nil {
			continue
		}
		if !o.Remaining().IsPositive() {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

func (r memObligations) ListOpenForUpdate(ctx context.Context, tenantID uuid.UUID, filter finance.OpenObligationFilter) ([]finance.Obligation, error) {
	return r.ListOpen(ctx, tenantID, filter)
}

func (r memObligations) ListTenantsWithOpenObligations(ctx context.Context) ([]uuid.UUID, error) {
	defer r.v.guard()()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for key, o := range r.v.s.obligations {
		if o.DueDate == nil || seen[o.TenantID] {
			continue
		}
		if o.TotalAmount.Sub(r.v.sumObligation(key)).IsPositive() {
			seen[o.TenantID] = true
			out = append(out, o.TenantID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

type memAllocations struct{ v *memView }

func (r memAllocations) Create(ctx context.Context, a *finance.Allocation) error {
	defer r.v.guard()()
	r.v.current()[a.ID] = *a
	return nil
}

func (r memAllocations) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*finance.Allocation, error) {
	defer r.v.guard()()
	a, ok := r.v.current()[id]
	if !ok || a.TenantID != tenantID {
		return nil, nil
	}
	return &a, nil
}

func (r memAllocations) Delete(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	defer r.v.guard()()
	a, ok := r.v.current()[id]
	if !ok || a.TenantID != tenantID {
		return false, nil
	}
	delete(r.v.current(), id)
	return true, nil
}

func (r memAllocations) list(match func(finance.Allocation) bool) []finance.Allocation {
	var out []finance.Allocation
	for _, a := range r.v.current() {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AllocationDate.Equal(out[j].AllocationDate) {
			return out[i].AllocationDate.Before(out[j].AllocationDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r memAllocations) ListByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]finance.Allocation, error) {
	defer r.v.guard()()
	return r.list(func(a finance.Allocation) bool { return a.TenantID == tenantID && a.PaymentID == paymentID }), nil
}

func (r memAllocations) ListByObligation(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) ([]finance.Allocation, error) {
	defer r.v.guard()()
	return r.list(func(a finance.Allocation) bool { return a.TenantID == tenantID && a.ObligationKey() == key }), nil
}

func (r memAllocations) SumByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (decimal.Decimal, error) {
	defer r.v.guard()()
	return r.v.sumPayment(paymentID), nil
}

func (r memAllocations) SumByObligation(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) (decimal.Decimal, error) {
	defer r.v.guard()()
	return r.v.sumObligation(key), nil
}

// memLoans implements finance.LoanRepository
type memLoans struct{ s *memStore }

func (r memLoans) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*finance.Loan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.loans[id]
	if !ok || l.TenantID != tenantID {
		return nil, nil
	}
	return &l, nil
}

func (r memLoans) ListPayments(ctx context.Context, tenantID, loanID uuid.UUID) ([]finance.LoanPayment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]finance.LoanPayment(nil), r.s.loanPays[loanID]...), nil
}

// staticConverters hands out one converter for every tenant
type staticConverters struct{ c finance.CurrencyConverter }

func (p staticConverters) Converter(context.Context, uuid.UUID) (finance.CurrencyConverter, error) {
	return p.c, nil
}

// fixture helpers

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newPayment(tenantID, counterpartyID uuid.UUID, kind finance.CounterpartyKind, amount string, currency valueobject.Currency) finance.Payment {
	return finance.Payment{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Amount:           dec(amount),
		Currency:         currency,
		CounterpartyKind: kind,
		CounterpartyID:   counterpartyID,
		PaymentDate:      time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC),
		Allocated:        decimal.Zero,
	}
}

func newObligation(tenantID, counterpartyID uuid.UUID, t finance.ObligationType, total string, due *time.Time, currency valueobject.Currency) finance.Obligation {
	return finance.Obligation{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Type:           t,
		Number:         "INV-" + uuid.NewString()[:8],
		CounterpartyID: counterpartyID,
		TotalAmount:    dec(total),
		Currency:       currency,
		DueDate:        due,
		CreatedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Allocated:      decimal.Zero,
	}
}

func newTestAllocationService(store *memStore, opts ...AllocationServiceOption) *AllocationService {
	v := store.committed()
	return NewAllocationService(store, v.Payments(), v.Obligations(), v.Allocations(), opts...)
}
