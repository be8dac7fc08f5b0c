package finance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBalanceCache is a mock implementation of BalanceCache
type MockBalanceCache struct {
	mock.Mock
}

func (m *MockBalanceCache) Generation(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalanceCache) Get(ctx context.Context, tenantID uuid.UUID, key string) ([]finance.CounterpartyBalance, bool, error) {
	args := m.Called(ctx, tenantID, key)
	var balances []finance.CounterpartyBalance
	if v := args.Get(0); v != nil {
		balances = v.([]finance.CounterpartyBalance)
	}
	return balances, args.Bool(1), args.Error(2)
}

func (m *MockBalanceCache) Set(ctx context.Context, tenantID uuid.UUID, generation int64, key string, balances []finance.CounterpartyBalance, ttl time.Duration) error {
	args := m.Called(ctx, tenantID, generation, key, balances, ttl)
	return args.Error(0)
}

func (m *MockBalanceCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

// MockReportArchive is a mock implementation of ReportArchive
type MockReportArchive struct {
	mock.Mock
}

func (m *MockReportArchive) Put(ctx context.Context, key, contentType string, body []byte) error {
	args := m.Called(ctx, key, contentType, body)
	return args.Error(0)
}

type csvRenderer struct{}

func (csvRenderer) RenderOverdue(w io.Writer, balances []CounterpartyBalanceResponse, asOf time.Time) error {
	for _, b := range balances {
		if _, err := fmt.Fprintf(w, "%s,%s\n", b.CounterpartyID, b.OverdueBalance.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}

func (csvRenderer) ContentType() string { return "text/csv" }
func (csvRenderer) Extension() string   { return ".csv" }

var balanceToday = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type balanceFixture struct {
	store    *memStore
	tenantID uuid.UUID
	rates    *finance.RateTable
}

func newBalanceFixture() *balanceFixture {
	return &balanceFixture{
		store:    newMemStore(),
		tenantID: uuid.New(),
		rates: finance.NewRateTable(valueobject.BaseCurrency, []finance.ExchangeRate{
			{Currency: valueobject.USD, Selling: dec("30")},
			{Currency: valueobject.EUR, Selling: dec("35")},
		}),
	}
}

func (f *balanceFixture) service(opts ...BalanceServiceOption) *BalanceService {
	opts = append([]BalanceServiceOption{WithBalanceClock(func() time.Time { return balanceToday })}, opts...)
	return NewBalanceService(f.store.committed().Obligations(), staticConverters{f.rates}, opts...)
}

func TestGetOverdueBalances_BucketsAndNormalizes(t *testing.T) {
	f := newBalanceFixture()
	customer := uuid.New()
	f.store.addObligation(newObligation(f.tenantID, customer, finance.ObligationTypeSales, "100", day(2024, 3, 14), valueobject.USD))
	f.store.addObligation(newObligation(f.tenantID, customer, finance.ObligationTypeSales, "50", day(2024, 3, 22), valueobject.USD))
	// undated obligations never count towards exposure
	f.store.addObligation(newObligation(f.tenantID, customer, finance.ObligationTypeSales, "999", nil, valueobject.USD))

	balances, err := f.service().GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{CounterpartyKind: finance.CounterpartyKindCustomer})
	require.NoError(t, err)
	require.Len(t, balances, 1)

	b := balances[0]
	assert.Equal(t, customer, b.CounterpartyID)
	assert.True(t, b.OverdueBalance.Equal(dec("3000")), "got %s", b.OverdueBalance)
	assert.True(t, b.UpcomingBalance.Equal(dec("1500")), "got %s", b.UpcomingBalance)
	assert.True(t, b.TotalBalance.Equal(dec("4500")))
	require.NotNil(t, b.OldestOverdueDate)
	assert.Equal(t, "2024-03-14", b.OldestOverdueDate.Format("2006-01-02"))
	assert.Equal(t, "TRY", b.Currency)
}

func TestGetOverdueBalances_WorstFirstAndScoped(t *testing.T) {
	f := newBalanceFixture()
	small, large, supplier := uuid.New(), uuid.New(), uuid.New()
	f.store.addObligation(newObligation(f.tenantID, small, finance.ObligationTypeSales, "10", day(2024, 1, 1), valueobject.TRY))
	f.store.addObligation(newObligation(f.tenantID, large, finance.ObligationTypeSales, "900", day(2024, 2, 1), valueobject.TRY))
	f.store.addObligation(newObligation(f.tenantID, supplier, finance.ObligationTypePurchase, "500", day(2024, 2, 1), valueobject.TRY))

	svc := f.service()

	all, err := svc.GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, large, all[0].CounterpartyID)
	assert.Equal(t, supplier, all[1].CounterpartyID)
	assert.Equal(t, "supplier", all[1].CounterpartyKind)
	assert.Equal(t, small, all[2].CounterpartyID)

	customers, err := svc.GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{CounterpartyKind: finance.CounterpartyKindCustomer})
	require.NoError(t, err)
	assert.Len(t, customers, 2)

	one, err := svc.GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{CounterpartyID: &small})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, small, one[0].CounterpartyID)

	_, err = svc.GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{CounterpartyKind: "partner"})
	requireDomainCode(t, err, finance.CodeInvalidObligationType)
}

func TestGetOverdueBalances_MissingRate(t *testing.T) {
	f := newBalanceFixture()
	f.store.addObligation(newObligation(f.tenantID, uuid.New(), finance.ObligationTypeSales, "10", day(2024, 1, 1), valueobject.GBP))

	_, err := f.service().GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{})
	requireDomainCode(t, err, finance.CodeCurrencyRateMissing)
}

func TestGetOverdueBalances_ReadThroughCache(t *testing.T) {
	f := newBalanceFixture()
	customer := uuid.New()
	f.store.addObligation(newObligation(f.tenantID, customer, finance.ObligationTypeSales, "10", day(2024, 1, 1), valueobject.TRY))

	t.Run("miss populates", func(t *testing.T) {
		cache := new(MockBalanceCache)
		cache.On("Generation", mock.Anything, f.tenantID).Return(int64(7), nil)
		cache.On("Get", mock.Anything, f.tenantID, "all:all:2024-03-15").Return(nil, false, nil)
		cache.On("Set", mock.Anything, f.tenantID, int64(7), "all:all:2024-03-15", mock.AnythingOfType("[]finance.CounterpartyBalance"), time.Minute).Return(nil)

		balances, err := f.service(WithBalanceCache(cache, time.Minute)).GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{})
		require.NoError(t, err)
		assert.Len(t, balances, 1)
		cache.AssertExpectations(t)
	})

	t.Run("hit skips the ledger", func(t *testing.T) {
		cached := []finance.CounterpartyBalance{{
			CounterpartyKind: finance.CounterpartyKindCustomer,
			CounterpartyID:   uuid.New(),
			OverdueBalance:   dec("42"),
			Currency:         valueobject.TRY,
		}}
		cache := new(MockBalanceCache)
		cache.On("Generation", mock.Anything, f.tenantID).Return(int64(0), nil)
		cache.On("Get", mock.Anything, f.tenantID, "customer:all:2024-03-15").Return(cached, true, nil)

		balances, err := f.service(WithBalanceCache(cache, 0)).GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{CounterpartyKind: finance.CounterpartyKindCustomer})
		require.NoError(t, err)
		require.Len(t, balances, 1)
		assert.True(t, balances[0].OverdueBalance.Equal(dec("42")))
		cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache errors degrade to the ledger", func(t *testing.T) {
		cache := new(MockBalanceCache)
		cache.On("Generation", mock.Anything, f.tenantID).Return(int64(0), nil)
		cache.On("Get", mock.Anything, f.tenantID, mock.Anything).Return(nil, false, errors.New("redis down"))

		balances, err := f.service(WithBalanceCache(cache, 0)).GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{})
		require.NoError(t, err)
		assert.Len(t, balances, 1)
		cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unreadable generation skips the cache", func(t *testing.T) {
		cache := new(MockBalanceCache)
		cache.On("Generation", mock.Anything, f.tenantID).Return(int64(0), errors.New("redis down"))

		balances, err := f.service(WithBalanceCache(cache, 0)).GetOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{})
		require.NoError(t, err)
		assert.Len(t, balances, 1)
		cache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestExportOverdueBalances(t *testing.T) {
	f := newBalanceFixture()
	customer := uuid.New()
	f.store.addObligation(newObligation(f.tenantID, customer, finance.ObligationTypeSales, "12.5", day(2024, 1, 1), valueobject.TRY))

	t.Run("renders and archives", func(t *testing.T) {
		archive := new(MockReportArchive)
		expectedKey := fmt.Sprintf("reports/%s/overdue-2024-03-15.csv", f.tenantID)
		archive.On("Put", mock.Anything, expectedKey, "text/csv", mock.Anything).Return(nil)

		svc := f.service(WithReportRenderer(csvRenderer{}), WithReportArchive(archive))
		report, err := svc.ExportOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{}, true)
		require.NoError(t, err)
		assert.Equal(t, "overdue-2024-03-15.csv", report.FileName)
		assert.Equal(t, "text/csv", report.ContentType)
		assert.Equal(t, customer.String()+",12.50\n", string(report.Body))
		assert.Equal(t, expectedKey, report.ArchiveKey)
		archive.AssertExpectations(t)
	})

	t.Run("archive failure is reported", func(t *testing.T) {
		archive := new(MockReportArchive)
		archive.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket missing"))

		svc := f.service(WithReportRenderer(csvRenderer{}), WithReportArchive(archive))
		_, err := svc.ExportOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{}, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket missing")
	})

	t.Run("no archive requested", func(t *testing.T) {
		archive := new(MockReportArchive)
		svc := f.service(WithReportRenderer(csvRenderer{}), WithReportArchive(archive))
		report, err := svc.ExportOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{}, false)
		require.NoError(t, err)
		assert.Empty(t, report.ArchiveKey)
		archive.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("renderer not configured", func(t *testing.T) {
		_, err := f.service().ExportOverdueBalances(context.Background(), f.tenantID, OverdueBalanceScope{}, false)
		require.Error(t, err)
	})
}

func TestBalanceCacheInvalidator(t *testing.T) {
	f := newBalanceFixture()
	cache := new(MockBalanceCache)
	cache.On("InvalidateTenant", mock.Anything, f.tenantID).Return(nil).Once()

	invalidator := NewBalanceCacheInvalidator(f.service(WithBalanceCache(cache, 0)), nil)
	assert.ElementsMatch(t, []string{finance.EventTypeAllocationCreated, finance.EventTypeAllocationRemoved}, invalidator.EventTypes())

	payment := newPayment(f.tenantID, uuid.New(), finance.CounterpartyKindCustomer, "10", valueobject.TRY)
	obligation := newObligation(f.tenantID, payment.CounterpartyID, finance.ObligationTypeSales, "10", day(2024, 1, 1), valueobject.TRY)
	allocation, err := finance.NewAllocation(&payment, &obligation, dec("10"), finance.AllocationOptions{})
	require.NoError(t, err)

	require.NoError(t, invalidator.Handle(context.Background(), allocation.GetDomainEvents()[0]))
	cache.AssertExpectations(t)
}

// generationCache is a minimal BalanceCache with generation semantics
type generationCache struct {
	mu          sync.Mutex
	generations map[uuid.UUID]int64
	entries     map[string][]finance.CounterpartyBalance
}

func newGenerationCache() *generationCache {
	return &generationCache{generations: map[uuid.UUID]int64{}, entries: map[string][]finance.CounterpartyBalance{}}
}

func (c *generationCache) Generation(_ context.Context, tenantID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[tenantID], nil
}

func (c *generationCache) Get(_ context.Context, tenantID uuid.UUID, key string) ([]finance.CounterpartyBalance, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[fmt.Sprintf("%s:%d:%s", tenantID, c.generations[tenantID], key)]
	return b, ok, nil
}

func (c *generationCache) Set(_ context.Context, tenantID uuid.UUID, generation int64, key string, balances []finance.CounterpartyBalance, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[tenantID] != generation {
		return nil
	}
	c.entries[fmt.Sprintf("%s:%d:%s", tenantID, generation, key)] = balances
	return nil
}

func (c *generationCache) InvalidateTenant(_ context.Context, tenantID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[tenantID]++
	return nil
}

// interleavedObligations runs during once, right after the first ListOpen
// has taken its snapshot
type interleavedObligations struct {
	finance.ObligationRepository
	once   sync.Once
	during func()
}

func (r *interleavedObligations) ListOpen(ctx context.Context, tenantID uuid.UUID, filter finance.OpenObligationFilter) ([]finance.Obligation, error) {
	rows, err := r.ObligationRepository.ListOpen(ctx, tenantID, filter)
	r.once.Do(r.during)
	return rows, err
}

func TestGetOverdueBalances_AllocationDuringLoadIsNotCached(t *testing.T) {
	f := newBalanceFixture()
	customer := uuid.New()
	payment := newPayment(f.tenantID, customer, finance.CounterpartyKindCustomer, "100", valueobject.TRY)
	invoice := newObligation(f.tenantID, customer, finance.ObligationTypeSales, "100", day(2024, 1, 1), valueobject.TRY)
	f.store.addPayment(payment)
	f.store.addObligation(invoice)

	ctx := context.Background()
	cache := newGenerationCache()
	allocations := newTestAllocationService(f.store)
	obligations := &interleavedObligations{ObligationRepository: f.store.committed().Obligations()}
	svc := NewBalanceService(obligations, staticConverters{f.rates},
		WithBalanceClock(func() time.Time { return balanceToday }),
		WithBalanceCache(cache, time.Minute),
	)

	obligations.during = func() {
		_, err := allocations.AllocateManual(ctx, f.tenantID, AllocateManualRequest{
			PaymentID:      payment.ID,
			ObligationID:   invoice.ID,
			ObligationType: invoice.Type,
			Amount:         dec("100"),
		})
		require.NoError(t, err)
		require.NoError(t, svc.InvalidateTenant(ctx, f.tenantID))
	}

	first, err := svc.GetOverdueBalances(ctx, f.tenantID, OverdueBalanceScope{CounterpartyKind: finance.CounterpartyKindCustomer})
	require.NoError(t, err)
	require.Len(t, first, 1, "the read started before the allocation committed")

	second, err := svc.GetOverdueBalances(ctx, f.tenantID, OverdueBalanceScope{CounterpartyKind: finance.CounterpartyKindCustomer})
	require.NoError(t, err)
	assert.Empty(t, second, "the pre-allocation snapshot must not be served after invalidation")
}
