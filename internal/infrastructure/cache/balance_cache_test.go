package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleBalances() []finance.CounterpartyBalance {
	oldest := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
	return []finance.CounterpartyBalance{{
		CounterpartyKind:  finance.CounterpartyKindCustomer,
		CounterpartyID:    uuid.New(),
		OverdueBalance:    decimal.RequireFromString("1250.50"),
		UpcomingBalance:   decimal.NewFromInt(300),
		TotalBalance:      decimal.RequireFromString("1550.50"),
		OldestOverdueDate: &oldest,
		OverdueCount:      2,
		UpcomingCount:     1,
		Currency:          valueobject.TRY,
	}}
}

func newMiniredisCache(t *testing.T) (*RedisBalanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisBalanceCache(context.Background(), &redis.Options{Addr: mr.Addr()}, "test:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

// runBalanceCacheContract exercises the behaviour both implementations share
func runBalanceCacheContract(t *testing.T, c appfinance.BalanceCache, expire func(time.Duration)) {
	ctx := context.Background()
	tenantA, tenantB := uuid.New(), uuid.New()
	balances := sampleBalances()

	_, ok, err := c.Get(ctx, tenantA, "all:all:2024-03-01")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, tenantA, 0, "all:all:2024-03-01", balances, time.Minute))
	require.NoError(t, c.Set(ctx, tenantB, 0, "all:all:2024-03-01", balances, time.Minute))

	got, ok, err := c.Get(ctx, tenantA, "all:all:2024-03-01")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, balances[0].CounterpartyID, got[0].CounterpartyID)
	assert.True(t, got[0].OverdueBalance.Equal(balances[0].OverdueBalance))
	require.NotNil(t, got[0].OldestOverdueDate)
	assert.True(t, got[0].OldestOverdueDate.Equal(*balances[0].OldestOverdueDate))

	require.NoError(t, c.InvalidateTenant(ctx, tenantA))
	_, ok, err = c.Get(ctx, tenantA, "all:all:2024-03-01")
	require.NoError(t, err)
	assert.False(t, ok, "invalidated tenant misses")

	_, ok, err = c.Get(ctx, tenantB, "all:all:2024-03-01")
	require.NoError(t, err)
	assert.True(t, ok, "other tenants keep their entries")

	gen, err := c.Generation(ctx, tenantA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	require.NoError(t, c.Set(ctx, tenantA, gen, "customer:all:2024-03-01", balances, time.Second))
	expire(2 * time.Second)
	_, ok, err = c.Get(ctx, tenantA, "customer:all:2024-03-01")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries miss")
}

// runStaleGenerationContract checks that a write computed before an
// invalidation is dropped
func runStaleGenerationContract(t *testing.T, c appfinance.BalanceCache) {
	ctx := context.Background()
	tenantID := uuid.New()

	gen, err := c.Generation(ctx, tenantID)
	require.NoError(t, err)

	require.NoError(t, c.InvalidateTenant(ctx, tenantID))
	require.NoError(t, c.Set(ctx, tenantID, gen, "all:all:2024-03-01", sampleBalances(), time.Minute))

	_, ok, err := c.Get(ctx, tenantID, "all:all:2024-03-01")
	require.NoError(t, err)
	assert.False(t, ok, "write from before the invalidation is discarded")

	gen, err = c.Generation(ctx, tenantID)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, tenantID, gen, "all:all:2024-03-01", sampleBalances(), time.Minute))
	_, ok, err = c.Get(ctx, tenantID, "all:all:2024-03-01")
	require.NoError(t, err)
	assert.True(t, ok, "write at the current generation is kept")
}

func TestRedisBalanceCache_StaleGeneration(t *testing.T) {
	c, _ := newMiniredisCache(t)
	runStaleGenerationContract(t, c)
}

func TestInMemoryBalanceCache_StaleGeneration(t *testing.T) {
	c := NewInMemoryBalanceCache(time.Hour)
	defer c.Close()
	runStaleGenerationContract(t, c)
}

func TestRedisBalanceCache(t *testing.T) {
	c, mr := newMiniredisCache(t)
	runBalanceCacheContract(t, c, mr.FastForward)
}

func TestRedisBalanceCache_CorruptPayloadIsAMiss(t *testing.T) {
	c, mr := newMiniredisCache(t)
	tenantID := uuid.New()
	require.NoError(t, mr.Set("test:overdue:"+tenantID.String()+":0:k", "not json"))

	_, ok, err := c.Get(context.Background(), tenantID, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBalanceCache_ConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisBalanceCache(context.Background(), &redis.Options{Addr: addr}, "")
	assert.Error(t, err)
}

func TestInMemoryBalanceCache(t *testing.T) {
	c := NewInMemoryBalanceCache(time.Hour)
	defer c.Close()

	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	runBalanceCacheContract(t, c, func(d time.Duration) { now = now.Add(d) })

	c.cleanup()
	assert.Equal(t, 1, c.Size(), "only the other tenant's entry survives the sweep")
	assert.NoError(t, c.Close())
}

func TestInMemoryBalanceCache_ReturnsCopies(t *testing.T) {
	c := NewInMemoryBalanceCache(time.Hour)
	defer c.Close()
	ctx := context.Background()
	tenantID := uuid.New()

	balances := sampleBalances()
	require.NoError(t, c.Set(ctx, tenantID, 0, "k", balances, time.Minute))
	balances[0].OverdueCount = 99

	got, ok, err := c.Get(ctx, tenantID, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got[0].OverdueCount)
}

func TestFactory_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("redis disabled uses memory", func(t *testing.T) {
		c, err := NewFactory(config.RedisConfig{}).Create(ctx)
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryBalanceCache{}, c)
	})

	t.Run("reachable redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.RedisConfig{Enabled: true, Host: mr.Host(), Port: portOf(t, mr), KeyPrefix: "x:"}
		c, err := NewFactory(cfg).Create(ctx)
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &RedisBalanceCache{}, c)
	})

	t.Run("unreachable redis falls back with a warning", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		c, err := NewFactory(cfg, WithLogger(zap.New(core))).Create(ctx)
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryBalanceCache{}, c)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("unreachable redis without fallback fails", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		_, err := NewFactory(cfg, WithInMemoryFallback(false)).Create(ctx)
		assert.Error(t, err)
	})
}

func portOf(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	p, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return p
}
