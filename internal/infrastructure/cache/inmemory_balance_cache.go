package cache

import (
	"context"
	"sync"
	"time"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
)

type balanceEntry struct {
	balances  []finance.CounterpartyBalance
	expiresAt time.Time
}

// InMemoryBalanceCache keeps overdue balances in process memory.
// Suitable for single-instance deployments and tests; instances do not
// see each other's invalidations.
type InMemoryBalanceCache struct {
	mu          sync.RWMutex
	tenants     map[uuid.UUID]map[string]balanceEntry
	generations map[uuid.UUID]int64
	now         func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryBalanceCache creates the cache and starts a sweeper that
// drops expired entries every interval.
func NewInMemoryBalanceCache(interval time.Duration) *InMemoryBalanceCache {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	c := &InMemoryBalanceCache{
		tenants:     make(map[uuid.UUID]map[string]balanceEntry),
		generations: make(map[uuid.UUID]int64),
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.cleanupLoop(interval)
	return c
}

// Generation returns the number of times the tenant was invalidated
func (c *InMemoryBalanceCache) Generation(_ context.Context, tenantID uuid.UUID) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[tenantID], nil
}

// Get returns a copy of the cached balances for key
func (c *InMemoryBalanceCache) Get(_ context.Context, tenantID uuid.UUID, key string) ([]finance.CounterpartyBalance, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.tenants[tenantID][key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	out := make([]finance.CounterpartyBalance, len(e.balances))
	copy(out, e.balances)
	return out, true, nil
}

// Set stores a copy of balances under key for ttl, unless the tenant was
// invalidated after generation was read
func (c *InMemoryBalanceCache) Set(_ context.Context, tenantID uuid.UUID, generation int64, key string, balances []finance.CounterpartyBalance, ttl time.Duration) error {
	stored := make([]finance.CounterpartyBalance, len(balances))
	copy(stored, balances)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[tenantID] != generation {
		return nil
	}
	entries, ok := c.tenants[tenantID]
	if !ok {
		entries = make(map[string]balanceEntry)
		c.tenants[tenantID] = entries
	}
	entries[key] = balanceEntry{balances: stored, expiresAt: c.now().Add(ttl)}
	return nil
}

// InvalidateTenant drops every cached entry of the tenant
func (c *InMemoryBalanceCache) InvalidateTenant(_ context.Context, tenantID uuid.UUID) error {
	c.mu.Lock()
	delete(c.tenants, tenantID)
	c.generations[tenantID]++
	c.mu.Unlock()
	return nil
}

// Close stops the sweeper. Safe to call more than once.
func (c *InMemoryBalanceCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemoryBalanceCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryBalanceCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for tenantID, entries := range c.tenants {
		for key, e := range entries {
			if !now.Before(e.expiresAt) {
				delete(entries, key)
			}
		}
		if len(entries) == 0 {
			delete(c.tenants, tenantID)
		}
	}
}

// Size returns the number of live and expired entries held
func (c *InMemoryBalanceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, entries := range c.tenants {
		n += len(entries)
	}
	return n
}

var _ appfinance.BalanceCache = (*InMemoryBalanceCache)(nil)
