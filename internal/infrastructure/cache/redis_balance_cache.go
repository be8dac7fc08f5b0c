package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key this package writes
const DefaultKeyPrefix = "settlement:"

var errStaleGeneration = errors.New("cache generation changed")

// RedisBalanceCache stores overdue balances in Redis so every instance
// shares one view.
//
// Keys carry a per-tenant generation number. Invalidation bumps the
// generation, which orphans all of the tenant's entries at once; the
// orphans expire on their own TTL.
type RedisBalanceCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisBalanceCache connects to Redis and verifies the connection
func NewRedisBalanceCache(ctx context.Context, opts *redis.Options, keyPrefix string) (*RedisBalanceCache, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisBalanceCacheWithClient(client, keyPrefix), nil
}

// NewRedisBalanceCacheWithClient wraps an existing client
func NewRedisBalanceCacheWithClient(client redis.UniversalClient, keyPrefix string) *RedisBalanceCache {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisBalanceCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisBalanceCache) generationKey(tenantID uuid.UUID) string {
	return c.keyPrefix + "overdue:gen:" + tenantID.String()
}

func (c *RedisBalanceCache) entryKey(tenantID uuid.UUID, generation int64, key string) string {
	return fmt.Sprintf("%soverdue:%s:%d:%s", c.keyPrefix, tenantID, generation, key)
}

// Generation returns the tenant's current cache generation
func (c *RedisBalanceCache) Generation(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return readGeneration(ctx, c.client, c.generationKey(tenantID))
}

func readGeneration(ctx context.Context, cmd redis.Cmdable, key string) (int64, error) {
	gen, err := cmd.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached balances for key, or false on a miss
func (c *RedisBalanceCache) Get(ctx context.Context, tenantID uuid.UUID, key string) ([]finance.CounterpartyBalance, bool, error) {
	gen, err := c.Generation(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, c.entryKey(tenantID, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached balances: %w", err)
	}

	var balances []finance.CounterpartyBalance
	if err := json.Unmarshal(raw, &balances); err != nil {
		// A payload written by an older layout is treated as a miss.
		return nil, false, nil
	}
	return balances, true, nil
}

// Set stores balances under key for ttl. The write is skipped when the
// tenant was invalidated after generation was read; WATCH on the generation
// key makes the check and the write atomic.
func (c *RedisBalanceCache) Set(ctx context.Context, tenantID uuid.UUID, generation int64, key string, balances []finance.CounterpartyBalance, ttl time.Duration) error {
	payload, err := json.Marshal(balances)
	if err != nil {
		return fmt.Errorf("failed to encode balances: %w", err)
	}

	genKey := c.generationKey(tenantID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, genKey)
		if err != nil {
			return err
		}
		if current != generation {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.entryKey(tenantID, generation, key), payload, ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil, errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("failed to cache balances: %w", err)
	}
}

// InvalidateTenant drops every cached entry of the tenant
func (c *RedisBalanceCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	if err := c.client.Incr(ctx, c.generationKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tenant balances: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}

var _ appfinance.BalanceCache = (*RedisBalanceCache)(nil)
