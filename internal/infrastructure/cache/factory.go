package cache

import (
	"context"
	"fmt"
	"io"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BalanceCacheCloser is a BalanceCache that owns resources
type BalanceCacheCloser interface {
	appfinance.BalanceCache
	io.Closer
}

// Factory builds the overdue balance cache from configuration
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to
// the in-memory cache. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new Factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns a Redis cache when Redis is enabled and reachable, and the
// in-memory cache otherwise.
func (f *Factory) Create(ctx context.Context) (BalanceCacheCloser, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("using in-memory overdue balance cache")
		return NewInMemoryBalanceCache(0), nil
	}

	store, err := NewRedisBalanceCache(ctx, &redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, f.redisConfig.KeyPrefix)
	if err == nil {
		f.logger.Info("using Redis overdue balance cache", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for balance cache but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory balance cache; "+
		"invalidations will not reach other instances",
		zap.Error(err),
	)
	return NewInMemoryBalanceCache(0), nil
}
