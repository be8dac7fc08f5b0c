package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Database holds the GORM handle and its underlying pool
type Database struct {
	DB    *gorm.DB
	sqlDB *sql.DB
}

// NewDatabase connects to Postgres, applies pool limits and, when enabled,
// registers otelgorm tracing.
func NewDatabase(cfg config.DatabaseConfig, log *zap.Logger) (*Database, error) {
	return Open(postgres.Open(cfg.DSN()), cfg, log)
}

// Open builds a Database on any GORM dialector. Tests use it with sqlite and sqlmock.
func Open(dialector gorm.Dialector, cfg config.DatabaseConfig, log *zap.Logger) (*Database, error) {
	gormLogger := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.LogLevel),
		logger.WithSlowThreshold(cfg.SlowThreshold))

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	tracing := telemetry.DefaultDBTracingConfig()
	tracing.Enabled = cfg.Tracing
	tracing.DBName = cfg.Name
	if cfg.SlowThreshold > 0 {
		tracing.SlowQueryThresh = cfg.SlowThreshold
	}
	if err := telemetry.InstrumentGorm(db, tracing, log); err != nil {
		return nil, fmt.Errorf("failed to register database tracing: %w", err)
	}

	return &Database{DB: db, sqlDB: sqlDB}, nil
}

// SQL returns the underlying pool, for pool metrics and migrations
func (d *Database) SQL() *sql.DB {
	return d.sqlDB
}

// Ping checks the connection within ctx
func (d *Database) Ping(ctx context.Context) error {
	return d.sqlDB.PingContext(ctx)
}

// Close closes the pool
func (d *Database) Close() error {
	return d.sqlDB.Close()
}
