package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls GORM span instrumentation.
type DBTracingConfig struct {
	Enabled         bool
	DBName          string
	IncludeSQLVars  bool
	SlowQueryThresh time.Duration
	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider
}

// DefaultDBTracingConfig hides bind variables and flags queries over 200ms.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		DBName:          "settlement",
		SlowQueryThresh: 200 * time.Millisecond,
	}
}

type dbCtxKey struct{}

// InstrumentGorm installs the otelgorm plugin and a callback pair that adds
// table, row count, row-lock and slow-query attributes to each statement span.
func InstrumentGorm(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.IncludeSQLVars {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	ann := &spanAnnotator{slow: cfg.SlowQueryThresh}
	cb := db.Callback()
	regs := []error{
		cb.Create().Before("gorm:create").Register("settlement:trace_before_create", ann.before),
		cb.Create().After("gorm:create").Before("otel:after:create").Register("settlement:trace_after_create", ann.after),
		cb.Query().Before("gorm:query").Register("settlement:trace_before_query", ann.before),
		cb.Query().After("gorm:query").Before("otel:after:query").Register("settlement:trace_after_query", ann.after),
		cb.Update().Before("gorm:update").Register("settlement:trace_before_update", ann.before),
		cb.Update().After("gorm:update").Before("otel:after:update").Register("settlement:trace_after_update", ann.after),
		cb.Delete().Before("gorm:delete").Register("settlement:trace_before_delete", ann.before),
		cb.Delete().After("gorm:delete").Before("otel:after:delete").Register("settlement:trace_after_delete", ann.after),
		cb.Row().Before("gorm:row").Register("settlement:trace_before_row", ann.before),
		cb.Row().After("gorm:row").Before("otel:after:row").Register("settlement:trace_after_row", ann.after),
		cb.Raw().Before("gorm:raw").Register("settlement:trace_before_raw", ann.before),
		cb.Raw().After("gorm:raw").Before("otel:after:raw").Register("settlement:trace_after_raw", ann.after),
	}
	if err := errors.Join(regs...); err != nil {
		return err
	}

	logger.Info("database tracing enabled",
		zap.String("db_name", cfg.DBName),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

type spanAnnotator struct {
	slow time.Duration
}

func (a *spanAnnotator) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, dbCtxKey{}, time.Now())
	}
}

func (a *spanAnnotator) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if _, ok := db.Statement.Clauses["FOR"]; ok {
		span.SetAttributes(attribute.Bool("db.row_lock", true))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}

	start, ok := ctx.Value(dbCtxKey{}).(time.Time)
	if !ok || a.slow <= 0 {
		return
	}
	if elapsed := time.Since(start); elapsed > a.slow {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}
