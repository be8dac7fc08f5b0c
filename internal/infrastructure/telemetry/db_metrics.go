package telemetry

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PoolStatsSource is satisfied by *sql.DB.
type PoolStatsSource interface {
	Stats() sql.DBStats
}

// RegisterDBPoolMetrics observes connection pool state on every collection.
// Lock waits on payment and invoice rows show up as in-use connections and
// growing wait counts, so these series back the contention dashboards.
func RegisterDBPoolMetrics(meter metric.Meter, db PoolStatsSource) (metric.Registration, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if db == nil {
		return nil, errors.New("RegisterDBPoolMetrics: stats source cannot be nil")
	}

	conns, err := meter.Int64ObservableGauge("db.pool.connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, err
	}
	maxOpen, err := meter.Int64ObservableGauge("db.pool.connections.max",
		metric.WithDescription("Configured maximum open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, err
	}
	waits, err := meter.Int64ObservableCounter("db.pool.wait.count",
		metric.WithDescription("Total connections waited for"),
		metric.WithUnit("{wait}"))
	if err != nil {
		return nil, err
	}
	waitDur, err := meter.Float64ObservableCounter("db.pool.wait.duration",
		metric.WithDescription("Total time blocked waiting for a connection"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	idle := metric.WithAttributes(attribute.String("state", "idle"))
	inUse := metric.WithAttributes(attribute.String("state", "in_use"))

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := db.Stats()
		o.ObserveInt64(conns, int64(s.Idle), idle)
		o.ObserveInt64(conns, int64(s.InUse), inUse)
		o.ObserveInt64(maxOpen, int64(s.MaxOpenConnections))
		o.ObserveInt64(waits, s.WaitCount)
		o.ObserveFloat64(waitDur, s.WaitDuration.Seconds())
		return nil
	}, conns, maxOpen, waits, waitDur)
}
