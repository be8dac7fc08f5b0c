package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func recordingSpan(t *testing.T) (context.Context, *tracetest.SpanRecorder, func()) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	ctx, span := tp.Tracer("test").Start(context.Background(), "gorm.Query")
	return ctx, rec, func() { span.End() }
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestSpanAnnotator_LockedSlowQuery(t *testing.T) {
	ctx, rec, end := recordingSpan(t)
	ann := &spanAnnotator{slow: 10 * time.Millisecond}

	db := &gorm.DB{Statement: &gorm.Statement{
		Context: ctx,
		Table:   "payments",
		Clauses: map[string]clause.Clause{"FOR": {Name: "FOR"}},
	}}
	db.Statement.DB = db
	db.RowsAffected = 1
	ann.before(db)
	db.Statement.Context = context.WithValue(db.Statement.Context, dbCtxKey{}, time.Now().Add(-time.Second))
	ann.after(db)
	end()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "payments", attrs["db.sql.table"].AsString())
	assert.Equal(t, int64(1), attrs["db.rows_affected"].AsInt64())
	assert.True(t, attrs["db.row_lock"].AsBool())
	assert.True(t, attrs["db.slow_query"].AsBool())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestSpanAnnotator_Errors(t *testing.T) {
	ctx, rec, end := recordingSpan(t)
	ann := &spanAnnotator{}

	notFound := &gorm.DB{Statement: &gorm.Statement{Context: ctx}, Error: gorm.ErrRecordNotFound}
	ann.after(notFound)
	failed := &gorm.DB{Statement: &gorm.Statement{Context: ctx, Table: "invoice_payment_allocations"}, Error: errors.New("deadlock detected")}
	ann.after(failed)
	end()

	span := rec.Ended()[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "deadlock detected", span.Status().Description)
	_, slow := attrMap(span.Attributes())["db.slow_query"]
	assert.False(t, slow)
}

func TestInstrumentGorm_Disabled(t *testing.T) {
	assert.NoError(t, InstrumentGorm(&gorm.DB{}, DefaultDBTracingConfig(), zap.NewNop()))
	assert.Equal(t, 200*time.Millisecond, DefaultDBTracingConfig().SlowQueryThresh)
}

type fakePool struct{ stats sql.DBStats }

func (f fakePool) Stats() sql.DBStats { return f.stats }

func TestRegisterDBPoolMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	reg, err := RegisterDBPoolMetrics(meter, fakePool{sql.DBStats{
		MaxOpenConnections: 25,
		InUse:              7,
		Idle:               3,
		WaitCount:          12,
		WaitDuration:       1500 * time.Millisecond,
	}})
	require.NoError(t, err)
	defer func() { _ = reg.Unregister() }()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	conns := byName["db.pool.connections"].Data.(metricdata.Gauge[int64])
	states := map[string]int64{}
	for _, dp := range conns.DataPoints {
		v, _ := dp.Attributes.Value("state")
		states[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"idle": 3, "in_use": 7}, states)
	assert.Equal(t, int64(25), byName["db.pool.connections.max"].Data.(metricdata.Gauge[int64]).DataPoints[0].Value)
	assert.Equal(t, int64(12), byName["db.pool.wait.count"].Data.(metricdata.Sum[int64]).DataPoints[0].Value)
	assert.InDelta(t, 1.5, byName["db.pool.wait.duration"].Data.(metricdata.Sum[float64]).DataPoints[0].Value, 1e-9)
}

func TestRegisterDBPoolMetrics_NilArgs(t *testing.T) {
	_, err := RegisterDBPoolMetrics(nil, fakePool{})
	assert.ErrorIs(t, err, ErrMeterNil)

	meter := sdkmetric.NewMeterProvider().Meter("test")
	_, err = RegisterDBPoolMetrics(meter, nil)
	assert.Error(t, err)
}
