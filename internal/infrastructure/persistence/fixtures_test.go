package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newSQLiteDB opens an in-memory database with the settlement schema.
// One connection keeps every query on the same in-memory file.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	database, err := Open(sqlite.Open(":memory:"), config.DatabaseConfig{
		Name:         "settlement_test",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, database.DB.AutoMigrate(models.All()...))
	return database.DB
}

// newMockDB opens a postgres-dialect GORM handle over sqlmock
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(t time.Time) *time.Time {
	return &t
}

func seedPayment(t *testing.T, db *gorm.DB, tenantID, customerID uuid.UUID, amount string) *finance.Payment {
	t.Helper()
	p := &finance.Payment{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Amount:           decimal.RequireFromString(amount),
		Currency:         valueobject.TRY,
		CounterpartyKind: finance.CounterpartyKindCustomer,
		CounterpartyID:   customerID,
		PaymentDate:      day(2024, time.March, 1),
	}
	require.NoError(t, NewGormPaymentRepository(db).Save(context.Background(), p))
	return p
}

type invoiceFixture struct {
	number    string
	total     string
	currency  valueobject.Currency
	due       *time.Time
	createdAt time.Time
}

func seedInvoice(t *testing.T, db *gorm.DB, tenantID, counterpartyID uuid.UUID, typ finance.ObligationType, f invoiceFixture) *finance.Obligation {
	t.Helper()
	if f.currency == "" {
		f.currency = valueobject.TRY
	}
	if f.createdAt.IsZero() {
		f.createdAt = day(2024, time.January, 1)
	}
	o := &finance.Obligation{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Type:           typ,
		Number:         f.number,
		CounterpartyID: counterpartyID,
		TotalAmount:    decimal.RequireFromString(f.total),
		Currency:       f.currency,
		DueDate:        f.due,
		CreatedAt:      f.createdAt,
	}
	require.NoError(t, NewGormObligationRepository(db).SaveObligation(context.Background(), o))
	return o
}

func seedAllocation(t *testing.T, db *gorm.DB, p *finance.Payment, o *finance.Obligation, amount string) *finance.Allocation {
	t.Helper()
	payment := *p
	payment.Allocated = decimal.Zero
	obligation := *o
	obligation.Allocated = decimal.Zero
	a, err := finance.NewAllocation(&payment, &obligation, decimal.RequireFromString(amount), finance.AllocationOptions{
		Date: day(2024, time.March, 2),
	})
	require.NoError(t, err)
	require.NoError(t, NewGormAllocationRepository(db).Create(context.Background(), a))
	return a
}
