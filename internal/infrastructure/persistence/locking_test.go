package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormPaymentRepository_FindByIDForUpdate_LocksRow(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	tenantID, paymentID, customerID := uuid.New(), uuid.New(), uuid.New()
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "created_at", "amount", "currency", "customer_id", "supplier_id", "payment_date", "account_transaction_id"}).
		AddRow(paymentID.String(), tenantID.String(), time.Now(), "100.0000", "TRY", customerID.String(), nil, day(2024, time.March, 1), nil)

	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE tenant_id = \$1 AND id = \$2 LIMIT .* FOR UPDATE`).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT SUM\(allocated_amount\) FROM "invoice_payment_allocations" WHERE tenant_id = \$1 AND payment_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("25.5000"))

	payment, err := NewGormPaymentRepository(db).FindByIDForUpdate(context.Background(), tenantID, paymentID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, customerID, payment.CounterpartyID)
	assert.True(t, payment.Allocated.Equal(decimal.RequireFromString("25.5")))
	assert.True(t, payment.Available().Equal(decimal.RequireFromString("74.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormPaymentRepository_FindByID_DoesNotLock(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE tenant_id = \$1 AND id = \$2 LIMIT \$3$`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	payment, err := NewGormPaymentRepository(db).FindByID(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, payment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormObligationRepository_ListOpenForUpdate_LocksInFIFOOrder(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	tenantID, customerID := uuid.New(), uuid.New()
	open, settledMeanwhile := uuid.New(), uuid.New()
	due := day(2024, time.February, 1)

	mock.ExpectQuery(`(?s)SELECT sales_invoices\.id, .*sales_invoices\.customer_id AS counterparty_id FROM "sales_invoices" ` +
		`WHERE sales_invoices\.tenant_id = \$1 AND .*invoice_payment_allocations.* AND sales_invoices\.customer_id = \$3 ` +
		`ORDER BY sales_invoices\.due_date IS NULL, sales_invoices\.due_date ASC, sales_invoices\.created_at ASC, sales_invoices\.id ASC FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "created_at", "invoice_number", "total_amount", "currency", "due_date", "counterparty_id"}).
			AddRow(open.String(), tenantID.String(), day(2024, time.January, 1), "S-1", "100", "TRY", due, customerID.String()).
			AddRow(settledMeanwhile.String(), tenantID.String(), day(2024, time.January, 2), "S-2", "50", "TRY", due, customerID.String()))

	// The second invoice was fully allocated by the writer whose lock we waited on.
	mock.ExpectQuery(`SELECT invoice_id, SUM\(allocated_amount\) AS allocated FROM "invoice_payment_allocations" WHERE tenant_id = \$1 AND invoice_type = \$2 AND invoice_id IN \(\$3,\$4\) GROUP BY "invoice_id"`).
		WillReturnRows(sqlmock.NewRows([]string{"invoice_id", "allocated"}).
			AddRow(open.String(), "40").
			AddRow(settledMeanwhile.String(), "50"))

	list, err := NewGormObligationRepository(db).ListOpenForUpdate(context.Background(), tenantID, finance.OpenObligationFilter{
		Type:           finance.ObligationTypeSales,
		CounterpartyID: &customerID,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, open, list[0].ID)
	assert.True(t, list[0].Remaining().Equal(decimal.NewFromInt(60)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormObligationRepository_LockTimeoutIsConflict(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT .* FROM "purchase_invoices" .* FOR UPDATE`).
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "could not obtain lock on row"})

	_, err := NewGormObligationRepository(db).FindByKeyForUpdate(context.Background(), uuid.New(),
		finance.ObligationKey{ID: uuid.New(), Type: finance.ObligationTypePurchase})
	assert.ErrorIs(t, err, finance.ErrAllocationConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormAllocationRepository_Delete_NoRows(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	mock.ExpectExec(`DELETE FROM "invoice_payment_allocations" WHERE tenant_id = \$1 AND id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := NewGormAllocationRepository(db).Delete(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "55P03"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
			got := translateError(tt.err)
			if tt.conflict {
				assert.ErrorIs(t, got, finance.ErrAllocationConflict)
				var pgErr *pgconn.PgError
				assert.True(t, errors.As(got, &pgErr), "cause is kept")
			} else {
				assert.Same(t, tt.err, got)
			}
		})
	}

	checkViolation := &pgconn.PgError{Code: "23514", ConstraintName: "chk_allocated_amount_positive"}
	got := translateError(fmt.Errorf("insert: %w", checkViolation))
	assert.ErrorIs(t, got, finance.ErrInvalidAmount)
	assert.False(t, IsConflict(checkViolation))

	assert.NoError(t, translateError(nil))
	already := finance.NewAllocationConflictError(nil)
	assert.Same(t, already, translateError(already))
}
