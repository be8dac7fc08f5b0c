package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// invoiceTable describes where one obligation variant is stored.
type invoiceTable struct {
	obligationType     finance.ObligationType
	name               string
	counterpartyColumn string
}

var invoiceTables = map[finance.ObligationType]invoiceTable{
	finance.ObligationTypeSales:    {finance.ObligationTypeSales, "sales_invoices", "customer_id"},
	finance.ObligationTypePurchase: {finance.ObligationTypePurchase, "purchase_invoices", "supplier_id"},
}

func tableFor(t finance.ObligationType) (invoiceTable, error) {
	tbl, ok := invoiceTables[t]
	if !ok {
		return invoiceTable{}, finance.ErrInvalidObligationType.WithDetails(map[string]any{"obligation_type": t.String()})
	}
	return tbl, nil
}

func (t invoiceTable) columns() string {
	return fmt.Sprintf("%[1]s.id, %[1]s.tenant_id, %[1]s.created_at, %[1]s.invoice_number, %[1]s.total_amount, %[1]s.currency, %[1]s.due_date, %[1]s.%[2]s AS counterparty_id",
		t.name, t.counterpartyColumn)
}

// openCondition keeps invoices whose committed allocations are below the total.
func (t invoiceTable) openCondition() (string, finance.ObligationType) {
	return fmt.Sprintf(`%[1]s.total_amount > COALESCE((
		SELECT SUM(a.allocated_amount) FROM invoice_payment_allocations a
		WHERE a.tenant_id = %[1]s.tenant_id AND a.invoice_id = %[1]s.id AND a.invoice_type = ?), 0)`, t.name), t.obligationType
}

// fifoOrder is due date ascending with undated rows last, then creation time, then id.
func (t invoiceTable) fifoOrder() string {
	return fmt.Sprintf("%[1]s.due_date IS NULL, %[1]s.due_date ASC, %[1]s.created_at ASC, %[1]s.id ASC", t.name)
}

// GormObligationRepository reads sales and purchase invoices as obligations
type GormObligationRepository struct {
	db *gorm.DB
}

// NewGormObligationRepository creates a new GormObligationRepository
func NewGormObligationRepository(db *gorm.DB) *GormObligationRepository {
	return &GormObligationRepository{db: db}
}

// FindByKey loads one obligation with its allocated sum
func (r *GormObligationRepository) FindByKey(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) (*finance.Obligation, error) {
	return r.findByKey(ctx, tenantID, key, false)
}

// FindByKeyForUpdate locks the invoice row before summing its allocations
func (r *GormObligationRepository) FindByKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) (*finance.Obligation, error) {
	return r.findByKey(ctx, tenantID, key, true)
}

func (r *GormObligationRepository) findByKey(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey, lock bool) (*finance.Obligation, error) {
	tbl, err := tableFor(key.Type)
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).
		Table(tbl.name).
		Select(tbl.columns()).
		Where(tbl.name+".tenant_id = ? AND "+tbl.name+".id = ?", tenantID, key.ID)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row models.InvoiceRow
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load %s obligation %s: %w", key.Type, key.ID, translateError(err))
	}

	o := row.ToDomain(key.Type)
	allocated, err := NewGormAllocationRepository(r.db).SumByObligation(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	o.Allocated = allocated
	return &o, nil
}

// FindByIDs loads many obligations of one type; unknown ids are omitted
func (r *GormObligationRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, obligationType finance.ObligationType, ids []uuid.UUID) ([]finance.Obligation, error) {
	if len(ids) == 0 {
		return []finance.Obligation{}, nil
	}
	tbl, err := tableFor(obligationType)
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).
		Table(tbl.name).
		Select(tbl.columns()).
		Where(tbl.name+".tenant_id = ? AND "+tbl.name+".id IN ?", tenantID, ids)
	return r.load(ctx, tenantID, tbl, q, false)
}

// ListOpen returns obligations with a positive remaining amount in FIFO order
func (r *GormObligationRepository) ListOpen(ctx context.Context, tenantID uuid.UUID, filter finance.OpenObligationFilter) ([]finance.Obligation, error) {
	return r.listOpen(ctx, tenantID, filter, false)
}

// ListOpenForUpdate locks the open obligations in FIFO order. Sums are read
// after the locks are held, so rows settled by a writer we waited on drop out.
func (r *GormObligationRepository) ListOpenForUpdate(ctx context.Context, tenantID uuid.UUID, filter finance.OpenObligationFilter) ([]finance.Obligation, error) {
	return r.listOpen(ctx, tenantID, filter, true)
}

func (r *GormObligationRepository) listOpen(ctx context.Context, tenantID uuid.UUID, filter finance.OpenObligationFilter, lock bool) ([]finance.Obligation, error) {
	tbl, err := tableFor(filter.Type)
	if err != nil {
		return nil, err
	}
	cond, condArg := tbl.openCondition()
	q := r.db.WithContext(ctx).
		Table(tbl.name).
		Select(tbl.columns()).
		Where(tbl.name+".tenant_id = ?", tenantID).
		Where(cond, condArg)
	if filter.CounterpartyID != nil {
		q = q.Where(tbl.name+"."+tbl.counterpartyColumn+" = ?", *filter.CounterpartyID)
	}
	if filter.Currency != nil {
		q = q.Where(tbl.name+".currency = ?", string(*filter.Currency))
	}
	if filter.RequireDueDate {
		q = q.Where(tbl.name+".due_date IS NOT NULL")
	}
	q = q.Order(tbl.fifoOrder())
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.load(ctx, tenantID, tbl, q, true)
}

// load runs q, attaches allocated sums and, when openOnly, drops settled rows.
func (r *GormObligationRepository) load(ctx context.Context, tenantID uuid.UUID, tbl invoiceTable, q *gorm.DB, openOnly bool) ([]finance.Obligation, error) {
	var rows []models.InvoiceRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s obligations: %w", tbl.obligationType, translateError(err))
	}

	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	sums, err := NewGormAllocationRepository(r.db).sumByInvoices(ctx, tenantID, tbl.obligationType, ids)
	if err != nil {
		return nil, err
	}

	out := make([]finance.Obligation, 0, len(rows))
	for i := range rows {
		o := rows[i].ToDomain(tbl.obligationType)
		if s, ok := sums[o.ID]; ok {
			o.Allocated = s
		}
		if openOnly && !o.Remaining().IsPositive() {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// ListTenantsWithOpenObligations returns tenants holding any open dated invoice
func (r *GormObligationRepository) ListTenantsWithOpenObligations(ctx context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	for _, t := range finance.AllocatableObligationTypes() {
		tbl := invoiceTables[t]
		cond, condArg := tbl.openCondition()
		var tenants []uuid.UUID
		err := r.db.WithContext(ctx).
			Table(tbl.name).
			Distinct(tbl.name+".tenant_id").
			Where(tbl.name+".due_date IS NOT NULL").
			Where(cond, condArg).
			Pluck(tbl.name+".tenant_id", &tenants).Error
		if err != nil {
			return nil, fmt.Errorf("failed to list tenants with open %s obligations: %w", t, err)
		}
		for _, id := range tenants {
			seen[id] = struct{}{}
		}
	}

	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// SaveObligation writes an invoice row. Invoices are owned by the invoicing
// module; this exists for imports and fixtures.
func (r *GormObligationRepository) SaveObligation(ctx context.Context, o *finance.Obligation) error {
	var model any
	switch o.Type {
	case finance.ObligationTypeSales:
		m := &models.SalesInvoiceModel{}
		m.FromDomain(o)
		model = m
	case finance.ObligationTypePurchase:
		m := &models.PurchaseInvoiceModel{}
		m.FromDomain(o)
		model = m
	default:
		return finance.ErrInvalidObligationType.WithDetails(map[string]any{"obligation_type": o.Type.String()})
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save %s obligation: %w", o.Type, err)
	}
	return nil
}

var _ finance.ObligationRepository = (*GormObligationRepository)(nil)
