// Package export renders overdue balance reports into spreadsheet files.
package export

import (
	"fmt"
	"io"
	"time"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/xuri/excelize/v2"
)

const (
	overdueSheet = "Overdue"
	dateLayout   = "2006-01-02"
)

var overdueHeader = []any{
	"Counterparty Kind",
	"Counterparty ID",
	"Overdue Balance",
	"Upcoming Balance",
	"Total Balance",
	"Oldest Overdue Date",
	"Overdue Count",
	"Upcoming Count",
	"Currency",
}

// OverdueWorkbook renders overdue balances as an XLSX workbook with one row
// per counterparty, in the order the aggregator returned them.
type OverdueWorkbook struct{}

// NewOverdueWorkbook creates the XLSX renderer
func NewOverdueWorkbook() *OverdueWorkbook {
	return &OverdueWorkbook{}
}

// ContentType returns the XLSX MIME type
func (OverdueWorkbook) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension returns the file extension including the dot
func (OverdueWorkbook) Extension() string {
	return ".xlsx"
}

// RenderOverdue writes the workbook to w. Amounts are written as numbers so
// the sheet can be summed; the as-of date goes into the first row.
func (OverdueWorkbook) RenderOverdue(w io.Writer, balances []appfinance.CounterpartyBalanceResponse, asOf time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), overdueSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetRow(overdueSheet, "A1", &[]any{"As of", asOf.Format(dateLayout)}); err != nil {
		return err
	}
	if err := f.SetSheetRow(overdueSheet, "A3", &overdueHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(overdueSheet, "A3", "I3", bold); err != nil {
		return err
	}

	for i, b := range balances {
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return err
		}
		oldest := ""
		if b.OldestOverdueDate != nil {
			oldest = b.OldestOverdueDate.Format(dateLayout)
		}
		row := []any{
			b.CounterpartyKind,
			b.CounterpartyID.String(),
			b.OverdueBalance.InexactFloat64(),
			b.UpcomingBalance.InexactFloat64(),
			b.TotalBalance.InexactFloat64(),
			oldest,
			b.OverdueCount,
			b.UpcomingCount,
			b.Currency,
		}
		if err := f.SetSheetRow(overdueSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(overdueSheet, "A", "I", 20); err != nil {
		return err
	}
	if err := f.SetColWidth(overdueSheet, "B", "B", 38); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

var _ appfinance.ReportRenderer = OverdueWorkbook{}
