// Package export renders lending reports as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mrlokans/librarian/internal/lending"
)

const (
	OverdueSheet = "Overdue"
	dateLayout   = "2006-01-02"
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var overdueHeader = []any{
	"Lending ID", "Borrower", "Email", "Title", "ISBN", "Author",
	"Copy ID", "Location", "Checked out", "Due", "Days overdue",
}

// OverdueWorkbook builds a single-sheet workbook, one row per entry.
// The caller must Close the returned file.
func OverdueWorkbook(entries []lending.OverdueEntry, asOf time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", OverdueSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Overdue lendings as of " + asOf.Format(dateLayout),
		Creator: "librarian",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to set document properties: %w", err)
	}

	if err := f.SetSheetRow(OverdueSheet, "A1", &overdueHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(OverdueSheet, 1, 1, bold)
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		row := []any{
			e.ID, e.BorrowerName, e.BorrowerEmail, e.Title, e.ISBN, e.Author,
			e.CopyID, e.Location,
			e.CheckedOutAt.UTC().Format(dateLayout), e.DueDate.UTC().Format(dateLayout),
			e.DaysOverdue,
		}
		if err := f.SetSheetRow(OverdueSheet, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(OverdueSheet, "B", "F", 24)
	_ = f.SetColWidth(OverdueSheet, "I", "K", 14)
	return f, nil
}

// WriteOverdue streams the workbook to w.
func WriteOverdue(w io.Writer, entries []lending.OverdueEntry, asOf time.Time) error {
	f, err := OverdueWorkbook(entries, asOf)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// OverdueFileName is the download and on-disk name of a report.
func OverdueFileName(asOf time.Time) string {
	return "overdue-" + asOf.Format(dateLayout) + ".xlsx"
}

// SaveOverdue writes the workbook into dir and returns its path.
func SaveOverdue(dir string, entries []lending.OverdueEntry, asOf time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}
	f, err := OverdueWorkbook(entries, asOf)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, OverdueFileName(asOf))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}
	return path, nil
}
