package license

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "License History"

// ExportXLSX writes the full history to an Excel workbook, one row per
// issuance plus a derived status column, for sharing with people who
// will never open a CSV.
func (s *HistoryStore) ExportXLSX(path string, now time.Time) error {
	entries, err := s.List()
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	headers := []string{"ID", "Customer", "Hardware ID", "Duration", "Generated At", "Expires At", "Status", "Token"}
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, e := range entries {
		expires := e.ExpiresAt.UTC().Format("2006-01-02")
		if e.ExpiresAt.Equal(LifetimeExpiry) {
			expires = "never"
		}
		values := []any{
			e.ID,
			e.CustomerName,
			e.HardwareID,
			e.Duration.Label(),
			e.GeneratedAt.UTC().Format("2006-01-02 15:04:05"),
			expires,
			string(e.StatusAt(now)),
			e.Token,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("failed to compute cell: %w", err)
			}
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save export: %w", err)
	}
	return nil
}
