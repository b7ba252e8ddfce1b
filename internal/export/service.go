// Package export produces XLSX workbooks of confirmed bills for offline review.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"bollette/internal/storage"
)

type Service struct {
	storage *storage.SQLiteRepository
	log     *slog.Logger
}

func NewService(storage *storage.SQLiteRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{storage: storage, log: logger}
}

// ExportYearXLSX returns a workbook with one row per confirmed bill of the year
// plus the year's aggregate totals.
func (s *Service) ExportYearXLSX(ctx context.Context, year int) ([]byte, error) {
	start := time.Now()

	bills, err := s.storage.ListConfirmed(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("query confirmed bills: %w", err)
	}
	stats, err := s.storage.GetOrCreateYearlyStats(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("query yearly stats: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Bills"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{"Period", "Type", "Cost", "Consumption", "Unit", "Notes", "Created"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, b := range bills {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, b.Period)
		write(2, string(b.BillType))
		write(3, b.Cost.String())
		write(4, b.Consumption.String())
		write(5, string(b.Unit))
		write(6, b.Notes)
		write(7, b.CreatedAt.Format("2006-01-02"))
		row++
	}

	// Aggregate block below the bills.
	row++
	totals := [][2]string{
		{"Energy total cost", stats.EnergyTotalCost.String()},
		{"Energy total consumed", stats.EnergyTotalConsumed.String()},
		{"Gas total cost", stats.GasTotalCost.String()},
		{"Gas total consumed", stats.GasTotalConsumed.String()},
		{"Combined total cost", stats.CombinedTotalCost.String()},
	}
	for _, tr := range totals {
		labelCell, _ := excelize.CoordinatesToCellName(1, row)
		valueCell, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(sheet, labelCell, tr[0])
		_ = f.SetCellValue(sheet, valueCell, tr[1])
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.log.InfoContext(ctx, "Exported yearly bills",
		"year", year,
		"bills", len(bills),
		"elapsed_ms", time.Since(start).Milliseconds())

	return buf.Bytes(), nil
}
