// Package export renders stored purchases as XLSX workbooks or CSV files.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/service"
)

// Options narrows which purchases an export includes.
type Options struct {
	// From and To bound the purchase date (inclusive, date-only). A From
	// without a To means from..today.
	From *time.Time
	To   *time.Time
	// IncludeExcluded keeps records that were cancelled or manually excluded.
	IncludeExcluded bool
}

// Service produces export files from the purchase store.
type Service struct {
	store  service.Storage
	logger *slog.Logger
}

func NewService(store service.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger.With("component", "export")}
}

var columns = []string{
	"Date",
	"Vendor",
	"Order ID",
	"Amount",
	"Currency",
	"Status",
	"Tracking Number",
	"Related Emails",
	"Excluded",
}

// ExportXLSX returns an XLSX workbook of the user's purchases as bytes.
func (s *Service) ExportXLSX(ctx context.Context, userID string, opts Options) ([]byte, error) {
	start := time.Now()

	purchases, err := s.list(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Purchases"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, p := range purchases {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, p.Date.Format("2006-01-02"))
		write(2, p.Vendor)
		write(3, p.OrderID)
		write(4, p.Amount)
		write(5, p.Currency)
		write(6, string(p.Status))
		write(7, p.TrackingNumber)
		write(8, sourceEmailCount(p))
		write(9, p.IsExcluded)
	}

	_ = f.SetColWidth(sheet, "A", "A", 12) // date
	_ = f.SetColWidth(sheet, "B", "B", 24) // vendor
	_ = f.SetColWidth(sheet, "C", "C", 22) // order id
	_ = f.SetColWidth(sheet, "D", "E", 12) // amount, currency
	_ = f.SetColWidth(sheet, "F", "F", 12) // status
	_ = f.SetColWidth(sheet, "G", "G", 26) // tracking

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("exported purchases",
		"format", "xlsx",
		"user_id", userID,
		"rows", len(purchases),
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// ExportCSV returns the same purchase table as RFC 4180 CSV.
func (s *Service) ExportCSV(ctx context.Context, userID string, opts Options) ([]byte, error) {
	start := time.Now()

	purchases, err := s.list(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	for _, p := range purchases {
		record := []string{
			p.Date.Format("2006-01-02"),
			p.Vendor,
			p.OrderID,
			strconv.FormatFloat(p.Amount, 'f', -1, 64),
			p.Currency,
			string(p.Status),
			p.TrackingNumber,
			strconv.Itoa(sourceEmailCount(p)),
			strconv.FormatBool(p.IsExcluded),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("csv write: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}

	s.logger.Info("exported purchases",
		"format", "csv",
		"user_id", userID,
		"rows", len(purchases),
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func (s *Service) list(ctx context.Context, userID string, opts Options) ([]model.PurchaseRecord, error) {
	filter := service.PurchaseFilter{IncludeExcluded: opts.IncludeExcluded}

	if opts.From != nil {
		f := dateOnly(*opts.From)
		filter.StartDate = &f
	}
	if opts.To != nil {
		t := endOfDay(*opts.To)
		filter.EndDate = &t
	}
	if filter.StartDate != nil && filter.EndDate == nil {
		t := endOfDay(time.Now().UTC())
		filter.EndDate = &t
	}

	purchases, err := s.store.GetPurchasesByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	return purchases, nil
}

// sourceEmailCount is the number of emails that fed the record, the
// originating one included.
func sourceEmailCount(p model.PurchaseRecord) int {
	return 1 + len(p.RelatedEmailIDs)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// endOfDay keeps the date bound inclusive against timestamped purchase dates.
func endOfDay(t time.Time) time.Time {
	return dateOnly(t).Add(24*time.Hour - time.Nanosecond)
}
