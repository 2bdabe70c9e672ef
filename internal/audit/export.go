package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"

	"github.com/xuri/excelize/v2"
)

// ExportFormat selects the file type produced by ExportAuditLog.
type ExportFormat string

const (
	ExportXLSX ExportFormat = "xlsx"
	ExportCSV  ExportFormat = "csv"
)

const exportSheetName = "Audit Log"

var exportColumns = []string{
	"Timestamp",
	"Section",
	"Section Ref",
	"Version",
	"Operation",
	"Actor Name",
	"Actor Email",
	"Role",
	"Row",
	"Field",
	"Type",
	"Old Value",
	"New Value",
}

// ParseExportFormat maps a request value onto a format; empty selects xlsx.
func ParseExportFormat(value string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", ExportXLSX:
		return ExportXLSX, nil
	case ExportCSV:
		return ExportCSV, nil
	}
	return "", fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidQuery, value)
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// ExportAuditLog writes every matching audit change, newest first, as one row
// per change. Entries without changes produce a single row with empty change
// columns. The number of snapshots read is capped by the export limit.
// It returns the number of data rows written.
func (s *Service) ExportAuditLog(ctx context.Context, filter domain.AuditFilter, format ExportFormat, w io.Writer) (int, error) {
	defer s.observe("export", time.Now())

	if f := filter; f.From != nil && f.To != nil && f.From.After(*f.To) {
		return 0, fmt.Errorf("%w: from must not be after to", domain.ErrInvalidQuery)
	}

	snapshots, err := s.snapshots.Query(ctx, filter, s.exportLimit, 0)
	if err != nil {
		return 0, storeError(err, "query field snapshots for export")
	}
	entries, err := s.buildEntries(ctx, snapshots)
	if err != nil {
		return 0, err
	}

	rows := s.exportRows(entries)
	switch format {
	case ExportCSV:
		err = writeCSV(w, rows)
	case ExportXLSX:
		err = writeXLSX(w, rows)
	default:
		return 0, fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidQuery, format)
	}
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "audit log exported", "format", format, "entries", len(entries), "rows", len(rows))
	return len(rows), nil
}

func (s *Service) exportRows(entries []domain.AuditEntry) [][]string {
	var rows [][]string
	for _, entry := range entries {
		var name, email string
		if entry.User != nil {
			name, email = entry.User.Name, entry.User.Email
		}
		prefix := []string{
			entry.Timestamp.In(s.location).Format(time.RFC3339),
			entry.SectionName,
			entry.SectionRef.String(),
			strconv.FormatInt(entry.Version, 10),
			string(entry.OperationType),
			name,
			email,
			entry.Actor.Role,
		}

		if len(entry.Changes) == 0 {
			rows = append(rows, append(append([]string{}, prefix...), "", "", "", "", ""))
			continue
		}
		for _, change := range entry.Changes {
			row := append([]string{}, prefix...)
			row = append(row,
				change.RowLabel,
				change.FieldName,
				string(change.FieldType),
				change.OldValue,
				change.NewValue,
			)
			rows = append(rows, row)
		}
	}
	return rows
}

func writeCSV(w io.Writer, rows [][]string) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(exportColumns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := csvWriter.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(exportSheetName)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}

	writeRow := func(index int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, index)
		if err != nil {
			return err
		}
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return sw.SetRow(cell, cells)
	}

	if err := writeRow(1, exportColumns); err != nil {
		return fmt.Errorf("failed to write xlsx header: %w", err)
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return fmt.Errorf("failed to write xlsx row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush xlsx sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx file: %w", err)
	}
	return nil
}
