package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"go-filescan-backend/internal/domain"
	"go-filescan-backend/pkg/apperror"

	"github.com/xuri/excelize/v2"
)

const (
	defaultListPageSize = 20
	maxListPageSize     = 100
)

// ListScans returns one page of the audit trail
func (u *scanUsecase) ListScans(ctx context.Context, filter domain.ScanFilter) (*domain.PaginatedResult[domain.ScanRecord], error) {
	if err := checkFilter(filter); err != nil {
		return nil, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultListPageSize
	}
	if filter.PageSize > maxListPageSize {
		filter.PageSize = maxListPageSize
	}

	records, total, err := u.repo.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("list scan records: %w", err))
	}

	totalPages := int((total + int64(filter.PageSize) - 1) / int64(filter.PageSize))
	return &domain.PaginatedResult[domain.ScanRecord]{
		Data:       records,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	}, nil
}

// ExportScans renders matching records as a spreadsheet or CSV file.
// It returns the file bytes and a suggested filename.
func (u *scanUsecase) ExportScans(ctx context.Context, req domain.ScanExportRequest) ([]byte, string, error) {
	if err := checkFilter(req.Filter); err != nil {
		return nil, "", err
	}

	columns, err := exportColumns(req.Columns)
	if err != nil {
		return nil, "", err
	}

	format := req.Format
	if format == "" {
		format = domain.ExportFormatXLSX
	}
	if format != domain.ExportFormatXLSX && format != domain.ExportFormatCSV {
		return nil, "", apperror.BadRequest(fmt.Sprintf("Unsupported export format: %s", req.Format))
	}

	req.Filter.Page = 1
	req.Filter.PageSize = domain.MaxExportRows

	records, _, err := u.repo.List(ctx, req.Filter)
	if err != nil {
		return nil, "", apperror.Internal(fmt.Errorf("fetch scan records for export: %w", err))
	}

	if format == domain.ExportFormatCSV {
		return exportScansCSV(records, columns)
	}
	return exportScansExcel(records, columns)
}

func checkFilter(filter domain.ScanFilter) error {
	for _, status := range filter.Statuses {
		if !validStatus(status) {
			return apperror.BadRequest(fmt.Sprintf("Unknown scan status: %s", status))
		}
	}
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && !filter.CreatedFrom.Before(*filter.CreatedTo) {
		return apperror.BadRequest("'from' must be before 'to'")
	}
	return nil
}

func validStatus(status string) bool {
	for _, s := range domain.ValidScanStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// exportColumns validates the requested columns and drops duplicates
func exportColumns(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return domain.ScanExportColumns, nil
	}

	valid := make(map[string]bool, len(domain.ScanExportColumns))
	for _, col := range domain.ScanExportColumns {
		valid[col] = true
	}

	seen := make(map[string]bool)
	columns := make([]string, 0, len(requested))
	for _, col := range requested {
		if !valid[col] {
			return nil, apperror.BadRequest(fmt.Sprintf("Invalid export column: %s", col))
		}
		if !seen[col] {
			seen[col] = true
			columns = append(columns, col)
		}
	}
	return columns, nil
}

var scanExportHeaders = map[string]string{
	"id":               "SCAN ID",
	"created_at":       "CREATED AT",
	"scanned_at":       "SCANNED AT",
	"status":           "STATUS",
	"scanner":          "SCANNER",
	"file_path":        "FILE PATH",
	"file_size":        "FILE SIZE (BYTES)",
	"file_type":        "FILE TYPE",
	"uploaded_by":      "UPLOADED BY",
	"storage_bucket":   "BUCKET",
	"threat_name":      "THREAT NAME",
	"detected_pattern": "DETECTED PATTERN",
	"positives":        "POSITIVES",
	"total":            "ENGINES",
	"quarantined":      "QUARANTINED",
	"sha256":           "SHA-256",
}

func exportScansExcel(records []domain.ScanRecord, columns []string) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Scans"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, "", apperror.Internal(fmt.Errorf("rename sheet: %w", err))
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, scanExportHeaders[col])
	}

	// Dark blue header with white text
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#1E3A5F"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
	f.SetCellStyle(sheetName, "A1", endCell, headerStyle)

	for rowIdx, record := range records {
		for colIdx, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, scanFieldValue(record, col))
		}
	}

	for i := range columns {
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 22)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", apperror.Internal(fmt.Errorf("write workbook: %w", err))
	}

	filename := fmt.Sprintf("file_scans_%s.xlsx", time.Now().Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}

func exportScansCSV(records []domain.ScanRecord, columns []string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = scanExportHeaders[col]
	}
	if err := w.Write(header); err != nil {
		return nil, "", apperror.Internal(err)
	}

	for _, record := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = fmt.Sprint(scanFieldValue(record, col))
		}
		if err := w.Write(row); err != nil {
			return nil, "", apperror.Internal(err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", apperror.Internal(err)
	}

	filename := fmt.Sprintf("file_scans_%s.csv", time.Now().Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}

// scanFieldValue extracts an export column from a record
func scanFieldValue(r domain.ScanRecord, field string) interface{} {
	switch field {
	case "id":
		return r.ID
	case "created_at":
		return r.CreatedAt.UTC().Format(time.RFC3339)
	case "scanned_at":
		if r.ScannedAt != nil {
			return r.ScannedAt.UTC().Format(time.RFC3339)
		}
		return ""
	case "status":
		return r.Status
	case "file_path":
		return r.FilePath
	case "file_size":
		return r.FileSize
	case "file_type":
		return r.FileType
	case "uploaded_by":
		return r.UploadedBy
	case "storage_bucket":
		return r.StorageBucket
	case "quarantined":
		return strconv.FormatBool(r.Quarantined)
	}

	if r.Result == nil {
		return ""
	}

	switch field {
	case "scanner":
		return r.Result.Scanner
	case "threat_name":
		return r.Result.ThreatName
	case "detected_pattern":
		return r.Result.DetectedPattern
	case "positives":
		if r.Result.Positives != nil {
			return *r.Result.Positives
		}
	case "total":
		if r.Result.Total != nil {
			return *r.Result.Total
		}
	case "sha256":
		return r.Result.SHA256
	}
	return ""
}
