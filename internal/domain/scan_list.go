package domain

import "time"

// PaginatedResult for list responses
type PaginatedResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

// ScanFilter narrows ScanRecord listings and exports
type ScanFilter struct {
	Statuses      []string
	UploadedBy    string
	StorageBucket string
	Quarantined   *bool
	CreatedFrom   *time.Time
	CreatedTo     *time.Time

	Page     int
	PageSize int
}

// Export formats
const (
	ExportFormatXLSX = "xlsx"
	ExportFormatCSV  = "csv"
)

// MaxExportRows caps a single export
const MaxExportRows = 10000

// ScanExportColumns lists the columns an export may contain, in default order
var ScanExportColumns = []string{
	"id", "created_at", "scanned_at", "status", "scanner", "file_path", "file_size",
	"file_type", "uploaded_by", "storage_bucket", "threat_name", "detected_pattern",
	"positives", "total", "quarantined", "sha256",
}

// ScanExportRequest selects what an export contains
type ScanExportRequest struct {
	Filter  ScanFilter
	Columns []string
	Format  string
}
