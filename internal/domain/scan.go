package domain

import (
	"context"
	"errors"
	"time"

	"go-filescan-backend/pkg/security"
	"go-filescan-backend/pkg/security/antivirus"
)

// ScanStatus constants
const (
	ScanStatusScanning   = "scanning"
	ScanStatusClean      = "clean"
	ScanStatusInfected   = "infected"
	ScanStatusSuspicious = "suspicious"
	ScanStatusPending    = "pending"
	ScanStatusError      = "error"
)

// ValidScanStatuses for validation
var ValidScanStatuses = []string{
	ScanStatusScanning, ScanStatusClean, ScanStatusInfected,
	ScanStatusSuspicious, ScanStatusPending, ScanStatusError,
}

// Event subjects published after a scan
const (
	SubjectFileScanned     = "files.scanned"
	SubjectFileQuarantined = "files.quarantined"
)

var (
	ErrScanNotFound        = errors.New("scan record not found")
	ErrScanAlreadyFinished = errors.New("scan record already has a terminal status")
)

// ScanRequest is the body of a scan invocation for an already-uploaded object
type ScanRequest struct {
	FilePath      string `json:"filePath" binding:"required" validate:"required,object_key"`
	FileSize      int64  `json:"fileSize" binding:"required" validate:"required,gt=0"`
	FileType      string `json:"fileType" binding:"required" validate:"required,max=255"`
	UploadedBy    string `json:"uploadedBy" binding:"required" validate:"required,max=255"`
	StorageBucket string `json:"storageBucket" binding:"required" validate:"required,bucket_name"`
}

// ScanResult is the structured payload persisted with a terminal ScanRecord
type ScanResult struct {
	Scanner         string                      `json:"scanner"`
	Status          string                      `json:"status"`
	ScannedAt       time.Time                   `json:"scanned_at"`
	ThreatName      string                      `json:"threat_name,omitempty"`
	DetectedPattern string                      `json:"detected_pattern,omitempty"`
	Positives       *int                        `json:"positives,omitempty"`
	Total           *int                        `json:"total,omitempty"`
	Detections      []string                    `json:"detections,omitempty"`
	AnalysisID      string                      `json:"analysis_id,omitempty"`
	Reason          string                      `json:"reason,omitempty"`
	Error           string                      `json:"error,omitempty"`
	Warning         string                      `json:"warning,omitempty"`
	SizeMiB         float64                     `json:"size_mib,omitempty"`
	SHA256          string                      `json:"sha256,omitempty"`
	Content         *security.ContentInspection `json:"content,omitempty"`
	Attempts        []antivirus.Attempt         `json:"attempts,omitempty"`
}

// ScanRecord is the audit-trail row for one scan attempt (table file_scans)
type ScanRecord struct {
	ID            string      `json:"id"`
	FilePath      string      `json:"file_path"`
	FileSize      int64       `json:"file_size"`
	FileType      string      `json:"file_type"`
	UploadedBy    string      `json:"uploaded_by"`
	StorageBucket string      `json:"storage_bucket"`
	Status        string      `json:"status"`
	Result        *ScanResult `json:"scan_result,omitempty"`
	Quarantined   bool        `json:"quarantined"`
	ScannedAt     *time.Time  `json:"scanned_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// ScanOutcome is what the orchestrator hands back to the delivery layer
type ScanOutcome struct {
	ScanID      string
	Status      string
	Message     string
	Quarantined bool
	Result      *ScanResult
}

// Infected reports whether the outcome rejects the file
func (o *ScanOutcome) Infected() bool {
	return o.Status == ScanStatusInfected
}

// Recheck methods
const (
	RecheckMethodAnalysis = "analysis"
	RecheckMethodHash     = "hash"
)

// RecheckOutcome is the result of an out-of-band verification
type RecheckOutcome struct {
	ScanID       string      `json:"scan_id"`
	StoredStatus string      `json:"stored_status"`
	Method       string      `json:"method"`
	Result       *ScanResult `json:"result"`
}

// ScanRecordRepository persists ScanRecords
type ScanRecordRepository interface {
	Create(ctx context.Context, record *ScanRecord) error
	// Complete writes the terminal status. It fails with ErrScanAlreadyFinished
	// when the record has already left the scanning state.
	Complete(ctx context.Context, id string, status string, result *ScanResult, quarantined bool, scannedAt time.Time) error
	GetByID(ctx context.Context, id string) (*ScanRecord, error)
	List(ctx context.Context, filter ScanFilter) ([]ScanRecord, int64, error)
}

// ObjectStorage reads and removes uploaded objects
type ObjectStorage interface {
	// Download returns at most maxBytes bytes of the object (maxBytes <= 0 means unbounded)
	Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
}

// EventPublisher publishes scan lifecycle events
type EventPublisher interface {
	PublishEvent(subject string, payload interface{}) error
}

// ScanUsecase interface
type ScanUsecase interface {
	ScanFile(ctx context.Context, req *ScanRequest) (*ScanOutcome, error)
	GetScan(ctx context.Context, id string) (*ScanRecord, error)
	Recheck(ctx context.Context, id string) (*RecheckOutcome, error)
	ListScans(ctx context.Context, filter ScanFilter) (*PaginatedResult[ScanRecord], error)
	ExportScans(ctx context.Context, req ScanExportRequest) ([]byte, string, error)
}
