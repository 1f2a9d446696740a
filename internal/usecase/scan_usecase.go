package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"time"

	"go-filescan-backend/internal/domain"
	"go-filescan-backend/pkg/apperror"
	"go-filescan-backend/pkg/logger"
	"go-filescan-backend/pkg/security"
	"go-filescan-backend/pkg/security/antivirus"
	"go-filescan-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	bytesPerMiB = 1 << 20

	// PatternOnlyWarning is attached when the heuristic tier decided the verdict
	PatternOnlyWarning = "only basic pattern scanning was used"

	defaultFinalizeTimeout = 10 * time.Second
)

// CloudVerifier is the out-of-band part of the cloud scanner used by Recheck
type CloudVerifier interface {
	Resume(ctx context.Context, analysisID string) antivirus.Verdict
	LookupHash(ctx context.Context, sha256 string) antivirus.Verdict
}

// ScanEvent is published on files.scanned for every terminal scan
type ScanEvent struct {
	ScanID        string    `json:"scan_id"`
	StorageBucket string    `json:"storage_bucket"`
	FilePath      string    `json:"file_path"`
	UploadedBy    string    `json:"uploaded_by"`
	Status        string    `json:"status"`
	Scanner       string    `json:"scanner"`
	Reason        string    `json:"reason,omitempty"`
	Quarantined   bool      `json:"quarantined"`
	ScannedAt     time.Time `json:"scanned_at"`
}

// ScanOptions carries the policy knobs of the orchestrator
type ScanOptions struct {
	MaxFileSizeBytes     int64
	QuarantineSuspicious bool
	// FinalizeTimeout bounds the terminal record write after the request context is gone
	FinalizeTimeout time.Duration
}

// ScanDependencies groups the collaborators of the scan usecase
type ScanDependencies struct {
	Repo       domain.ScanRecordRepository
	Storage    domain.ObjectStorage
	Cascade    *antivirus.Cascade
	Cloud      CloudVerifier // nil when no cloud key is configured
	Quarantine *QuarantineManager
	Publisher  domain.EventPublisher
	SecLog     *security.SecurityLogger
	Validate   *validator.Validate
}

type scanUsecase struct {
	repo       domain.ScanRecordRepository
	storage    domain.ObjectStorage
	cascade    *antivirus.Cascade
	cloud      CloudVerifier
	quarantine *QuarantineManager
	publisher  domain.EventPublisher
	secLog     *security.SecurityLogger
	validate   *validator.Validate
	opts       ScanOptions
}

func NewScanUsecase(deps ScanDependencies, opts ScanOptions) domain.ScanUsecase {
	if deps.SecLog == nil {
		deps.SecLog = security.NewNopSecurityLogger()
	}
	if deps.Validate == nil {
		deps.Validate = validation.New()
	}
	if deps.Quarantine == nil {
		deps.Quarantine = NewQuarantineManager(deps.Storage, deps.Publisher, deps.SecLog)
	}
	if deps.Cascade == nil {
		deps.Cascade = antivirus.NewCascade(antivirus.NewPatternScanner(nil))
	}
	if opts.MaxFileSizeBytes <= 0 {
		opts.MaxFileSizeBytes = 100 * bytesPerMiB
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = defaultFinalizeTimeout
	}

	return &scanUsecase{
		repo:       deps.Repo,
		storage:    deps.Storage,
		cascade:    deps.Cascade,
		cloud:      deps.Cloud,
		quarantine: deps.Quarantine,
		publisher:  deps.Publisher,
		secLog:     deps.SecLog,
		validate:   deps.Validate,
		opts:       opts,
	}
}

// ScanFile runs the full pipeline for one uploaded object:
// record → download → size policy → cascade → terminal write → quarantine.
func (u *scanUsecase) ScanFile(ctx context.Context, req *domain.ScanRequest) (*domain.ScanOutcome, error) {
	if req == nil {
		return nil, apperror.BadRequest("Scan request is required")
	}
	if err := u.validate.Struct(req); err != nil {
		return nil, apperror.Validation("Invalid scan request", validation.FormatValidationErrors(err))
	}

	record := &domain.ScanRecord{
		ID:            uuid.NewString(),
		FilePath:      req.FilePath,
		FileSize:      req.FileSize,
		FileType:      req.FileType,
		UploadedBy:    req.UploadedBy,
		StorageBucket: req.StorageBucket,
		Status:        domain.ScanStatusScanning,
		CreatedAt:     time.Now().UTC(),
	}

	// No audit trail, no scan
	if err := u.repo.Create(ctx, record); err != nil {
		logger.Log.Error("Failed to create scan record", "path", req.FilePath, "error", err)
		return nil, apperror.Internal(fmt.Errorf("create scan record: %w", err))
	}

	log := logger.Log.With("scan_id", record.ID, "bucket", record.StorageBucket, "path", record.FilePath)
	log.Info("Scan started", "declared_size", record.FileSize, "tiers", u.cascade.Tiers())

	finished := false
	defer func() {
		// Runs on early returns and panics alike; the record must not stay in scanning
		if !finished {
			u.failRecord(ctx, record.ID, errors.New("scan aborted"))
		}
	}()

	result, err := u.evaluate(ctx, record)
	if err != nil {
		log.Error("Scan failed before any verdict", "error", err)
		u.secLog.LogScanVerdict(ctx, security.EventScanFailed, record.ID, record.UploadedBy, record.FilePath,
			map[string]interface{}{"error": err.Error()})
		finished = u.failRecord(ctx, record.ID, err)
		return nil, apperror.Internal(err)
	}

	quarantine := u.shouldQuarantine(result.Status)
	if err := u.complete(ctx, record.ID, result, quarantine); err != nil {
		log.Error("Failed to persist scan verdict", "status", result.Status, "error", err)
		finished = u.failRecord(ctx, record.ID, err)
		return nil, apperror.Internal(fmt.Errorf("persist scan verdict: %w", err))
	}
	finished = true

	log.Info("Scan finished", "status", result.Status, "scanner", result.Scanner)
	u.logVerdict(ctx, record, result)

	if quarantine {
		// Detection is already persisted; a failed delete does not change it
		qctx, cancel := u.detached(ctx)
		_ = u.quarantine.Quarantine(qctx, record.ID, record.StorageBucket, record.FilePath)
		cancel()
	}

	u.publishScanned(record, result, quarantine)

	return &domain.ScanOutcome{
		ScanID:      record.ID,
		Status:      result.Status,
		Message:     outcomeMessage(result, u.opts.MaxFileSizeBytes),
		Quarantined: quarantine,
		Result:      result,
	}, nil
}

// evaluate produces the terminal result. An error return means the
// object could not be obtained; scanner failures are verdicts, not errors.
func (u *scanUsecase) evaluate(ctx context.Context, record *domain.ScanRecord) (*domain.ScanResult, error) {
	if u.exceedsCeiling(record.FileSize) {
		return u.tooLarge(record.FileSize), nil
	}

	// One byte past the ceiling is enough to know the object is too large
	data, err := u.storage.Download(ctx, record.StorageBucket, record.FilePath, u.opts.MaxFileSizeBytes+1)
	if err != nil {
		return nil, fmt.Errorf("download object: %w", err)
	}

	if u.exceedsCeiling(int64(len(data))) {
		return u.tooLarge(int64(len(data))), nil
	}

	filename := path.Base(record.FilePath)
	verdict, attempts := u.cascade.Run(ctx, filename, data)

	result := domain.NewScanResult(verdict)
	result.Attempts = attempts
	result.SizeMiB = sizeMiB(int64(len(data)))
	sum := sha256.Sum256(data)
	result.SHA256 = hex.EncodeToString(sum[:])

	inspection := security.InspectContent(filename, data, record.FileType)
	if inspection.Mismatch {
		result.Content = &inspection
	}

	if result.Scanner == antivirus.PatternScannerName {
		result.Warning = PatternOnlyWarning
	}
	if result.Status == domain.ScanStatusError {
		u.secLog.LogScanVerdict(ctx, security.EventScannerUnavailable, record.ID, record.UploadedBy, record.FilePath,
			map[string]interface{}{"attempts": attempts})
	}

	return result, nil
}

func (u *scanUsecase) exceedsCeiling(size int64) bool {
	return size > u.opts.MaxFileSizeBytes
}

func (u *scanUsecase) tooLarge(size int64) *domain.ScanResult {
	result := domain.NewScanResult(antivirus.FileTooLarge())
	result.SizeMiB = sizeMiB(size)
	return result
}

func (u *scanUsecase) shouldQuarantine(status string) bool {
	switch status {
	case domain.ScanStatusInfected:
		return true
	case domain.ScanStatusSuspicious:
		return u.opts.QuarantineSuspicious
	default:
		return false
	}
}

// complete writes the terminal status on a context that survives the request
func (u *scanUsecase) complete(ctx context.Context, id string, result *domain.ScanResult, quarantined bool) error {
	wctx, cancel := u.detached(ctx)
	defer cancel()
	return u.repo.Complete(wctx, id, result.Status, result, quarantined, time.Now().UTC())
}

// failRecord moves the record to error. It reports whether the write landed.
func (u *scanUsecase) failRecord(ctx context.Context, id string, cause error) bool {
	result := domain.NewScanResult(antivirus.NewScanError("orchestrator", cause))
	err := u.complete(ctx, id, result, false)
	if err == nil || errors.Is(err, domain.ErrScanAlreadyFinished) {
		return true
	}
	logger.Log.Error("Failed to mark scan record as error", "scan_id", id, "error", err)
	return false
}

func (u *scanUsecase) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), u.opts.FinalizeTimeout)
}

func (u *scanUsecase) logVerdict(ctx context.Context, record *domain.ScanRecord, result *domain.ScanResult) {
	details := map[string]interface{}{"scanner": result.Scanner}
	var event security.EventType

	switch result.Status {
	case domain.ScanStatusClean:
		event = security.EventFileClean
	case domain.ScanStatusSuspicious:
		event = security.EventFileSuspicious
		details["positives"] = result.Positives
		details["total"] = result.Total
	case domain.ScanStatusPending:
		event = security.EventFileScanPending
		details["analysis_id"] = result.AnalysisID
	case domain.ScanStatusInfected:
		event = security.EventMalwareDetected
		if result.Reason == antivirus.ReasonFileTooLarge {
			event = security.EventFileTooLarge
			details["size_mib"] = result.SizeMiB
		}
		details["reason"] = result.Reason
		details["threat_name"] = result.ThreatName
		details["pattern"] = result.DetectedPattern
		details["detections"] = result.Detections
	default:
		event = security.EventScanFailed
		details["error"] = result.Error
	}

	u.secLog.LogScanVerdict(ctx, event, record.ID, record.UploadedBy, record.FilePath, details)
}

func (u *scanUsecase) publishScanned(record *domain.ScanRecord, result *domain.ScanResult, quarantined bool) {
	if u.publisher == nil {
		return
	}
	event := ScanEvent{
		ScanID:        record.ID,
		StorageBucket: record.StorageBucket,
		FilePath:      record.FilePath,
		UploadedBy:    record.UploadedBy,
		Status:        result.Status,
		Scanner:       result.Scanner,
		Reason:        result.Reason,
		Quarantined:   quarantined,
		ScannedAt:     result.ScannedAt,
	}
	if err := u.publisher.PublishEvent(domain.SubjectFileScanned, event); err != nil {
		logger.Log.Warn("Failed to publish scan event", "scan_id", record.ID, "error", err)
	}
}

// GetScan returns a stored record
func (u *scanUsecase) GetScan(ctx context.Context, id string) (*domain.ScanRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.BadRequest("Invalid scan ID")
	}

	record, err := u.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrScanNotFound) {
			return nil, apperror.NotFound("Scan not found")
		}
		return nil, apperror.Internal(fmt.Errorf("get scan record: %w", err))
	}
	return record, nil
}

// Recheck asks the cloud scanner again without touching the stored record:
// a pending analysis is resumed, otherwise the file hash is looked up.
func (u *scanUsecase) Recheck(ctx context.Context, id string) (*domain.RecheckOutcome, error) {
	record, err := u.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.cloud == nil {
		return nil, apperror.ServiceUnavailable("Cloud scanning is not configured", nil)
	}
	if record.Result == nil {
		return nil, apperror.BadRequest("Scan has not finished yet")
	}

	outcome := &domain.RecheckOutcome{ScanID: record.ID, StoredStatus: record.Status}
	var verdict antivirus.Verdict

	switch {
	case record.Result.AnalysisID != "":
		outcome.Method = domain.RecheckMethodAnalysis
		verdict = u.cloud.Resume(ctx, record.Result.AnalysisID)
	case record.Result.SHA256 != "":
		outcome.Method = domain.RecheckMethodHash
		verdict = u.cloud.LookupHash(ctx, record.Result.SHA256)
	default:
		return nil, apperror.BadRequest("Scan has neither an analysis ID nor a content hash")
	}

	outcome.Result = domain.NewScanResult(verdict)
	logger.Log.Info("Scan rechecked", "scan_id", record.ID, "method", outcome.Method,
		"stored_status", record.Status, "fresh_status", outcome.Result.Status)
	return outcome, nil
}

func outcomeMessage(result *domain.ScanResult, maxBytes int64) string {
	switch result.Status {
	case domain.ScanStatusClean:
		return "File scanned successfully. No threats detected."
	case domain.ScanStatusSuspicious:
		return "File was flagged by a small number of engines and has been kept for review."
	case domain.ScanStatusPending:
		return "Cloud analysis is still running. The file has been kept."
	case domain.ScanStatusInfected:
		if result.Reason == antivirus.ReasonFileTooLarge {
			return fmt.Sprintf("File exceeds the maximum allowed size of %d MB and has been removed.", maxBytes/bytesPerMiB)
		}
		return "Malware detected. The file has been removed."
	default:
		return "File could not be scanned by any scanner. The file has been kept."
	}
}

func sizeMiB(size int64) float64 {
	return float64(size) / bytesPerMiB
}
