package usecase

import (
	"context"
	"time"

	"go-filescan-backend/internal/domain"
	"go-filescan-backend/pkg/logger"
	"go-filescan-backend/pkg/security"
)

// QuarantineEvent is published on files.quarantined once an object is gone
type QuarantineEvent struct {
	ScanID        string    `json:"scan_id"`
	StorageBucket string    `json:"storage_bucket"`
	FilePath      string    `json:"file_path"`
	QuarantinedAt time.Time `json:"quarantined_at"`
}

// QuarantineManager removes infected objects from storage.
// Deletion is irreversible and is attempted once; callers log the error
// but never let it change the verdict.
type QuarantineManager struct {
	storage   domain.ObjectStorage
	publisher domain.EventPublisher
	secLog    *security.SecurityLogger
}

func NewQuarantineManager(storage domain.ObjectStorage, publisher domain.EventPublisher, secLog *security.SecurityLogger) *QuarantineManager {
	if secLog == nil {
		secLog = security.NewNopSecurityLogger()
	}
	return &QuarantineManager{storage: storage, publisher: publisher, secLog: secLog}
}

// Quarantine deletes bucket/path and records the outcome
func (q *QuarantineManager) Quarantine(ctx context.Context, scanID, bucket, path string) error {
	err := q.storage.Delete(ctx, bucket, path)
	q.secLog.LogQuarantine(ctx, scanID, bucket, path, err)
	if err != nil {
		logger.Log.Error("Quarantine delete failed", "scan_id", scanID, "bucket", bucket, "path", path, "error", err)
		return err
	}

	logger.Log.Info("Object quarantined", "scan_id", scanID, "bucket", bucket, "path", path)

	if q.publisher != nil {
		event := QuarantineEvent{
			ScanID:        scanID,
			StorageBucket: bucket,
			FilePath:      path,
			QuarantinedAt: time.Now().UTC(),
		}
		if perr := q.publisher.PublishEvent(domain.SubjectFileQuarantined, event); perr != nil {
			logger.Log.Warn("Failed to publish quarantine event", "scan_id", scanID, "error", perr)
		}
	}
	return nil
}
