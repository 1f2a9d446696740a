package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-filescan-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool used by the repositories
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const scanRecordColumns = `id, file_path, file_size, file_type, uploaded_by, storage_bucket,
			status, scan_result, quarantined, scanned_at, created_at`

type scanRecordRepo struct {
	db DBTX
}

func NewScanRecordRepository(db DBTX) domain.ScanRecordRepository {
	return &scanRecordRepo{db: db}
}

func (r *scanRecordRepo) Create(ctx context.Context, record *domain.ScanRecord) error {
	query := `
		INSERT INTO file_scans (
			id, file_path, file_size, file_type, uploaded_by, storage_bucket,
			status, quarantined, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
	`
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, query,
		record.ID, record.FilePath, record.FileSize, record.FileType,
		record.UploadedBy, record.StorageBucket, domain.ScanStatusScanning, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	record.Status = domain.ScanStatusScanning
	return nil
}

// Complete is the single terminal write. The status guard makes a second
// write fail instead of silently overwriting the first verdict.
func (r *scanRecordRepo) Complete(ctx context.Context, id string, status string, result *domain.ScanResult, quarantined bool, scannedAt time.Time) error {
	if status == domain.ScanStatusScanning {
		return fmt.Errorf("complete scan record: %q is not a terminal status", status)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode scan result: %w", err)
	}

	query := `
		UPDATE file_scans
		SET status = $2, scan_result = $3::jsonb, quarantined = $4, scanned_at = $5
		WHERE id = $1 AND status = 'scanning'
	`
	tag, err := r.db.Exec(ctx, query, id, status, string(payload), quarantined, scannedAt)
	if err != nil {
		return fmt.Errorf("update scan record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or it already holds a verdict
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrScanAlreadyFinished
	}
	return nil
}

func (r *scanRecordRepo) GetByID(ctx context.Context, id string) (*domain.ScanRecord, error) {
	query := `SELECT ` + scanRecordColumns + ` FROM file_scans WHERE id = $1`

	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScanNotFound
		}
		return nil, fmt.Errorf("get scan record: %w", err)
	}
	return rec, nil
}

// List returns one page of records, newest first, plus the total match count
func (r *scanRecordRepo) List(ctx context.Context, filter domain.ScanFilter) ([]domain.ScanRecord, int64, error) {
	conditions := []string{"TRUE"}
	args := []interface{}{}
	argIndex := 1

	if len(filter.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIndex))
		args = append(args, filter.Statuses)
		argIndex++
	}
	if filter.UploadedBy != "" {
		conditions = append(conditions, fmt.Sprintf("uploaded_by = $%d", argIndex))
		args = append(args, filter.UploadedBy)
		argIndex++
	}
	if filter.StorageBucket != "" {
		conditions = append(conditions, fmt.Sprintf("storage_bucket = $%d", argIndex))
		args = append(args, filter.StorageBucket)
		argIndex++
	}
	if filter.Quarantined != nil {
		conditions = append(conditions, fmt.Sprintf("quarantined = $%d", argIndex))
		args = append(args, *filter.Quarantined)
		argIndex++
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.CreatedFrom)
		argIndex++
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIndex))
		args = append(args, *filter.CreatedTo)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM file_scans WHERE ` + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scan records: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT %s
		FROM file_scans
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d
	`, scanRecordColumns, whereClause, argIndex, argIndex+1)
	args = append(args, pageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list scan records: %w", err)
	}
	defer rows.Close()

	records := []domain.ScanRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate scan records: %w", err)
	}

	return records, total, nil
}

// scanRecord reads one row selected with scanRecordColumns
func scanRecord(row pgx.Row) (*domain.ScanRecord, error) {
	var rec domain.ScanRecord
	var payload []byte
	err := row.Scan(
		&rec.ID, &rec.FilePath, &rec.FileSize, &rec.FileType, &rec.UploadedBy, &rec.StorageBucket,
		&rec.Status, &payload, &rec.Quarantined, &rec.ScannedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 && string(payload) != "null" {
		var result domain.ScanResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("decode scan result: %w", err)
		}
		rec.Result = &result
	}
	return &rec, nil
}
