package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go-filescan-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow scans a fixed set of values in column order
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int64:
			*p = r.values[i].(int64)
		case *bool:
			*p = r.values[i].(bool)
		case *[]byte:
			if r.values[i] != nil {
				*p = r.values[i].([]byte)
			}
		case **time.Time:
			if r.values[i] != nil {
				t := r.values[i].(time.Time)
				*p = &t
			}
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	tag      string
	execErr  error
	row      fakeRow
	rows     []fakeRow
	querySQL string
	queryArg []any
	queryErr error
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	db.execArgs = append(db.execArgs, args)
	return pgconn.NewCommandTag(db.tag), db.execErr
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.row
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.querySQL = sql
	db.queryArg = args
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return &fakeRows{rows: db.rows, pos: -1}, nil
}

// fakeRows iterates fakeRow values
type fakeRows struct {
	rows   []fakeRow
	pos    int
	closed bool
}

func (r *fakeRows) Close() { r.closed = true }
func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error) { return r.rows[r.pos].values, nil }
func (r *fakeRows) RawValues() [][]byte { return nil }
func (r *fakeRows) Conn() *pgx.Conn { return nil }
func (r *fakeRows) Scan(dest ...any) error { return r.rows[r.pos].Scan(dest...) }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func storedRow(status string, payload []byte) fakeRow {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return fakeRow{values: []any{
		"id-1", "users/u1/a.pdf", int64(2048), "application/pdf", "u1", "course-uploads",
		status, payload, false, nil, created,
	}}
}

func TestScanRecordRepoCreate(t *testing.T) {
	db := &fakeDB{tag: "INSERT 0 1"}
	repo := NewScanRecordRepository(db)

	rec := &domain.ScanRecord{ID: "id-1", FilePath: "a.pdf", StorageBucket: "b"}
	require.NoError(t, repo.Create(context.Background(), rec))

	assert.Equal(t, domain.ScanStatusScanning, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())
	require.Len(t, db.execArgs, 1)
	assert.Equal(t, domain.ScanStatusScanning, db.execArgs[0][6])
}

func TestScanRecordRepoComplete(t *testing.T) {
	result := &domain.ScanResult{Scanner: "clamav", Status: domain.ScanStatusInfected, ThreatName: "Eicar-Test-Signature"}

	t.Run("Should write the terminal status once", func(t *testing.T) {
		db := &fakeDB{tag: "UPDATE 1"}
		repo := NewScanRecordRepository(db)

		err := repo.Complete(context.Background(), "id-1", domain.ScanStatusInfected, result, true, time.Now())
		require.NoError(t, err)
		assert.Contains(t, db.execSQL[0], "status = 'scanning'")

		var decoded domain.ScanResult
		require.NoError(t, json.Unmarshal([]byte(db.execArgs[0][2].(string)), &decoded))
		assert.Equal(t, "Eicar-Test-Signature", decoded.ThreatName)
		assert.Equal(t, true, db.execArgs[0][3])
	})

	t.Run("Should refuse a second terminal write", func(t *testing.T) {
		db := &fakeDB{tag: "UPDATE 0", row: storedRow(domain.ScanStatusClean, nil)}
		repo := NewScanRecordRepository(db)

		err := repo.Complete(context.Background(), "id-1", domain.ScanStatusInfected, result, true, time.Now())
		assert.ErrorIs(t, err, domain.ErrScanAlreadyFinished)
	})

	t.Run("Should report a missing record", func(t *testing.T) {
		db := &fakeDB{tag: "UPDATE 0", row: fakeRow{err: pgx.ErrNoRows}}
		repo := NewScanRecordRepository(db)

		err := repo.Complete(context.Background(), "id-1", domain.ScanStatusClean, result, false, time.Now())
		assert.ErrorIs(t, err, domain.ErrScanNotFound)
	})

	t.Run("Should reject scanning as a terminal status", func(t *testing.T) {
		db := &fakeDB{}
		repo := NewScanRecordRepository(db)

		err := repo.Complete(context.Background(), "id-1", domain.ScanStatusScanning, result, false, time.Now())
		assert.Error(t, err)
		assert.Empty(t, db.execSQL)
	})

	t.Run("Should wrap database errors", func(t *testing.T) {
		db := &fakeDB{execErr: errors.New("connection reset")}
		repo := NewScanRecordRepository(db)

		err := repo.Complete(context.Background(), "id-1", domain.ScanStatusClean, result, false, time.Now())
		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestScanRecordRepoGetByID(t *testing.T) {
	t.Run("Should decode the stored result", func(t *testing.T) {
		payload := []byte(`{"scanner":"virustotal","status":"suspicious","positives":2,"total":60}`)
		repo := NewScanRecordRepository(&fakeDB{row: storedRow(domain.ScanStatusSuspicious, payload)})

		rec, err := repo.GetByID(context.Background(), "id-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ScanStatusSuspicious, rec.Status)
		require.NotNil(t, rec.Result)
		assert.Equal(t, 2, *rec.Result.Positives)
		assert.Nil(t, rec.ScannedAt)
	})

	t.Run("Should leave the result empty while scanning", func(t *testing.T) {
		repo := NewScanRecordRepository(&fakeDB{row: storedRow(domain.ScanStatusScanning, nil)})

		rec, err := repo.GetByID(context.Background(), "id-1")
		require.NoError(t, err)
		assert.Nil(t, rec.Result)
	})

	t.Run("Should map no rows to ErrScanNotFound", func(t *testing.T) {
		repo := NewScanRecordRepository(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

		_, err := repo.GetByID(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrScanNotFound)
	})
}

func TestScanRecordRepoList(t *testing.T) {
	t.Run("Should build the filter and page", func(t *testing.T) {
		payload := []byte(`{"scanner":"clamav","status":"infected","threat_name":"Eicar-Test-Signature"}`)
		db := &fakeDB{
			row:  fakeRow{values: []any{int64(42)}},
			rows: []fakeRow{storedRow(domain.ScanStatusInfected, payload), storedRow(domain.ScanStatusClean, nil)},
		}
		repo := NewScanRecordRepository(db)

		quarantined := true
		filter := domain.ScanFilter{
			Statuses:    []string{domain.ScanStatusInfected, domain.ScanStatusClean},
			UploadedBy:  "u1",
			Quarantined: &quarantined,
			Page:        3,
			PageSize:    10,
		}
		records, total, err := repo.List(context.Background(), filter)
		require.NoError(t, err)

		assert.Equal(t, int64(42), total)
		require.Len(t, records, 2)
		require.NotNil(t, records[0].Result)
		assert.Equal(t, "Eicar-Test-Signature", records[0].Result.ThreatName)
		assert.Nil(t, records[1].Result)

		assert.Contains(t, db.querySQL, "status = ANY($1)")
		assert.Contains(t, db.querySQL, "uploaded_by = $2")
		assert.Contains(t, db.querySQL, "quarantined = $3")
		assert.Contains(t, db.querySQL, "LIMIT $4 OFFSET $5")
		assert.Equal(t, []any{filter.Statuses, "u1", true, 10, 20}, db.queryArg)
	})

	t.Run("Should default the page size and return an empty slice", func(t *testing.T) {
		db := &fakeDB{row: fakeRow{values: []any{int64(0)}}}
		repo := NewScanRecordRepository(db)

		records, total, err := repo.List(context.Background(), domain.ScanFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.NotNil(t, records)
		assert.Empty(t, records)
		assert.Equal(t, []any{20, 0}, db.queryArg)
	})

	t.Run("Should wrap query errors", func(t *testing.T) {
		db := &fakeDB{row: fakeRow{values: []any{int64(1)}}, queryErr: errors.New("timeout")}
		repo := NewScanRecordRepository(db)

		_, _, err := repo.List(context.Background(), domain.ScanFilter{})
		assert.ErrorContains(t, err, "timeout")
	})
}
