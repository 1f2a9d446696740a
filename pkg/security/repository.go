package security

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by pgxpool.Pool and pgx.Tx
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// SecurityEventRepository writes security events to the security_events table
type SecurityEventRepository struct {
	db Execer
}

func NewSecurityEventRepository(db Execer) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

// PersistEvent inserts one event. Details are stored as JSON (null when empty).
func (r *SecurityEventRepository) PersistEvent(ctx context.Context, event SecurityEvent) error {
	query := `
		INSERT INTO security_events (
			event_type, severity, service, environment, level,
			subject_type, subject_value, ip_address,
			request_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	detailsJSON := []byte("null")
	if len(event.Details) > 0 {
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("encode security event details: %w", err)
		}
		detailsJSON = encoded
	}

	// INET column: empty string is not a valid address
	var ipAddr interface{}
	if event.IP != "" {
		ipAddr = event.IP
	}

	_, err := r.db.Exec(ctx, query,
		string(event.Event),
		string(GetSeverity(event.Event)),
		event.Service,
		event.Environment,
		event.Level,
		event.SubjectType,
		event.SubjectValue,
		ipAddr,
		event.RequestID,
		detailsJSON,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("persist security event %s: %w", event.Event, err)
	}
	return nil
}

// CreatePersistFunc adapts the repository to SecurityLogger.SetPersistFunc
func (r *SecurityEventRepository) CreatePersistFunc() func(context.Context, SecurityEvent) error {
	return r.PersistEvent
}
