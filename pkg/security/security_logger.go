package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType represents the type of security event
type EventType string

const (
	EventFileClean          EventType = "file_clean"
	EventFileSuspicious     EventType = "file_suspicious"
	EventFileScanPending    EventType = "file_scan_pending"
	EventMalwareDetected    EventType = "malware_detected"
	EventFileTooLarge       EventType = "file_too_large"
	EventFileQuarantined    EventType = "file_quarantined"
	EventQuarantineFailed   EventType = "quarantine_failed"
	EventScannerUnavailable EventType = "scanner_unavailable"
	EventScanFailed         EventType = "scan_failed"
	EventRateLimitTriggered EventType = "rate_limit_triggered"
	EventValidationFailed   EventType = "validation_failed"
)

// SecurityEvent represents a security-related event to be logged
type SecurityEvent struct {
	Timestamp    time.Time              `json:"timestamp"`
	Service      string                 `json:"service"`
	Environment  string                 `json:"env"`
	Level        string                 `json:"level"`
	Event        EventType              `json:"event"`
	SubjectType  string                 `json:"subject_type,omitempty"`  // "user_id", "object", "ip"
	SubjectValue string                 `json:"subject_value,omitempty"` // hashed for PII
	IP           string                 `json:"ip,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// SecurityLogger provides structured logging for security events
type SecurityLogger struct {
	zapLogger   *zap.Logger
	serviceName string
	environment string
	// Optional: DB persistence function
	persistFunc func(ctx context.Context, event SecurityEvent) error
}

// InitSecurityLogger initializes the security logger with Zap
func InitSecurityLogger(serviceName, environment string) *SecurityLogger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return NewSecurityLogger(logger, serviceName, environment)
}

// NewSecurityLogger wraps an existing zap logger
func NewSecurityLogger(logger *zap.Logger, serviceName, environment string) *SecurityLogger {
	if environment == "" {
		environment = getEnvironment()
	}
	return &SecurityLogger{
		zapLogger:   logger,
		serviceName: serviceName,
		environment: environment,
	}
}

// NewNopSecurityLogger discards all events (tests)
func NewNopSecurityLogger() *SecurityLogger {
	return NewSecurityLogger(zap.NewNop(), "test", "test")
}

// SetPersistFunc sets the function to persist events to database
func (sl *SecurityLogger) SetPersistFunc(f func(ctx context.Context, event SecurityEvent) error) {
	sl.persistFunc = f
}

// Log logs a security event
func (sl *SecurityLogger) Log(ctx context.Context, event SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Service = sl.serviceName
	event.Environment = sl.environment

	level := GetSeverity(event.Event).ZapLevel()
	event.Level = level.String()

	fields := []zap.Field{
		zap.String("service", event.Service),
		zap.String("env", event.Environment),
		zap.String("event", string(event.Event)),
		zap.String("severity", string(GetSeverity(event.Event))),
	}
	if event.SubjectType != "" {
		fields = append(fields, zap.String("subject_type", event.SubjectType))
	}
	if event.SubjectValue != "" {
		fields = append(fields, zap.String("subject_value", event.SubjectValue))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if len(event.Details) > 0 {
		detailsJSON, _ := json.Marshal(event.Details)
		fields = append(fields, zap.String("details", string(detailsJSON)))
	}

	sl.zapLogger.Log(level, string(event.Event), fields...)

	if sl.persistFunc != nil {
		go func(e SecurityEvent) {
			// request context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := sl.persistFunc(ctx, e); err != nil {
				sl.zapLogger.Error("Failed to persist security event", zap.Error(err))
			}
		}(event)
	}
}

// LogScanVerdict logs the terminal verdict of a scan
func (sl *SecurityLogger) LogScanVerdict(ctx context.Context, event EventType, scanID, uploaderID, objectPath string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["scan_id"] = scanID
	details["object"] = objectPath

	sl.Log(ctx, SecurityEvent{
		Event:        event,
		SubjectType:  "user_id",
		SubjectValue: HashValue(uploaderID),
		Details:      details,
	})
}

// LogQuarantine logs the outcome of deleting an infected object
func (sl *SecurityLogger) LogQuarantine(ctx context.Context, scanID, bucket, path string, err error) {
	event := SecurityEvent{
		Event:        EventFileQuarantined,
		SubjectType:  "object",
		SubjectValue: bucket + "/" + path,
		Details:      map[string]interface{}{"scan_id": scanID},
	}
	if err != nil {
		event.Event = EventQuarantineFailed
		event.Details["error"] = err.Error()
	}
	sl.Log(ctx, event)
}

// LogRateLimitTriggered logs when rate limiting is triggered. Without an
// uploader the client IP is the subject.
func (sl *SecurityLogger) LogRateLimitTriggered(ctx context.Context, uploaderID, ip, requestID, endpoint string) {
	event := SecurityEvent{
		Event:        EventRateLimitTriggered,
		SubjectType:  "ip",
		SubjectValue: ip,
		IP:           ip,
		RequestID:    requestID,
		Details:      map[string]interface{}{"endpoint": endpoint},
	}
	if uploaderID != "" {
		event.SubjectType = "user_id"
		event.SubjectValue = HashValue(uploaderID)
	}
	sl.Log(ctx, event)
}

// Sync flushes any buffered log entries
func (sl *SecurityLogger) Sync() error {
	return sl.zapLogger.Sync()
}

// HashValue creates a SHA256 hash of a value (for logging without PII)
func HashValue(value string) string {
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:8]) // First 16 chars of hex
}

// getEnvironment determines the current environment
func getEnvironment() string {
	if os.Getenv("GIN_MODE") == "release" {
		return "production"
	}
	return "development"
}
