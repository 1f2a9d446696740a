package security

import "go.uber.org/zap/zapcore"

// Severity represents the severity level of a security event
// This is derived from EventType, NOT user-provided
type Severity string

const (
	SeverityINFO     Severity = "INFO"
	SeverityMEDIUM   Severity = "MEDIUM"
	SeverityWARN     Severity = "WARN"
	SeverityHIGH     Severity = "HIGH"
	SeverityCRITICAL Severity = "CRITICAL"
)

// EventSeverityMap defines the hard-coded severity for each event type
var EventSeverityMap = map[EventType]Severity{
	EventFileClean:       SeverityINFO,
	EventFileScanPending: SeverityMEDIUM,
	EventScanFailed:      SeverityMEDIUM,

	EventFileSuspicious:     SeverityWARN,
	EventScannerUnavailable: SeverityWARN,
	EventRateLimitTriggered: SeverityWARN,
	EventValidationFailed:   SeverityWARN,

	EventFileTooLarge:    SeverityHIGH,
	EventFileQuarantined: SeverityHIGH,

	EventMalwareDetected:  SeverityCRITICAL,
	EventQuarantineFailed: SeverityCRITICAL,
}

// GetSeverity returns the severity for an event type
// If the event type is not mapped, defaults to MEDIUM
func GetSeverity(eventType EventType) Severity {
	if severity, ok := EventSeverityMap[eventType]; ok {
		return severity
	}
	return SeverityMEDIUM
}

// ZapLevel maps a severity onto a log level
func (s Severity) ZapLevel() zapcore.Level {
	switch s {
	case SeverityINFO, SeverityMEDIUM:
		return zapcore.InfoLevel
	case SeverityWARN:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// IsHighOrAbove returns true if the event is HIGH or CRITICAL severity
func IsHighOrAbove(eventType EventType) bool {
	severity := GetSeverity(eventType)
	return severity == SeverityHIGH || severity == SeverityCRITICAL
}
