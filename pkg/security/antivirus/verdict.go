package antivirus

import "time"

// Status is the normalized outcome name of a verdict
type Status string

const (
	StatusClean      Status = "clean"
	StatusSuspicious Status = "suspicious"
	StatusInfected   Status = "infected"
	StatusError      Status = "error"
	StatusPending    Status = "pending"
)

// Reasons attached to Infected verdicts
const (
	ReasonSignatureMatch  = "signature_match"
	ReasonPatternMatch    = "pattern_match"
	ReasonEngineConsensus = "engine_consensus"
	ReasonFileTooLarge    = "file_too_large"
)

// Verdict is the outcome of one scanner's evaluation of a byte buffer.
// The set of implementations is closed: Clean, Suspicious, Infected,
// ScanError and Pending.
type Verdict interface {
	Status() Status
	Meta() VerdictMeta
	isVerdict()
}

// VerdictMeta is shared by every verdict case
type VerdictMeta struct {
	Scanner   string
	ScannedAt time.Time
}

func (m VerdictMeta) Meta() VerdictMeta { return m }

func newMeta(scanner string) VerdictMeta {
	return VerdictMeta{Scanner: scanner, ScannedAt: time.Now().UTC()}
}

// EngineStats counts cloud engines flagging a file out of those reporting
type EngineStats struct {
	Positives int
	Total     int
}

// Clean means no detection
type Clean struct {
	VerdictMeta
	Stats *EngineStats // cloud only
}

// Suspicious means some engines flagged the file, but fewer than InfectedEngineThreshold
type Suspicious struct {
	VerdictMeta
	Stats EngineStats
}

// Infected is a confirmed detection (or a policy rejection, see Reason)
type Infected struct {
	VerdictMeta
	Reason     string
	ThreatName string       // signature name (clamav)
	Pattern    string       // matched substring (pattern)
	Stats      *EngineStats // cloud only
	Detections []string     // "engine: signature", at most MaxDetections
}

// ScanError means the scanner could not complete. It is not a security verdict.
type ScanError struct {
	VerdictMeta
	Err error
}

// Pending means a cloud analysis did not finish within the polling bound
type Pending struct {
	VerdictMeta
	AnalysisID string
}

func (Clean) Status() Status      { return StatusClean }
func (Suspicious) Status() Status { return StatusSuspicious }
func (Infected) Status() Status   { return StatusInfected }
func (ScanError) Status() Status  { return StatusError }
func (Pending) Status() Status    { return StatusPending }

func (Clean) isVerdict()      {}
func (Suspicious) isVerdict() {}
func (Infected) isVerdict()   {}
func (ScanError) isVerdict()  {}
func (Pending) isVerdict()    {}

func (e ScanError) Error() string {
	if e.Err == nil {
		return e.Scanner + ": scan failed"
	}
	return e.Scanner + ": " + e.Err.Error()
}

// Unwrap exposes the underlying cause to errors.Is / errors.As
func (e ScanError) Unwrap() error { return e.Err }

// NewScanError builds an error verdict for the named scanner
func NewScanError(scanner string, err error) ScanError {
	return ScanError{VerdictMeta: newMeta(scanner), Err: err}
}

// FileTooLarge is the policy verdict for objects above the size ceiling.
// It is not produced by any scanner.
func FileTooLarge() Infected {
	return Infected{
		VerdictMeta: newMeta(SizePolicyName),
		Reason:      ReasonFileTooLarge,
	}
}
