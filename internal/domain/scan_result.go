package domain

import (
	"fmt"

	"go-filescan-backend/pkg/security/antivirus"
)

// NewScanResult flattens a verdict into the persisted payload.
// Unknown verdict types are recorded as errors, never as clean.
func NewScanResult(v antivirus.Verdict) *ScanResult {
	if v == nil {
		return &ScanResult{Status: ScanStatusError, Error: "no verdict"}
	}

	meta := v.Meta()
	r := &ScanResult{
		Scanner:   meta.Scanner,
		ScannedAt: meta.ScannedAt,
	}

	switch tv := v.(type) {
	case antivirus.Clean:
		r.Status = ScanStatusClean
		setStats(r, tv.Stats)
	case antivirus.Suspicious:
		r.Status = ScanStatusSuspicious
		setStats(r, &tv.Stats)
	case antivirus.Infected:
		r.Status = ScanStatusInfected
		r.Reason = tv.Reason
		r.ThreatName = tv.ThreatName
		r.DetectedPattern = tv.Pattern
		r.Detections = tv.Detections
		setStats(r, tv.Stats)
	case antivirus.Pending:
		r.Status = ScanStatusPending
		r.AnalysisID = tv.AnalysisID
	case antivirus.ScanError:
		r.Status = ScanStatusError
		r.Error = tv.Error()
	default:
		r.Status = ScanStatusError
		r.Error = fmt.Sprintf("unhandled verdict type %T", v)
	}

	return r
}

func setStats(r *ScanResult, s *antivirus.EngineStats) {
	if s == nil {
		return
	}
	positives, total := s.Positives, s.Total
	r.Positives = &positives
	r.Total = &total
}
