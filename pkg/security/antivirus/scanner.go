package antivirus

import (
	"context"
	"errors"
)

// Tier names as recorded in verdicts and attempts
const (
	VirusTotalScannerName = "virustotal"
	ClamAVScannerName     = "clamav"
	PatternScannerName    = "pattern"

	// SizePolicyName identifies verdicts produced by the size ceiling rather than a scanner
	SizePolicyName = "size_policy"
)

// ErrNoScanners is returned inside a ScanError when the cascade is empty
var ErrNoScanners = errors.New("no scanners configured")

// Scanner is the capability shared by every tier of the cascade.
// Implementations never return nil; failures are reported as ScanError.
type Scanner interface {
	// Scan evaluates the file content and returns a verdict
	Scan(ctx context.Context, filename string, data []byte) Verdict

	// Name returns the scanner implementation name (for logging and audit)
	Name() string
}

// Attempt records one tier invocation inside a cascade run
type Attempt struct {
	Scanner string `json:"scanner"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Cascade tries scanners strictly in order and stops at the first
// verdict that is not a ScanError.
type Cascade struct {
	scanners []Scanner
}

func NewCascade(scanners ...Scanner) *Cascade {
	return &Cascade{scanners: scanners}
}

// Tiers returns the scanner names in cascade order
func (c *Cascade) Tiers() []string {
	names := make([]string, 0, len(c.scanners))
	for _, s := range c.scanners {
		names = append(names, s.Name())
	}
	return names
}

// Run executes the cascade. When every tier errors, the last error
// verdict is returned so the caller can persist it as such.
func (c *Cascade) Run(ctx context.Context, filename string, data []byte) (Verdict, []Attempt) {
	attempts := make([]Attempt, 0, len(c.scanners))
	var last Verdict = NewScanError("cascade", ErrNoScanners)

	for _, s := range c.scanners {
		v := s.Scan(ctx, filename, data)
		if v == nil {
			v = NewScanError(s.Name(), errors.New("scanner returned no verdict"))
		}

		attempt := Attempt{Scanner: s.Name(), Status: v.Status()}
		if se, ok := v.(ScanError); ok {
			attempt.Error = se.Error()
			attempts = append(attempts, attempt)
			last = v
			continue
		}

		attempts = append(attempts, attempt)
		return v, attempts
	}

	return last, attempts
}
