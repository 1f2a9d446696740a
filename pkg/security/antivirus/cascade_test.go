package antivirus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	name    string
	verdict func() Verdict
	calls   int
}

func (s *stubScanner) Name() string { return s.name }

func (s *stubScanner) Scan(ctx context.Context, filename string, data []byte) Verdict {
	s.calls++
	return s.verdict()
}

func failing(name string) *stubScanner {
	return &stubScanner{name: name, verdict: func() Verdict {
		return NewScanError(name, errors.New("unavailable"))
	}}
}

func returning(name string, status Status) *stubScanner {
	return &stubScanner{name: name, verdict: func() Verdict {
		meta := newMeta(name)
		switch status {
		case StatusClean:
			return Clean{VerdictMeta: meta}
		case StatusSuspicious:
			return Suspicious{VerdictMeta: meta, Stats: EngineStats{Positives: 1, Total: 60}}
		case StatusPending:
			return Pending{VerdictMeta: meta, AnalysisID: "a-1"}
		default:
			return Infected{VerdictMeta: meta, ThreatName: "x"}
		}
	}}
}

func TestCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("Should stop at the first non-error verdict", func(t *testing.T) {
		cloud := returning("virustotal", StatusSuspicious)
		daemon := returning("clamav", StatusInfected)
		heuristic := returning("pattern", StatusClean)

		v, attempts := NewCascade(cloud, daemon, heuristic).Run(ctx, "f", []byte("x"))

		assert.Equal(t, StatusSuspicious, v.Status())
		assert.Equal(t, 1, cloud.calls)
		assert.Zero(t, daemon.calls)
		assert.Zero(t, heuristic.calls)
		assert.Len(t, attempts, 1)
	})

	t.Run("Should accept pending as final", func(t *testing.T) {
		cloud := returning("virustotal", StatusPending)
		daemon := returning("clamav", StatusClean)

		v, _ := NewCascade(cloud, daemon).Run(ctx, "f", nil)

		assert.Equal(t, StatusPending, v.Status())
		assert.Zero(t, daemon.calls)
	})

	t.Run("Should fall through errors in order", func(t *testing.T) {
		cloud := failing("virustotal")
		daemon := failing("clamav")
		heuristic := returning("pattern", StatusClean)

		v, attempts := NewCascade(cloud, daemon, heuristic).Run(ctx, "f", nil)

		assert.Equal(t, StatusClean, v.Status())
		assert.Equal(t, "pattern", v.Meta().Scanner)
		require.Len(t, attempts, 3)
		assert.Equal(t, []string{"virustotal", "clamav", "pattern"},
			[]string{attempts[0].Scanner, attempts[1].Scanner, attempts[2].Scanner})
		assert.Equal(t, StatusError, attempts[0].Status)
		assert.Contains(t, attempts[1].Error, "unavailable")
	})

	t.Run("Should return the last error when every tier errors", func(t *testing.T) {
		v, attempts := NewCascade(failing("virustotal"), failing("clamav")).Run(ctx, "f", nil)

		assert.Equal(t, StatusError, v.Status())
		assert.Equal(t, "clamav", v.Meta().Scanner)
		assert.Len(t, attempts, 2)
	})

	t.Run("Should return an error verdict when empty", func(t *testing.T) {
		v, attempts := NewCascade().Run(ctx, "f", nil)

		se, ok := v.(ScanError)
		require.True(t, ok)
		assert.ErrorIs(t, se, ErrNoScanners)
		assert.Empty(t, attempts)
	})

	t.Run("Should list tiers in order", func(t *testing.T) {
		c := NewCascade(failing("virustotal"), NewPatternScanner(nil))
		assert.Equal(t, []string{"virustotal", "pattern"}, c.Tiers())
	})
}
