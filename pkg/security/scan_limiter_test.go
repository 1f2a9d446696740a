package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanLimiterFailsOpenWithoutRedis(t *testing.T) {
	limiter := NewScanLimiter(nil, 5)

	allowed, retryAfter, err := limiter.Allow(context.Background(), "student-1")

	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
	assert.ErrorIs(t, err, ErrLimiterUnavailable)
}

func TestNilScanLimiterAllows(t *testing.T) {
	var limiter *ScanLimiter
	allowed, _, _ := limiter.Allow(context.Background(), "student-1")
	assert.True(t, allowed)
}

func TestSeverityLevels(t *testing.T) {
	assert.Equal(t, SeverityCRITICAL, GetSeverity(EventMalwareDetected))
	assert.Equal(t, SeverityMEDIUM, GetSeverity(EventType("unknown")))
	assert.True(t, IsHighOrAbove(EventQuarantineFailed))
	assert.False(t, IsHighOrAbove(EventFileClean))
	assert.Equal(t, "error", GetSeverity(EventFileTooLarge).ZapLevel().String())
}

func TestHashValue(t *testing.T) {
	assert.Len(t, HashValue("student-1"), 16)
	assert.Equal(t, HashValue("a"), HashValue("a"))
	assert.NotEqual(t, HashValue("a"), HashValue("b"))
}
