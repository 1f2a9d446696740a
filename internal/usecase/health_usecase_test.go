package usecase_test

import (
	"context"
	"errors"
	"testing"

	"go-filescan-backend/internal/usecase"

	"github.com/stretchr/testify/assert"
)

type fakeDaemon struct {
	pingErr error
}

func (d fakeDaemon) Ping(ctx context.Context) error { return d.pingErr }

func (d fakeDaemon) Version(ctx context.Context) (string, error) {
	return "ClamAV 1.3.1/27400/Tue Sep 10 08:00:00 2024", nil
}

type fakeNATS bool

func (n fakeNATS) Connected() bool { return bool(n) }

func TestHealthCheck(t *testing.T) {
	ok := usecase.PingFunc(func(ctx context.Context) error { return nil })
	down := usecase.PingFunc(func(ctx context.Context) error { return errors.New("dial tcp: refused") })

	t.Run("Should report every dependency", func(t *testing.T) {
		uc := usecase.NewHealthUsecase(usecase.HealthDependencies{
			Tiers:    []string{"virustotal", "clamav", "pattern"},
			ClamAV:   fakeDaemon{},
			Database: ok,
			Redis:    ok,
			Storage:  ok,
			NATS:     fakeNATS(true),
		})

		report, healthy := uc.Check(context.Background())
		assert.True(t, healthy)
		assert.Equal(t, "ok", report["status"])
		assert.Equal(t, "virustotal,clamav,pattern", report["tiers"])
		assert.Equal(t, "ok", report["clamav"])
		assert.Contains(t, report["clamav_version"], "ClamAV 1.3.1")
		assert.Equal(t, "ok", report["nats"])
	})

	t.Run("Should stay healthy when only optional dependencies fail", func(t *testing.T) {
		uc := usecase.NewHealthUsecase(usecase.HealthDependencies{
			Tiers:    []string{"pattern"},
			ClamAV:   fakeDaemon{pingErr: errors.New("timeout")},
			Database: ok,
			Redis:    down,
			NATS:     fakeNATS(false),
		})

		report, healthy := uc.Check(context.Background())
		assert.True(t, healthy)
		assert.Equal(t, "unavailable: timeout", report["clamav"])
		assert.Equal(t, "disabled", report["storage"])
		assert.Equal(t, "disconnected", report["nats"])
		assert.Contains(t, report["redis"], "refused")
	})

	t.Run("Should degrade when the database is down", func(t *testing.T) {
		uc := usecase.NewHealthUsecase(usecase.HealthDependencies{Database: down})

		report, healthy := uc.Check(context.Background())
		assert.False(t, healthy)
		assert.Equal(t, "degraded", report["status"])
		assert.Equal(t, "disabled", report["clamav"])
	})
}
