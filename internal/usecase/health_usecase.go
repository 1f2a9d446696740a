package usecase

import (
	"context"
	"strings"
	"time"
)

type HealthUsecase interface {
	Check(ctx context.Context) (map[string]string, bool)
}

// Pinger is anything with a liveness probe (pgxpool.Pool, object stores)
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// DaemonProbe is the liveness surface of the local scanning daemon
type DaemonProbe interface {
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

// HealthDependencies lists what the health check probes. Nil entries are
// reported as "disabled".
type HealthDependencies struct {
	Tiers    []string
	ClamAV   DaemonProbe
	Database Pinger
	Redis    Pinger
	Storage  Pinger
	NATS     interface{ Connected() bool }
}

type healthUsecase struct {
	deps    HealthDependencies
	timeout time.Duration
}

func NewHealthUsecase(deps HealthDependencies) HealthUsecase {
	return &healthUsecase{deps: deps, timeout: 3 * time.Second}
}

// Check reports per-dependency status. Only the database is critical:
// every other dependency degrades the cascade or a side feature.
func (u *healthUsecase) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	report := map[string]string{
		"status": "ok",
		"tiers":  strings.Join(u.deps.Tiers, ","),
	}

	if u.deps.ClamAV != nil {
		if err := u.deps.ClamAV.Ping(ctx); err != nil {
			report["clamav"] = "unavailable: " + err.Error()
		} else {
			report["clamav"] = "ok"
			if version, err := u.deps.ClamAV.Version(ctx); err == nil {
				report["clamav_version"] = version
			}
		}
	} else {
		report["clamav"] = "disabled"
	}

	report["redis"] = probe(ctx, u.deps.Redis)
	report["storage"] = probe(ctx, u.deps.Storage)

	switch {
	case u.deps.NATS == nil:
		report["nats"] = "disabled"
	case u.deps.NATS.Connected():
		report["nats"] = "ok"
	default:
		report["nats"] = "disconnected"
	}

	healthy := true
	report["database"] = probe(ctx, u.deps.Database)
	if report["database"] != "ok" {
		report["status"] = "degraded"
		healthy = false
	}

	return report, healthy
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "unavailable: " + err.Error()
	}
	return "ok"
}
