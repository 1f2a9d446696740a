package events

import (
	"encoding/json"
	"errors"
	"time"

	"go-filescan-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const streamName = "file-scan-events"

var ErrNotConnected = errors.New("jetstream not initialized")

// Publisher publishes scan events via JetStream (durable, stored)
type Publisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect connects to NATS, initializes JetStream and ensures the stream exists
func Connect(url string) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("filescan-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	p := &Publisher{nc: nc, js: js}
	if err := p.ensureStream(); err != nil {
		// publishing still works if another service owns the stream
		logger.Log.Warn("Failed to ensure NATS stream", "stream", streamName, "error", err)
	}

	logger.Log.Info("NATS connected, JetStream initialized", "url", url)
	return p, nil
}

func (p *Publisher) ensureStream() error {
	if _, err := p.js.StreamInfo(streamName); err == nil {
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"files.scanned", "files.quarantined"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

// PublishEvent publishes payload as JSON with a unique message id for dedup
func (p *Publisher) PublishEvent(subject string, payload interface{}) error {
	if p == nil || p.js == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := p.js.Publish(subject, data, nats.MsgId(uuid.New().String())); err != nil {
		logger.Log.Error("NATS publish failed", "subject", subject, "error", err)
		return err
	}
	return nil
}

// Connected reports the connection state (for health checks)
func (p *Publisher) Connected() bool {
	return p != nil && p.nc != nil && p.nc.IsConnected()
}

// Close drains the connection
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Drain()
	}
}

// Noop discards events; used when NATS is not configured
type Noop struct{}

func (Noop) PublishEvent(subject string, payload interface{}) error { return nil }
