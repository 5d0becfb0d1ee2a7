// Package messaging provides an optional NATS mirror of room events for
// external collaborators (archival, moderation tooling, analytics). The room
// itself never consumes these subjects: all room state lives in one process,
// and publishing is fire-and-forget after the in-room fan-out has happened.
package messaging

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects the mirror publishes to.
const (
	SubjectMessage  = "room.message"
	SubjectPresence = "room.presence"
	SubjectCall     = "room.call"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "room-mirror",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Mirror wraps the NATS connection. A nil Mirror is valid and publishes
// nothing, so the room runs standalone when NATS is not configured.
type Mirror struct {
	conn *nats.Conn
}

// NewMirror connects to NATS with the given config and returns a ready
// mirror. It returns an error if the initial connection fails.
func NewMirror(config Config) (*Mirror, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Mirror{conn: nc}, nil
}

// Publish sends data to the given subject. Errors are logged, not returned:
// mirroring is best-effort and must never affect room processing.
func (m *Mirror) Publish(subject string, data []byte) {
	if m == nil {
		return
	}
	if err := m.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s failed: %v", subject, err)
	}
}

// Close flushes and closes the NATS connection.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	if err := m.conn.Flush(); err != nil {
		log.Printf("[nats] flush failed: %v", err)
	}
	m.conn.Close()
}
