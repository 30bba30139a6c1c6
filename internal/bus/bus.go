// Package bus provides an in-process signal pub/sub for the attention
// daemon (P5): an embedded NATS server, so no external broker is required.
// cmd/prosoche wires [Bus.PublishSignals] into signals.Engine.Publish, which
// only signals.Engine.Tick calls; the daemon's loop uses TickByCollector and
// hands signals to the P2 scorer directly, and nothing subscribes.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	nc "github.com/nats-io/nats.go"

	"github.com/aletheia-mem/aletheia/pkg/memory"
)

// SignalsSubject is the subject [Bus.PublishSignals] publishes
// [memory.Signal] batches to and [Bus.SubscribeSignals] listens on.
const SignalsSubject = "aletheia.signals"

// Embedded runs an in-process NATS server plus a connected [Bus] client.
// Stop tears down both. Grounded on the teacher-adjacent pack's embedded
// broker pattern (nats-server/v2 started in-process, no external dependency).
type Embedded struct {
	server *natsserver.Server
	bus    *Bus
}

// StartEmbedded launches an in-process NATS server on an OS-assigned port
// and returns an [Embedded] wrapping a connected [Bus].
func StartEmbedded(clientName string) (*Embedded, error) {
	opts := &natsserver.Options{
		Port:     -1, // OS-assigned
		HTTPPort: -1,
		NoLog:    true,
		NoSigs:   true,
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("bus: start embedded nats server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("bus: embedded nats server did not become ready")
	}

	b, err := Connect(srv.ClientURL(), clientName)
	if err != nil {
		srv.Shutdown()
		return nil, err
	}

	return &Embedded{server: srv, bus: b}, nil
}

// Bus returns the connected client.
func (e *Embedded) Bus() *Bus { return e.bus }

// Stop closes the client connection and shuts down the embedded server.
func (e *Embedded) Stop() {
	if e.bus != nil {
		e.bus.Close()
	}
	if e.server != nil {
		e.server.Shutdown()
	}
}

// Bus wraps a NATS connection with JSON-aware publish/subscribe helpers
// scoped to [memory.Signal] traffic.
type Bus struct {
	conn *nc.Conn
}

// Connect dials url and returns a ready [Bus].
func Connect(url, clientName string) (*Bus, error) {
	conn, err := nc.Connect(url,
		nc.Name(clientName),
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}
	return &Bus{conn: conn}, nil
}

// Close closes the connection; subscriptions are not drained first.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// PublishSignals marshals signals as JSON and publishes them to
// [SignalsSubject]. A collector failure means simply not calling this;
// PublishSignals itself never retries.
func (b *Bus) PublishSignals(signals []memory.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	data, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("bus: marshal signals: %w", err)
	}
	if err := b.conn.Publish(SignalsSubject, data); err != nil {
		return fmt.Errorf("bus: publish signals: %w", err)
	}
	return nil
}

// SubscribeSignals registers handler to be invoked with every batch of
// signals published to [SignalsSubject]. Malformed payloads are dropped
// silently (a collector bug should not crash the scorer).
func (b *Bus) SubscribeSignals(handler func([]memory.Signal)) (*nc.Subscription, error) {
	return b.conn.Subscribe(SignalsSubject, func(msg *nc.Msg) {
		var signals []memory.Signal
		if err := json.Unmarshal(msg.Data, &signals); err != nil {
			return
		}
		handler(signals)
	})
}
