package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// subjectPrefix namespaces outreachd events on the NATS wire.
const subjectPrefix = "outreachd.events."

// AttachNATS registers a TypeAll handler that forwards every published
// event to NATS so external consumers (analytics, the document ingestion
// worker) can react without being called synchronously. Forwarding
// failures are isolated like any other handler failure.
func (b *Bus) AttachNATS(nc *nats.Conn) {
	b.Subscribe(TypeAll, func(_ context.Context, ev Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshaling event %s: %w", ev.ID, err)
		}
		if err := nc.Publish(subjectPrefix+ev.Type, data); err != nil {
			return fmt.Errorf("publishing event %s to NATS: %w", ev.ID, err)
		}
		return nil
	})
	b.logger.Info("NATS event bridge attached", zap.String("subject_prefix", subjectPrefix))
}

// StartEmbeddedServer runs an in-process NATS server on an ephemeral port
// and returns a connection to it. Used for single-binary deployments and
// tests; production deployments point Connect at an external cluster.
func StartEmbeddedServer() (*server.Server, *nats.Conn, error) {
	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedded NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("embedded NATS server not ready")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("connecting to embedded NATS server: %w", err)
	}
	return ns, nc, nil
}

// Connect dials an external NATS cluster with the retry settings used
// across outreachd.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}
