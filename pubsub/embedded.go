// file: meshd/pubsub/embedded.go
package pubsub

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedNATS runs an in-process nats-server, letting a single mesh node
// stand up its own broker for local dev or tests instead of requiring an
// external nats-server process.
type EmbeddedNATS struct {
	srv *server.Server
}

// StartEmbeddedNATS starts an in-process NATS server on host:port and blocks
// until it is ready to accept connections. Port -1 picks a free port
// (nats-server treats 0 as its default port, 4222).
func StartEmbeddedNATS(host string, port int) (*EmbeddedNATS, error) {
	srv, err := server.NewServer(&server.Options{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("pubsub: embedded nats-server init: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("pubsub: embedded nats-server not ready")
	}
	return &EmbeddedNATS{srv: srv}, nil
}

// ClientURL returns the URL a NATSBroker should connect to.
func (e *EmbeddedNATS) ClientURL() string {
	return e.srv.ClientURL()
}

// Shutdown stops the embedded server.
func (e *EmbeddedNATS) Shutdown() {
	e.srv.Shutdown()
}
