// file: meshd/pubsub/nats_broker.go
package pubsub

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// NATSBroker is the production Broker backed by a NATS connection, grounded
// in the teacher's servs/s_nats client wiring. Subjects and patterns are
// passed to NATS unchanged, so NATS subject syntax applies ("."-separated
// tokens, "*" and ">" wildcards); the "/"-joined keys pubsub.Bus uses are
// therefore single literal NATS tokens.
type NATSBroker struct {
	url string
	opt []nats.Option

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

var _ Broker = (*NATSBroker)(nil)

// NewNATSBroker returns an unconnected broker for the given server URL.
func NewNATSBroker(url string, opts ...nats.Option) *NATSBroker {
	return &NATSBroker{url: url, opt: opts}
}

func (b *NATSBroker) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil && b.conn.IsConnected() {
		return nil
	}
	conn, err := nats.Connect(b.url, b.opt...)
	if err != nil {
		return fmt.Errorf("pubsub: nats connect: %w", err)
	}
	b.conn = conn
	return nil
}

func (b *NATSBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}

func (b *NATSBroker) Publish(subject string, data []byte) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("pubsub: nats broker not connected")
	}
	return conn.Publish(subject, data)
}

func (b *NATSBroker) Subscribe(pattern string, handler func(subject string, data []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return fmt.Errorf("pubsub: nats broker not connected")
	}
	sub, err := b.conn.Subscribe(pattern, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return err
	}
	b.subs = append(b.subs, sub)
	return nil
}

func (b *NATSBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}
