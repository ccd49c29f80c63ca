// file: meshd/pubsub/bus.go
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rskv-p/meshd/pkt"
	"github.com/rskv-p/meshd/regclient"
)

// PublishDelay is the interval between directed xpublish delivery attempts,
// bit-exact on PubSubBus.PUBSUB_DELAY in original_source/vyked/bus.py.
const PublishDelay = 5 * time.Second

// ackTimeout bounds one directed-publish delivery attempt.
const ackTimeout = 3 * time.Second

// SubscribeHandler receives a broker-fanned-out publish for one endpoint.
type SubscribeHandler func(service, version, endpoint string, payload json.RawMessage)

// Bus is the PubSub orchestration layer: best-effort broadcast through a
// Broker plus a directed, acknowledged delivery loop to every subscriber
// the Registry reports for an endpoint. Grounded bit-exact on
// original_source/vyked/bus.py's PubSubBus (dual delivery path: broker
// fan-out via _retry_publish, directed retry via xpublish/_connect_and_publish).
type Bus struct {
	broker Broker
	reg    *regclient.Client

	mu       sync.Mutex
	handlers map[string]SubscribeHandler // "service/version/endpoint" -> handler

	pendingMu sync.Mutex
	pending   map[string]context.CancelFunc // publish_id -> cancel
}

// NewBus wires a Broker and a Registry client into one PubSub Bus.
func NewBus(broker Broker, reg *regclient.Client) *Bus {
	return &Bus{
		broker:   broker,
		reg:      reg,
		handlers: make(map[string]SubscribeHandler),
		pending:  make(map[string]context.CancelFunc),
	}
}

func pubsubKey(service, version, endpoint string) string {
	return strings.Join([]string{service, version, endpoint}, "/")
}

// Subscribe installs handler for broker-fanned-out events on (service,
// version, endpoint). The handler also backs this process's directed
// xsubscribe declaration — callers register xsubscribe intent separately
// via regclient.XSubscribe with the matching strategy.
func (b *Bus) Subscribe(service, version, endpoint string, handler SubscribeHandler) error {
	key := pubsubKey(service, version, endpoint)

	b.mu.Lock()
	b.handlers[key] = handler
	b.mu.Unlock()

	return b.broker.Subscribe(key, func(subject string, data []byte) {
		parts := strings.SplitN(subject, "/", 3)
		if len(parts) != 3 {
			return
		}
		b.mu.Lock()
		h := b.handlers[subject]
		b.mu.Unlock()
		if h != nil {
			h(parts[0], parts[1], parts[2], json.RawMessage(data))
		}
	})
}

// Publish fans payload out through the broker to every subscriber of
// (service, version, endpoint), and starts a background directed xpublish
// loop that retries delivery to the Registry's get_subscribers targets
// until acknowledged or cancelled.
func (b *Bus) Publish(service, version, endpoint string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pubsub: marshal payload: %w", err)
	}
	if err := b.broker.Publish(pubsubKey(service, version, endpoint), data); err != nil {
		return fmt.Errorf("pubsub: broker publish: %w", err)
	}

	publishID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	b.pendingMu.Lock()
	b.pending[publishID] = cancel
	b.pendingMu.Unlock()

	go b.xpublish(ctx, publishID, service, version, endpoint, payload)
	return nil
}

// Ack cancels the pending xpublish retry loop for publishID, called once
// the remote endpoint's ack packet arrives back on a directed connection.
func (b *Bus) Ack(publishID string) {
	b.pendingMu.Lock()
	cancel, ok := b.pending[publishID]
	if ok {
		delete(b.pending, publishID)
	}
	b.pendingMu.Unlock()
	if ok {
		cancel()
	}
}

// xpublish repeatedly resolves the endpoint's current subscriber set and
// delivers to one target per distinct (service, version) group, selected
// per its Strategy, until a round in which at least one target acked, or
// until the delivery is cancelled.
// If no subscribers exist at all the loop exits immediately rather than
// retrying forever, matching the source's future.cancel() short-circuit.
func (b *Bus) xpublish(ctx context.Context, publishID, service, version, endpoint string, payload any) {
	defer b.Ack(publishID)

	for {
		subs, err := b.reg.GetSubscribers(service, version, endpoint)
		if err != nil || len(subs) == 0 {
			return
		}

		anyAcked := false
		for _, target := range groupByTarget(subs) {
			acked, err := deliverOnce(ctx, target, publishID, service, version, endpoint, payload)
			if err == nil && acked {
				anyAcked = true
			}
		}
		if anyAcked {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(PublishDelay):
		}
	}
}

// groupByTarget picks one subscriber per (service, version) group: the
// group's first entry if any entry in the group has LEADER strategy,
// otherwise a random entry.
func groupByTarget(subs []pkt.Subscriber) []pkt.Subscriber {
	groups := make(map[string][]pkt.Subscriber)
	var order []string
	for _, s := range subs {
		k := s.Service + "/" + s.Version
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}

	out := make([]pkt.Subscriber, 0, len(order))
	for _, k := range order {
		group := groups[k]
		hasLeader := false
		for _, s := range group {
			if pkt.NormalizeStrategy(s.Strategy) == pkt.LEADER {
				hasLeader = true
				break
			}
		}
		if hasLeader {
			out = append(out, group[0])
		} else {
			out = append(out, group[rand.Intn(len(group))])
		}
	}
	return out
}

// deliverOnce opens a short-lived connection to target, sends the directed
// publish envelope, and waits for either an ack or ackTimeout. acked is
// true only when the target replied with an ack packet before the timeout.
func deliverOnce(ctx context.Context, target pkt.Subscriber, publishID, service, version, endpoint string, payload any) (acked bool, err error) {
	addr := fmt.Sprintf("%s:%d", target.Host, target.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return false, fmt.Errorf("pubsub: dial %s: %w", addr, err)
	}
	defer conn.Close()

	writer := pkt.NewWriter(conn)
	env := pkt.Publish(service, version, endpoint, payload, publishID)
	if err := writer.Write(env); err != nil {
		return false, fmt.Errorf("pubsub: send publish: %w", err)
	}

	replyCh := make(chan *pkt.Envelope, 1)
	go func() {
		reader := pkt.NewReader(conn)
		if reply, err := reader.Read(); err == nil {
			replyCh <- reply
		}
	}()

	select {
	case reply := <-replyCh:
		return reply.Type == pkt.TypeAck, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(ackTimeout):
		return false, fmt.Errorf("pubsub: ack timeout for %s", addr)
	}
}
