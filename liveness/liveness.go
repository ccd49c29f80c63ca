// file: meshd/liveness/liveness.go
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/rskv-p/meshd/pkt"
)

// PingInterval and PongTimeout fix the ping/pong cadence at 5s/15s (three
// missed pings), a concrete implementation knob the source leaves as an
// unimplemented TODO (original_source/vyked/bus.py references a Pinger
// class that is never defined).
const (
	PingInterval = 5 * time.Second
	PongTimeout  = 15 * time.Second
)

// Monitor pings one peer connection on PingInterval and calls onTimeout if
// no pong has been observed for PongTimeout, mirroring the source's
// planned Pinger/handle_ping_timeout pair.
type Monitor struct {
	nodeID    string
	writer    *pkt.Writer
	onTimeout func(nodeID string)

	mu       sync.Mutex
	lastPong time.Time
	fired    bool
}

// NewMonitor creates a Monitor for nodeID, writing pings through writer.
func NewMonitor(nodeID string, writer *pkt.Writer, onTimeout func(nodeID string)) *Monitor {
	return &Monitor{
		nodeID:    nodeID,
		writer:    writer,
		onTimeout: onTimeout,
		lastPong:  time.Now(),
	}
}

// Run sends pings on PingInterval and watches for a stale lastPong until
// ctx is cancelled. Run blocks; call it in its own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			stale := time.Since(m.lastPong) > PongTimeout
			already := m.fired
			if stale {
				m.fired = true
			}
			m.mu.Unlock()

			if stale {
				if !already && m.onTimeout != nil {
					m.onTimeout(m.nodeID)
				}
				return
			}
			_ = m.writer.Write(pkt.Ping(m.nodeID))
		}
	}
}

// HandlePong records a pong observed for this peer.
func (m *Monitor) HandlePong(env *pkt.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPong = time.Now()
	m.fired = false
}

// Tracker manages one Monitor per peer node_id, used by the registry and
// bus connection handlers to share a single liveness mechanism.
type Tracker struct {
	mu       sync.Mutex
	monitors map[string]*Monitor
	cancels  map[string]context.CancelFunc
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		monitors: make(map[string]*Monitor),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Watch starts monitoring nodeID over writer, calling onTimeout at most
// once if it goes silent. Calling Watch again for the same nodeID replaces
// the previous monitor.
func (t *Tracker) Watch(ctx context.Context, nodeID string, writer *pkt.Writer, onTimeout func(nodeID string)) {
	t.Stop(nodeID)

	monCtx, cancel := context.WithCancel(ctx)
	mon := NewMonitor(nodeID, writer, onTimeout)

	t.mu.Lock()
	t.monitors[nodeID] = mon
	t.cancels[nodeID] = cancel
	t.mu.Unlock()

	go mon.Run(monCtx)
}

// Pong routes a pong envelope to its monitor, if one is registered.
func (t *Tracker) Pong(env *pkt.Envelope) {
	t.mu.Lock()
	mon, ok := t.monitors[env.NodeID]
	t.mu.Unlock()
	if ok {
		mon.HandlePong(env)
	}
}

// Stop cancels and removes the monitor for nodeID, if any.
func (t *Tracker) Stop(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.cancels[nodeID]; ok {
		cancel()
		delete(t.cancels, nodeID)
		delete(t.monitors, nodeID)
	}
}
