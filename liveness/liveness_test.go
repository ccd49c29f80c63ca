package liveness_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rskv-p/meshd/liveness"
	"github.com/rskv-p/meshd/pkt"
)

func TestHandlePongOnNewMonitor(t *testing.T) {
	var buf bytes.Buffer
	writer := pkt.NewWriter(&buf)

	mon := liveness.NewMonitor("node-1", writer, nil)
	mon.HandlePong(pkt.Pong("node-1", 1))

	assert.NotNil(t, mon)
}

func TestPingIntervalAndTimeoutConstants(t *testing.T) {
	assert.Equal(t, 5*time.Second, liveness.PingInterval)
	assert.Equal(t, 15*time.Second, liveness.PongTimeout)
	assert.Greater(t, liveness.PongTimeout, liveness.PingInterval*2)
}

func TestTrackerRoutesPongToMatchingMonitor(t *testing.T) {
	var buf bytes.Buffer
	writer := pkt.NewWriter(&buf)

	tracker := liveness.NewTracker()
	timedOut := make(chan string, 1)

	ctx := t.Context()
	tracker.Watch(ctx, "node-1", writer, func(nodeID string) { timedOut <- nodeID })
	defer tracker.Stop("node-1")

	tracker.Pong(pkt.Pong("node-1", 1))

	select {
	case <-timedOut:
		t.Fatal("monitor reported timeout right after a pong")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopRemovesMonitor(t *testing.T) {
	var buf bytes.Buffer
	writer := pkt.NewWriter(&buf)

	tracker := liveness.NewTracker()
	ctx := t.Context()
	tracker.Watch(ctx, "node-1", writer, nil)
	tracker.Stop("node-1")

	require.NotPanics(t, func() { tracker.Pong(pkt.Pong("node-1", 1)) })
}
