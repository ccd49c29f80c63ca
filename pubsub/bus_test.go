package pubsub_test

import (
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rskv-p/meshd/pkt"
	"github.com/rskv-p/meshd/pubsub"
	"github.com/rskv-p/meshd/regclient"
)

func dialRegistry(t *testing.T) (*regclient.Client, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			acceptCh <- c
		}
	}()

	c, err := regclient.Dial(ln.Addr().String(), "node-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, <-acceptCh
}

func TestPublishFansOutThroughBroker(t *testing.T) {
	broker := pubsub.NewLocalBroker()
	require.NoError(t, broker.Connect())

	reg, server := dialRegistry(t)
	defer server.Close()

	// drain get_subscribers requests with an empty reply so xpublish exits
	// immediately rather than retrying for the lifetime of the test.
	go func() {
		r := pkt.NewReader(server)
		w := pkt.NewWriter(server)
		for {
			env, err := r.Read()
			if err != nil {
				return
			}
			if env.Type == pkt.TypeGetSubscribers {
				_ = w.Write(pkt.Subscribers(env.RequestID, "", "", "", nil))
			}
		}
	}()

	bus := pubsub.NewBus(broker, reg)

	received := make(chan json.RawMessage, 1)
	require.NoError(t, bus.Subscribe("billing", "1", "charge_created", func(service, version, endpoint string, payload json.RawMessage) {
		received <- payload
	}))

	require.NoError(t, bus.Publish("billing", "1", "charge_created", map[string]any{"amount": 42}))

	select {
	case payload := <-received:
		var body map[string]any
		require.NoError(t, json.Unmarshal(payload, &body))
		assert.EqualValues(t, 42, body["amount"])
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive broker fan-out")
	}
}

func TestXPublishDeliversAndAcks(t *testing.T) {
	reg, server := dialRegistry(t)
	defer server.Close()

	target, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer target.Close()
	host, portStr, err := net.SplitHostPort(target.Addr().String())
	require.NoError(t, err)

	deliveredCh := make(chan *pkt.Envelope, 1)
	go func() {
		conn, err := target.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := pkt.NewReader(conn)
		env, err := r.Read()
		if err != nil {
			return
		}
		deliveredCh <- env
		w := pkt.NewWriter(conn)
		_ = w.Write(pkt.Ack(env.PublishID))
	}()

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	go func() {
		r := pkt.NewReader(server)
		env, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, pkt.TypeGetSubscribers, env.Type)

		w := pkt.NewWriter(server)
		_ = w.Write(pkt.Subscribers(env.RequestID, "reports", "1", "charge_created", []pkt.Subscriber{
			{Service: "reports", Version: "1", Host: host, Port: port, NodeID: "n1", Strategy: pkt.LEADER},
		}))
	}()

	broker := pubsub.NewLocalBroker()
	require.NoError(t, broker.Connect())
	bus := pubsub.NewBus(broker, reg)

	require.NoError(t, bus.Publish("billing", "1", "charge_created", map[string]any{"amount": 7}))

	select {
	case env := <-deliveredCh:
		assert.Equal(t, pkt.TypePublish, env.Type)
		assert.Equal(t, "billing", env.Service)
		assert.Equal(t, "charge_created", env.Endpoint)
	case <-time.After(2 * time.Second):
		t.Fatal("directed xpublish did not reach target")
	}
}
