package registry_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rskv-p/meshd/pkt"
	"github.com/rskv-p/meshd/registry"
)

type client struct {
	conn   net.Conn
	reader *pkt.Reader
	writer *pkt.Writer
}

func dialServer(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{conn: conn, reader: pkt.NewReader(conn), writer: pkt.NewWriter(conn)}
}

func startServer(t *testing.T) string {
	t.Helper()
	srv := registry.New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ready := make(chan struct{})
	go func() {
		go func() {
			for {
				if c, err := net.Dial("tcp", addr); err == nil {
					_ = c.Close()
					close(ready)
					return
				}
				time.Sleep(5 * time.Millisecond)
			}
		}()
		_ = srv.Serve(ctx, addr)
	}()
	<-ready
	return addr
}

func (c *client) register(service, version, host string, port int, nodeID string, deps []pkt.Vendor) {
	_ = c.writer.Write(pkt.Register(service, version, host, port, nodeID, pkt.TCP, deps))
}

func (c *client) readUntil(t *testing.T, typ pkt.Type, timeout time.Duration) *pkt.Envelope {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		env, err := c.reader.Read()
		require.NoError(t, err)
		if env.Type == typ {
			return env
		}
	}
}

func TestActivationSweepWaitsForAllDependencies(t *testing.T) {
	addr := startServer(t)

	consumer := dialServer(t, addr)
	consumer.register("billing", "1", "127.0.0.1", 9001, "billing-1", []pkt.Vendor{
		{Service: "ledger", Version: "1"},
	})

	// no ledger instance yet: consumer must not receive "registered"
	consumer.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, err := consumer.reader.Read()
	assert.Error(t, err, "consumer should not activate before its dependency registers")

	ledger := dialServer(t, addr)
	ledger.register("ledger", "1", "127.0.0.1", 9002, "ledger-1", nil)

	activated := consumer.readUntil(t, pkt.TypeRegistered, time.Second)
	var body struct {
		Vendors []pkt.ActivatedVendor `json:"vendors"`
	}
	require.NoError(t, pkt.DecodeParams(activated.Params, &body))
	require.Len(t, body.Vendors, 1)
	assert.Equal(t, "ledger", body.Vendors[0].Name)
	require.Len(t, body.Vendors[0].Addresses, 1)
	assert.Equal(t, "ledger-1", body.Vendors[0].Addresses[0].NodeID)
}

func TestDeregisterCascadesAndRependsConsumers(t *testing.T) {
	addr := startServer(t)

	ledger := dialServer(t, addr)
	ledger.register("ledger", "1", "127.0.0.1", 9002, "ledger-1", nil)

	consumer := dialServer(t, addr)
	consumer.register("billing", "1", "127.0.0.1", 9001, "billing-1", []pkt.Vendor{
		{Service: "ledger", Version: "1"},
	})
	consumer.readUntil(t, pkt.TypeRegistered, time.Second)

	require.NoError(t, ledger.conn.Close())

	dereg := consumer.readUntil(t, pkt.TypeDeregister, time.Second)
	var body struct {
		NodeID  string `json:"node_id"`
		Service string `json:"service"`
		Version string `json:"version"`
	}
	require.NoError(t, pkt.DecodeParams(dereg.Params, &body))
	assert.Equal(t, "ledger-1", body.NodeID)
	assert.Equal(t, "ledger", body.Service)

	newLedger := dialServer(t, addr)
	newLedger.register("ledger", "1", "127.0.0.1", 9003, "ledger-2", nil)

	reactivated := consumer.readUntil(t, pkt.TypeRegistered, time.Second)
	var reBody struct {
		Vendors []pkt.ActivatedVendor `json:"vendors"`
	}
	require.NoError(t, pkt.DecodeParams(reactivated.Params, &reBody))
	require.Len(t, reBody.Vendors[0].Addresses, 1)
	assert.Equal(t, "ledger-2", reBody.Vendors[0].Addresses[0].NodeID)
}

func TestGetInstancesRoundTrip(t *testing.T) {
	addr := startServer(t)

	ledger := dialServer(t, addr)
	ledger.register("ledger", "1", "127.0.0.1", 9002, "ledger-1", nil)
	time.Sleep(50 * time.Millisecond)

	caller := dialServer(t, addr)
	require.NoError(t, caller.writer.Write(pkt.GetInstances("ledger", "1")))

	reply := caller.readUntil(t, pkt.TypeInstances, time.Second)
	var body struct {
		Instances []pkt.Address `json:"instances"`
	}
	require.NoError(t, pkt.DecodeParams(reply.Params, &body))
	require.Len(t, body.Instances, 1)
	assert.Equal(t, "ledger-1", body.Instances[0].NodeID)
}

func TestSubscribersRoundTrip(t *testing.T) {
	addr := startServer(t)

	sub := dialServer(t, addr)
	sub.register("notifier", "1", "127.0.0.1", 9010, "notifier-1", nil)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, sub.writer.Write(pkt.XSubscribe("127.0.0.1", 9010, "notifier-1", []pkt.SubscribeEvent{
		{Service: "billing", Version: "1", Endpoint: "charge_created", Strategy: pkt.LEADER},
	})))
	time.Sleep(50 * time.Millisecond)

	caller := dialServer(t, addr)
	req := pkt.GetSubscribers("billing", "1", "charge_created")
	require.NoError(t, caller.writer.Write(req))

	reply := caller.readUntil(t, pkt.TypeSubscribers, time.Second)
	assert.Equal(t, req.RequestID, reply.RequestID)

	var body struct {
		Subscribers []pkt.Subscriber `json:"subscribers"`
	}
	require.NoError(t, pkt.DecodeParams(reply.Params, &body))
	require.Len(t, body.Subscribers, 1)
	assert.Equal(t, "notifier-1", body.Subscribers[0].NodeID)
	assert.Equal(t, pkt.LEADER, body.Subscribers[0].Strategy)
}
