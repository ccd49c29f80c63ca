package regclient_test

import (
	"net"
	"testing"
	"time"

	"github.com/rskv-p/meshd/pkt"
	"github.com/rskv-p/meshd/regclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenAndAccept(t *testing.T) (ln net.Listener, acceptCh chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	acceptCh = make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			acceptCh <- c
		}
	}()
	return ln, acceptCh
}

func TestRegisterBlocksUntilActivated(t *testing.T) {
	ln, acceptCh := listenAndAccept(t)

	done := make(chan error, 1)
	go func() {
		c, err := regclient.Dial(ln.Addr().String(), "node-1")
		if err != nil {
			done <- err
			return
		}
		defer c.Close()
		done <- c.Register("10.0.0.1", 9000, "billing", "1", nil, pkt.TCP)
	}()

	server := <-acceptCh
	defer server.Close()

	r := pkt.NewReader(server)
	reg, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, pkt.TypeRegister, reg.Type)

	w := pkt.NewWriter(server)
	require.NoError(t, w.Write(pkt.Activated(nil)))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Register did not return after activation")
	}
}

func TestGetSubscribersCorrelatesByRequestID(t *testing.T) {
	ln, acceptCh := listenAndAccept(t)

	c, err := regclient.Dial(ln.Addr().String(), "node-1")
	require.NoError(t, err)
	defer c.Close()

	server := <-acceptCh
	defer server.Close()

	resultCh := make(chan []pkt.Subscriber, 1)
	errCh := make(chan error, 1)
	go func() {
		subs, err := c.GetSubscribers("billing", "1", "charge_created")
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- subs
	}()

	r := pkt.NewReader(server)
	req, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, pkt.TypeGetSubscribers, req.Type)
	require.NotEmpty(t, req.RequestID)

	w := pkt.NewWriter(server)
	reply := pkt.Subscribers(req.RequestID, "billing", "1", "charge_created", []pkt.Subscriber{
		{Service: "reports", Version: "1", Host: "h", Port: 1, NodeID: "n1", Strategy: pkt.LEADER},
	})
	require.NoError(t, w.Write(reply))

	select {
	case subs := <-resultCh:
		require.Len(t, subs, 1)
		assert.Equal(t, "reports", subs[0].Service)
	case err := <-errCh:
		t.Fatalf("GetSubscribers failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("GetSubscribers did not return in time")
	}
}

func TestResolveRoundRobinsAcrossInstances(t *testing.T) {
	ln, acceptCh := listenAndAccept(t)

	c, err := regclient.Dial(ln.Addr().String(), "node-1")
	require.NoError(t, err)
	defer c.Close()

	server := <-acceptCh
	defer server.Close()

	w := pkt.NewWriter(server)
	env := pkt.Activated([]pkt.ActivatedVendor{
		{
			Name:    "billing",
			Version: "1",
			Addresses: []pkt.Address{
				{Host: "h1", Port: 1, NodeID: "a"},
				{Host: "h2", Port: 2, NodeID: "b"},
			},
		},
	})
	require.NoError(t, w.Write(env))

	require.Eventually(t, func() bool {
		_, ok := c.Resolve("billing", "1", "")
		return ok
	}, time.Second, 10*time.Millisecond)

	first, ok := c.Resolve("billing", "1", "")
	require.True(t, ok)
	second, ok := c.Resolve("billing", "1", "")
	require.True(t, ok)
	assert.NotEqual(t, first.NodeID, second.NodeID)
}

func TestResolveIsStableForSameEntity(t *testing.T) {
	ln, acceptCh := listenAndAccept(t)

	c, err := regclient.Dial(ln.Addr().String(), "node-1")
	require.NoError(t, err)
	defer c.Close()

	server := <-acceptCh
	defer server.Close()

	w := pkt.NewWriter(server)
	env := pkt.Activated([]pkt.ActivatedVendor{
		{
			Name:    "billing",
			Version: "1",
			Addresses: []pkt.Address{
				{Host: "h1", Port: 1, NodeID: "a"},
				{Host: "h2", Port: 2, NodeID: "b"},
			},
		},
	})
	require.NoError(t, w.Write(env))

	require.Eventually(t, func() bool {
		_, ok := c.Resolve("billing", "1", "customer-42")
		return ok
	}, time.Second, 10*time.Millisecond)

	a, _ := c.Resolve("billing", "1", "customer-42")
	b, _ := c.Resolve("billing", "1", "customer-42")
	assert.Equal(t, a.NodeID, b.NodeID)
}
