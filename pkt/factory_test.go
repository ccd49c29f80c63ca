package pkt_test

import (
	"testing"

	"github.com/rskv-p/meshd/pkt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterParams(t *testing.T) {
	env := pkt.Register("auth", "1", "10.0.0.1", 9000, "node-1", pkt.TCP,
		[]pkt.Vendor{{Service: "billing", Version: "1"}})

	assert.Equal(t, pkt.TypeRegister, env.Type)
	assert.NotEmpty(t, env.Pid)
	assert.Equal(t, "auth", env.Params["service"])

	var decoded struct {
		Service string       `json:"service"`
		Version string       `json:"version"`
		Host    string       `json:"host"`
		Port    int          `json:"port"`
		NodeID  string       `json:"node_id"`
		Type    pkt.Kind     `json:"type"`
		Vendors []pkt.Vendor `json:"vendors"`
	}
	require.NoError(t, pkt.DecodeParams(env.Params, &decoded))
	assert.Equal(t, "auth", decoded.Service)
	assert.Equal(t, 9000, decoded.Port)
	require.Len(t, decoded.Vendors, 1)
	assert.Equal(t, "billing", decoded.Vendors[0].Service)
}

func TestAckCarriesRequestID(t *testing.T) {
	env := pkt.Ack("pub-123")
	assert.Equal(t, pkt.TypeAck, env.Type)
	assert.Equal(t, "pub-123", env.RequestID)
}

func TestGetSubscribersHasRequestID(t *testing.T) {
	env := pkt.GetSubscribers("billing", "1", "charge_created")
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, pkt.TypeGetSubscribers, env.Type)
}

func TestNormalizeStrategyDefaultsToRandom(t *testing.T) {
	assert.Equal(t, pkt.LEADER, pkt.NormalizeStrategy(pkt.LEADER))
	assert.Equal(t, pkt.RANDOM, pkt.NormalizeStrategy(pkt.RANDOM))
	assert.Equal(t, pkt.RANDOM, pkt.NormalizeStrategy(pkt.Strategy("bogus")))
	assert.Equal(t, pkt.RANDOM, pkt.NormalizeStrategy(""))
}

func TestPublishCarriesPublishID(t *testing.T) {
	env := pkt.Publish("billing", "1", "charge_created", map[string]any{"amount": 10}, "pub-1")
	assert.Equal(t, "pub-1", env.PublishID)
	assert.Equal(t, "charge_created", env.Endpoint)
}
