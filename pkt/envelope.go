// file: meshd/pkt/envelope.go
package pkt

import "github.com/google/uuid"

// Strategy is a subscriber target-selection strategy for directed publish.
type Strategy string

const (
	LEADER Strategy = "LEADER"
	RANDOM Strategy = "RANDOM"
)

// NormalizeStrategy treats any unrecognized strategy as RANDOM.
func NormalizeStrategy(s Strategy) Strategy {
	if s == LEADER {
		return LEADER
	}
	return RANDOM
}

// Kind is the transport kind an instance listens on.
type Kind string

const (
	TCP  Kind = "tcp"
	HTTP Kind = "http"
)

// Type is the envelope's packet type tag.
type Type string

const (
	TypeRegister      Type = "register"
	TypeRegistered    Type = "registered"
	TypeDeregister    Type = "deregister"
	TypeGetInstances  Type = "get_instances"
	TypeInstances     Type = "instances"
	TypeXSubscribe    Type = "xsubscribe"
	TypeGetSubscribers Type = "get_subscribers"
	TypeSubscribers   Type = "subscribers"
	TypePing          Type = "ping"
	TypePong          Type = "pong"
	TypeAck           Type = "ack"
	TypeRequest       Type = "request"
	TypePublish       Type = "publish"
)

// Envelope is the wire format for every message exchanged between mesh
// processes. Params carries the type-specific body as a generic map so the
// codec never needs to know every packet shape; consumers decode the
// fields they expect via mitchellh/mapstructure.
type Envelope struct {
	Pid        string         `json:"pid"`
	Type       Type           `json:"type"`
	From       string         `json:"from,omitempty"`
	To         string         `json:"to,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Params     map[string]any `json:"params,omitempty"`

	// request/publish carry these at top level rather than nested in
	// params, matching the source protocol's flat shape for these two.
	App      string `json:"app,omitempty"`
	Service  string `json:"service,omitempty"`
	Version  string `json:"version,omitempty"`
	Entity   string `json:"entity,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Payload  any    `json:"payload,omitempty"`
	PublishID string `json:"publish_id,omitempty"`
	NodeID   string `json:"node_id,omitempty"`
	Count    int64  `json:"count,omitempty"`
}

func newPid() string {
	return uuid.NewString()
}

// Vendor describes one dependency declaration, (service, version) only.
type Vendor struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// Address is one resolvable instance of a service.
type Address struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	NodeID string `json:"node_id"`
	Type   Kind   `json:"type"`
}

// ActivatedVendor is one dependency entry in a registered/activated packet.
type ActivatedVendor struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Addresses []Address `json:"addresses"`
}

// Subscriber is one entry of a subscribers reply.
type Subscriber struct {
	Service  string   `json:"service"`
	Version  string   `json:"version"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	NodeID   string   `json:"node_id"`
	Strategy Strategy `json:"strategy"`
}

// SubscribeEvent is one entry of an xsubscribe request.
type SubscribeEvent struct {
	Service  string   `json:"service"`
	Version  string   `json:"version"`
	Endpoint string   `json:"endpoint"`
	Strategy Strategy `json:"strategy"`
}
