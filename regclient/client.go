// file: meshd/regclient/client.go
package regclient

import (
	"fmt"
	"hash/fnv"
	"net"
	"sort"
	"sync"
	"time"

	meshctx "github.com/rskv-p/meshd/context"
	"github.com/rskv-p/meshd/pkt"
)

// RegisterTimeout bounds how long Register waits for the registry's first
// activation (registered) reply before giving up.
const RegisterTimeout = 10 * time.Second

// requestTimeout bounds how long GetSubscribers waits for its reply.
const requestTimeout = 5 * time.Second

// Client is a service process's local view of the Registry: it holds the
// control connection, a cache of resolved dependency addresses, and the
// outstanding get_subscribers conversations. Grounded on the
// teacher's selector.Selector (cached, strategy-selected resolution) split
// from the transport layer that feeds it.
type Client struct {
	conn   net.Conn
	writer *pkt.Writer
	reader *pkt.Reader

	nodeID  string
	convs   meshctx.IContext
	results sync.Map // requestID -> any (reply payload)

	mu        sync.RWMutex
	addresses map[string][]pkt.Address // "service/version" -> resolved
	rrIdx     map[string]int           // round-robin cursor per key
	activated chan struct{}
	once      sync.Once

	hooksMu sync.Mutex
	hooks   []func()

	closeOnce sync.Once
}

// Dial opens the control connection to the Registry at addr and starts its
// background read loop.
func Dial(addr, nodeID string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("regclient: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:      conn,
		writer:    pkt.NewWriter(conn),
		reader:    pkt.NewReader(conn),
		nodeID:    nodeID,
		convs:     meshctx.NewContext(),
		addresses: make(map[string][]pkt.Address),
		rrIdx:     make(map[string]int),
		activated: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// NodeID returns the node_id this client registered under.
func (c *Client) NodeID() string {
	return c.nodeID
}

// OnAddressesUpdated registers fn to be called every time a registered/
// instances reply changes the resolvable address set, so callers (the Bus's
// pending-request drain) can retry work that was queued waiting on a
// resolution that wasn't known yet.
func (c *Client) OnAddressesUpdated(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Client) notifyAddressesUpdated() {
	c.hooksMu.Lock()
	hooks := append([]func(){}, c.hooks...)
	c.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func key(service, version string) string {
	return service + "/" + version
}

// readLoop dispatches inbound envelopes from the Registry: registered
// (activation), instances, and subscribers replies.
func (c *Client) readLoop() {
	for {
		env, err := c.reader.Read()
		if err != nil {
			return
		}
		switch env.Type {
		case pkt.TypeRegistered:
			c.handleActivated(env)
		case pkt.TypeInstances:
			c.handleInstances(env)
		case pkt.TypeSubscribers:
			c.results.Store(env.RequestID, env)
			c.convs.Done(env.RequestID)
		case pkt.TypeDeregister:
			c.handleDeregister(env)
		case pkt.TypePing:
			_ = c.writer.Write(pkt.Pong(c.nodeID, env.Count))
		}
	}
}

func (c *Client) handleActivated(env *pkt.Envelope) {
	var body struct {
		Vendors []pkt.ActivatedVendor `json:"vendors"`
	}
	if err := pkt.DecodeParams(env.Params, &body); err != nil {
		return
	}
	c.mu.Lock()
	for _, v := range body.Vendors {
		c.addresses[key(v.Name, v.Version)] = v.Addresses
	}
	c.mu.Unlock()
	c.once.Do(func() { close(c.activated) })
	c.notifyAddressesUpdated()
}

func (c *Client) handleInstances(env *pkt.Envelope) {
	var body struct {
		Service   string        `json:"service"`
		Version   string        `json:"version"`
		Instances []pkt.Address `json:"instances"`
	}
	if err := pkt.DecodeParams(env.Params, &body); err != nil {
		return
	}
	c.mu.Lock()
	c.addresses[key(body.Service, body.Version)] = body.Instances
	c.mu.Unlock()
	c.notifyAddressesUpdated()
}

func (c *Client) handleDeregister(env *pkt.Envelope) {
	var body struct {
		NodeID  string `json:"node_id"`
		Service string `json:"service"`
		Version string `json:"version"`
	}
	if err := pkt.DecodeParams(env.Params, &body); err != nil {
		return
	}
	k := key(body.Service, body.Version)
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.addresses[k][:0]
	for _, a := range c.addresses[k] {
		if a.NodeID != body.NodeID {
			kept = append(kept, a)
		}
	}
	c.addresses[k] = kept
}

// Register announces this process to the Registry and blocks until
// activation (or timeout), mirroring the teacher's selector/transport
// initialization split: the transport-level handshake happens here, node
// selection happens in Resolve.
func (c *Client) Register(host string, port int, service, version string, deps []pkt.Vendor, kind pkt.Kind) error {
	env := pkt.Register(service, version, host, port, c.nodeID, kind, deps)
	if err := c.writer.Write(env); err != nil {
		return fmt.Errorf("regclient: send register: %w", err)
	}
	select {
	case <-c.activated:
		return nil
	case <-time.After(RegisterTimeout):
		return fmt.Errorf("regclient: timed out waiting for activation")
	}
}

// GetAllAddresses resolves every dependency to its currently known address
// set, skipping any with no known instances.
func (c *Client) GetAllAddresses(deps []pkt.Vendor) []pkt.Address {
	var out []pkt.Address
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range deps {
		out = append(out, c.addresses[key(d.Service, d.Version)]...)
	}
	return out
}

// Resolve picks one address of (service, version). If entity is non-empty
// it is hashed (FNV-32a) modulo the instance count, stably sorted by
// node_id first so identical inputs pick identical instances across
// processes; otherwise instances are chosen round-robin.
func (c *Client) Resolve(service, version, entity string) (pkt.Address, bool) {
	c.mu.RLock()
	addrs := append([]pkt.Address(nil), c.addresses[key(service, version)]...)
	c.mu.RUnlock()

	if len(addrs) == 0 {
		return pkt.Address{}, false
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].NodeID < addrs[j].NodeID })

	if entity != "" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(entity))
		idx := int(h.Sum32()) % len(addrs)
		return addrs[idx], true
	}
	return addrs[c.nextRoundRobin(key(service, version), len(addrs))], true
}

func (c *Client) nextRoundRobin(k string, n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.rrIdx[k] % n
	c.rrIdx[k]++
	return i
}

// GetSubscribers asks the Registry for the current subscriber set of one
// endpoint, correlated by request_id via the teacher's conversation
// tracker (context.IContext).
func (c *Client) GetSubscribers(service, version, endpoint string) ([]pkt.Subscriber, error) {
	env := pkt.GetSubscribers(service, version, endpoint)
	c.convs.Add(&meshctx.Conversation{ID: env.RequestID})

	if err := c.writer.Write(env); err != nil {
		c.convs.Delete(env.RequestID)
		return nil, fmt.Errorf("regclient: send get_subscribers: %w", err)
	}

	if !c.convs.WaitTimeout(env.RequestID, requestTimeout) {
		c.convs.Delete(env.RequestID)
		return nil, fmt.Errorf("regclient: get_subscribers timed out")
	}
	defer c.convs.Delete(env.RequestID)

	raw, ok := c.results.LoadAndDelete(env.RequestID)
	if !ok {
		return nil, fmt.Errorf("regclient: no reply recorded for %s", env.RequestID)
	}
	reply := raw.(*pkt.Envelope)
	var body struct {
		Subscribers []pkt.Subscriber `json:"subscribers"`
	}
	if err := pkt.DecodeParams(reply.Params, &body); err != nil {
		return nil, fmt.Errorf("regclient: decode subscribers: %w", err)
	}
	return body.Subscribers, nil
}

// XSubscribe declares the subscriptions this process wants serviced.
func (c *Client) XSubscribe(host string, port int, events []pkt.SubscribeEvent) error {
	env := pkt.XSubscribe(host, port, c.nodeID, events)
	if err := c.writer.Write(env); err != nil {
		return fmt.Errorf("regclient: send xsubscribe: %w", err)
	}
	return nil
}
