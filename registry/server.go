// file: meshd/registry/server.go
package registry

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rskv-p/meshd/pkg/x_log"
	"github.com/rskv-p/meshd/pkt"
	"github.com/rskv-p/meshd/repo"
)

// peer is the connection handle the Registry pushes activation and
// deregistration envelopes through, keyed by node_id.
type peer struct {
	conn   net.Conn
	writer *pkt.Writer
}

// Server is the mesh Registry: it accepts instance registrations, drives
// the dependency-satisfaction activation sweep, and notifies consumers
// when a dependency disappears. Grounded bit-exact on the algorithm in
// original_source/vyked/registry.py's Registry class; the Go shape
// (net.Listener, one goroutine per connection, single dispatch mutex)
// follows the teacher's registry.Registry/selector split.
type Server struct {
	ln  net.Listener
	log x_log.Logger

	repo  *repo.Repository
	audit *Auditor

	// dispatch serializes register + activation-sweep + deregistration,
	// matching the source's single-threaded event loop (§5 atomicity).
	dispatch sync.Mutex

	peersMu sync.RWMutex
	peers   map[string]*peer // node_id -> peer

	subsMu sync.Mutex
	subs   map[string][]pkt.Subscriber // "service/version/endpoint" -> subscribers

	wg sync.WaitGroup
}

// New creates a Registry Server bound to no listener yet; call Serve to
// start accepting connections.
func New() *Server {
	return &Server{
		log:   x_log.ChildLogger(x_log.RootLogger(), "registry"),
		repo:  repo.New(),
		peers: make(map[string]*peer),
		subs:  make(map[string][]pkt.Subscriber),
	}
}

// WithAuditor attaches a SQLite-backed audit log to the server. Every
// register/deregister event is appended to it in addition to updating the
// in-memory repo.Repository. Safe to call with a nil auditor.
func (s *Server) WithAuditor(a *Auditor) *Server {
	s.audit = a
	return s
}

// Serve accepts connections on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("registry: listen %s: %w", addr, err)
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.log.Structured().Info("registry listening", x_log.FString("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("registry: accept: %w", err)
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reader := pkt.NewReader(conn)
	writer := pkt.NewWriter(conn)

	var nodeID string
	for {
		env, err := reader.Read()
		if err != nil {
			if nodeID != "" {
				s.deregister(nodeID)
			}
			return
		}
		switch env.Type {
		case pkt.TypeRegister:
			nodeID = s.handleRegister(env, conn, writer)
		case pkt.TypeGetInstances:
			s.handleGetInstances(env, writer)
		case pkt.TypeXSubscribe:
			s.handleXSubscribe(env)
		case pkt.TypeGetSubscribers:
			s.handleGetSubscribers(env, writer)
		case pkt.TypeDeregister:
			if nodeID != "" {
				s.deregister(nodeID)
			}
		case pkt.TypePong:
			// liveness package observes pong on its own connections; the
			// registry's control connection does not ping.
		}
	}
}

func (s *Server) handleRegister(env *pkt.Envelope, conn net.Conn, writer *pkt.Writer) string {
	var body struct {
		Service string      `json:"service"`
		Version string      `json:"version"`
		Host    string      `json:"host"`
		Port    int         `json:"port"`
		NodeID  string      `json:"node_id"`
		Type    pkt.Kind    `json:"type"`
		Vendors []pkt.Vendor `json:"vendors"`
	}
	if err := pkt.DecodeParams(env.Params, &body); err != nil {
		s.log.Structured().Error("registry: bad register payload", x_log.FError(err))
		return ""
	}
	if body.Host == "" {
		if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
			body.Host = host
		}
	}

	s.peersMu.Lock()
	s.peers[body.NodeID] = &peer{conn: conn, writer: writer}
	s.peersMu.Unlock()

	deps := make([]repo.Dep, len(body.Vendors))
	for i, v := range body.Vendors {
		deps[i] = repo.Dep{Service: v.Service, Version: v.Version}
	}

	s.dispatch.Lock()
	s.repo.RegisterService(body.Service, body.Version, &repo.Instance{
		NodeID: body.NodeID, Host: body.Host, Port: body.Port, Kind: body.Type,
	}, deps)
	s.activationSweep()
	s.dispatch.Unlock()

	s.audit.record("register", body.Service, body.Version, body.NodeID, body.Host, body.Port)
	s.log.Structured().Info("registered", x_log.FString("service", body.Service), x_log.FString("version", body.Version), x_log.FString("node_id", body.NodeID))
	return body.NodeID
}

// activationSweep sends `registered` to every pending instance whose
// service now has at least one instance of every declared dependency.
// Must be called with s.dispatch held.
func (s *Server) activationSweep() {
	for _, svc := range s.repo.PendingServices() {
		vendors := s.repo.Vendors(svc.Service, svc.Version)
		ready := true
		for _, v := range vendors {
			if len(s.repo.Instances(v.Service, v.Version)) == 0 {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		activated := s.activatedEnvelope(vendors)
		for _, nodeID := range s.repo.PendingInstances(svc.Service, svc.Version) {
			s.sendTo(nodeID, activated)
			s.repo.RemovePendingInstance(svc.Service, svc.Version, nodeID)
		}
	}
}

func (s *Server) activatedEnvelope(vendors []repo.Dep) *pkt.Envelope {
	out := make([]pkt.ActivatedVendor, 0, len(vendors))
	for _, v := range vendors {
		addrs := make([]pkt.Address, 0)
		for _, inst := range s.repo.Instances(v.Service, v.Version) {
			addrs = append(addrs, pkt.Address{Host: inst.Host, Port: inst.Port, NodeID: inst.NodeID, Type: inst.Kind})
		}
		out = append(out, pkt.ActivatedVendor{Name: v.Service, Version: v.Version, Addresses: addrs})
	}
	return pkt.Activated(out)
}

// deregister runs the deregistration cascade for nodeID: drop its peer
// handle, notify every consumer of its service, and if that removal
// emptied the service's instance set, re-pend every instance of every
// consumer so it reactivates once a replacement appears.
func (s *Server) deregister(nodeID string) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	service, version, _, ok := s.repo.Node(nodeID)
	if !ok {
		return
	}

	s.peersMu.Lock()
	delete(s.peers, nodeID)
	s.peersMu.Unlock()

	lastRemoved := s.repo.RemoveInstance(service, version, nodeID)

	deregisterEnv := pkt.Deregister(nodeID, service, version)
	consumers := s.repo.Consumers(service, version)
	for _, c := range consumers {
		for _, inst := range s.repo.Instances(c.Service, c.Version) {
			s.sendTo(inst.NodeID, deregisterEnv)
		}
	}

	if lastRemoved {
		for _, c := range consumers {
			for _, inst := range s.repo.Instances(c.Service, c.Version) {
				s.repo.AddPendingService(c.Service, c.Version, inst.NodeID)
			}
		}
	}

	s.audit.record("deregister", service, version, nodeID, "", 0)
	s.log.Structured().Info("deregistered", x_log.FString("service", service), x_log.FString("version", version), x_log.FString("node_id", nodeID))
}

func (s *Server) handleGetInstances(env *pkt.Envelope, writer *pkt.Writer) {
	var body struct {
		Service string `json:"service"`
		Version string `json:"version"`
	}
	if err := pkt.DecodeParams(env.Params, &body); err != nil {
		return
	}
	instances := s.repo.Instances(body.Service, body.Version)
	addrs := make([]pkt.Address, len(instances))
	for i, inst := range instances {
		addrs[i] = pkt.Address{Host: inst.Host, Port: inst.Port, NodeID: inst.NodeID, Type: inst.Kind}
	}
	_ = writer.Write(pkt.SendInstances(body.Service, body.Version, addrs))
}

func (s *Server) handleXSubscribe(env *pkt.Envelope) {
	var body struct {
		Host   string `json:"host"`
		Port   int    `json:"port"`
		NodeID string `json:"node_id"`
		Events []pkt.SubscribeEvent `json:"events"`
	}
	if err := pkt.DecodeParams(env.Params, &body); err != nil {
		return
	}
	service, version, _, ok := s.repo.Node(body.NodeID)
	if !ok {
		return
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ev := range body.Events {
		k := subKey(ev.Service, ev.Version, ev.Endpoint)
		s.subs[k] = append(s.subs[k], pkt.Subscriber{
			Service: service, Version: version, Host: body.Host, Port: body.Port,
			NodeID: body.NodeID, Strategy: pkt.NormalizeStrategy(ev.Strategy),
		})
	}
}

func (s *Server) handleGetSubscribers(env *pkt.Envelope, writer *pkt.Writer) {
	var body struct {
		Service  string `json:"service"`
		Version  string `json:"version"`
		Endpoint string `json:"endpoint"`
	}
	if err := pkt.DecodeParams(env.Params, &body); err != nil {
		return
	}
	s.subsMu.Lock()
	subs := append([]pkt.Subscriber(nil), s.subs[subKey(body.Service, body.Version, body.Endpoint)]...)
	s.subsMu.Unlock()

	_ = writer.Write(pkt.Subscribers(env.RequestID, body.Service, body.Version, body.Endpoint, subs))
}

func (s *Server) sendTo(nodeID string, env *pkt.Envelope) {
	s.peersMu.RLock()
	p, ok := s.peers[nodeID]
	s.peersMu.RUnlock()
	if !ok {
		s.log.Structured().Warn("registry: no live peer to deliver to", x_log.FString("node_id", nodeID), x_log.FString("type", string(env.Type)))
		return
	}
	if err := p.writer.Write(env); err != nil {
		s.log.Structured().Warn("registry: send failed", x_log.FString("node_id", nodeID), x_log.FError(err))
	}
}

func subKey(service, version, endpoint string) string {
	return service + "/" + version + "/" + endpoint
}
