// file: meshd/repo/repo.go
package repo

import (
	"sync"

	"github.com/rskv-p/meshd/pkt"
)

// Instance is one registered node of a service.
type Instance struct {
	NodeID string
	Host   string
	Port   int
	Kind   pkt.Kind
}

// Dep is a (service, version) pair another service depends on.
type Dep struct {
	Service string
	Version string
}

type bucket struct {
	instances    []*Instance
	instanceByID map[string]*Instance
	pending      map[string]struct{}
	vendors      []Dep
	vendorsSet   bool
}

// Repository is the Registry's in-memory bookkeeping: services, their
// instances, their declared dependencies, and the instances still awaiting
// activation. It performs no I/O and is owned exclusively by one
// registry.Server; callers outside this module never get a pointer to it.
type Repository struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	nodeKey map[string]string // nodeID -> "service/version" key
}

func New() *Repository {
	return &Repository{
		buckets: make(map[string]*bucket),
		nodeKey: make(map[string]string),
	}
}

func key(service, version string) string {
	return service + "/" + version
}

func (r *Repository) bucketFor(k string) *bucket {
	b, ok := r.buckets[k]
	if !ok {
		b = &bucket{
			instanceByID: make(map[string]*Instance),
			pending:      make(map[string]struct{}),
		}
		r.buckets[k] = b
	}
	return b
}

// RegisterService adds inst as a pending instance of (service, version).
// Dependencies are recorded only the first time (service, version) is seen;
// later registrations of additional instances leave vendors untouched.
func (r *Repository) RegisterService(service, version string, inst *Instance, vendors []Dep) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(service, version)
	b := r.bucketFor(k)

	if !b.vendorsSet {
		b.vendors = vendors
		b.vendorsSet = true
	}

	if _, exists := b.instanceByID[inst.NodeID]; !exists {
		b.instances = append(b.instances, inst)
		b.instanceByID[inst.NodeID] = inst
	}
	b.pending[inst.NodeID] = struct{}{}
	r.nodeKey[inst.NodeID] = k
}

// AddPendingService re-enqueues a previously-activated node as pending,
// used when one of its dependencies loses its last instance.
func (r *Repository) AddPendingService(service, version, nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(service, version)
	b, ok := r.buckets[k]
	if !ok {
		return
	}
	if _, exists := b.instanceByID[nodeID]; exists {
		b.pending[nodeID] = struct{}{}
	}
}

// PendingServices lists every (service, version) with at least one
// instance still awaiting activation.
func (r *Repository) PendingServices() []Dep {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Dep
	for k, b := range r.buckets {
		if len(b.pending) > 0 {
			out = append(out, splitKey(k))
		}
	}
	return out
}

// PendingInstances lists the node IDs of (service, version) awaiting
// activation.
func (r *Repository) PendingInstances(service, version string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.buckets[key(service, version)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(b.pending))
	for id := range b.pending {
		out = append(out, id)
	}
	return out
}

// RemovePendingInstance marks nodeID of (service, version) as activated.
func (r *Repository) RemovePendingInstance(service, version, nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key(service, version)]
	if !ok {
		return
	}
	delete(b.pending, nodeID)
}

// Instances returns every registered instance of (service, version).
func (r *Repository) Instances(service, version string) []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.buckets[key(service, version)]
	if !ok {
		return nil
	}
	out := make([]*Instance, len(b.instances))
	copy(out, b.instances)
	return out
}

// Vendors returns what (service, version) depends on.
func (r *Repository) Vendors(service, version string) []Dep {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.buckets[key(service, version)]
	if !ok {
		return nil
	}
	return b.vendors
}

// Consumers returns every (service, version) that declares (service,
// version) as a dependency.
func (r *Repository) Consumers(service, version string) []Dep {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Dep
	for k, b := range r.buckets {
		for _, v := range b.vendors {
			if v.Service == service && v.Version == version {
				out = append(out, splitKey(k))
				break
			}
		}
	}
	return out
}

// Node resolves a node ID to its (service, version) and instance record.
func (r *Repository) Node(nodeID string) (service, version string, inst *Instance, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.nodeKey[nodeID]
	if !ok {
		return "", "", nil, false
	}
	b := r.buckets[k]
	inst, ok = b.instanceByID[nodeID]
	if !ok {
		return "", "", nil, false
	}
	sv := splitKey(k)
	return sv.Service, sv.Version, inst, true
}

// RemoveInstance deletes nodeID from (service, version), returning whether
// that removal emptied the bucket (last instance of that service gone).
func (r *Repository) RemoveInstance(service, version, nodeID string) (lastInstanceRemoved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(service, version)
	b, ok := r.buckets[k]
	if !ok {
		return false
	}
	if _, exists := b.instanceByID[nodeID]; !exists {
		return false
	}
	delete(b.instanceByID, nodeID)
	delete(b.pending, nodeID)
	delete(r.nodeKey, nodeID)

	kept := b.instances[:0]
	for _, inst := range b.instances {
		if inst.NodeID != nodeID {
			kept = append(kept, inst)
		}
	}
	b.instances = kept

	return len(b.instances) == 0
}

func splitKey(k string) Dep {
	for i := len(k) - 1; i >= 0; i-- {
		if k[i] == '/' {
			return Dep{Service: k[:i], Version: k[i+1:]}
		}
	}
	return Dep{Service: k}
}
