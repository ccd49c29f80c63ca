package context

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ IContext = (*Context)(nil)

// Conversation is one outstanding request/reply correlation, keyed by a
// request_id, with a channel that closes once a reply has been recorded.
type Conversation struct {
	ID   string
	done chan struct{}
}

// IContext tracks in-flight conversations for regclient's request/reply
// round trips (get_subscribers and friends): register one, signal its
// completion, wait on it with a timeout, and clean it up.
type IContext interface {
	Add(*Conversation) string
	Done(id string)
	Delete(id string)
	WaitTimeout(id string, timeout time.Duration) bool
}

// Context implements IContext over a sync.Map, one entry per outstanding
// request_id.
type Context struct {
	pool sync.Map
}

// NewContext returns a new Context manager.
func NewContext() IContext {
	return &Context{}
}

// Add stores conv, generating an ID if one wasn't set.
func (m *Context) Add(conv *Conversation) string {
	if conv == nil {
		return ""
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.done = make(chan struct{})
	m.pool.Store(conv.ID, conv)
	return conv.ID
}

func (m *Context) get(id string) *Conversation {
	if val, ok := m.pool.Load(id); ok {
		return val.(*Conversation)
	}
	return nil
}

// Delete removes a conversation.
func (m *Context) Delete(id string) {
	m.pool.Delete(id)
}

// Done signals completion for id. Safe to call more than once.
func (m *Context) Done(id string) {
	conv := m.get(id)
	if conv == nil {
		return
	}
	select {
	case <-conv.done:
	default:
		close(conv.done)
	}
}

// WaitTimeout blocks until Done(id) or timeout, returning false if id is
// unknown or the timeout elapses first.
func (m *Context) WaitTimeout(id string, timeout time.Duration) bool {
	conv := m.get(id)
	if conv == nil {
		return false
	}
	select {
	case <-conv.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
