package transport

import (
	"sync"

	"github.com/epoxyrpc/epoxy/pkg/message"
)

// ConnectedFunc is called once, after a server-side connection's wire
// handshake completes but before service dispatch begins. A non-nil return
// rejects the connection: the handler's Error is sent to the client as a
// ProtocolError and the connection never reaches the Connected state.
type ConnectedFunc func(c *Connection) *message.Error

// DisconnectedFunc is called exactly once per connection, after its state
// machine enters Disconnected. err is nil for an orderly shutdown.
type DisconnectedFunc func(c *Connection, err error)

// eventHooks holds a Listener's ordered callback lists. Grounded on the
// register/broadcast pattern of a connection hub: callbacks are appended
// under a mutex and the invoker snapshots the slice before running them, so
// no lock is held across a handler call (spec §5's no-suspension-under-lock
// rule).
type eventHooks struct {
	mu             sync.Mutex
	onConnected    []ConnectedFunc
	onDisconnected []DisconnectedFunc
}

func (h *eventHooks) addConnected(fn ConnectedFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnected = append(h.onConnected, fn)
}

func (h *eventHooks) addDisconnected(fn DisconnectedFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnected = append(h.onDisconnected, fn)
}

// fireConnected runs every registered handler and folds their verdicts:
// the first non-nil Error wins, matching the spec's "single mutable
// out-parameter becomes a reducing fold" redesign note.
func (h *eventHooks) fireConnected(c *Connection) *message.Error {
	h.mu.Lock()
	snapshot := append([]ConnectedFunc(nil), h.onConnected...)
	h.mu.Unlock()

	for _, fn := range snapshot {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// fireDisconnected runs every registered handler once, outside any lock.
func (h *eventHooks) fireDisconnected(c *Connection, err error) {
	h.mu.Lock()
	snapshot := append([]DisconnectedFunc(nil), h.onDisconnected...)
	h.mu.Unlock()

	for _, fn := range snapshot {
		fn(c, err)
	}
}
