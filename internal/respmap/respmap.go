// Package respmap implements the per-connection response map: a table
// correlating outbound request IDs with the one-shot completion slots
// awaiting their eventual response or failure.
package respmap

import (
	"errors"
	"sync"

	"github.com/epoxyrpc/epoxy/pkg/message"
)

// ErrDuplicateID indicates Add was called with an id already outstanding.
var ErrDuplicateID = errors.New("respmap: request id already outstanding")

// connectionShutDown is the Error value every outstanding (and subsequently
// submitted) slot resolves with once the map has been shut down.
func connectionShutDown() message.Message {
	return message.FromError(message.Error{
		Code:    message.ConnectionShutDown,
		Message: "connection shut down",
	})
}

// ResponseSlot is a one-shot completion handle: writable at most once,
// readable exactly once. The zero value is not usable; obtain one from
// Map.Add.
type ResponseSlot struct {
	done chan message.Message
	once sync.Once
}

func newResponseSlot() *ResponseSlot {
	return &ResponseSlot{done: make(chan message.Message, 1)}
}

// resolve writes m to the slot, exactly once. Later calls are no-ops.
func (s *ResponseSlot) resolve(m message.Message) {
	s.once.Do(func() {
		s.done <- m
		close(s.done)
	})
}

// Read blocks until the slot resolves and returns its Message. Safe to call
// exactly once; callers that need to observe it from multiple goroutines
// should fan the result out themselves after the first read.
func (s *ResponseSlot) Read() message.Message {
	return <-s.done
}

// resolved returns an already-resolved slot wrapping m, used when Add is
// called on a map that is already shut down.
func resolved(m message.Message) *ResponseSlot {
	s := newResponseSlot()
	s.resolve(m)
	return s
}

// Map correlates outbound request IDs to pending ResponseSlots for a single
// connection. The zero value is ready to use.
type Map struct {
	mu       sync.Mutex
	slots    map[uint64]*ResponseSlot
	shutDown bool
}

// New returns a ready-to-use, empty Map.
func New() *Map {
	return &Map{slots: make(map[uint64]*ResponseSlot)}
}

// Add registers id as outstanding and returns its ResponseSlot.
//
// If the map has already been shut down, Add does not insert anything: it
// returns a slot already resolved with a ConnectionShutDown error. If id is
// already present, Add returns ErrDuplicateID.
func (m *Map) Add(id uint64) (*ResponseSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutDown {
		return resolved(connectionShutDown()), nil
	}
	if m.slots == nil {
		m.slots = make(map[uint64]*ResponseSlot)
	}
	if _, exists := m.slots[id]; exists {
		return nil, ErrDuplicateID
	}

	slot := newResponseSlot()
	m.slots[id] = slot
	return slot, nil
}

// Complete resolves the slot for id with msg and removes it, reporting
// whether it did so.
//
// If the map has already been shut down, any slot still present for id (a
// race between Shutdown and a late inbound response) resolves with
// ConnectionShutDown instead of msg, and Complete reports false. A missing
// or already-resolved id also reports false.
func (m *Map) Complete(id uint64, msg message.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[id]
	if !ok {
		return false
	}
	delete(m.slots, id)

	if m.shutDown {
		slot.resolve(connectionShutDown())
		return false
	}
	slot.resolve(msg)
	return true
}

// Shutdown marks the map terminal and resolves every outstanding slot with a
// ConnectionShutDown error. Idempotent: calling it again is a no-op.
func (m *Map) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutDown {
		return
	}
	m.shutDown = true

	for id, slot := range m.slots {
		slot.resolve(connectionShutDown())
		delete(m.slots, id)
	}
}

// OutstandingCount reports the number of entries currently awaiting
// completion.
func (m *Map) OutstandingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
