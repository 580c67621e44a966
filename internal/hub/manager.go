package hub

import (
	"sync"

	"github.com/veilchess/veilchess-server/internal/game"
	"github.com/veilchess/veilchess-server/pkg/wiredto"
)

// binding records what a connection is bound to. One room per
// connection; rebinding replaces the previous entry.
type binding struct {
	roomID string
	role   game.Role
}

// Manager tracks live connections and their room bindings. It is the
// only place that maps transports to (room, role); rooms themselves
// hold identities, not sockets.
type Manager struct {
	mu       sync.RWMutex
	conns    map[string]Sender
	bindings map[string]binding
	byRoom   map[string]map[string]game.Role
}

func NewManager() *Manager {
	return &Manager{
		conns:    make(map[string]Sender),
		bindings: make(map[string]binding),
		byRoom:   make(map[string]map[string]game.Role),
	}
}

func (m *Manager) Register(s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[s.ID()] = s
}

// Unregister drops the connection and any binding it held.
func (m *Manager) Unregister(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
	m.unbindLocked(connID)
}

func (m *Manager) Bind(connID, roomID string, role game.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbindLocked(connID)
	m.bindings[connID] = binding{roomID: roomID, role: role}
	if m.byRoom[roomID] == nil {
		m.byRoom[roomID] = make(map[string]game.Role)
	}
	m.byRoom[roomID][connID] = role
}

func (m *Manager) Unbind(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbindLocked(connID)
}

func (m *Manager) unbindLocked(connID string) {
	b, ok := m.bindings[connID]
	if !ok {
		return
	}
	delete(m.bindings, connID)
	if members, ok := m.byRoom[b.roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.byRoom, b.roomID)
		}
	}
}

// UnbindRoom severs every binding into a room, after deletion.
func (m *Manager) UnbindRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for connID := range m.byRoom[roomID] {
		delete(m.bindings, connID)
	}
	delete(m.byRoom, roomID)
}

// BindingOf resolves a connection's current room and role.
func (m *Manager) BindingOf(connID string) (string, game.Role, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[connID]
	return b.roomID, b.role, ok
}

// SendTo delivers one event to one connection.
func (m *Manager) SendTo(connID string, ev wiredto.Envelope) bool {
	m.mu.RLock()
	s, ok := m.conns[connID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return s.Send(ev)
}

// member pairs a live sender with its role for fan-out snapshots.
type member struct {
	sender Sender
	role   game.Role
}

// members snapshots the live connections bound to a room so no lock is
// held while writing to sockets.
func (m *Manager) members(roomID string) []member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]member, 0, len(m.byRoom[roomID]))
	for connID, role := range m.byRoom[roomID] {
		if s, ok := m.conns[connID]; ok {
			out = append(out, member{sender: s, role: role})
		}
	}
	return out
}
