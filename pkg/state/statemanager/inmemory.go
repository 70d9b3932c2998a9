package statemanager

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
)

type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	users map[string]map[uuid.UUID]*state.Connection

	mu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]map[uuid.UUID]*state.Connection),
		logger: logger.With(slog.String("component", "registry_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Registry.
var _ state.Registry = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(t state.Transport, ipAddr string, user *state.Identity, partyID string) (*state.Connection, error) {
	if t == nil {
		return nil, errors.New("cannot register a nil transport")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := t.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := state.NewConnection(t, ipAddr, user, partyID)
	m.conns[connID] = newConn

	if user != nil {
		userConns, ok := m.users[user.ID]
		if !ok {
			userConns = make(map[uuid.UUID]*state.Connection)
			m.users[user.ID] = userConns
		}
		userConns[connID] = newConn
	}
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()), slog.String("userID", newConn.UserID()))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) (*state.Connection, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// connection is already deregistered
		return nil, 0, nil
	}
	delete(m.conns, connID)

	remaining := 0
	if conn.User != nil {
		userConns := m.users[conn.User.ID]
		delete(userConns, connID)
		remaining = len(userConns)
		if remaining == 0 {
			delete(m.users, conn.User.ID)
		}
		m.logger.Debug("Detached connection from user", slog.String("connID", connID.String()), slog.String("userID", conn.User.ID), slog.Int("remaining", remaining))
	}
	m.logger.Debug("Connection deregistered", "connID", connID.String())
	return conn, remaining, nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

// AllConnections returns every live connection, oldest first.
func (m *InMemoryManager) AllConnections() []*state.Connection {
	m.mu.RLock()
	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()
	sortByCreation(conns)
	return conns
}

func (m *InMemoryManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// --- User Lookups ---

func (m *InMemoryManager) FindConnectionsForUser(userID string) []*state.Connection {
	m.mu.RLock()
	userConns := m.users[userID]
	conns := make([]*state.Connection, 0, len(userConns))
	for _, c := range userConns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()
	sortByCreation(conns)
	return conns
}

func (m *InMemoryManager) FindAnyLiveConnectionForUser(userID string) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.users[userID] {
		return c, true
	}
	return nil, false
}

func (m *InMemoryManager) GetUserConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users[userID])
}

func (m *InMemoryManager) FindOldestUserConnection(userID string) (*state.Connection, bool) {
	conns := m.FindConnectionsForUser(userID)
	if len(conns) == 0 {
		return nil, false // User has no connections.
	}
	return conns[0], true
}

func (m *InMemoryManager) OnlineUserIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// --- Party Cache ---

func (m *InMemoryManager) SetPartyID(userID, partyID string) []*state.Connection {
	var changed []*state.Connection
	for _, c := range m.FindConnectionsForUser(userID) {
		if c.SetPartyID(partyID) {
			changed = append(changed, c)
		}
	}
	if len(changed) > 0 {
		m.logger.Debug("Updated cached party", slog.String("userID", userID), slog.String("partyID", partyID), slog.Int("connections", len(changed)))
	}
	return changed
}

func sortByCreation(conns []*state.Connection) {
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].CreatedAt.Equal(conns[j].CreatedAt) {
			return conns[i].ID.String() < conns[j].ID.String()
		}
		return conns[i].CreatedAt.Before(conns[j].CreatedAt)
	})
}
