package state

import (
	"github.com/google/uuid"
)

// Registry tracks live connections and the users behind them. A user is online exactly
// while at least one of their connections is registered.
type Registry interface {
	// --- Connection Lifecycle ---
	RegisterConnection(t Transport, ipAddr string, user *Identity, partyID string) (*Connection, error)
	// DeregisterConnection returns the removed connection and how many connections its
	// user still holds. Unknown ids return (nil, 0, nil).
	DeregisterConnection(connID uuid.UUID) (*Connection, int, error)
	GetConnection(connID uuid.UUID) (*Connection, bool)
	AllConnections() []*Connection
	ConnectionCount() int

	// --- User Lookups ---
	FindConnectionsForUser(userID string) []*Connection
	FindAnyLiveConnectionForUser(userID string) (*Connection, bool)
	FindOldestUserConnection(userID string) (*Connection, bool)
	GetUserConnectionCount(userID string) int
	OnlineUserIDs() []string

	// --- Party Cache ---
	// SetPartyID updates the cached party of every connection of the user and returns
	// the connections whose cached value changed.
	SetPartyID(userID, partyID string) []*Connection
}
