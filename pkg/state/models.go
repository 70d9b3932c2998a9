package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport is the send side of a live connection.
type Transport interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Identity is the resolved user behind a connection.
type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// representation of a single transport-layer connection.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport Transport
	User      *Identity // nil for anonymous connections
	CreatedAt time.Time

	mu      sync.RWMutex
	partyID string
}

func NewConnection(t Transport, ipAddr string, user *Identity, partyID string) *Connection {
	return &Connection{
		ID:        t.ID(),
		IPAddress: ipAddr,
		Transport: t,
		User:      user,
		CreatedAt: time.Now(),
		partyID:   partyID,
	}
}

func (c *Connection) Authenticated() bool { return c.User != nil }

// UserID returns the user id or "" for anonymous connections.
func (c *Connection) UserID() string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}

// PartyID is the cached party of the connection's user.
func (c *Connection) PartyID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.partyID
}

// SetPartyID reports whether the cached value changed.
func (c *Connection) SetPartyID(partyID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.partyID == partyID {
		return false
	}
	c.partyID = partyID
	return true
}

type Role string

const (
	RoleMember  Role = "MEMBER"
	RoleManager Role = "MANAGER"

	// RoleLeader is never stored; it is reported in views for the party's leader.
	RoleLeader Role = "LEADER"
)

func (r Role) Valid() bool { return r == RoleMember || r == RoleManager }

// Party is the persisted group a user belongs to.
type Party struct {
	ID        string
	LeaderID  string
	CreatedAt time.Time
}

// Membership links a user to a party. LeaderID is copied from the party row so that
// leadership can be derived without a second lookup.
type Membership struct {
	RowID    uint
	PartyID  string
	UserID   string
	Role     Role
	JoinedAt time.Time
	LeaderID string
	User     Identity
}

func (m *Membership) IsLeader() bool { return m != nil && m.LeaderID == m.UserID }

func (m *Membership) CanManage() bool {
	return m.Capabilities().Has(PermInvite)
}

func (m *Membership) Capabilities() Permission {
	if m == nil {
		return 0
	}
	return RoleCapabilities(m.Role, m.IsLeader())
}

// EffectiveRole reports LEADER for the leader and the stored role otherwise.
func (m *Membership) EffectiveRole() Role {
	if m.IsLeader() {
		return RoleLeader
	}
	return m.Role
}

// Invite is a pending, expiring offer to join a party. It lives only in memory.
type Invite struct {
	ID           string
	PartyID      string
	TargetUserID string
	Inviter      Identity
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (i *Invite) Expired(now time.Time) bool { return !now.Before(i.ExpiresAt) }

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlayerState is the last accepted avatar state for a connection.
type PlayerState struct {
	Position  Vec3      `json:"position"`
	Rotation  Vec3      `json:"rotation"`
	Inventory []string  `json:"inventory"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type MediaState struct {
	MicMuted      bool `json:"micMuted"`
	CameraEnabled bool `json:"cameraEnabled"`
}

// DefaultMedia applies to connections that never sent media flags.
var DefaultMedia = MediaState{MicMuted: false, CameraEnabled: true}

type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Identity  `json:"author"`
}
