// Package protocol defines the JSON envelope exchanged over the world socket and the
// payload shapes of every inbound and outbound message kind.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/RadEZorack/augmego-core/pkg/state"
)

// Inbound kinds.
const (
	KindChatSend           = "chat:send"
	KindPartyChatSend      = "party:chat:send"
	KindPartyInvite        = "party:invite"
	KindPartyInviteRespond = "party:invite:respond"
	KindPartyLeave         = "party:leave"
	KindPartyKick          = "party:kick"
	KindPartyPromote       = "party:promote"
	KindPlayerUpdate       = "player:update"
	KindPlayerMedia        = "player:media"
	KindRTCSignal          = "rtc:signal"
)

// Outbound kinds. player:update, player:media, party:invite and rtc:signal share their
// inbound names.
const (
	KindSessionInfo         = "session:info"
	KindChatHistory         = "chat:history"
	KindChatNew             = "chat:new"
	KindPartyChatHistory    = "party:chat:history"
	KindPartyChatNew        = "party:chat:new"
	KindPlayerSnapshot      = "player:snapshot"
	KindPlayerLeave         = "player:leave"
	KindPlayerParty         = "player:party"
	KindPartyState          = "party:state"
	KindPartyInviteSent     = "party:invite:sent"
	KindPartyInviteResolved = "party:invite:resolved"
	KindError               = "error"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals an outbound frame.
func Encode(kind string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: kind, Payload: raw})
}

// --- Inbound payloads ---

type TextPayload struct {
	Text string `json:"text"`
}

type InvitePayload struct {
	TargetUserID   string `json:"targetUserId"`
	TargetClientID string `json:"targetClientId"`
}

type InviteRespondPayload struct {
	InviteID string `json:"inviteId"`
	Accept   bool   `json:"accept"`
}

type TargetPayload struct {
	TargetUserID string `json:"targetUserId"`
}

// --- Outbound payloads ---

type SessionInfo struct {
	ClientID      string          `json:"clientId"`
	Authenticated bool            `json:"authenticated"`
	User          *state.Identity `json:"user"`
}

type Messages struct {
	Messages []state.ChatMessage `json:"messages"`
}

type NewMessage struct {
	Message state.ChatMessage `json:"message"`
}

// Player is the public view of one connection's avatar.
type Player struct {
	ClientID      string             `json:"clientId"`
	UserID        string             `json:"userId,omitempty"`
	Name          string             `json:"name,omitempty"`
	AvatarURL     string             `json:"avatarUrl,omitempty"`
	PartyID       *string            `json:"partyId"`
	State         *state.PlayerState `json:"state"`
	MicMuted      bool               `json:"micMuted"`
	CameraEnabled bool               `json:"cameraEnabled"`
}

type PlayerSnapshot struct {
	Players []Player `json:"players"`
}

type PlayerEvent struct {
	Player Player `json:"player"`
}

type PlayerLeave struct {
	ClientID string `json:"clientId"`
}

type PlayerParty struct {
	ClientID string  `json:"clientId"`
	PartyID  *string `json:"partyId"`
}

type PartyMember struct {
	User     state.Identity `json:"user"`
	Role     state.Role     `json:"role"`
	IsLeader bool           `json:"isLeader"`
	Online   bool           `json:"online"`
	JoinedAt time.Time      `json:"joinedAt"`
}

type PartyView struct {
	ID       string        `json:"id"`
	LeaderID string        `json:"leaderId"`
	Members  []PartyMember `json:"members"`
}

type InviteView struct {
	ID        string         `json:"id"`
	PartyID   string         `json:"partyId"`
	Inviter   state.Identity `json:"inviter"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

type PartyState struct {
	Party          *PartyView   `json:"party"`
	PendingInvites []InviteView `json:"pendingInvites"`
}

type InviteEvent struct {
	Invite InviteView `json:"invite"`
}

type InviteSent struct {
	InviteID     string `json:"inviteId"`
	TargetUserID string `json:"targetUserId"`
}

type InviteResolved struct {
	InviteID     string `json:"inviteId"`
	TargetUserID string `json:"targetUserId"`
	Accepted     bool   `json:"accepted"`
}

type Signal struct {
	FromClientID string          `json:"fromClientId"`
	Signal       json.RawMessage `json:"signal"`
}

type Error struct {
	Code         state.Code `json:"code"`
	Message      string     `json:"message"`
	RetryAfterMs int64      `json:"retryAfterMs,omitempty"`
}

// NewInviteView converts a pending invite for the wire.
func NewInviteView(inv *state.Invite) InviteView {
	return InviteView{
		ID:        inv.ID,
		PartyID:   inv.PartyID,
		Inviter:   inv.Inviter,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
	}
}

// NewError converts a rejection for the wire.
func NewError(r *state.Rejection) Error {
	e := Error{Code: r.Code, Message: r.Message}
	if r.RetryAfter > 0 {
		e.RetryAfterMs = r.RetryAfter.Milliseconds()
		if e.RetryAfterMs == 0 {
			e.RetryAfterMs = 1
		}
	}
	return e
}

// OptionalID maps "" to a JSON null.
func OptionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
