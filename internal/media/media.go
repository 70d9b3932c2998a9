// Package media gates peer-to-peer signaling. Handshake payloads are forwarded untouched;
// only the routing fields are read.
package media

import (
	"context"
	"encoding/json"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var errInvalidSignal = state.Reject(state.CodeInvalidSignalPayload, "toClientId and signal are required")

// Signal is a parsed rtc:signal request.
type Signal struct {
	To      uuid.UUID
	Payload json.RawMessage
}

// ParseSignal extracts the target client and the opaque signal body.
func ParseSignal(raw []byte) (Signal, error) {
	doc := gjson.ParseBytes(raw)
	to := doc.Get("toClientId")
	if to.Type != gjson.String {
		return Signal{}, errInvalidSignal
	}
	id, err := uuid.Parse(to.String())
	if err != nil {
		return Signal{}, errInvalidSignal
	}
	sig := doc.Get("signal")
	if !sig.Exists() || sig.Type == gjson.Null {
		return Signal{}, errInvalidSignal
	}
	return Signal{To: id, Payload: json.RawMessage(sig.Raw)}, nil
}

// PartyLookup returns the user's current party id, or "" when partyless.
type PartyLookup func(ctx context.Context, userID string) (string, error)

type Policy struct {
	partyOf PartyLookup
}

func NewPolicy(partyOf PartyLookup) *Policy {
	return &Policy{partyOf: partyOf}
}

// CanExchange allows media between two partyless users or two members of the same
// party. Anonymous users count as partyless.
func (p *Policy) CanExchange(ctx context.Context, fromUserID, toUserID string) (bool, error) {
	from, err := p.lookup(ctx, fromUserID)
	if err != nil {
		return false, err
	}
	to, err := p.lookup(ctx, toUserID)
	if err != nil {
		return false, err
	}
	return from == to, nil
}

func (p *Policy) lookup(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	return p.partyOf(ctx, userID)
}

// Authorize runs every check a relay needs except target resolution. target is nil when
// the client id is unknown.
func (p *Policy) Authorize(ctx context.Context, from, target *state.Connection) error {
	if !from.Authenticated() {
		return state.Reject(state.CodeAuthRequired, "sign in to use voice and video")
	}
	if target == nil {
		return state.Reject(state.CodeSignalTargetNotFound, "target client is not connected")
	}
	if target.ID == from.ID {
		return errInvalidSignal
	}
	ok, err := p.CanExchange(ctx, from.UserID(), target.UserID())
	if err != nil {
		return err
	}
	if !ok {
		return state.Reject(state.CodePartyMediaRestricted, "media is limited to your party")
	}
	return nil
}
