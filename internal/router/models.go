package router

import (
	"context"
	"encoding/json"

	"github.com/RadEZorack/augmego-core/pkg/protocol"
	"github.com/RadEZorack/augmego-core/pkg/state"
)

// Handler is the set of operations the router dispatches to. *engine.Engine implements it.
type Handler interface {
	SendChat(ctx context.Context, conn *state.Connection, text string) error
	SendPartyChat(ctx context.Context, conn *state.Connection, text string) error
	Invite(ctx context.Context, conn *state.Connection, req protocol.InvitePayload) error
	RespondInvite(ctx context.Context, conn *state.Connection, req protocol.InviteRespondPayload) error
	LeaveParty(ctx context.Context, conn *state.Connection) error
	Kick(ctx context.Context, conn *state.Connection, req protocol.TargetPayload) error
	Promote(ctx context.Context, conn *state.Connection, req protocol.TargetPayload) error
	UpdatePlayer(ctx context.Context, conn *state.Connection, raw json.RawMessage) error
	UpdateMedia(ctx context.Context, conn *state.Connection, raw json.RawMessage) error
	RelaySignal(ctx context.Context, conn *state.Connection, raw json.RawMessage) error
	SendError(conn *state.Connection, rej *state.Rejection)
}
