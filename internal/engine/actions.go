package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/RadEZorack/augmego-core/internal/media"
	"github.com/RadEZorack/augmego-core/internal/presence"
	"github.com/RadEZorack/augmego-core/pkg/protocol"
	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var errAuthRequired = state.Reject(state.CodeAuthRequired, "sign in to do that")

func requireUser(conn *state.Connection) error {
	if !conn.Authenticated() {
		return errAuthRequired
	}
	return nil
}

func (e *Engine) SendChat(ctx context.Context, conn *state.Connection, text string) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	msg, err := e.chat.Compose(*conn.User, text)
	if err != nil {
		return err
	}
	e.chat.AppendGlobal(msg)
	e.broadcast(protocol.KindChatNew, protocol.NewMessage{Message: msg})
	return nil
}

func (e *Engine) SendPartyChat(ctx context.Context, conn *state.Connection, text string) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	msg, err := e.chat.Compose(*conn.User, text)
	if err != nil {
		return err
	}
	partyID, err := e.party.PartyOf(ctx, conn.UserID())
	if err != nil {
		return err
	}
	if partyID == "" {
		return state.Reject(state.CodeNotInParty, "you are not in a party")
	}
	members, err := e.party.MemberIDs(ctx, partyID)
	if err != nil {
		return err
	}
	e.chat.AppendParty(partyID, msg)
	e.sendToUsers(members, protocol.KindPartyChatNew, protocol.NewMessage{Message: msg})
	return nil
}

// Invite resolves the target by user id, or by client id when no user id is given.
func (e *Engine) Invite(ctx context.Context, conn *state.Connection, req protocol.InvitePayload) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	targetUserID := strings.TrimSpace(req.TargetUserID)
	if targetUserID == "" && req.TargetClientID != "" {
		clientID, err := uuid.Parse(req.TargetClientID)
		if err != nil {
			return state.Reject(state.CodeInvalidInviteTarget, "unknown client")
		}
		target, ok := e.registry.GetConnection(clientID)
		if !ok || !target.Authenticated() {
			return state.Reject(state.CodeInvalidInviteTarget, "that client cannot be invited")
		}
		targetUserID = target.UserID()
	}

	out, err := e.party.Invite(ctx, *conn.User, targetUserID)
	if err != nil {
		return err
	}
	e.sendToUsers([]string{targetUserID}, protocol.KindPartyInvite, protocol.InviteEvent{Invite: protocol.NewInviteView(out.Invite)})
	e.sendToUsers([]string{conn.UserID()}, protocol.KindPartyInviteSent, protocol.InviteSent{
		InviteID:     out.Invite.ID,
		TargetUserID: targetUserID,
	})
	e.resync(ctx, out.Resync...)
	e.resync(ctx, targetUserID)
	return nil
}

func (e *Engine) RespondInvite(ctx context.Context, conn *state.Connection, req protocol.InviteRespondPayload) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	userID := conn.UserID()
	out, err := e.party.Respond(ctx, userID, strings.TrimSpace(req.InviteID), req.Accept)
	if err != nil {
		if errors.Is(err, state.Reject(state.CodeInviteExpired, "")) {
			e.resync(ctx, userID)
		}
		return err
	}
	e.sendToUsers([]string{out.Invite.Inviter.ID}, protocol.KindPartyInviteResolved, protocol.InviteResolved{
		InviteID:     out.Invite.ID,
		TargetUserID: userID,
		Accepted:     out.Accepted,
	})
	e.resync(ctx, out.Resync...)
	if out.Accepted {
		e.sendToUsers([]string{userID}, protocol.KindPartyChatHistory, protocol.Messages{Messages: e.chat.PartyHistory(out.PartyID)})
	}
	return nil
}

func (e *Engine) LeaveParty(ctx context.Context, conn *state.Connection) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	out, err := e.party.Leave(ctx, conn.UserID())
	if err != nil {
		return err
	}
	if out.PartyDeleted {
		e.chat.DropParty(out.PartyID)
	}
	e.resync(ctx, out.Resync...)
	return nil
}

func (e *Engine) Kick(ctx context.Context, conn *state.Connection, req protocol.TargetPayload) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	out, err := e.party.Kick(ctx, conn.UserID(), strings.TrimSpace(req.TargetUserID))
	if err != nil {
		return err
	}
	e.resync(ctx, out.Resync...)
	return nil
}

func (e *Engine) Promote(ctx context.Context, conn *state.Connection, req protocol.TargetPayload) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	out, err := e.party.Promote(ctx, conn.UserID(), strings.TrimSpace(req.TargetUserID))
	if err != nil {
		return err
	}
	e.resync(ctx, out.Resync...)
	return nil
}

// UpdatePlayer validates and stores the avatar state, then broadcasts it to everyone,
// the sender included.
func (e *Engine) UpdatePlayer(ctx context.Context, conn *state.Connection, raw json.RawMessage) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	if _, err := e.presence.SetState(conn.ID, raw); err != nil {
		return err
	}
	e.broadcast(protocol.KindPlayerUpdate, protocol.PlayerEvent{Player: e.player(conn)})
	return nil
}

func (e *Engine) UpdateMedia(ctx context.Context, conn *state.Connection, raw json.RawMessage) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	flags, err := presence.ParseMedia(raw)
	if err != nil {
		return err
	}
	e.presence.SetMedia(conn.ID, flags)
	e.broadcast(protocol.KindPlayerMedia, protocol.PlayerEvent{Player: e.player(conn)})
	return nil
}

// RelaySignal forwards an opaque handshake payload to another connection when both
// sides may exchange media.
func (e *Engine) RelaySignal(ctx context.Context, conn *state.Connection, raw json.RawMessage) error {
	if err := requireUser(conn); err != nil {
		return err
	}
	sig, err := media.ParseSignal(raw)
	if err != nil {
		return err
	}
	target, _ := e.registry.GetConnection(sig.To)
	if err := e.media.Authorize(ctx, conn, target); err != nil {
		return err
	}
	e.send(target, protocol.KindRTCSignal, protocol.Signal{FromClientID: conn.ID.String(), Signal: sig.Payload})
	e.logger.Debug("Signal relayed", slog.String("from", conn.ID.String()), slog.String("to", target.ID.String()))
	return nil
}

// SendError answers a single connection with an error event.
func (e *Engine) SendError(conn *state.Connection, rej *state.Rejection) {
	e.send(conn, protocol.KindError, protocol.NewError(rej))
}
