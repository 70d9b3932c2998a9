package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/RadEZorack/augmego-core/pkg/protocol"
	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/tidwall/gjson"
)

var errInvalidPayload = state.Reject(state.CodeInvalidPayload, "malformed message")

// dispatch routes one frame. It returns the kind it read so failures can be logged
// against it.
func (r *EventRouter) dispatch(ctx context.Context, conn *state.Connection, msg []byte) (string, error) {
	if !gjson.ValidBytes(msg) {
		return "", errInvalidPayload
	}
	kind := gjson.GetBytes(msg, "type")
	if kind.Type != gjson.String {
		return "", errInvalidPayload
	}
	payload := gjson.GetBytes(msg, "payload")

	r.logger.Debug("Dispatching message", slog.String("type", kind.Str), slog.String("connID", conn.ID.String()))
	switch kind.Str {
	case protocol.KindChatSend:
		var p protocol.TextPayload
		if err := decode(payload, &p); err != nil {
			return kind.Str, err
		}
		return kind.Str, r.handler.SendChat(ctx, conn, p.Text)
	case protocol.KindPartyChatSend:
		var p protocol.TextPayload
		if err := decode(payload, &p); err != nil {
			return kind.Str, err
		}
		return kind.Str, r.handler.SendPartyChat(ctx, conn, p.Text)
	case protocol.KindPartyInvite:
		var p protocol.InvitePayload
		if err := decode(payload, &p); err != nil {
			return kind.Str, err
		}
		return kind.Str, r.handler.Invite(ctx, conn, p)
	case protocol.KindPartyInviteRespond:
		var p protocol.InviteRespondPayload
		if err := decode(payload, &p); err != nil {
			return kind.Str, err
		}
		return kind.Str, r.handler.RespondInvite(ctx, conn, p)
	case protocol.KindPartyLeave:
		return kind.Str, r.handler.LeaveParty(ctx, conn)
	case protocol.KindPartyKick:
		var p protocol.TargetPayload
		if err := decode(payload, &p); err != nil {
			return kind.Str, err
		}
		return kind.Str, r.handler.Kick(ctx, conn, p)
	case protocol.KindPartyPromote:
		var p protocol.TargetPayload
		if err := decode(payload, &p); err != nil {
			return kind.Str, err
		}
		return kind.Str, r.handler.Promote(ctx, conn, p)
	case protocol.KindPlayerUpdate:
		return kind.Str, r.handler.UpdatePlayer(ctx, conn, rawOf(payload.Get("state")))
	case protocol.KindPlayerMedia:
		return kind.Str, r.handler.UpdateMedia(ctx, conn, rawOf(payload))
	case protocol.KindRTCSignal:
		return kind.Str, r.handler.RelaySignal(ctx, conn, rawOf(payload))
	default:
		return kind.Str, state.Reject(state.CodeInvalidPayload, "unknown message type")
	}
}

// decode fills v from an object payload. A missing or null payload leaves v zeroed.
func decode(payload gjson.Result, v any) error {
	if !payload.Exists() || payload.Type == gjson.Null {
		return nil
	}
	if !payload.IsObject() {
		return errInvalidPayload
	}
	if err := json.Unmarshal([]byte(payload.Raw), v); err != nil {
		return errInvalidPayload
	}
	return nil
}

func rawOf(v gjson.Result) json.RawMessage {
	if !v.Exists() {
		return nil
	}
	return json.RawMessage(v.Raw)
}
