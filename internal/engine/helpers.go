package engine

import (
	"context"
	"log/slog"

	"github.com/RadEZorack/augmego-core/pkg/protocol"
	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
)

// send encodes one event for a single connection.
func (e *Engine) send(conn *state.Connection, kind string, payload any) {
	msgBytes, err := protocol.Encode(kind, payload)
	if err != nil {
		e.logger.Error("Failed to marshal event", slog.String("type", kind), slog.Any("error", err))
		return
	}
	conn.Transport.Send(msgBytes)
}

// fanOut encodes the event once and hands it to every connection.
func (e *Engine) fanOut(conns []*state.Connection, kind string, payload any) {
	if len(conns) == 0 {
		return
	}
	msgBytes, err := protocol.Encode(kind, payload)
	if err != nil {
		e.logger.Error("Failed to marshal event", slog.String("type", kind), slog.Any("error", err))
		return
	}
	for _, conn := range conns {
		conn.Transport.Send(msgBytes)
	}
	e.logger.Debug("Notified connections", slog.String("type", kind), slog.Int("connection_count", len(conns)))
}

func (e *Engine) broadcast(kind string, payload any) {
	e.fanOut(e.registry.AllConnections(), kind, payload)
}

func (e *Engine) sendToUsers(userIDs []string, kind string, payload any) {
	e.fanOut(e.connectionsForUsers(userIDs), kind, payload)
}

// connectionsForUsers resolves users to their live connections, each connection once.
func (e *Engine) connectionsForUsers(userIDs []string) []*state.Connection {
	seen := make(map[uuid.UUID]struct{})
	var conns []*state.Connection
	for _, userID := range userIDs {
		for _, conn := range e.registry.FindConnectionsForUser(userID) {
			if _, ok := seen[conn.ID]; ok {
				continue
			}
			seen[conn.ID] = struct{}{}
			conns = append(conns, conn)
		}
	}
	return conns
}

// resync pushes fresh party state to each online user and refreshes the party id
// cached on their connections, announcing changed ids to everyone.
func (e *Engine) resync(ctx context.Context, userIDs ...string) {
	for _, userID := range userIDs {
		conns := e.registry.FindConnectionsForUser(userID)
		if len(conns) == 0 {
			continue
		}
		partyID, view, err := e.party.State(ctx, userID)
		if err != nil {
			e.logger.Error("Failed to build party state", slog.String("userID", userID), slog.Any("error", err))
			continue
		}
		for _, changed := range e.registry.SetPartyID(userID, partyID) {
			e.broadcast(protocol.KindPlayerParty, protocol.PlayerParty{
				ClientID: changed.ID.String(),
				PartyID:  protocol.OptionalID(partyID),
			})
		}
		e.fanOut(conns, protocol.KindPartyState, view)
	}
}

// resyncParty refreshes every member of partyID except skip, so that their member
// lists show skip's new online status.
func (e *Engine) resyncParty(ctx context.Context, partyID, skip string) {
	if partyID == "" {
		return
	}
	members, err := e.party.MemberIDs(ctx, partyID)
	if err != nil {
		e.logger.Error("Failed to list party members", slog.String("partyID", partyID), slog.Any("error", err))
		return
	}
	others := members[:0:0]
	for _, id := range members {
		if id != skip {
			others = append(others, id)
		}
	}
	e.resync(ctx, others...)
}

func (e *Engine) player(conn *state.Connection) protocol.Player {
	media := e.presence.Media(conn.ID)
	p := protocol.Player{
		ClientID:      conn.ID.String(),
		PartyID:       protocol.OptionalID(conn.PartyID()),
		MicMuted:      media.MicMuted,
		CameraEnabled: media.CameraEnabled,
	}
	if conn.User != nil {
		p.UserID = conn.User.ID
		p.Name = conn.User.Name
		p.AvatarURL = conn.User.AvatarURL
	}
	if st, ok := e.presence.State(conn.ID); ok {
		p.State = &st
	}
	return p
}

func (e *Engine) snapshot() []protocol.Player {
	conns := e.registry.AllConnections()
	players := make([]protocol.Player, 0, len(conns))
	for _, conn := range conns {
		players = append(players, e.player(conn))
	}
	return players
}
