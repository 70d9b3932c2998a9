package engine

import (
	"context"
	"log/slog"

	"github.com/RadEZorack/augmego-core/internal/chat"
	"github.com/RadEZorack/augmego-core/internal/media"
	"github.com/RadEZorack/augmego-core/internal/party"
	"github.com/RadEZorack/augmego-core/internal/presence"
	"github.com/RadEZorack/augmego-core/internal/store"
	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/RadEZorack/augmego-core/pkg/protocol"
	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/RadEZorack/augmego-core/pkg/state/statemanager"
	"github.com/google/uuid"
)

/*
* The single coordinator of a running world. It owns the connection registry, the
* presence store, the party coordinator, the chat logs and the media policy, and it is
* the only component that sends events to clients.
 */
type Engine struct {
	logger *slog.Logger

	registry state.Registry
	store    store.Store
	presence *presence.Store
	mirror   presence.Mirror
	party    *party.Coordinator
	chat     *chat.Relay
	media    *media.Policy
}

type Options struct {
	Store    store.Store
	Registry state.Registry // defaults to an in-memory registry
	Mirror   presence.Mirror // defaults to NopMirror
	Party    config.PartyConfig
	Chat     config.ChatConfig
}

// New creates and initializes a new Engine instance.
func New(logger *slog.Logger, opts Options) *Engine {
	e := &Engine{
		logger:   logger.With(slog.String("component", "engine")),
		registry: opts.Registry,
		store:    opts.Store,
		presence: presence.NewStore(),
		mirror:   opts.Mirror,
		chat:     chat.NewRelay(opts.Chat),
	}
	if e.registry == nil {
		e.registry = statemanager.NewInMemoryManager(logger)
	}
	if e.mirror == nil {
		e.mirror = presence.NopMirror{}
	}
	e.party = party.NewCoordinator(opts.Store, e.isOnline, opts.Party, logger)
	e.media = media.NewPolicy(e.party.PartyOf)
	return e
}

func (e *Engine) Registry() state.Registry { return e.registry }

func (e *Engine) isOnline(userID string) bool {
	_, ok := e.registry.FindAnyLiveConnectionForUser(userID)
	return ok
}

// Connect registers a new connection and pushes its initial snapshot. user is nil for
// anonymous connections.
func (e *Engine) Connect(ctx context.Context, t state.Transport, ipAddr string, user *state.Identity) (*state.Connection, error) {
	var partyID string
	if user != nil {
		if err := e.store.UpsertUser(ctx, *user); err != nil {
			return nil, err
		}
		var err error
		if partyID, err = e.party.PartyOf(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	conn, err := e.registry.RegisterConnection(t, ipAddr, user, partyID)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Client connected", slog.String("connID", conn.ID.String()), slog.String("userID", conn.UserID()), slog.String("partyID", partyID))

	e.send(conn, protocol.KindSessionInfo, protocol.SessionInfo{
		ClientID:      conn.ID.String(),
		Authenticated: conn.Authenticated(),
		User:          conn.User,
	})
	e.send(conn, protocol.KindPlayerSnapshot, protocol.PlayerSnapshot{Players: e.snapshot()})
	e.send(conn, protocol.KindChatHistory, protocol.Messages{Messages: e.chat.GlobalHistory()})
	if partyID != "" {
		e.send(conn, protocol.KindPartyChatHistory, protocol.Messages{Messages: e.chat.PartyHistory(partyID)})
	}
	if !conn.Authenticated() {
		return conn, nil
	}

	_, view, err := e.party.State(ctx, user.ID)
	if err != nil {
		e.logger.Error("Failed to build party state", slog.String("userID", user.ID), slog.Any("error", err))
	} else {
		e.send(conn, protocol.KindPartyState, view)
	}

	if e.registry.GetUserConnectionCount(user.ID) == 1 {
		if err := e.mirror.Online(ctx, user.ID); err != nil {
			e.logger.Warn("Presence mirror update failed", slog.String("userID", user.ID), slog.Any("error", err))
		}
		// party mates see the member come online
		e.resyncParty(ctx, partyID, user.ID)
	}
	return conn, nil
}

// Disconnect removes the connection and everything scoped to it. When it was the user's
// last connection their invites and cooldowns are dropped too.
func (e *Engine) Disconnect(ctx context.Context, connID uuid.UUID) {
	conn, remaining, err := e.registry.DeregisterConnection(connID)
	if err != nil || conn == nil {
		return
	}
	e.presence.Remove(connID)
	e.broadcast(protocol.KindPlayerLeave, protocol.PlayerLeave{ClientID: connID.String()})
	e.logger.Info("Client disconnected", slog.String("connID", connID.String()), slog.String("userID", conn.UserID()), slog.Int("remaining", remaining))

	if !conn.Authenticated() || remaining > 0 {
		return
	}
	userID := conn.UserID()
	affected := e.party.DisconnectCleanup(userID)
	if err := e.mirror.Offline(ctx, userID); err != nil {
		e.logger.Warn("Presence mirror update failed", slog.String("userID", userID), slog.Any("error", err))
	}
	e.resync(ctx, affected...)

	partyID, err := e.party.PartyOf(ctx, userID)
	if err != nil {
		e.logger.Error("Failed to look up party on disconnect", slog.String("userID", userID), slog.Any("error", err))
		return
	}
	e.resyncParty(ctx, partyID, userID)
}

// Sweep drops expired invites and cooldowns.
func (e *Engine) Sweep() { e.party.Sweep() }

// RefreshPresence renews the mirror entries of every online user.
func (e *Engine) RefreshPresence(ctx context.Context) error {
	return e.mirror.Refresh(ctx, e.registry.OnlineUserIDs())
}

type Stats struct {
	Connections    int `json:"connections"`
	OnlineUsers    int `json:"onlineUsers"`
	Players        int `json:"players"`
	PendingInvites int `json:"pendingInvites"`
	PartyChatLogs  int `json:"partyChatLogs"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		Connections:    e.registry.ConnectionCount(),
		OnlineUsers:    len(e.registry.OnlineUserIDs()),
		Players:        e.presence.Len(),
		PendingInvites: e.party.PendingInviteCount(),
		PartyChatLogs:  e.chat.PartyLogCount(),
	}
}

// CloseAll closes every live connection, for shutdown.
func (e *Engine) CloseAll(reason error) {
	for _, c := range e.registry.AllConnections() {
		c.Transport.Close(reason)
	}
}
