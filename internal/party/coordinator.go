// Package party coordinates party membership: creation, invites with per-pair cooldowns,
// leaving with leader succession, kicks and promotions.
//
// Every operation that changes membership holds the coordinator lock and re-reads the
// persisted membership before acting. Operations return an Outcome naming the users whose
// party view changed; the caller pushes the new views after the lock is released.
package party

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/RadEZorack/augmego-core/internal/store"
	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/RadEZorack/augmego-core/pkg/protocol"
	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// OnlineFunc reports whether a user holds at least one live connection.
type OnlineFunc func(userID string) bool

type Coordinator struct {
	mu sync.Mutex

	store  store.Store
	online OnlineFunc

	invites   *cache.Cache // invite id -> *state.Invite
	cooldowns *cache.Cache // "inviter|target" -> struct{}
	ttl       time.Duration
	cooldown  time.Duration

	now    func() time.Time
	logger *slog.Logger
}

// Outcome describes what a successful operation changed.
type Outcome struct {
	PartyID      string
	PartyCreated bool
	PartyDeleted bool
	Invite       *state.Invite
	Accepted     bool
	// Resync lists users whose party view changed, without duplicates.
	Resync []string
}

func NewCoordinator(s store.Store, online OnlineFunc, cfg config.PartyConfig, logger *slog.Logger) *Coordinator {
	// the scheduler sweeps, so go-cache runs no janitor of its own
	c := &Coordinator{
		store:     s,
		online:    online,
		invites:   cache.New(cache.NoExpiration, 0),
		cooldowns: cache.New(cache.NoExpiration, 0),
		ttl:       cfg.InviteTTL,
		cooldown:  cfg.InviteCooldown,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "party")),
	}
	c.invites.OnEvicted(func(id string, v any) {
		if inv, ok := v.(*state.Invite); ok {
			c.logger.Debug("Invite removed", slog.String("inviteID", id), slog.String("partyID", inv.PartyID), slog.String("targetUserID", inv.TargetUserID))
		}
	})
	return c
}

// EnsureManageablePartyOrCreate returns the user's party, creating one led by the user
// when they have none, and whether the user may manage it.
func (c *Coordinator) EnsureManageablePartyOrCreate(ctx context.Context, userID string) (partyID string, canManage, created bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked(ctx, userID)
}

func (c *Coordinator) ensureLocked(ctx context.Context, userID string) (string, bool, bool, error) {
	m, err := c.membership(ctx, userID)
	if err != nil {
		return "", false, false, err
	}
	if m != nil {
		return m.PartyID, m.CanManage(), false, nil
	}
	p, err := c.store.CreateParty(ctx, userID)
	if err != nil {
		return "", false, false, err
	}
	c.logger.Info("Party created", slog.String("partyID", p.ID), slog.String("leaderID", userID))
	return p.ID, true, true, nil
}

// PartyOf returns the user's current party id, or "" when partyless.
func (c *Coordinator) PartyOf(ctx context.Context, userID string) (string, error) {
	m, err := c.membership(ctx, userID)
	if err != nil || m == nil {
		return "", err
	}
	return m.PartyID, nil
}

// MemberIDs returns the current members of the party, in join order.
func (c *Coordinator) MemberIDs(ctx context.Context, partyID string) ([]string, error) {
	members, err := c.store.ListMembers(ctx, partyID)
	if err != nil {
		if errors.Is(err, store.ErrPartyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids, nil
}

// State builds the party view pushed to userID together with the user's pending invites.
func (c *Coordinator) State(ctx context.Context, userID string) (string, protocol.PartyState, error) {
	view := protocol.PartyState{PendingInvites: c.pendingFor(userID)}
	m, err := c.membership(ctx, userID)
	if err != nil || m == nil {
		return "", view, err
	}
	members, err := c.store.ListMembers(ctx, m.PartyID)
	if err != nil {
		if errors.Is(err, store.ErrPartyNotFound) {
			return "", view, nil
		}
		return "", view, err
	}

	pv := &protocol.PartyView{ID: m.PartyID, LeaderID: m.LeaderID, Members: make([]protocol.PartyMember, len(members))}
	for i := range members {
		mm := &members[i]
		pv.Members[i] = protocol.PartyMember{
			User:     mm.User,
			Role:     mm.EffectiveRole(),
			IsLeader: mm.IsLeader(),
			Online:   c.online(mm.UserID),
			JoinedAt: mm.JoinedAt,
		}
	}
	view.Party = pv
	return m.PartyID, view, nil
}

func (c *Coordinator) PendingInviteCount() int { return c.invites.ItemCount() }

// membership returns nil without error when the user belongs to no party.
func (c *Coordinator) membership(ctx context.Context, userID string) (*state.Membership, error) {
	m, err := c.store.GetMembership(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// pendingFor lists unexpired invites addressed to userID, oldest first.
func (c *Coordinator) pendingFor(userID string) []protocol.InviteView {
	now := c.now()
	var invs []*state.Invite
	for _, item := range c.invites.Items() {
		inv := item.Object.(*state.Invite)
		if inv.TargetUserID == userID && !inv.Expired(now) {
			invs = append(invs, inv)
		}
	}
	sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.Before(invs[j].CreatedAt) })

	out := make([]protocol.InviteView, len(invs))
	for i, inv := range invs {
		out[i] = protocol.NewInviteView(inv)
	}
	return out
}

// userSet collects user ids in insertion order without duplicates.
type userSet struct {
	seen map[string]struct{}
	ids  []string
}

func (s *userSet) add(ids ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.seen[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
}
