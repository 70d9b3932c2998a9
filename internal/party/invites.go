package party

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/RadEZorack/augmego-core/internal/store"
	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func cooldownKey(inviterID, targetID string) string { return inviterID + "|" + targetID }

// Invite offers the target a place in the inviter's party, creating the party when the
// inviter has none. Every check that can fail runs before anything is created.
func (c *Coordinator) Invite(ctx context.Context, inviter state.Identity, targetUserID string) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	if targetUserID == "" {
		return nil, state.Reject(state.CodeInvalidInviteTarget, "choose someone to invite")
	}
	if targetUserID == inviter.ID {
		return nil, state.Reject(state.CodeInviteSelfNotAllowed, "you cannot invite yourself")
	}
	if _, err := c.store.FindUserByID(ctx, targetUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, state.Reject(state.CodeTargetNotFound, "that player does not exist")
		}
		return nil, err
	}
	if !c.online(targetUserID) {
		return nil, state.Reject(state.CodeTargetOffline, "that player is offline")
	}
	targetMembership, err := c.membership(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if targetMembership != nil {
		return nil, state.Reject(state.CodeTargetAlreadyInParty, "that player is already in a party")
	}
	if _, until, found := c.cooldowns.GetWithExpiration(cooldownKey(inviter.ID, targetUserID)); found {
		rej := state.Reject(state.CodeInviteCooldown, "wait before inviting that player again")
		rej.RetryAfter = until.Sub(c.now())
		if rej.RetryAfter < time.Millisecond {
			rej.RetryAfter = time.Millisecond
		}
		return nil, rej
	}

	partyID, canManage, created, err := c.ensureLocked(ctx, inviter.ID)
	if err != nil {
		return nil, err
	}
	if !canManage {
		return nil, state.Reject(state.CodeNotPartyManagerOrLeader, "only the leader or a manager can invite")
	}

	// one pending invite per inviter and target
	for _, prev := range c.matchInvites(func(inv *state.Invite) bool {
		return inv.Inviter.ID == inviter.ID && inv.TargetUserID == targetUserID
	}) {
		c.invites.Delete(prev.ID)
	}

	now := c.now()
	inv := &state.Invite{
		ID:           uuid.NewString(),
		PartyID:      partyID,
		TargetUserID: targetUserID,
		Inviter:      inviter,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.ttl),
	}
	c.invites.Set(inv.ID, inv, c.ttl)
	if c.cooldown > 0 {
		c.cooldowns.Set(cooldownKey(inviter.ID, targetUserID), struct{}{}, c.cooldown)
	}
	c.logger.Info("Invite created",
		slog.String("inviteID", inv.ID),
		slog.String("partyID", partyID),
		slog.String("inviterID", inviter.ID),
		slog.String("targetUserID", targetUserID),
		slog.Bool("partyCreated", created),
	)

	out := &Outcome{PartyID: partyID, PartyCreated: created, Invite: inv}
	if created {
		out.Resync = []string{inviter.ID}
	}
	return out, nil
}

// Respond accepts or declines an invite addressed to userID. An invite is used at most
// once; a second response reports INVITE_EXPIRED.
func (c *Coordinator) Respond(ctx context.Context, userID, inviteID string, accept bool) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	if inviteID == "" {
		return nil, state.Reject(state.CodeInvalidInviteID, "inviteId is required")
	}
	v, found := c.invites.Get(inviteID)
	if !found || v.(*state.Invite).Expired(c.now()) {
		return nil, state.Reject(state.CodeInviteExpired, "that invite is no longer valid")
	}
	inv := v.(*state.Invite)
	if inv.TargetUserID != userID {
		return nil, state.Reject(state.CodeInvalidInviteID, "that invite is not addressed to you")
	}
	if !accept {
		c.invites.Delete(inviteID)
		c.logger.Info("Invite declined", slog.String("inviteID", inviteID), slog.String("userID", userID))
		return &Outcome{PartyID: inv.PartyID, Invite: inv, Resync: []string{userID}}, nil
	}

	// Rejections consume the invite. Store failures leave it pending so the user can retry.
	reject := func(code state.Code, msg string) (*Outcome, error) {
		c.invites.Delete(inviteID)
		return nil, state.Reject(code, msg)
	}
	existing, err := c.membership(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return reject(state.CodeTargetAlreadyInParty, "you are already in a party")
	}
	if _, err := c.store.GetParty(ctx, inv.PartyID); err != nil {
		if errors.Is(err, store.ErrPartyNotFound) {
			return reject(state.CodePartyNotFound, "that party no longer exists")
		}
		return nil, err
	}
	if _, err := c.store.AddMember(ctx, inv.PartyID, userID, state.RoleMember); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyMember):
			return reject(state.CodeTargetAlreadyInParty, "you are already in a party")
		case errors.Is(err, store.ErrPartyNotFound):
			return reject(state.CodePartyNotFound, "that party no longer exists")
		}
		return nil, err
	}
	c.invites.Delete(inviteID)
	for _, other := range c.matchInvites(func(i *state.Invite) bool { return i.TargetUserID == userID }) {
		c.invites.Delete(other.ID)
	}

	members, err := c.MemberIDs(ctx, inv.PartyID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Invite accepted", slog.String("inviteID", inviteID), slog.String("partyID", inv.PartyID), slog.String("userID", userID))
	var resync userSet
	resync.add(members...)
	resync.add(userID)
	return &Outcome{PartyID: inv.PartyID, Invite: inv, Accepted: true, Resync: resync.ids}, nil
}

// DisconnectCleanup drops every invite and cooldown involving a user who has no live
// connection left. It returns the other users whose pending invites changed.
func (c *Coordinator) DisconnectCleanup(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var affected userSet
	for _, inv := range c.matchInvites(func(i *state.Invite) bool {
		return i.TargetUserID == userID || i.Inviter.ID == userID
	}) {
		c.invites.Delete(inv.ID)
		if inv.TargetUserID == userID {
			affected.add(inv.Inviter.ID)
		} else {
			affected.add(inv.TargetUserID)
		}
	}
	for key := range c.cooldowns.Items() {
		inviter, target, _ := strings.Cut(key, "|")
		if inviter == userID || target == userID {
			c.cooldowns.Delete(key)
		}
	}
	return affected.ids
}

// Sweep deletes expired invites and cooldowns.
func (c *Coordinator) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
}

func (c *Coordinator) sweepLocked() {
	c.invites.DeleteExpired()
	c.cooldowns.DeleteExpired()
}

// cancelInvites removes matching invites and returns their targets.
func (c *Coordinator) cancelInvites(match func(*state.Invite) bool) []string {
	var targets []string
	for _, inv := range c.matchInvites(match) {
		c.invites.Delete(inv.ID)
		targets = append(targets, inv.TargetUserID)
	}
	return targets
}

func (c *Coordinator) matchInvites(match func(*state.Invite) bool) []*state.Invite {
	var out []*state.Invite
	for _, item := range c.invites.Items() {
		if inv := item.Object.(*state.Invite); match(inv) {
			out = append(out, inv)
		}
	}
	return out
}
