package party

import (
	"context"
	"log/slog"

	"github.com/RadEZorack/augmego-core/pkg/state"
)

// Leave removes userID from their party. A departing leader hands leadership to the
// earliest-joined remaining member; a leader leaving alone deletes the party.
func (c *Coordinator) Leave(ctx context.Context, userID string) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.membership(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, state.Reject(state.CodeNotInParty, "you are not in a party")
	}
	before, err := c.store.ListMembers(ctx, m.PartyID)
	if err != nil {
		return nil, err
	}

	out := &Outcome{PartyID: m.PartyID}
	var resync userSet
	for _, member := range before {
		resync.add(member.UserID)
	}

	var successor string
	for _, member := range before {
		if member.UserID != userID {
			successor = member.UserID
			break
		}
	}

	switch {
	case m.IsLeader() && successor == "":
		if err := c.store.DeleteParty(ctx, m.PartyID); err != nil {
			return nil, err
		}
		out.PartyDeleted = true
		resync.add(c.cancelInvites(func(i *state.Invite) bool { return i.PartyID == m.PartyID })...)
		c.logger.Info("Party disbanded", slog.String("partyID", m.PartyID), slog.String("userID", userID))
	case m.IsLeader():
		if err := c.store.LeaveAndTransfer(ctx, m.PartyID, userID, successor); err != nil {
			return nil, err
		}
		c.logger.Info("Party leadership transferred", slog.String("partyID", m.PartyID), slog.String("from", userID), slog.String("to", successor))
	default:
		if err := c.store.RemoveMember(ctx, m.PartyID, userID); err != nil {
			return nil, err
		}
		c.logger.Info("Party member left", slog.String("partyID", m.PartyID), slog.String("userID", userID))
	}

	resync.add(c.cancelInvites(func(i *state.Invite) bool { return i.Inviter.ID == userID })...)
	out.Resync = resync.ids
	return out, nil
}

// Kick removes targetID from the actor's party. Leaders and managers may kick anyone
// except the leader.
func (c *Coordinator) Kick(ctx context.Context, actorID, targetID string) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if targetID == "" || targetID == actorID {
		return nil, state.Reject(state.CodeInvalidKickTarget, "choose another member to kick")
	}
	actor, err := c.membership(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, state.Reject(state.CodeNotInParty, "you are not in a party")
	}
	if !actor.Capabilities().Has(state.PermKick) {
		return nil, state.Reject(state.CodeNotPartyManagerOrLeader, "only the leader or a manager can kick")
	}
	target, err := c.membership(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil || target.PartyID != actor.PartyID {
		return nil, state.Reject(state.CodeTargetNotInParty, "that player is not in your party")
	}
	if target.IsLeader() {
		return nil, state.Reject(state.CodeCannotKickLeader, "the leader cannot be kicked")
	}

	before, err := c.store.ListMembers(ctx, actor.PartyID)
	if err != nil {
		return nil, err
	}
	if err := c.store.RemoveMember(ctx, actor.PartyID, targetID); err != nil {
		return nil, err
	}
	c.logger.Info("Party member kicked", slog.String("partyID", actor.PartyID), slog.String("actorID", actorID), slog.String("targetID", targetID))

	var resync userSet
	resync.add(actorID, targetID)
	for _, member := range before {
		resync.add(member.UserID)
	}
	resync.add(c.cancelInvites(func(i *state.Invite) bool { return i.Inviter.ID == targetID })...)
	return &Outcome{PartyID: actor.PartyID, Resync: resync.ids}, nil
}

// Promote makes a member a manager. Only the leader may promote.
func (c *Coordinator) Promote(ctx context.Context, actorID, targetID string) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if targetID == "" || targetID == actorID {
		return nil, state.Reject(state.CodeInvalidPromotionTarget, "choose another member to promote")
	}
	actor, err := c.membership(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, state.Reject(state.CodeNotInParty, "you are not in a party")
	}
	if !actor.Capabilities().Has(state.PermPromote) {
		return nil, state.Reject(state.CodeNotPartyLeader, "only the leader can promote")
	}
	target, err := c.membership(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil || target.PartyID != actor.PartyID {
		return nil, state.Reject(state.CodeTargetNotInParty, "that player is not in your party")
	}
	if target.Role == state.RoleManager {
		return nil, state.Reject(state.CodeTargetAlreadyManager, "that player is already a manager")
	}

	if err := c.store.SetMemberRole(ctx, actor.PartyID, targetID, state.RoleManager); err != nil {
		return nil, err
	}
	c.logger.Info("Party member promoted", slog.String("partyID", actor.PartyID), slog.String("targetID", targetID))

	members, err := c.MemberIDs(ctx, actor.PartyID)
	if err != nil {
		return nil, err
	}
	return &Outcome{PartyID: actor.PartyID, Resync: members}, nil
}
