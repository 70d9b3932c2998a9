// Package store persists users, parties and party memberships. Each operation is atomic
// on its own; callers that need several operations to appear as one serialize them.
package store

import (
	"context"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/pkg/errors"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrPartyNotFound  = errors.New("party not found")
	ErrAlreadyMember  = errors.New("user already belongs to a party")
	ErrNotPartyMember = errors.New("user is not a member of the party")
)

type Store interface {
	// UpsertUser records the identity the session resolver produced.
	UpsertUser(ctx context.Context, user state.Identity) error
	// FindUserByID returns ErrNotFound for unknown accounts.
	FindUserByID(ctx context.Context, userID string) (*state.Identity, error)

	// GetMembership returns ErrNotFound when the user belongs to no party.
	GetMembership(ctx context.Context, userID string) (*state.Membership, error)
	GetParty(ctx context.Context, partyID string) (*state.Party, error)
	// CreateParty creates a party led by the user with the user as its only member. It
	// fails with ErrAlreadyMember if the user already belongs to a party.
	CreateParty(ctx context.Context, leaderID string) (*state.Party, error)
	AddMember(ctx context.Context, partyID, userID string, role state.Role) (*state.Membership, error)
	RemoveMember(ctx context.Context, partyID, userID string) error
	// TransferLeader requires the new leader to already be a member.
	TransferLeader(ctx context.Context, partyID, newLeaderID string) error
	// LeaveAndTransfer makes successorID the leader and removes userID in one step. Neither
	// change is applied if either fails.
	LeaveAndTransfer(ctx context.Context, partyID, userID, successorID string) error
	DeleteParty(ctx context.Context, partyID string) error
	SetMemberRole(ctx context.Context, partyID, userID string, role state.Role) error
	// ListMembers returns members ordered by join time, then row id.
	ListMembers(ctx context.Context, partyID string) ([]state.Membership, error)

	Close() error
}
