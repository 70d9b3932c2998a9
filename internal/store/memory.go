package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MemoryStore keeps everything in process memory. It backs tests and single-node
// development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]state.Identity
	parties map[string]state.Party
	members map[string]PartyMember // by user id
	nextRow uint
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]state.Identity),
		parties: make(map[string]state.Party),
		members: make(map[string]PartyMember),
		now:     time.Now,
	}
}

func (s *MemoryStore) UpsertUser(_ context.Context, user state.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) FindUserByID(_ context.Context, userID string) (*state.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errors.WithStack(ErrNotFound)
	}
	return &u, nil
}

func (s *MemoryStore) GetMembership(_ context.Context, userID string) (*state.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.members[userID]
	if !ok {
		return nil, errors.WithStack(ErrNotFound)
	}
	m := s.membershipLocked(row)
	return &m, nil
}

func (s *MemoryStore) GetParty(_ context.Context, partyID string) (*state.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parties[partyID]
	if !ok {
		return nil, errors.WithStack(ErrPartyNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) CreateParty(_ context.Context, leaderID string) (*state.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[leaderID]; ok {
		return nil, errors.WithStack(ErrAlreadyMember)
	}
	now := s.now()
	p := state.Party{ID: uuid.NewString(), LeaderID: leaderID, CreatedAt: now}
	s.parties[p.ID] = p
	s.insertLocked(p.ID, leaderID, state.RoleMember, now)
	return &p, nil
}

func (s *MemoryStore) AddMember(_ context.Context, partyID, userID string, role state.Role) (*state.Membership, error) {
	if !role.Valid() {
		return nil, errors.Errorf("invalid role %q", role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parties[partyID]; !ok {
		return nil, errors.WithStack(ErrPartyNotFound)
	}
	if _, ok := s.members[userID]; ok {
		return nil, errors.WithStack(ErrAlreadyMember)
	}
	row := s.insertLocked(partyID, userID, role, s.now())
	m := s.membershipLocked(row)
	return &m, nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, partyID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.members[userID]
	if !ok || row.PartyID != partyID {
		return errors.WithStack(ErrNotPartyMember)
	}
	delete(s.members, userID)
	return nil
}

func (s *MemoryStore) TransferLeader(_ context.Context, partyID, newLeaderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[partyID]
	if !ok {
		return errors.WithStack(ErrPartyNotFound)
	}
	if row, ok := s.members[newLeaderID]; !ok || row.PartyID != partyID {
		return errors.WithStack(ErrNotPartyMember)
	}
	p.LeaderID = newLeaderID
	s.parties[partyID] = p
	return nil
}

func (s *MemoryStore) LeaveAndTransfer(_ context.Context, partyID, userID, successorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[partyID]
	if !ok {
		return errors.WithStack(ErrPartyNotFound)
	}
	leaver, ok := s.members[userID]
	if !ok || leaver.PartyID != partyID {
		return errors.WithStack(ErrNotPartyMember)
	}
	if row, ok := s.members[successorID]; !ok || row.PartyID != partyID || successorID == userID {
		return errors.WithStack(ErrNotPartyMember)
	}
	p.LeaderID = successorID
	s.parties[partyID] = p
	delete(s.members, userID)
	return nil
}

func (s *MemoryStore) DeleteParty(_ context.Context, partyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parties[partyID]; !ok {
		return errors.WithStack(ErrPartyNotFound)
	}
	for userID, row := range s.members {
		if row.PartyID == partyID {
			delete(s.members, userID)
		}
	}
	delete(s.parties, partyID)
	return nil
}

func (s *MemoryStore) SetMemberRole(_ context.Context, partyID, userID string, role state.Role) error {
	if !role.Valid() {
		return errors.Errorf("invalid role %q", role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.members[userID]
	if !ok || row.PartyID != partyID {
		return errors.WithStack(ErrNotPartyMember)
	}
	row.Role = string(role)
	s.members[userID] = row
	return nil
}

func (s *MemoryStore) ListMembers(_ context.Context, partyID string) ([]state.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.parties[partyID]; !ok {
		return nil, errors.WithStack(ErrPartyNotFound)
	}
	var out []state.Membership
	for _, row := range s.members {
		if row.PartyID == partyID {
			out = append(out, s.membershipLocked(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].RowID < out[j].RowID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// SetClock overrides the join-time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) insertLocked(partyID, userID string, role state.Role, joinedAt time.Time) PartyMember {
	s.nextRow++
	row := PartyMember{ID: s.nextRow, PartyID: partyID, UserID: userID, Role: string(role), JoinedAt: joinedAt}
	s.members[userID] = row
	return row
}

func (s *MemoryStore) membershipLocked(row PartyMember) state.Membership {
	m := toMembership(row, s.parties[row.PartyID].LeaderID)
	if u, ok := s.users[row.UserID]; ok {
		m.User = u
	} else {
		m.User = state.Identity{ID: row.UserID}
	}
	return m
}
