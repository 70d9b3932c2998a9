// Package presence holds the last avatar state and media flags of every live connection.
package presence

import (
	"sync"
	"time"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
)

type Store struct {
	mu      sync.RWMutex
	players map[uuid.UUID]state.PlayerState
	media   map[uuid.UUID]state.MediaState
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		players: make(map[uuid.UUID]state.PlayerState),
		media:   make(map[uuid.UUID]state.MediaState),
		now:     time.Now,
	}
}

// SetState validates raw and, when valid, replaces the connection's state.
func (s *Store) SetState(connID uuid.UUID, raw []byte) (state.PlayerState, error) {
	ps, err := ParseState(raw)
	if err != nil {
		return state.PlayerState{}, err
	}
	ps.UpdatedAt = s.now()

	s.mu.Lock()
	s.players[connID] = ps
	s.mu.Unlock()
	return ps, nil
}

func (s *Store) State(connID uuid.UUID) (state.PlayerState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.players[connID]
	return ps, ok
}

func (s *Store) SetMedia(connID uuid.UUID, m state.MediaState) state.MediaState {
	s.mu.Lock()
	s.media[connID] = m
	s.mu.Unlock()
	return m
}

// Media returns the connection's flags, or the defaults if it never sent any.
func (s *Store) Media(connID uuid.UUID) state.MediaState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.media[connID]; ok {
		return m
	}
	return state.DefaultMedia
}

// Remove purges everything held for the connection.
func (s *Store) Remove(connID uuid.UUID) {
	s.mu.Lock()
	delete(s.players, connID)
	delete(s.media, connID)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}
