// Package chat keeps the bounded global and per-party message logs replayed to clients
// when they connect.
package chat

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/google/uuid"
)

// Log is a bounded, append-only message log. Beyond max entries the oldest is evicted.
type Log struct {
	mu   sync.RWMutex
	max  int
	msgs []state.ChatMessage
}

func NewLog(max int) *Log {
	if max <= 0 {
		max = 1
	}
	return &Log{max: max, msgs: make([]state.ChatMessage, 0, max)}
}

func (l *Log) Append(msg state.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.msgs) == l.max {
		copy(l.msgs, l.msgs[1:])
		l.msgs = l.msgs[:l.max-1]
	}
	l.msgs = append(l.msgs, msg)
}

// Messages returns a copy, oldest first.
func (l *Log) Messages() []state.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]state.ChatMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

type Relay struct {
	global       *Log
	partyHistory int
	maxLength    int

	mu      sync.Mutex
	parties map[string]*Log

	now func() time.Time
}

func NewRelay(cfg config.ChatConfig) *Relay {
	return &Relay{
		global:       NewLog(cfg.GlobalHistory),
		partyHistory: cfg.PartyHistory,
		maxLength:    cfg.MaxLength,
		parties:      make(map[string]*Log),
		now:          time.Now,
	}
}

// Compose builds a message from raw client text: trimmed, rejected when empty and cut to
// the configured number of characters.
func (r *Relay) Compose(author state.Identity, text string) (state.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return state.ChatMessage{}, state.Reject(state.CodeEmptyMessage, "message is empty")
	}
	if r.maxLength > 0 && utf8.RuneCountInString(text) > r.maxLength {
		text = string([]rune(text)[:r.maxLength])
	}
	return state.ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: r.now(),
		Author:    author,
	}, nil
}

func (r *Relay) AppendGlobal(msg state.ChatMessage) { r.global.Append(msg) }

func (r *Relay) GlobalHistory() []state.ChatMessage { return r.global.Messages() }

func (r *Relay) AppendParty(partyID string, msg state.ChatMessage) {
	r.mu.Lock()
	l, ok := r.parties[partyID]
	if !ok {
		l = NewLog(r.partyHistory)
		r.parties[partyID] = l
	}
	r.mu.Unlock()
	l.Append(msg)
}

func (r *Relay) PartyHistory(partyID string) []state.ChatMessage {
	r.mu.Lock()
	l, ok := r.parties[partyID]
	r.mu.Unlock()
	if !ok {
		return []state.ChatMessage{}
	}
	return l.Messages()
}

// DropParty forgets a deleted party's log.
func (r *Relay) DropParty(partyID string) {
	r.mu.Lock()
	delete(r.parties, partyID)
	r.mu.Unlock()
}

func (r *Relay) PartyLogCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.parties)
}
