// Package transporttest provides an in-memory transport that records every frame sent
// to it, for tests that exercise fan-out without real sockets.
package transporttest

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Frame is a decoded outbound event.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Recorder struct {
	id uuid.UUID

	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	closeErr error
}

func NewRecorder() *Recorder {
	return &Recorder{id: uuid.New()}
}

func (r *Recorder) ID() uuid.UUID { return r.id }

func (r *Recorder) Send(message []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.frames = append(r.frames, append([]byte(nil), message...))
}

func (r *Recorder) Close(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.closeErr = err
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Frames decodes everything sent so far.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, 0, len(r.frames))
	for _, raw := range r.frames {
		var f Frame
		if err := json.Unmarshal(raw, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// OfType returns the payloads of frames with the given type, in send order.
func (r *Recorder) OfType(typ string) []json.RawMessage {
	var out []json.RawMessage
	for _, f := range r.Frames() {
		if f.Type == typ {
			out = append(out, f.Payload)
		}
	}
	return out
}

// Last returns the most recent payload of the given type.
func (r *Recorder) Last(typ string) (json.RawMessage, bool) {
	all := r.OfType(typ)
	if len(all) == 0 {
		return nil, false
	}
	return all[len(all)-1], true
}

// Reset forgets recorded frames.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}
