// Package tracker implements Memoir's message tracker (C10): a
// per-process, non-persisted, in-memory mirror of each session's
// in-flight messages, kept in stable insertion order across upserts.
package tracker

import (
	"sync"
	"time"

	"github.com/memoir/memoir/internal/model"
)

// TrackedMessage is one message as the tracker sees it: the same shape
// a finalized chunk message will take, before it is ever written to
// storage.
type TrackedMessage struct {
	ID        string
	Role      model.Role
	Parts     []model.Part
	Timestamp int64
}

type sessionState struct {
	messages []TrackedMessage
	msgIndex map[string]int // message id -> position in messages

	// partIndex tracks, per message id, which position in that
	// message's Parts slice a given part id currently occupies. Part
	// ids are a tracker-only bookkeeping concept; the persisted Part
	// shape (spec §6) carries no id field of its own.
	partIndex map[string]map[string]int

	currentChunkID string
	hasChunkID     bool
}

// Tracker holds per-session message state. The zero value is not
// usable; construct with New.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{sessions: make(map[string]*sessionState)}
}

func (t *Tracker) state(session string) *sessionState {
	s, ok := t.sessions[session]
	if !ok {
		s = &sessionState{msgIndex: make(map[string]int)}
		t.sessions[session] = s
	}
	return s
}

// TrackMessage upserts msg by id: an existing entry is replaced in
// place, preserving its original position and its original Timestamp
// (a re-emitted message keeps the arrival time of its first sighting,
// not the time of the update); otherwise msg is appended, stamped with
// the current time if it arrives with no Timestamp of its own.
func (t *Tracker) TrackMessage(session string, msg TrackedMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(session)
	if pos, ok := s.msgIndex[msg.ID]; ok {
		msg.Timestamp = s.messages[pos].Timestamp
		s.messages[pos] = msg
		return
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	s.msgIndex[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
}

// EnsureMessage creates an empty-parts shell for id if absent, stamped
// with the current time. If present with a different role, the role is
// corrected in place and the original Timestamp is left untouched.
func (t *Tracker) EnsureMessage(session, id string, role model.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(session)
	if pos, ok := s.msgIndex[id]; ok {
		if s.messages[pos].Role != role {
			s.messages[pos].Role = role
		}
		return
	}
	s.msgIndex[id] = len(s.messages)
	s.messages = append(s.messages, TrackedMessage{ID: id, Role: role, Timestamp: time.Now().Unix()})
}

// AddPart upserts part by its part id within the owning message's part
// list, creating the message with role defaultRole and the current time
// as its Timestamp if it does not yet exist. Parts are never
// deduplicated across messages.
func (t *Tracker) AddPart(session, messageID, partID string, part model.Part, defaultRole model.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(session)

	pos, ok := s.msgIndex[messageID]
	if !ok {
		pos = len(s.messages)
		s.msgIndex[messageID] = pos
		s.messages = append(s.messages, TrackedMessage{ID: messageID, Role: defaultRole, Timestamp: time.Now().Unix()})
	}

	if s.partIndex == nil {
		s.partIndex = make(map[string]map[string]int)
	}
	parts, ok := s.partIndex[messageID]
	if !ok {
		parts = make(map[string]int)
		s.partIndex[messageID] = parts
	}

	msg := &s.messages[pos]
	if partPos, ok := parts[partID]; ok {
		msg.Parts[partPos] = part
		return
	}
	parts[partID] = len(msg.Parts)
	msg.Parts = append(msg.Parts, part)
}

// GetMessages returns the tracked messages for session in insertion
// order. The returned slice is a copy; mutating it does not affect the
// tracker.
func (t *Tracker) GetMessages(session string) []TrackedMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[session]
	if !ok {
		return nil
	}
	out := make([]TrackedMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// MessageCount reports how many messages are tracked for session.
func (t *Tracker) MessageCount(session string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[session]
	if !ok {
		return 0
	}
	return len(s.messages)
}

// HasMessages reports whether any messages are tracked for session.
func (t *Tracker) HasMessages(session string) bool {
	return t.MessageCount(session) > 0
}

// ClearSession drops all tracked messages for session but preserves
// its current chunk id.
func (t *Tracker) ClearSession(session string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[session]
	if !ok {
		return
	}
	s.messages = nil
	s.msgIndex = make(map[string]int)
	s.partIndex = nil
}

// GetCurrentChunkID returns the session's current chunk id, if any.
func (t *Tracker) GetCurrentChunkID(session string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[session]
	if !ok {
		return "", false
	}
	return s.currentChunkID, s.hasChunkID
}

// SetCurrentChunkID records the session's current chunk id.
func (t *Tracker) SetCurrentChunkID(session, chunkID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(session)
	s.currentChunkID = chunkID
	s.hasChunkID = true
}
