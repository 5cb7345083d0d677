// Package transcript holds the ordered list of turns exchanged during an
// interview. Turns are only ever appended; the most recent turn is the only
// one whose text may change, and only while its stream is open.
package transcript

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrEmpty is returned when a mutation targets the last turn of an empty
// transcript. It indicates a call-order defect, never a user-facing condition.
var ErrEmpty = errors.New("transcript is empty")

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in the transcript.
type Turn struct {
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	Interrupted bool      `json:"interrupted,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is an append-only sequence of turns. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{now: time.Now}
}

// Append adds a turn and returns its index.
func (s *Store) Append(role Role, text string) (int, error) {
	if !role.Valid() {
		return -1, fmt.Errorf("invalid role %q", role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
	})
	return len(s.turns) - 1, nil
}

// UpdateLast replaces the text of the most recent turn with text. The value
// is the full accumulated text, not a delta.
func (s *Store) UpdateLast(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == 0 {
		return ErrEmpty
	}
	s.turns[len(s.turns)-1].Text = text
	return nil
}

// MarkLastInterrupted flags the most recent turn as cut short by a failed stream.
func (s *Store) MarkLastInterrupted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == 0 {
		return ErrEmpty
	}
	s.turns[len(s.turns)-1].Interrupted = true
	return nil
}

// Reset drops every turn. Callers that stream into the store guard against
// late writes themselves; UpdateLast after Reset fails with ErrEmpty.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Snapshot returns a copy of all turns in order.
func (s *Store) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the most recent turn, if any.
func (s *Store) Last() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}
