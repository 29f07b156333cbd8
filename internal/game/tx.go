package game

import (
	"time"

	"github.com/peterkuimelis/duelserver/internal/log"
)

// Tx is the single mutation path for one match action. Every reader gets a
// fresh deep copy of the current state and writes go back through Commit, so
// no helper ever shares zone slices with another. A store persists the final
// state and the recorded events together, or neither.
type Tx struct {
	state  *GameState
	events []log.GameEvent
	dirty  bool
	depth  int // nested effect triggers
	now    func() time.Time
}

// NewTx starts a transaction over a copy of state.
func NewTx(state *GameState) *Tx {
	return &Tx{state: state.Clone(), now: time.Now}
}

// Snapshot returns a fresh copy of the current (uncommitted) state.
func (tx *Tx) Snapshot() *GameState {
	return tx.state.Clone()
}

// Commit replaces the transaction's state with a copy of s.
func (tx *Tx) Commit(s *GameState) {
	tx.state = s.Clone()
	tx.dirty = true
}

// Record appends events in order, stamping them with the match identity.
func (tx *Tx) Record(events ...log.GameEvent) {
	for _, e := range events {
		e.LobbyID = tx.state.LobbyID
		e.GameID = tx.state.GameID
		if e.At.IsZero() {
			e.At = tx.now().UTC()
		}
		tx.events = append(tx.events, e)
	}
}

// Events returns the events recorded so far.
func (tx *Tx) Events() []log.GameEvent {
	out := make([]log.GameEvent, len(tx.events))
	copy(out, tx.events)
	return out
}

// Dirty reports whether anything was committed.
func (tx *Tx) Dirty() bool {
	return tx.dirty
}

// Result returns the state to persist, with the version bumped when dirty.
func (tx *Tx) Result() *GameState {
	s := tx.state.Clone()
	if tx.dirty {
		s.Version++
		s.LastActionAt = tx.now().UTC()
	}
	return s
}

// LobbyID returns the lobby the transaction belongs to.
func (tx *Tx) LobbyID() string {
	return tx.state.LobbyID
}
