// Package store persists per-match game state and its event log. Every
// mutation runs through Update, which gives the caller a game.Tx and writes
// the resulting state and events together or not at all.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
)

var (
	ErrNotFound = errors.New("game state not found")
	ErrExists   = errors.New("game state already exists")
	// ErrConflict is returned when an update kept losing to concurrent writers.
	ErrConflict = errors.New("too many concurrent updates")
)

// Store is the game state store. Updates to one lobby are serialised.
type Store interface {
	Create(ctx context.Context, state *game.GameState, events ...log.GameEvent) error
	Load(ctx context.Context, lobbyID string) (*game.GameState, error)
	// Update runs fn against the lobby's current state. If fn returns an error
	// nothing is written. It returns the committed state and the events
	// appended by this update, numbered.
	Update(ctx context.Context, lobbyID string, fn func(*game.Tx) error) (*game.GameState, []log.GameEvent, error)
	Delete(ctx context.Context, lobbyID string) error
	Events(ctx context.Context, lobbyID string) ([]log.GameEvent, error)
	// Record appends events outside a state update.
	Record(ctx context.Context, events ...log.GameEvent) error
}

var _ log.Recorder = Store(nil)

func encodeState(gs *game.GameState) ([]byte, error) {
	data, err := json.Marshal(gs)
	if err != nil {
		return nil, fmt.Errorf("encode game state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*game.GameState, error) {
	var gs game.GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, fmt.Errorf("decode game state: %w", err)
	}
	return &gs, nil
}

// number assigns sequence numbers continuing after the n events already
// stored.
func number(events []log.GameEvent, n int) []log.GameEvent {
	out := make([]log.GameEvent, len(events))
	for i, e := range events {
		e.Seq = n + i + 1
		out[i] = e
	}
	return out
}

// byLobby groups events by lobby, preserving order within each lobby.
func byLobby(events []log.GameEvent) (map[string][]log.GameEvent, []string, error) {
	groups := make(map[string][]log.GameEvent)
	var order []string
	for _, e := range events {
		if e.LobbyID == "" {
			return nil, nil, fmt.Errorf("event %s has no lobby id", e.Type)
		}
		if _, ok := groups[e.LobbyID]; !ok {
			order = append(order, e.LobbyID)
		}
		groups[e.LobbyID] = append(groups[e.LobbyID], e)
	}
	return groups, order, nil
}
