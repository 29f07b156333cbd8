package store

import (
	"context"
	"sync"

	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
)

// MemoryStore keeps encoded states in a map. Every read decodes a fresh copy,
// so callers never share memory with the store.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string][]byte
	events map[string][]log.GameEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string][]byte),
		events: make(map[string][]log.GameEvent),
	}
}

func (s *MemoryStore) Create(_ context.Context, state *game.GameState, events ...log.GameEvent) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[state.LobbyID]; ok {
		return ErrExists
	}
	s.states[state.LobbyID] = data
	s.events[state.LobbyID] = number(events, 0)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, lobbyID string) (*game.GameState, error) {
	s.mu.Lock()
	data, ok := s.states[lobbyID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeState(data)
}

func (s *MemoryStore) Update(_ context.Context, lobbyID string, fn func(*game.Tx) error) (*game.GameState, []log.GameEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.states[lobbyID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	gs, err := decodeState(data)
	if err != nil {
		return nil, nil, err
	}
	tx := game.NewTx(gs)
	if err := fn(tx); err != nil {
		return nil, nil, err
	}

	next := tx.Result()
	if tx.Dirty() {
		if data, err = encodeState(next); err != nil {
			return nil, nil, err
		}
		s.states[lobbyID] = data
	}
	recorded := number(tx.Events(), len(s.events[lobbyID]))
	s.events[lobbyID] = append(s.events[lobbyID], recorded...)
	return next, recorded, nil
}

// Delete drops the game state. The event log is kept for replay.
func (s *MemoryStore) Delete(_ context.Context, lobbyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, lobbyID)
	return nil
}

func (s *MemoryStore) Events(_ context.Context, lobbyID string) ([]log.GameEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]log.GameEvent, len(s.events[lobbyID]))
	copy(out, s.events[lobbyID])
	return out, nil
}

func (s *MemoryStore) Record(_ context.Context, events ...log.GameEvent) error {
	groups, order, err := byLobby(events)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lobbyID := range order {
		s.events[lobbyID] = append(s.events[lobbyID], number(groups[lobbyID], len(s.events[lobbyID]))...)
	}
	return nil
}
