package app

import (
	"context"
	"sync"

	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/peterkuimelis/duelserver/internal/store"
)

// Hub fans committed game events out to live subscribers of a lobby.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

// Subscription receives a lobby's events until it is closed. A subscriber
// that falls more than the hub's buffer behind is dropped and its channel
// closed.
type Subscription struct {
	C       <-chan log.GameEvent
	ch      chan log.GameEvent
	lobbyID string
	hub     *Hub
	once    sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

func (h *Hub) Subscribe(lobbyID string) *Subscription {
	ch := make(chan log.GameEvent, h.buffer)
	sub := &Subscription{C: ch, ch: ch, lobbyID: lobbyID, hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[lobbyID] == nil {
		h.subs[lobbyID] = make(map[*Subscription]struct{})
	}
	h.subs[lobbyID][sub] = struct{}{}
	return sub
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.remove(s)
}

// remove must be called with h.mu held.
func (h *Hub) remove(s *Subscription) {
	if subs, ok := h.subs[s.lobbyID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.subs, s.lobbyID)
		}
	}
	s.once.Do(func() { close(s.ch) })
}

// Publish delivers events to every subscriber of the lobby without blocking.
func (h *Hub) Publish(lobbyID string, events []log.GameEvent) {
	if len(events) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[lobbyID] {
	send:
		for _, e := range events {
			select {
			case sub.ch <- e:
			default:
				h.remove(sub)
				break send
			}
		}
	}
}

// Subscribers returns how many live subscriptions a lobby has.
func (h *Hub) Subscribers(lobbyID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[lobbyID])
}

// Recorder appends events outside a game action (the game-end entry) to the
// store and publishes them with their assigned sequence numbers.
type Recorder struct {
	Store store.Store
	Hub   *Hub
}

func (r Recorder) Record(ctx context.Context, events ...log.GameEvent) error {
	if err := r.Store.Record(ctx, events...); err != nil {
		return err
	}
	if r.Hub == nil {
		return nil
	}
	seen := map[string]int{}
	for _, e := range events {
		seen[e.LobbyID]++
	}
	for lobbyID, n := range seen {
		all, err := r.Store.Events(ctx, lobbyID)
		if err != nil {
			return err
		}
		r.Hub.Publish(lobbyID, all[max(len(all)-n, 0):])
	}
	return nil
}
