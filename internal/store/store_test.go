package store

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(lobbyID string) *game.GameState {
	gs := &game.GameState{
		LobbyID:             lobbyID,
		GameID:              "game-" + lobbyID,
		HostID:              "p1",
		OpponentID:          "p2",
		CurrentTurnPlayerID: "p1",
		TurnNumber:          1,
		CurrentPhase:        game.PhaseMain1,
	}
	for i, id := range []string{"p1", "p2"} {
		gs.Players[i] = &game.PlayerState{
			UserID:     id,
			LifePoints: 8000,
			Hand:       []game.CardRef{{InstanceID: id + "-1", CardID: "knight", OwnerID: id}},
		}
	}
	return gs
}

// bumpMana commits one change and records one event.
func bumpMana(tx *game.Tx) error {
	gs := tx.Snapshot()
	gs.Players[0].Mana++
	tx.Commit(gs)
	tx.Record(log.NewPhaseChangeEvent(gs.TurnNumber, string(gs.CurrentPhase), "p1"))
	return nil
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and load", func(t *testing.T) {
		s := newStore(t)
		lobby := uuid.NewString()
		require.NoError(t, s.Create(ctx, testState(lobby), log.GameEvent{LobbyID: lobby, Type: log.EventGameStarted}))

		gs, err := s.Load(ctx, lobby)
		require.NoError(t, err)
		assert.Equal(t, "p1", gs.HostID)
		assert.Equal(t, 8000, gs.Player("p2").LifePoints)

		assert.ErrorIs(t, s.Create(ctx, testState(lobby)), ErrExists)

		events, err := s.Events(ctx, lobby)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, 1, events[0].Seq)
	})

	t.Run("missing lobby", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(ctx, "nope-"+uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
		_, _, err = s.Update(ctx, "nope-"+uuid.NewString(), bumpMana)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update commits state and events together", func(t *testing.T) {
		s := newStore(t)
		lobby := uuid.NewString()
		require.NoError(t, s.Create(ctx, testState(lobby)))

		next, recorded, err := s.Update(ctx, lobby, bumpMana)
		require.NoError(t, err)
		assert.Equal(t, 1, next.Players[0].Mana)
		assert.Equal(t, int64(1), next.Version)
		require.Len(t, recorded, 1)
		assert.Equal(t, 1, recorded[0].Seq)
		assert.Equal(t, lobby, recorded[0].LobbyID)

		loaded, err := s.Load(ctx, lobby)
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Players[0].Mana)
		assert.Equal(t, int64(1), loaded.Version)
	})

	t.Run("failed update writes nothing", func(t *testing.T) {
		s := newStore(t)
		lobby := uuid.NewString()
		require.NoError(t, s.Create(ctx, testState(lobby)))

		boom := errors.New("boom")
		_, _, err := s.Update(ctx, lobby, func(tx *game.Tx) error {
			require.NoError(t, bumpMana(tx))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		loaded, err := s.Load(ctx, lobby)
		require.NoError(t, err)
		assert.Equal(t, 0, loaded.Players[0].Mana)
		assert.Zero(t, loaded.Version)
		events, err := s.Events(ctx, lobby)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("concurrent updates serialise", func(t *testing.T) {
		s := newStore(t)
		lobby := uuid.NewString()
		require.NoError(t, s.Create(ctx, testState(lobby)))

		const writers = 10
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := s.Update(ctx, lobby, bumpMana)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		loaded, err := s.Load(ctx, lobby)
		require.NoError(t, err)
		assert.Equal(t, writers, loaded.Players[0].Mana)
		assert.Equal(t, int64(writers), loaded.Version)

		events, err := s.Events(ctx, lobby)
		require.NoError(t, err)
		require.Len(t, events, writers)
		for i, e := range events {
			assert.Equal(t, i+1, e.Seq)
		}
	})

	t.Run("record and delete", func(t *testing.T) {
		s := newStore(t)
		lobby := uuid.NewString()
		require.NoError(t, s.Create(ctx, testState(lobby)))
		end := log.NewGameEndEvent(3, "p1", "p2", "completed")
		end.LobbyID = lobby
		require.NoError(t, s.Record(ctx, end))
		events, err := s.Events(ctx, lobby)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, log.EventGameEnd, events[0].Type)
		assert.Error(t, s.Record(ctx, log.GameEvent{Type: log.EventGameEnd}))

		require.NoError(t, s.Delete(ctx, lobby))
		_, err = s.Load(ctx, lobby)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, s.Delete(ctx, lobby))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreKeepsEventsAfterDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, testState("l1")))
	_, _, err := s.Update(ctx, "l1", bumpMana)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "l1"))

	events, err := s.Events(ctx, "l1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	gs := testState("l1")
	require.NoError(t, s.Create(ctx, gs))
	gs.Players[0].LifePoints = 1

	loaded, err := s.Load(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, 8000, loaded.Players[0].LifePoints)
	loaded.Players[0].Hand = nil

	again, err := s.Load(ctx, "l1")
	require.NoError(t, err)
	assert.Len(t, again.Players[0].Hand, 1)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("DUEL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DUEL_TEST_REDIS_ADDR not set")
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	runStoreSuite(t, func(t *testing.T) Store {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { rdb.Close() })
		require.NoError(t, rdb.Ping(context.Background()).Err())
		return NewRedisStore(rdb, logger, WithRetries(100))
	})
}
