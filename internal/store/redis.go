package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultRetries  = 10
	defaultStateTTL = 24 * time.Hour
	defaultEventTTL = 7 * 24 * time.Hour
)

// RedisStore keeps each match as a JSON document plus an event list. Writes
// use WATCH/MULTI, so two actions on the same lobby never interleave: the
// loser of a race re-reads and re-runs its update function.
type RedisStore struct {
	rdb      redis.UniversalClient
	log      logrus.FieldLogger
	retries  int
	stateTTL time.Duration
	eventTTL time.Duration
}

type RedisOption func(*RedisStore)

// WithRetries bounds how often a conflicting update is re-run.
func WithRetries(n int) RedisOption {
	return func(s *RedisStore) { s.retries = max(n, 1) }
}

// WithTTL sets how long idle states and event logs are kept.
func WithTTL(state, events time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.stateTTL = state
		s.eventTTL = events
	}
}

func NewRedisStore(rdb redis.UniversalClient, logger logrus.FieldLogger, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:      rdb,
		log:      logger,
		retries:  defaultRetries,
		stateTTL: defaultStateTTL,
		eventTTL: defaultEventTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func stateKey(lobbyID string) string  { return "duel:state:" + lobbyID }
func eventsKey(lobbyID string) string { return "duel:events:" + lobbyID }

func (s *RedisStore) Create(ctx context.Context, state *game.GameState, events ...log.GameEvent) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	encoded, err := encodeEvents(number(events, 0))
	if err != nil {
		return err
	}
	sk, ek := stateKey(state.LobbyID), eventsKey(state.LobbyID)

	return s.retry(ctx, func() error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, sk).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrExists
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, sk, data, s.stateTTL)
				pipe.Del(ctx, ek)
				if len(encoded) > 0 {
					pipe.RPush(ctx, ek, encoded...)
					pipe.Expire(ctx, ek, s.eventTTL)
				}
				return nil
			})
			return err
		}, sk)
	})
}

func (s *RedisStore) Load(ctx context.Context, lobbyID string) (*game.GameState, error) {
	data, err := s.rdb.Get(ctx, stateKey(lobbyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", lobbyID, err)
	}
	return decodeState(data)
}

func (s *RedisStore) Update(ctx context.Context, lobbyID string, fn func(*game.Tx) error) (*game.GameState, []log.GameEvent, error) {
	var (
		next     *game.GameState
		recorded []log.GameEvent
	)
	sk, ek := stateKey(lobbyID), eventsKey(lobbyID)

	err := s.retry(ctx, func() error {
		return s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			data, err := rtx.Get(ctx, sk).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			gs, err := decodeState(data)
			if err != nil {
				return err
			}
			n, err := rtx.LLen(ctx, ek).Result()
			if err != nil {
				return err
			}

			tx := game.NewTx(gs)
			if err := fn(tx); err != nil {
				return err
			}
			next = tx.Result()
			recorded = number(tx.Events(), int(n))
			if !tx.Dirty() && len(recorded) == 0 {
				return nil
			}

			encoded, err := encodeEvents(recorded)
			if err != nil {
				return err
			}
			if data, err = encodeState(next); err != nil {
				return err
			}
			_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, sk, data, s.stateTTL)
				if len(encoded) > 0 {
					pipe.RPush(ctx, ek, encoded...)
					pipe.Expire(ctx, ek, s.eventTTL)
				}
				return nil
			})
			return err
		}, sk, ek)
	})
	if err != nil {
		return nil, nil, err
	}
	return next, recorded, nil
}

// Delete drops the game state. The event log expires on its own.
func (s *RedisStore) Delete(ctx context.Context, lobbyID string) error {
	if err := s.rdb.Del(ctx, stateKey(lobbyID)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", lobbyID, err)
	}
	return nil
}

func (s *RedisStore) Events(ctx context.Context, lobbyID string) ([]log.GameEvent, error) {
	raw, err := s.rdb.LRange(ctx, eventsKey(lobbyID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("events %s: %w", lobbyID, err)
	}
	out := make([]log.GameEvent, 0, len(raw))
	for _, r := range raw {
		var e log.GameEvent
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Record(ctx context.Context, events ...log.GameEvent) error {
	groups, order, err := byLobby(events)
	if err != nil {
		return err
	}
	for _, lobbyID := range order {
		ek := eventsKey(lobbyID)
		err := s.retry(ctx, func() error {
			return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
				n, err := tx.LLen(ctx, ek).Result()
				if err != nil {
					return err
				}
				encoded, err := encodeEvents(number(groups[lobbyID], int(n)))
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.RPush(ctx, ek, encoded...)
					pipe.Expire(ctx, ek, s.eventTTL)
					return nil
				})
				return err
			}, ek)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// retry re-runs op while its optimistic transaction loses a race.
func (s *RedisStore) retry(ctx context.Context, op func() error) error {
	for attempt := 1; attempt <= s.retries; attempt++ {
		err := op()
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.log.WithField("attempt", attempt).Debug("redis transaction conflict, retrying")
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrConflict
}

func encodeEvents(events []log.GameEvent) ([]any, error) {
	out := make([]any, len(events))
	for i, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode event: %w", err)
		}
		out[i] = data
	}
	return out, nil
}
