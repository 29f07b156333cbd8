package app

import (
	"context"
	"fmt"

	"github.com/peterkuimelis/duelserver/internal/config"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/match"
	"github.com/peterkuimelis/duelserver/internal/outbox"
	"github.com/peterkuimelis/duelserver/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Runtime is a fully wired server: the match service plus the outbox
// dispatcher that delivers game-end side effects.
type Runtime struct {
	Service    *Service
	Dispatcher *outbox.Dispatcher
	closers    []func()
}

// Build wires the configured backends. Without a Redis address or a
// database URL the in-memory implementations are used.
func Build(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (rt *Runtime, err error) {
	rt = &Runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	cat, err := game.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.CatalogFile, err)
	}
	if cfg.StrictAbilities() {
		if err := game.ValidateCatalog(cat); err != nil {
			return nil, fmt.Errorf("catalog %s has broken abilities: %w", cfg.CatalogFile, err)
		}
	}
	engine := game.NewEngine(cat, game.NewAbilityCache(game.Parser{}, logger), cfg.Game, logger)

	var st store.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		rt.closers = append(rt.closers, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		st = store.NewRedisStore(rdb, logger)
	} else {
		logger.Warn("DUEL_REDIS_ADDR not set, game states are kept in memory")
		st = store.NewMemoryStore()
	}

	var repo match.Repository
	if cfg.DatabaseURL != "" {
		pg, err := match.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		repo = pg
	} else {
		logger.Warn("DUEL_DATABASE_URL not set, match records are kept in memory")
		repo = match.NewMemoryRepository()
	}

	hub := NewHub(0)
	matches := match.NewOrchestrator(repo, st, match.LedgerEconomy{}, Recorder{Store: st, Hub: hub}, cfg.Match, logger)
	rt.Service = NewService(engine, st, matches, hub, logger)

	dc := outbox.DefaultDispatcherConfig()
	dc.Workers = cfg.OutboxWorkers
	dc.Poll = cfg.OutboxPoll
	rt.Dispatcher = outbox.NewDispatcher(repo, outbox.NewLogCollaborators(logger), dc, logger)

	logger.WithFields(logrus.Fields{
		"cards": len(cat.Cards()),
		"decks": len(cat.DeckNames()),
		"env":   cfg.Env,
	}).Info("runtime ready")
	return rt, nil
}

// Close releases backend connections in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
