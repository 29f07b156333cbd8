package app

import (
	"context"
	"io"
	"testing"

	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/peterkuimelis/duelserver/internal/match"
	"github.com/peterkuimelis/duelserver/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
cards:
  - id: knight
    name: Iron Knight
    type: creature
    attack: 1800
    defense: 1200
decks:
  - name: starter
    cards:
      - card: knight
        count: 20
`

type harness struct {
	svc    *Service
	states *store.MemoryStore
	repo   *match.MemoryRepository
	hub    *Hub
}

func newHarness(t *testing.T, rules game.Rules) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cat, err := game.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	engine := game.NewEngine(cat, game.NewAbilityCache(game.Parser{}, logger), rules, logger)

	states := store.NewMemoryStore()
	repo := match.NewMemoryRepository()
	hub := NewHub(128)
	matches := match.NewOrchestrator(repo, states, match.LedgerEconomy{}, Recorder{Store: states, Hub: hub}, match.DefaultRules(), logger)
	return &harness{
		svc:    NewService(engine, states, matches, hub, logger),
		states: states,
		repo:   repo,
		hub:    hub,
	}
}

func (h *harness) start(t *testing.T, mode match.Mode) *game.GameState {
	t.Helper()
	res, err := h.svc.StartMatch(context.Background(), StartRequest{
		LobbyID:          "lobby-1",
		HostID:           "alice",
		OpponentID:       "bob",
		Mode:             mode,
		HostDeckName:     "starter",
		OpponentDeckName: "starter",
	})
	require.NoError(t, err)
	return res.State
}

func firstInHand(gs *game.GameState, player string) string {
	return gs.Player(player).Hand[0].InstanceID
}

func types(events []log.GameEvent) []log.EventType {
	out := make([]log.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestStartMatch(t *testing.T) {
	h := newHarness(t, game.DefaultRules())
	sub := h.hub.Subscribe("lobby-1")
	defer sub.Close()

	gs := h.start(t, match.ModeRanked)
	assert.Equal(t, "lobby-1", gs.LobbyID)
	assert.NotEmpty(t, gs.GameID)
	assert.Len(t, gs.Player("alice").Hand, 5)

	events, err := h.svc.Events(context.Background(), "lobby-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, log.EventGameStarted, events[0].Type)
	assert.Equal(t, 1, events[0].Seq)
	assert.Equal(t, gs.GameID, events[0].GameID)
	assert.Equal(t, log.EventGameStarted, (<-sub.C).Type)

	_, err = h.svc.StartMatch(context.Background(), StartRequest{LobbyID: "lobby-1", HostID: "alice", OpponentID: "bob", HostDeckName: "starter", OpponentDeckName: "starter"})
	assert.Error(t, err)
}

func TestStartMatchUnknownDeck(t *testing.T) {
	h := newHarness(t, game.DefaultRules())
	_, err := h.svc.StartMatch(context.Background(), StartRequest{HostID: "alice", OpponentID: "bob", HostDeckName: "nope", OpponentDeckName: "starter"})
	assert.ErrorIs(t, err, ErrInvalidMatch)
	assert.ErrorContains(t, err, "unknown deck")
}

// unwritableStore refuses to create game state while err is set.
type unwritableStore struct {
	*store.MemoryStore
	err error
}

func (s *unwritableStore) Create(ctx context.Context, gs *game.GameState, events ...log.GameEvent) error {
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.Create(ctx, gs, events...)
}

func TestStartMatchCancelsLobbyWhenStateIsNotStored(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cat, err := game.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	engine := game.NewEngine(cat, game.NewAbilityCache(game.Parser{}, logger), game.DefaultRules(), logger)

	states := &unwritableStore{MemoryStore: store.NewMemoryStore(), err: store.ErrExists}
	repo := match.NewMemoryRepository()
	hub := NewHub(16)
	matches := match.NewOrchestrator(repo, states, match.LedgerEconomy{}, Recorder{Store: states, Hub: hub}, match.DefaultRules(), logger)
	svc := NewService(engine, states, matches, hub, logger)

	req := StartRequest{LobbyID: "lobby-1", HostID: "alice", OpponentID: "bob", Mode: match.ModeRanked, HostDeckName: "starter", OpponentDeckName: "starter"}
	_, err = svc.StartMatch(ctx, req)
	require.ErrorIs(t, err, store.ErrExists)

	lobbyAndPresence := func() (*match.Lobby, *match.Player) {
		var l *match.Lobby
		var p *match.Player
		require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx match.Tx) error {
			var err error
			if l, err = tx.Lobby(ctx, "lobby-1"); err != nil {
				return err
			}
			p, err = tx.Player(ctx, "alice")
			return err
		}))
		return l, p
	}
	lobby, alice := lobbyAndPresence()
	assert.Equal(t, match.StatusCancelled, lobby.Status)
	assert.Equal(t, match.PresenceOnline, alice.Presence)

	states.err = nil
	res, err := svc.StartMatch(ctx, req)
	require.NoError(t, err)
	lobby, alice = lobbyAndPresence()
	assert.Equal(t, match.StatusActive, lobby.Status)
	assert.Equal(t, res.State.GameID, lobby.GameID)
	assert.Equal(t, match.PresenceInGame, alice.Presence)
}

func TestActionsCommitAndPublish(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, game.DefaultRules())
	gs := h.start(t, match.ModeCasual)
	sub := h.hub.Subscribe("lobby-1")
	defer sub.Close()

	knight := firstInHand(gs, "alice")
	res, err := h.svc.NormalSummon(ctx, "lobby-1", "alice", knight, game.PositionAttack)
	require.NoError(t, err)
	assert.True(t, res.State.OnBoard(knight))
	assert.Equal(t, int64(1), res.State.Version)
	require.NotEmpty(t, res.Events)
	assert.Equal(t, 2, res.Events[0].Seq)
	assert.Len(t, sub.C, len(res.Events))

	_, err = h.svc.EndTurn(ctx, "lobby-1", "alice")
	require.NoError(t, err)

	gs, err = h.svc.State(ctx, "lobby-1")
	require.NoError(t, err)
	bobKnight := firstInHand(gs, "bob")
	_, err = h.svc.NormalSummon(ctx, "lobby-1", "bob", bobKnight, game.PositionAttack)
	require.NoError(t, err)
	_, err = h.svc.AdvancePhase(ctx, "lobby-1", "bob", game.PhaseBattle)
	require.NoError(t, err)

	res, err = h.svc.DeclareAttack(ctx, "lobby-1", game.AttackRequest{PlayerID: "bob", AttackerID: bobKnight, TargetID: knight})
	require.NoError(t, err)
	require.NotNil(t, res.Battle)
	assert.ElementsMatch(t, []string{knight, bobKnight}, res.Battle.Destroyed)
	assert.Nil(t, res.Outcome)

	view, err := h.svc.View(ctx, "lobby-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, view.You.GraveyardCount)
	assert.Equal(t, 1, view.Opponent.GraveyardCount)
	assert.False(t, view.IsYourTurn)
}

func TestRejectedActionChangesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, game.DefaultRules())
	gs := h.start(t, match.ModeCasual)
	sub := h.hub.Subscribe("lobby-1")
	defer sub.Close()

	_, err := h.svc.NormalSummon(ctx, "lobby-1", "bob", firstInHand(gs, "bob"), game.PositionAttack)
	assert.ErrorIs(t, err, game.ErrNotYourTurn)

	after, err := h.svc.State(ctx, "lobby-1")
	require.NoError(t, err)
	assert.Equal(t, gs.Version, after.Version)
	assert.Empty(t, sub.C)

	_, err = h.svc.EndTurn(ctx, "missing", "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSurrenderFinalizesMatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, game.DefaultRules())
	h.start(t, match.ModeRanked)
	sub := h.hub.Subscribe("lobby-1")
	defer sub.Close()

	res, err := h.svc.Surrender(ctx, "lobby-1", "alice")
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, "bob", res.Outcome.WinnerID)
	assert.Equal(t, game.EndSurrender, res.Outcome.Reason)
	assert.Equal(t, 1016, res.Outcome.WinnerRating)

	_, err = h.svc.State(ctx, "lobby-1")
	assert.ErrorIs(t, err, store.ErrNotFound, "finished state is removed")

	events, err := h.svc.Events(ctx, "lobby-1")
	require.NoError(t, err)
	assert.Equal(t, log.EventGameEnd, events[len(events)-1].Type)

	var live []log.GameEvent
	for len(sub.C) > 0 {
		live = append(live, <-sub.C)
	}
	assert.Equal(t, types(events[1:]), types(live))

	history, err := h.repo.History(ctx, "lobby-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLethalAttackEndsGame(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, game.Rules{StartingLifePoints: 1000, OpeningHandSize: 5})
	h.start(t, match.ModeCasual)

	_, err := h.svc.EndTurn(ctx, "lobby-1", "alice")
	require.NoError(t, err)
	gs, err := h.svc.State(ctx, "lobby-1")
	require.NoError(t, err)
	knight := firstInHand(gs, "bob")
	_, err = h.svc.NormalSummon(ctx, "lobby-1", "bob", knight, game.PositionAttack)
	require.NoError(t, err)
	_, err = h.svc.AdvancePhase(ctx, "lobby-1", "bob", game.PhaseBattle)
	require.NoError(t, err)

	res, err := h.svc.DeclareAttack(ctx, "lobby-1", game.AttackRequest{PlayerID: "bob", AttackerID: knight})
	require.NoError(t, err)
	assert.True(t, res.Battle.GameEnded)
	assert.Equal(t, "bob", res.Battle.WinnerID)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, game.EndCompleted, res.Outcome.Reason)

	games, err := h.repo.CompletedGames(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), games)
}

func TestFinalizeRunningGame(t *testing.T) {
	h := newHarness(t, game.DefaultRules())
	h.start(t, match.ModeCasual)
	_, err := h.svc.Finalize(context.Background(), "lobby-1")
	assert.ErrorIs(t, err, ErrGameStillRunning)
}
