// Package app exposes the match entry points. Every action is one store
// transaction; events it records are published once it commits, and an
// action that ends the game hands the result to the game-end orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/peterkuimelis/duelserver/internal/match"
	"github.com/peterkuimelis/duelserver/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	// ErrGameStillRunning is returned by Finalize for a match with no winner.
	ErrGameStillRunning = errors.New("game is not over")
	// ErrInvalidMatch wraps every reason StartMatch rejects its request.
	ErrInvalidMatch = errors.New("invalid match")
)

// DeckSource resolves named decks to card ids.
type DeckSource interface {
	Deck(name string) ([]string, bool)
}

// StartRequest opens a match. Each side's deck is given either as card ids
// or as the name of a catalog deck.
type StartRequest struct {
	LobbyID          string     `json:"lobbyId,omitempty"`
	HostID           string     `json:"hostId"`
	OpponentID       string     `json:"opponentId"`
	Mode             match.Mode `json:"mode"`
	HostDeck         []string   `json:"hostDeck,omitempty"`
	HostDeckName     string     `json:"hostDeckName,omitempty"`
	OpponentDeck     []string   `json:"opponentDeck,omitempty"`
	OpponentDeckName string     `json:"opponentDeckName,omitempty"`
	StageID          string     `json:"stageId,omitempty"`
	WagerAmount      int64      `json:"wagerAmount,omitempty"`
	CryptoWager      bool       `json:"cryptoWager,omitempty"`
	IsAIOpponent     bool       `json:"isAIOpponent,omitempty"`
	AIDifficulty     string     `json:"aiDifficulty,omitempty"`
}

// Result is what every action returns.
type Result struct {
	State   *game.GameState     `json:"-"`
	Battle  *game.BattleResult  `json:"battle,omitempty"`
	Effects []game.EffectResult `json:"effects,omitempty"`
	Events  []log.GameEvent     `json:"events"`
	Outcome *match.Outcome      `json:"outcome,omitempty"`
}

type Service struct {
	engine  *game.Engine
	store   store.Store
	matches *match.Orchestrator
	hub     *Hub
	log     logrus.FieldLogger
}

func NewService(engine *game.Engine, st store.Store, matches *match.Orchestrator, hub *Hub, logger logrus.FieldLogger) *Service {
	return &Service{engine: engine, store: st, matches: matches, hub: hub, log: logger}
}

func (s *Service) Engine() *game.Engine {
	return s.engine
}

func (s *Service) Hub() *Hub {
	return s.hub
}

func (s *Service) deck(ids []string, name string) ([]string, error) {
	if len(ids) > 0 || name == "" {
		return ids, nil
	}
	decks, ok := s.engine.Catalog().(DeckSource)
	if !ok {
		return nil, fmt.Errorf("%w: catalog has no named decks", ErrInvalidMatch)
	}
	deck, ok := decks.Deck(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown deck %q", ErrInvalidMatch, name)
	}
	return deck, nil
}

// StartMatch records the lobby and creates the opening game state.
func (s *Service) StartMatch(ctx context.Context, req StartRequest) (*Result, error) {
	if req.Mode == "" {
		req.Mode = match.ModeCasual
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidMatch, req.Mode)
	}
	if req.LobbyID == "" {
		req.LobbyID = uuid.NewString()
	}
	hostDeck, err := s.deck(req.HostDeck, req.HostDeckName)
	if err != nil {
		return nil, err
	}
	oppDeck, err := s.deck(req.OpponentDeck, req.OpponentDeckName)
	if err != nil {
		return nil, err
	}

	gameID := uuid.NewString()
	gs, err := s.engine.NewGameState(game.SetupParams{
		LobbyID:      req.LobbyID,
		GameID:       gameID,
		HostID:       req.HostID,
		OpponentID:   req.OpponentID,
		HostDeck:     hostDeck,
		OpponentDeck: oppDeck,
		Mode:         req.Mode.GameMode(),
		IsAIOpponent: req.IsAIOpponent,
		AIDifficulty: req.AIDifficulty,
		StageID:      req.StageID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMatch, err)
	}

	_, err = s.matches.OpenLobby(ctx, match.LobbySpec{
		ID:          req.LobbyID,
		HostID:      req.HostID,
		OpponentID:  req.OpponentID,
		Mode:        req.Mode,
		GameID:      gameID,
		StageID:     req.StageID,
		WagerAmount: req.WagerAmount,
		CryptoWager: req.CryptoWager,
	})
	if err != nil {
		return nil, err
	}

	started := log.NewGameStartedEvent(gs.TurnNumber, string(gs.CurrentPhase), gs.HostID)
	started.LobbyID, started.GameID = gs.LobbyID, gs.GameID
	if err := s.store.Create(ctx, gs, started); err != nil {
		if cerr := s.matches.CancelLobby(ctx, gs.LobbyID); cerr != nil {
			s.log.WithError(cerr).WithField("lobby_id", gs.LobbyID).Error("could not cancel lobby after failed start")
		}
		return nil, fmt.Errorf("store game state: %w", err)
	}
	events, err := s.store.Events(ctx, gs.LobbyID)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(gs.LobbyID, events)
	s.log.WithFields(logrus.Fields{"lobby_id": gs.LobbyID, "game_id": gameID, "mode": req.Mode}).Info("match started")
	return &Result{State: gs, Events: events}, nil
}

// act runs fn as one store transaction, publishes what it recorded and
// finalises the match if fn ended it.
func (s *Service) act(ctx context.Context, lobbyID string, fn func(tx *game.Tx) error) (*Result, error) {
	next, events, err := s.store.Update(ctx, lobbyID, fn)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(lobbyID, events)
	res := &Result{State: next, Events: events}
	if next.IsOver() {
		out, err := s.finish(ctx, next)
		if err != nil {
			// The action itself committed; Finalize can be retried.
			s.log.WithError(err).WithField("lobby_id", lobbyID).Error("game end handling failed")
		}
		res.Outcome = out
	}
	return res, nil
}

func (s *Service) finish(ctx context.Context, gs *game.GameState) (*match.Outcome, error) {
	lp := make(map[string]int, len(gs.Players))
	for _, p := range gs.Players {
		lp[p.UserID] = p.LifePoints
	}
	return s.matches.HandleGameEnd(ctx, match.GameEnd{
		LobbyID:         gs.LobbyID,
		WinnerID:        gs.Winner,
		LoserID:         gs.Loser,
		Reason:          gs.EndReason,
		FinalTurnNumber: gs.TurnNumber,
		FinalLifePoints: lp,
	})
}

// Finalize re-runs game-end handling for a finished match whose state is
// still stored.
func (s *Service) Finalize(ctx context.Context, lobbyID string) (*match.Outcome, error) {
	gs, err := s.store.Load(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if !gs.IsOver() {
		return nil, ErrGameStillRunning
	}
	return s.finish(ctx, gs)
}

func (s *Service) DeclareAttack(ctx context.Context, lobbyID string, req game.AttackRequest) (*Result, error) {
	var battle *game.BattleResult
	res, err := s.act(ctx, lobbyID, func(tx *game.Tx) error {
		var err error
		battle, err = s.engine.Resolver.DeclareAttack(tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Battle = battle
	return res, nil
}

func (s *Service) NormalSummon(ctx context.Context, lobbyID, playerID, instanceID string, pos game.Position) (*Result, error) {
	var effects []game.EffectResult
	res, err := s.act(ctx, lobbyID, func(tx *game.Tx) error {
		var err error
		effects, err = s.engine.NormalSummon(tx, playerID, instanceID, pos)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Effects = effects
	return res, nil
}

func (s *Service) ChangePosition(ctx context.Context, lobbyID, playerID, instanceID string) (*Result, error) {
	return s.act(ctx, lobbyID, func(tx *game.Tx) error {
		return s.engine.ChangePosition(tx, playerID, instanceID)
	})
}

func (s *Service) SetSpellTrap(ctx context.Context, lobbyID, playerID, instanceID string) (*Result, error) {
	return s.act(ctx, lobbyID, func(tx *game.Tx) error {
		return s.engine.SetSpellTrap(tx, playerID, instanceID)
	})
}

func (s *Service) ActivateCard(ctx context.Context, lobbyID, playerID, instanceID string, targets []string) (*Result, error) {
	var effects []game.EffectResult
	res, err := s.act(ctx, lobbyID, func(tx *game.Tx) error {
		var err error
		effects, err = s.engine.ActivateCard(tx, playerID, instanceID, targets)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Effects = effects
	return res, nil
}

func (s *Service) AdvancePhase(ctx context.Context, lobbyID, playerID string, to game.Phase) (*Result, error) {
	return s.act(ctx, lobbyID, func(tx *game.Tx) error {
		return s.engine.AdvancePhase(tx, playerID, to)
	})
}

func (s *Service) EndTurn(ctx context.Context, lobbyID, playerID string) (*Result, error) {
	return s.act(ctx, lobbyID, func(tx *game.Tx) error {
		return s.engine.EndTurn(tx, playerID)
	})
}

func (s *Service) Surrender(ctx context.Context, lobbyID, playerID string) (*Result, error) {
	return s.act(ctx, lobbyID, func(tx *game.Tx) error {
		return s.engine.Surrender(tx, playerID)
	})
}

// Forfeit ends a stalled match against playerID. It is called by the
// scheduler that watches for idle matches.
func (s *Service) Forfeit(ctx context.Context, lobbyID, playerID string) (*Result, error) {
	return s.act(ctx, lobbyID, func(tx *game.Tx) error {
		return s.engine.EndGame(tx, playerID, game.EndForfeit)
	})
}

// Timeout ends the match against playerID for running out of time.
func (s *Service) Timeout(ctx context.Context, lobbyID, playerID string) (*Result, error) {
	return s.act(ctx, lobbyID, func(tx *game.Tx) error {
		return s.engine.EndGame(tx, playerID, game.EndTimeout)
	})
}

func (s *Service) State(ctx context.Context, lobbyID string) (*game.GameState, error) {
	return s.store.Load(ctx, lobbyID)
}

// View renders the stored state for one player.
func (s *Service) View(ctx context.Context, lobbyID, playerID string) (*StateView, error) {
	gs, err := s.store.Load(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	return NewStateView(s.engine, gs, playerID), nil
}

func (s *Service) Events(ctx context.Context, lobbyID string) ([]log.GameEvent, error) {
	return s.store.Events(ctx, lobbyID)
}
