package game

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/peterkuimelis/duelserver/internal/rng"
)

// instanceNamespace scopes card instance ids so they are stable per game.
var instanceNamespace = uuid.MustParse("6f1c7a52-3d2e-4b8a-9a43-5e0b1f3c2d71")

// SetupParams describe a match about to start. Decks are lists of card ids.
type SetupParams struct {
	LobbyID      string
	GameID       string
	HostID       string
	OpponentID   string
	HostDeck     []string
	OpponentDeck []string
	Mode         GameMode
	IsAIOpponent bool
	AIDifficulty string
	StageID      string
}

// NewGameState builds the opening state of a match: both decks shuffled with
// per-game seeds, opening hands dealt, host to act in main phase 1 of turn 1.
// Everything is derived from the params, so a retried call builds an
// identical state.
func (e *Engine) NewGameState(p SetupParams) (*GameState, error) {
	if p.GameID == "" || p.HostID == "" || p.OpponentID == "" {
		return nil, errors.New("game id and both players are required")
	}
	if p.HostID == p.OpponentID {
		return nil, errors.New("a player cannot play against themselves")
	}
	mode := p.Mode
	if mode == "" {
		mode = ModePvP
	}

	gs := &GameState{
		LobbyID:               p.LobbyID,
		GameID:                p.GameID,
		HostID:                p.HostID,
		OpponentID:            p.OpponentID,
		CurrentTurnPlayerID:   p.HostID,
		TurnNumber:            1,
		CurrentPhase:          PhaseMain1,
		CurrentPriorityPlayer: p.HostID,
		CurrentChain:          []ChainLink{},
		OptUsedThisTurn:       []string{},
		TemporaryModifiers:    []TemporaryModifier{},
		GameMode:              mode,
		IsAIOpponent:          p.IsAIOpponent,
		AIDifficulty:          p.AIDifficulty,
		StageID:               p.StageID,
	}

	sides := []struct {
		side   string
		userID string
		deck   []string
	}{
		{"host", p.HostID, p.HostDeck},
		{"opponent", p.OpponentID, p.OpponentDeck},
	}
	for i, s := range sides {
		player, err := e.newPlayer(p.GameID, s.side, s.userID, s.deck)
		if err != nil {
			return nil, fmt.Errorf("%s deck: %w", s.side, err)
		}
		gs.Players[i] = player
	}
	return gs, nil
}

func (e *Engine) newPlayer(gameID, side, userID string, deckIDs []string) (*PlayerState, error) {
	if len(deckIDs) < e.rules.OpeningHandSize {
		return nil, fmt.Errorf("need at least %d cards, have %d", e.rules.OpeningHandSize, len(deckIDs))
	}
	deck := make([]CardRef, 0, len(deckIDs))
	for i, cardID := range deckIDs {
		def, err := e.card(cardID)
		if err != nil {
			return nil, err
		}
		if !def.IsActive {
			return nil, fmt.Errorf("card %s is not active", cardID)
		}
		deck = append(deck, CardRef{
			InstanceID: instanceID(gameID, side, i),
			CardID:     cardID,
			OwnerID:    userID,
		})
	}
	deck = rng.Shuffle(deck, rng.DeckSeed(gameID, side))

	n := e.rules.OpeningHandSize
	return &PlayerState{
		UserID:        userID,
		LifePoints:    e.rules.StartingLifePoints,
		Hand:          append([]CardRef(nil), deck[:n]...),
		Board:         []BoardCard{},
		SpellTrapZone: []SpellTrapCard{},
		Deck:          append([]CardRef(nil), deck[n:]...),
		Graveyard:     []CardRef{},
		Banished:      []CardRef{},
	}, nil
}

func instanceID(gameID, side string, i int) string {
	return uuid.NewSHA1(instanceNamespace, fmt.Appendf(nil, "%s/%s/%d", gameID, side, i)).String()
}
