package game

import (
	"fmt"
	"io"
	"testing"

	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testEngine builds an engine over the given cards with a strict parser, so
// a test card with a typo in its ability fails loudly.
func testEngine(t *testing.T, cards ...*CardDefinition) *Engine {
	t.Helper()
	all := append([]*CardDefinition{creature("filler", 100, 100, "")}, cards...)
	cat := NewMemoryCatalog(all...)
	require.NoError(t, ValidateCatalog(cat))
	logger := quietLogger()
	return NewEngine(cat, NewAbilityCache(Parser{Strict: true}, logger), DefaultRules(), logger)
}

func creature(id string, atk, def int, ability string) *CardDefinition {
	return &CardDefinition{
		ID:       id,
		Name:     id,
		CardType: CardTypeCreature,
		Attack:   atk,
		Defense:  def,
		Ability:  TextAbility(ability),
		IsActive: true,
	}
}

func spell(id, subtype, ability string) *CardDefinition {
	return &CardDefinition{
		ID:       id,
		Name:     id,
		CardType: CardTypeSpell,
		Subtype:  subtype,
		Ability:  TextAbility(ability),
		IsActive: true,
	}
}

// newTestState returns a turn-3 state in the battle phase with p1 to act,
// empty boards and five filler cards in each deck.
func newTestState() *GameState {
	gs := &GameState{
		LobbyID:               "lobby-1",
		GameID:                "game-1",
		HostID:                "p1",
		OpponentID:            "p2",
		CurrentTurnPlayerID:   "p1",
		CurrentPriorityPlayer: "p1",
		TurnNumber:            3,
		CurrentPhase:          PhaseBattle,
		GameMode:              ModePvP,
	}
	for i, id := range []string{"p1", "p2"} {
		var deck []CardRef
		for j := 0; j < 5; j++ {
			deck = append(deck, CardRef{InstanceID: fmt.Sprintf("%s-deck-%d", id, j), CardID: "filler", OwnerID: id})
		}
		gs.Players[i] = &PlayerState{UserID: id, LifePoints: 8000, Deck: deck}
	}
	return gs
}

// placeCreature puts a face-up creature on owner's board and returns its
// instance id.
func placeCreature(gs *GameState, owner, cardID string, pos Position) string {
	p := gs.Player(owner)
	id := fmt.Sprintf("%s-%s-%d", owner, cardID, len(p.Board))
	p.Board = append(p.Board, BoardCard{
		CardRef:  CardRef{InstanceID: id, CardID: cardID, OwnerID: owner},
		Position: pos,
	})
	return id
}

// addToHand puts a card in owner's hand and returns its instance id.
func addToHand(gs *GameState, owner, cardID string) string {
	p := gs.Player(owner)
	id := fmt.Sprintf("%s-hand-%s-%d", owner, cardID, len(p.Hand))
	p.Hand = append(p.Hand, CardRef{InstanceID: id, CardID: cardID, OwnerID: owner})
	return id
}

func eventTypes(events []log.GameEvent) []log.EventType {
	out := make([]log.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// indexOf returns the position of the n-th (0-based) event of type t.
func indexOf(events []log.GameEvent, t log.EventType, n int) int {
	for i, e := range events {
		if e.Type == t {
			if n == 0 {
				return i
			}
			n--
		}
	}
	return -1
}
