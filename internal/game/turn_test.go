package game

import (
	"testing"

	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDeck(cardID string, n int) []string {
	deck := make([]string, n)
	for i := range deck {
		deck[i] = cardID
	}
	return deck
}

func TestNewGameStateIsDeterministic(t *testing.T) {
	e := testEngine(t, creature("a", 1000, 1000, ""), creature("b", 1200, 800, ""))
	deck := append(makeDeck("a", 10), makeDeck("b", 10)...)
	params := SetupParams{
		LobbyID:      "lobby-1",
		GameID:       "game-1",
		HostID:       "p1",
		OpponentID:   "p2",
		HostDeck:     deck,
		OpponentDeck: deck,
	}

	first, err := e.NewGameState(params)
	require.NoError(t, err)
	second, err := e.NewGameState(params)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, first.TurnNumber)
	assert.Equal(t, PhaseMain1, first.CurrentPhase)
	assert.Equal(t, "p1", first.CurrentTurnPlayerID)
	assert.Equal(t, ModePvP, first.GameMode)
	for _, p := range first.Players {
		assert.Equal(t, 8000, p.LifePoints)
		assert.Len(t, p.Hand, 5)
		assert.Len(t, p.Deck, 15)
		assert.Equal(t, 0, p.Mana)
	}

	seen := map[string]bool{}
	for _, p := range first.Players {
		for _, ref := range append(p.Hand, p.Deck...) {
			assert.False(t, seen[ref.InstanceID], "duplicate instance id %s", ref.InstanceID)
			seen[ref.InstanceID] = true
			assert.Equal(t, p.UserID, ref.OwnerID)
		}
	}

	other, err := e.NewGameState(SetupParams{GameID: "game-2", HostID: "p1", OpponentID: "p2", HostDeck: deck, OpponentDeck: deck})
	require.NoError(t, err)
	assert.NotEqual(t, first.Players[0].Hand, other.Players[0].Hand)
}

func TestNewGameStateRejectsBadDecks(t *testing.T) {
	inactive := creature("old", 1000, 1000, "")
	inactive.IsActive = false
	e := testEngine(t, creature("a", 1000, 1000, ""), inactive)

	_, err := e.NewGameState(SetupParams{GameID: "g", HostID: "p1", OpponentID: "p2", HostDeck: makeDeck("a", 3), OpponentDeck: makeDeck("a", 10)})
	assert.ErrorContains(t, err, "host deck")

	_, err = e.NewGameState(SetupParams{GameID: "g", HostID: "p1", OpponentID: "p2", HostDeck: makeDeck("a", 10), OpponentDeck: makeDeck("zzz", 10)})
	assert.ErrorIs(t, err, ErrUnknownCard)

	_, err = e.NewGameState(SetupParams{GameID: "g", HostID: "p1", OpponentID: "p2", HostDeck: makeDeck("old", 10), OpponentDeck: makeDeck("a", 10)})
	assert.ErrorContains(t, err, "not active")

	_, err = e.NewGameState(SetupParams{GameID: "g", HostID: "p1", OpponentID: "p1", HostDeck: makeDeck("a", 10), OpponentDeck: makeDeck("a", 10)})
	assert.Error(t, err)
}

func TestNormalSummon(t *testing.T) {
	e := testEngine(t,
		creature("scout", 1000, 1000, "When this card is summoned, draw 1 card."),
		spell("pot", SubtypeNormal, "Draw 2 cards."),
	)
	gs := newTestState()
	gs.CurrentPhase = PhaseMain1
	scout := addToHand(gs, "p1", "scout")
	second := addToHand(gs, "p1", "scout")
	pot := addToHand(gs, "p1", "pot")

	tx := NewTx(gs)
	effects, err := e.NormalSummon(tx, "p1", scout, PositionAttack)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.True(t, effects[0].Success)

	after := tx.Snapshot()
	bc, _, ok := after.FindBoardCard(scout)
	require.True(t, ok)
	assert.Equal(t, PositionAttack, bc.Position)
	assert.Equal(t, 3, bc.SummonedTurn)
	assert.Len(t, after.Player("p1").Hand, 3, "two left plus one drawn")

	_, err = e.NormalSummon(tx, "p1", second, PositionAttack)
	assert.ErrorIs(t, err, ErrAlreadySummoned)

	fresh := NewTx(gs)
	_, err = e.NormalSummon(fresh, "p1", pot, PositionAttack)
	assert.ErrorIs(t, err, ErrNotACreature)
	_, err = e.NormalSummon(fresh, "p2", scout, PositionAttack)
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = e.NormalSummon(fresh, "p1", "missing", PositionAttack)
	assert.ErrorIs(t, err, ErrCardNotInHand)

	gs.CurrentPhase = PhaseBattle
	_, err = e.NormalSummon(NewTx(gs), "p1", scout, PositionAttack)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestSetSummonIsFaceDownWithoutTrigger(t *testing.T) {
	e := testEngine(t, creature("scout", 1000, 1000, "When this card is summoned, draw 1 card."))
	gs := newTestState()
	gs.CurrentPhase = PhaseMain1
	scout := addToHand(gs, "p1", "scout")

	tx := NewTx(gs)
	effects, err := e.NormalSummon(tx, "p1", scout, PositionDefense)
	require.NoError(t, err)
	assert.Empty(t, effects)
	bc, _, _ := tx.Snapshot().FindBoardCard(scout)
	assert.True(t, bc.FaceDown)
	assert.Equal(t, PositionDefense, bc.Position)
}

func TestChangePosition(t *testing.T) {
	e := testEngine(t, creature("knight", 1000, 1000, ""))
	gs := newTestState()
	gs.CurrentPhase = PhaseMain2
	knight := placeCreature(gs, "p1", "knight", PositionAttack)

	tx := NewTx(gs)
	require.NoError(t, e.ChangePosition(tx, "p1", knight))
	bc, _, _ := tx.Snapshot().FindBoardCard(knight)
	assert.Equal(t, PositionDefense, bc.Position)

	err := e.ChangePosition(tx, "p1", knight)
	assert.ErrorIs(t, err, ErrCannotChangePosition)

	gs.Player("p1").Board[0].SummonedTurn = gs.TurnNumber
	err = e.ChangePosition(NewTx(gs), "p1", knight)
	assert.ErrorIs(t, err, ErrCannotChangePosition)
}

func TestAdvancePhase(t *testing.T) {
	e := testEngine(t)
	gs := newTestState()
	gs.CurrentPhase = PhaseMain1

	tx := NewTx(gs)
	require.NoError(t, e.AdvancePhase(tx, "p1", PhaseBattle))
	assert.ErrorIs(t, e.AdvancePhase(tx, "p1", PhaseMain1), ErrInvalidTransition)
	assert.ErrorIs(t, e.AdvancePhase(tx, "p1", PhaseDraw), ErrInvalidTransition)
	assert.ErrorIs(t, e.AdvancePhase(tx, "p1", Phase("lunch")), ErrInvalidTransition)
	assert.ErrorIs(t, e.AdvancePhase(tx, "p2", PhaseMain2), ErrNotYourTurn)
	require.NoError(t, e.AdvancePhase(tx, "p1", PhaseMain2))
	assert.Equal(t, PhaseMain2, tx.Snapshot().CurrentPhase)

	first := newTestState()
	first.TurnNumber = 1
	first.CurrentPhase = PhaseMain1
	assert.ErrorIs(t, e.AdvancePhase(NewTx(first), "p1", PhaseBattleStart), ErrWrongPhase)
}

func TestEndTurn(t *testing.T) {
	e := testEngine(t, creature("knight", 1000, 1000, ""))
	gs := newTestState()
	knight := placeCreature(gs, "p1", "knight", PositionAttack)
	gs.Player("p1").Board[0].HasAttacked = true
	gs.Player("p1").NormalSummonedThisTurn = true
	gs.OptUsedThisTurn = []string{"x#0"}

	tx := NewTx(gs)
	require.NoError(t, e.EndTurn(tx, "p1"))
	after := tx.Result()

	assert.Equal(t, "p2", after.CurrentTurnPlayerID)
	assert.Equal(t, 4, after.TurnNumber)
	assert.Equal(t, PhaseMain1, after.CurrentPhase)
	assert.Empty(t, after.OptUsedThisTurn)
	assert.False(t, after.Player("p1").NormalSummonedThisTurn)
	bc, _, _ := after.FindBoardCard(knight)
	assert.False(t, bc.HasAttacked)
	assert.Len(t, after.Player("p2").Hand, 1)
	assert.Len(t, after.Player("p2").Deck, 4)

	assert.Equal(t, []log.EventType{log.EventPhaseChange, log.EventNewTurn, log.EventDraw, log.EventPhaseChange}, eventTypes(tx.Events()))
}

func TestEndTurnDeckOutLoses(t *testing.T) {
	e := testEngine(t)
	gs := newTestState()
	gs.Player("p2").Deck = nil

	tx := NewTx(gs)
	require.NoError(t, e.EndTurn(tx, "p1"))
	after := tx.Result()
	assert.True(t, after.IsOver())
	assert.Equal(t, "p1", after.Winner)
	assert.Equal(t, "p2", after.Loser)
	assert.Equal(t, EndCompleted, after.EndReason)
	assert.NotEmpty(t, log.OfType(tx.Events(), log.EventDeckOut))
}

func TestSurrender(t *testing.T) {
	e := testEngine(t)
	tx := NewTx(newTestState())
	require.NoError(t, e.Surrender(tx, "p2"))
	after := tx.Result()
	assert.Equal(t, "p1", after.Winner)
	assert.Equal(t, EndSurrender, after.EndReason)
	assert.ErrorIs(t, e.Surrender(tx, "p1"), ErrGameOver)
}

func TestActivateNormalSpell(t *testing.T) {
	e := testEngine(t, spell("pot", SubtypeNormal, "Draw 2 cards."))
	gs := newTestState()
	gs.CurrentPhase = PhaseMain1
	pot := addToHand(gs, "p1", "pot")

	tx := NewTx(gs)
	effects, err := e.ActivateCard(tx, "p1", pot, nil)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.True(t, effects[0].Success)

	after := tx.Result()
	assert.Len(t, after.Player("p1").Hand, 2)
	assert.Empty(t, after.Player("p1").SpellTrapZone)
	require.Len(t, after.Player("p1").Graveyard, 1)
	assert.Equal(t, pot, after.Player("p1").Graveyard[0].InstanceID)
}

func TestActivateFieldAndEquipment(t *testing.T) {
	arena := spell("arena", SubtypeField, "All monsters you control gain 300 ATK.")
	sword := &CardDefinition{ID: "sword", Name: "sword", CardType: CardTypeEquipment, IsActive: true,
		Ability: TextAbility("The equipped monster gains 500 ATK.")}
	e := testEngine(t, arena, sword, creature("knight", 1000, 1000, ""))

	gs := newTestState()
	gs.CurrentPhase = PhaseMain1
	knight := placeCreature(gs, "p1", "knight", PositionAttack)
	arenaID := addToHand(gs, "p1", "arena")
	swordID := addToHand(gs, "p1", "sword")

	tx := NewTx(gs)
	_, err := e.ActivateCard(tx, "p1", arenaID, nil)
	require.NoError(t, err)
	_, err = e.ActivateCard(tx, "p1", swordID, nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	effects, err := e.ActivateCard(tx, "p1", swordID, []string{knight})
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.True(t, effects[0].Success, effects[0].Message)

	snap := tx.Snapshot()
	require.NotNil(t, snap.Player("p1").FieldSpell)
	stats, err := e.EffectiveStats(snap, knight)
	require.NoError(t, err)
	assert.Equal(t, 1800, stats.Attack)

	// Destroying the knight takes the sword with it.
	res := e.Executor.Execute(tx, "lobby-1", &ParsedEffect{ID: "hole#0", Trigger: TriggerOnActivate,
		Operations: []Operation{DestroyCards{Target: TargetChosen}}}, "p2", "hole", []string{knight})
	require.True(t, res.Success)
	after := tx.Result()
	assert.Empty(t, after.Player("p1").SpellTrapZone)
	assert.Len(t, after.Player("p1").Graveyard, 2)
	assert.Empty(t, after.TemporaryModifiers)
}

func TestActivateSetTrap(t *testing.T) {
	trap := &CardDefinition{ID: "snare", Name: "snare", CardType: CardTypeTrap, Subtype: SubtypeNormal, IsActive: true,
		Ability: TextAbility("Inflict 800 damage to your opponent.")}
	e := testEngine(t, trap)
	gs := newTestState()
	gs.CurrentPhase = PhaseMain1
	snare := addToHand(gs, "p1", "snare")

	tx := NewTx(gs)
	_, err := e.ActivateCard(tx, "p1", snare, nil)
	assert.ErrorIs(t, err, ErrCannotActivate)

	require.NoError(t, e.SetSpellTrap(tx, "p1", snare))
	_, err = e.ActivateCard(tx, "p1", snare, nil)
	assert.ErrorIs(t, err, ErrCannotActivate, "not on the turn it was set")

	require.NoError(t, e.EndTurn(tx, "p1"))
	effects, err := e.ActivateCard(tx, "p1", snare, nil)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.True(t, effects[0].Success)
	assert.Equal(t, 7200, tx.Result().Player("p2").LifePoints)
}

func TestActivateIgnitionOncePerTurn(t *testing.T) {
	e := testEngine(t, creature("cleric", 500, 500, "Once per turn: You can gain 500 life points."))
	gs := newTestState()
	gs.CurrentPhase = PhaseMain1
	cleric := placeCreature(gs, "p1", "cleric", PositionAttack)

	tx := NewTx(gs)
	effects, err := e.ActivateCard(tx, "p1", cleric, nil)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.True(t, effects[0].Success)

	_, err = e.ActivateCard(tx, "p1", cleric, nil)
	assert.ErrorIs(t, err, ErrOncePerTurn)
	assert.Equal(t, 8500, tx.Result().Player("p1").LifePoints)
}
