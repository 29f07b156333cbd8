package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		trigger Trigger
		ops     []Operation
		opt     bool
	}{
		{
			name:    "battle destroy draw",
			text:    "When this card destroys a monster by battle, draw 1 card.",
			trigger: TriggerOnBattleDestroy,
			ops:     []Operation{DrawCards{Target: TargetController, Count: 1}},
		},
		{
			name:    "destroyed inflicts damage",
			text:    "When this card is destroyed, inflict 500 damage to your opponent.",
			trigger: TriggerOnDestroy,
			ops:     []Operation{InflictDamage{Target: TargetOpponent, Amount: 500}},
		},
		{
			name:    "attacked debuff",
			text:    "When this card is attacked, the attacking monster loses 600 ATK until the end of this turn.",
			trigger: TriggerOnBattleAttacked,
			ops:     []Operation{ModifyStats{Target: TargetBattleOpponent, Attack: -600, Duration: ExpiryEndOfTurn}},
		},
		{
			name:    "targeted for an attack destroys attacker",
			text:    "If this card is targeted for an attack, destroy the attacking monster.",
			trigger: TriggerOnBattleAttacked,
			ops:     []Operation{DestroyCards{Target: TargetBattleOpponent}},
		},
		{
			name:    "battle damage heal and draw",
			text:    "When this card inflicts battle damage to your opponent, gain 300 life points and draw 2 cards.",
			trigger: TriggerOnBattleDamage,
			ops: []Operation{
				GainLifePoints{Target: TargetController, Amount: 300},
				DrawCards{Target: TargetController, Count: 2},
			},
		},
		{
			name:    "summon buff",
			text:    "When this card is Normal Summoned, this card gains 400 ATK and DEF.",
			trigger: TriggerOnSummon,
			ops:     []Operation{ModifyStats{Target: TargetSelf, Attack: 400, Defense: 400, Duration: ExpiryPermanent}},
		},
		{
			name:    "continuous field bonus",
			text:    "While this card is face-up on the field, all monsters your opponent controls lose 200 ATK.",
			trigger: TriggerContinuous,
			ops:     []Operation{ModifyStats{Target: TargetAllOpponentCreatures, Attack: -200, Duration: ExpiryPermanent}},
		},
		{
			name:    "ignition once per turn with target",
			text:    "Once per turn: You can target 1 monster your opponent controls; destroy it.",
			trigger: TriggerOnActivate,
			ops:     []Operation{DestroyCards{Target: TargetChosen}},
			opt:     true,
		},
		{
			name:    "banish",
			text:    "When this card is destroyed, banish the monster it battled.",
			trigger: TriggerOnDestroy,
			ops:     []Operation{MoveCards{Target: TargetBattleOpponent, To: ZoneBanished}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab, err := Parser{Strict: true}.Parse(creature("c1", 1000, 1000, tt.text))
			require.NoError(t, err)
			require.Len(t, ab.Effects, 1)
			eff := ab.Effects[0]
			assert.Equal(t, tt.trigger, eff.Trigger)
			assert.Equal(t, tt.ops, eff.Operations)
			assert.Equal(t, tt.opt, eff.OncePerTurn)
			assert.Equal(t, "c1#0", eff.ID)
		})
	}
}

func TestParseTextKeywords(t *testing.T) {
	ab, err := Parser{Strict: true}.Parse(creature("c1", 1000, 1000, "Piercing. This card cannot be destroyed by battle."))
	require.NoError(t, err)
	assert.True(t, ab.Piercing)
	assert.True(t, ab.CannotBeDestroyedByBattle)
	assert.Empty(t, ab.Effects)
}

func TestParseSpellDefaultsToActivation(t *testing.T) {
	ab, err := Parser{Strict: true}.Parse(spell("pot", SubtypeNormal, "Draw 2 cards."))
	require.NoError(t, err)
	eff := ab.Effect(TriggerOnActivate)
	require.NotNil(t, eff)
	assert.Equal(t, []Operation{DrawCards{Target: TargetController, Count: 2}}, eff.Operations)

	field, err := Parser{Strict: true}.Parse(spell("arena", SubtypeField, "All monsters you control gain 300 ATK."))
	require.NoError(t, err)
	assert.NotNil(t, field.Effect(TriggerContinuous))
}

func TestParseFlavorText(t *testing.T) {
	for _, strict := range []bool{true, false} {
		_, err := Parser{Strict: strict}.Parse(creature("c1", 1000, 1000, "An ancient dragon that guards the northern pass."))
		assert.ErrorIs(t, err, ErrNoAbility)
	}
	_, err := Parser{}.Parse(creature("c2", 1000, 1000, ""))
	assert.ErrorIs(t, err, ErrNoAbility)
}

func TestParseUnrecognisedTrigger(t *testing.T) {
	def := creature("c1", 1000, 1000, "If you control no monsters, draw 1 card.")
	_, err := Parser{Strict: true}.Parse(def)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoAbility)

	_, err = Parser{Strict: false}.Parse(def)
	assert.ErrorIs(t, err, ErrNoAbility)
}

func TestParseStructured(t *testing.T) {
	def := creature("c1", 1000, 1000, "")
	def.Ability = StructuredAbility(map[string]any{
		"keywords": []any{"piercing"},
		"effects": []any{
			map[string]any{
				"trigger":       "on_battle_damage",
				"once_per_turn": "true",
				"operations": []any{
					map[string]any{"type": "damage", "amount": "500"},
					map[string]any{"type": "buff", "attack": 300.0, "duration": "end_of_turn"},
				},
			},
			map[string]any{
				"trigger":    "on_destroy",
				"operations": []any{map[string]any{"type": "return_to_hand", "target": "battle_opponent"}},
			},
		},
	})

	ab, err := Parser{Strict: true}.Parse(def)
	require.NoError(t, err)
	assert.True(t, ab.Piercing)
	require.Len(t, ab.Effects, 2)

	dmg := ab.Effect(TriggerOnBattleDamage)
	require.NotNil(t, dmg)
	assert.True(t, dmg.OncePerTurn)
	assert.Equal(t, []Operation{
		InflictDamage{Target: TargetOpponent, Amount: 500},
		ModifyStats{Target: TargetSelf, Attack: 300, Duration: ExpiryEndOfTurn},
	}, dmg.Operations)

	onDestroy := ab.Effect(TriggerOnDestroy)
	require.NotNil(t, onDestroy)
	assert.Equal(t, []Operation{MoveCards{Target: TargetBattleOpponent, To: ZoneHand}}, onDestroy.Operations)
	assert.Equal(t, "c1#1", onDestroy.ID)
}

func TestParseStructuredSingleEffect(t *testing.T) {
	def := creature("c1", 1000, 1000, "")
	def.Ability = StructuredAbility(map[string]any{
		"trigger":    "on_summon",
		"operations": []any{map[string]any{"type": "draw", "count": 1}},
	})
	ab, err := Parser{Strict: true}.Parse(def)
	require.NoError(t, err)
	assert.NotNil(t, ab.Effect(TriggerOnSummon))
}

func TestParseStructuredStrictness(t *testing.T) {
	def := creature("c1", 1000, 1000, "")
	def.Ability = StructuredAbility(map[string]any{
		"effects": []any{
			map[string]any{"trigger": "on_teleport", "operations": []any{map[string]any{"type": "draw"}}},
			map[string]any{"trigger": "on_destroy", "operations": []any{map[string]any{"type": "draw"}}},
		},
	})

	_, err := Parser{Strict: true}.Parse(def)
	assert.ErrorContains(t, err, "on_teleport")

	ab, err := Parser{}.Parse(def)
	require.NoError(t, err)
	require.Len(t, ab.Effects, 1)
	assert.Equal(t, TriggerOnDestroy, ab.Effects[0].Trigger)

	def.Ability.Structured["colour"] = "blue"
	_, err = Parser{Strict: true}.Parse(def)
	assert.Error(t, err, "unused keys are rejected in strict mode")
}

func TestAbilityCacheInvalidatesOnEdit(t *testing.T) {
	cache := NewAbilityCache(Parser{}, quietLogger())
	def := creature("c1", 1000, 1000, "When this card is destroyed, draw 1 card.")

	first, err := cache.Get(def)
	require.NoError(t, err)
	require.NotNil(t, first.Effect(TriggerOnDestroy))

	again, err := cache.Get(def)
	require.NoError(t, err)
	assert.Same(t, first, again)

	def.Ability = TextAbility("When this card is summoned, draw 1 card.")
	edited, err := cache.Get(def)
	require.NoError(t, err)
	assert.Nil(t, edited.Effect(TriggerOnDestroy))
	assert.NotNil(t, edited.Effect(TriggerOnSummon))
	assert.Equal(t, 1, cache.Len())
}

func TestAbilityCacheLenientSwallowsErrors(t *testing.T) {
	def := creature("c1", 1000, 1000, "")
	def.Ability = StructuredAbility(map[string]any{"trigger": "on_teleport", "operations": []any{}})

	lenient := NewAbilityCache(Parser{}, quietLogger())
	ab, err := lenient.Get(def)
	assert.NoError(t, err)
	assert.Nil(t, ab)

	strict := NewAbilityCache(Parser{Strict: true}, quietLogger())
	_, err = strict.Get(def)
	assert.Error(t, err)
}
