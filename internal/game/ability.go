package game

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Trigger is the event that activates a parsed effect.
type Trigger string

const (
	TriggerOnSummon         Trigger = "on_summon"
	TriggerOnDestroy        Trigger = "on_destroy"
	TriggerOnBattleDamage   Trigger = "on_battle_damage"
	TriggerOnBattleAttacked Trigger = "on_battle_attacked"
	TriggerOnBattleDestroy  Trigger = "on_battle_destroy"
	TriggerOnActivate       Trigger = "on_activate"
	TriggerContinuous       Trigger = "continuous"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerOnSummon, TriggerOnDestroy, TriggerOnBattleDamage, TriggerOnBattleAttacked,
		TriggerOnBattleDestroy, TriggerOnActivate, TriggerContinuous:
		return true
	}
	return false
}

// TargetSelector says which cards or players an operation applies to.
type TargetSelector string

const (
	TargetSelf                 TargetSelector = "self"
	TargetChosen               TargetSelector = "chosen"
	TargetBattleOpponent       TargetSelector = "battle_opponent"
	TargetAllOwnCreatures      TargetSelector = "all_own_creatures"
	TargetAllOpponentCreatures TargetSelector = "all_opponent_creatures"
	TargetController           TargetSelector = "controller"
	TargetOpponent             TargetSelector = "opponent"
)

func (s TargetSelector) selectsPlayer() bool {
	return s == TargetController || s == TargetOpponent
}

func (s TargetSelector) selectsCreatures() bool {
	switch s {
	case TargetSelf, TargetChosen, TargetBattleOpponent, TargetAllOwnCreatures, TargetAllOpponentCreatures:
		return true
	}
	return false
}

type Zone string

const (
	ZoneHand      Zone = "hand"
	ZoneDeck      Zone = "deck"
	ZoneGraveyard Zone = "graveyard"
	ZoneBanished  Zone = "banished"
)

// Operation is one step of an effect. The set of implementations is closed.
type Operation interface {
	Kind() string
	operation()
}

type ModifyStats struct {
	Target   TargetSelector
	Attack   int
	Defense  int
	Duration Expiry
}

type DestroyCards struct {
	Target TargetSelector
}

type DrawCards struct {
	Target TargetSelector
	Count  int
}

type InflictDamage struct {
	Target TargetSelector
	Amount int
}

type GainLifePoints struct {
	Target TargetSelector
	Amount int
}

type MoveCards struct {
	Target TargetSelector
	To     Zone
}

type GrantBattleProtection struct {
	Target   TargetSelector
	Duration Expiry
}

func (ModifyStats) Kind() string           { return "modify_stats" }
func (DestroyCards) Kind() string          { return "destroy" }
func (DrawCards) Kind() string             { return "draw" }
func (InflictDamage) Kind() string         { return "damage" }
func (GainLifePoints) Kind() string        { return "gain_life_points" }
func (MoveCards) Kind() string             { return "move" }
func (GrantBattleProtection) Kind() string { return "battle_protection" }

func (ModifyStats) operation()           {}
func (DestroyCards) operation()          {}
func (DrawCards) operation()             {}
func (InflictDamage) operation()         {}
func (GainLifePoints) operation()        {}
func (MoveCards) operation()             {}
func (GrantBattleProtection) operation() {}

// ParsedEffect is a trigger plus the operations it performs.
type ParsedEffect struct {
	ID          string
	Trigger     Trigger
	Operations  []Operation
	OncePerTurn bool
}

// Ability is everything mechanically relevant about a card's ability.
type Ability struct {
	CardID                    string
	Effects                   []ParsedEffect
	Piercing                  bool
	CannotBeDestroyedByBattle bool
}

// Effect returns the first effect with the given trigger, or nil.
func (a *Ability) Effect(t Trigger) *ParsedEffect {
	if a == nil {
		return nil
	}
	for i := range a.Effects {
		if a.Effects[i].Trigger == t {
			return &a.Effects[i]
		}
	}
	return nil
}

// ErrNoAbility is returned for cards with no mechanical ability (flavor text).
var ErrNoAbility = errors.New("card has no ability")

// Parser turns stored ability sources into Abilities. A strict parser rejects
// anything it does not fully understand; a lenient one keeps what it can.
type Parser struct {
	Strict bool
}

// Parse converts def's ability. It returns ErrNoAbility when there is nothing
// actionable.
func (p Parser) Parse(def *CardDefinition) (*Ability, error) {
	if def == nil || def.Ability.IsZero() {
		return nil, ErrNoAbility
	}
	var (
		ab  *Ability
		err error
	)
	if len(def.Ability.Structured) > 0 {
		ab, err = p.parseStructured(def.ID, def.Ability.Structured)
	} else {
		ab, err = p.parseText(def)
	}
	if err != nil {
		return nil, fmt.Errorf("card %s: %w", def.ID, err)
	}
	if len(ab.Effects) == 0 && !ab.Piercing && !ab.CannotBeDestroyedByBattle {
		return nil, ErrNoAbility
	}
	for i := range ab.Effects {
		ab.Effects[i].ID = fmt.Sprintf("%s#%d", def.ID, i)
	}
	return ab, nil
}

// --- Structured abilities ---

type rawOperation struct {
	Type     string `mapstructure:"type"`
	Target   string `mapstructure:"target"`
	Attack   int    `mapstructure:"attack"`
	Defense  int    `mapstructure:"defense"`
	Amount   int    `mapstructure:"amount"`
	Count    int    `mapstructure:"count"`
	Zone     string `mapstructure:"zone"`
	Duration string `mapstructure:"duration"`
}

type rawEffect struct {
	Trigger     string         `mapstructure:"trigger"`
	OncePerTurn bool           `mapstructure:"once_per_turn"`
	Operations  []rawOperation `mapstructure:"operations"`
}

// rawAbility accepts either a single top-level effect or an effects list.
type rawAbility struct {
	Trigger     string         `mapstructure:"trigger"`
	OncePerTurn bool           `mapstructure:"once_per_turn"`
	Operations  []rawOperation `mapstructure:"operations"`
	Effects     []rawEffect    `mapstructure:"effects"`
	Keywords    []string       `mapstructure:"keywords"`
}

func (p Parser) parseStructured(cardID string, doc map[string]any) (*Ability, error) {
	var raw rawAbility
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      p.Strict,
		Result:           &raw,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, fmt.Errorf("decode ability: %w", err)
	}

	ab := &Ability{CardID: cardID}
	for _, kw := range raw.Keywords {
		switch strings.ToLower(strings.TrimSpace(kw)) {
		case "piercing":
			ab.Piercing = true
		case "cannot_be_destroyed_by_battle", "cannot be destroyed by battle":
			ab.CannotBeDestroyedByBattle = true
		default:
			if p.Strict {
				return nil, fmt.Errorf("unknown keyword %q", kw)
			}
		}
	}

	effects := raw.Effects
	if raw.Trigger != "" || len(raw.Operations) > 0 {
		top := rawEffect{Trigger: raw.Trigger, OncePerTurn: raw.OncePerTurn, Operations: raw.Operations}
		effects = append([]rawEffect{top}, effects...)
	}
	for _, re := range effects {
		eff, err := p.buildEffect(re)
		if err != nil {
			if p.Strict {
				return nil, err
			}
			continue
		}
		ab.Effects = append(ab.Effects, eff)
	}
	return ab, nil
}

func (p Parser) buildEffect(re rawEffect) (ParsedEffect, error) {
	trigger := Trigger(strings.ToLower(re.Trigger))
	if !trigger.Valid() {
		return ParsedEffect{}, fmt.Errorf("unknown trigger %q", re.Trigger)
	}
	eff := ParsedEffect{Trigger: trigger, OncePerTurn: re.OncePerTurn}
	for _, ro := range re.Operations {
		op, err := buildOperation(ro)
		if err != nil {
			if p.Strict {
				return ParsedEffect{}, err
			}
			continue
		}
		eff.Operations = append(eff.Operations, op)
	}
	if len(eff.Operations) == 0 {
		return ParsedEffect{}, fmt.Errorf("%s effect has no operations", trigger)
	}
	return eff, nil
}

func buildOperation(ro rawOperation) (Operation, error) {
	target := TargetSelector(strings.ToLower(ro.Target))
	duration := Expiry(strings.ToLower(ro.Duration))
	if duration == "" {
		duration = ExpiryPermanent
	}
	switch duration {
	case ExpiryEndOfTurn, ExpiryEndOfNextTurn, ExpiryPermanent:
	default:
		return nil, fmt.Errorf("unknown duration %q", ro.Duration)
	}

	var op Operation
	switch strings.ToLower(ro.Type) {
	case "modify_stats", "buff", "debuff":
		op = ModifyStats{Target: defaultTarget(target, TargetSelf), Attack: ro.Attack, Defense: ro.Defense, Duration: duration}
	case "destroy":
		op = DestroyCards{Target: defaultTarget(target, TargetChosen)}
	case "draw":
		op = DrawCards{Target: defaultTarget(target, TargetController), Count: max(ro.Count, ro.Amount, 1)}
	case "damage", "inflict_damage":
		op = InflictDamage{Target: defaultTarget(target, TargetOpponent), Amount: ro.Amount}
	case "heal", "gain_life_points":
		op = GainLifePoints{Target: defaultTarget(target, TargetController), Amount: ro.Amount}
	case "move", "return_to_hand", "banish":
		zone := Zone(strings.ToLower(ro.Zone))
		switch strings.ToLower(ro.Type) {
		case "return_to_hand":
			zone = ZoneHand
		case "banish":
			zone = ZoneBanished
		}
		switch zone {
		case ZoneHand, ZoneDeck, ZoneGraveyard, ZoneBanished:
		default:
			return nil, fmt.Errorf("unknown zone %q", ro.Zone)
		}
		op = MoveCards{Target: defaultTarget(target, TargetChosen), To: zone}
	case "battle_protection", "cannot_be_destroyed_by_battle":
		op = GrantBattleProtection{Target: defaultTarget(target, TargetSelf), Duration: duration}
	default:
		return nil, fmt.Errorf("unknown operation %q", ro.Type)
	}
	return op, validateOperation(op)
}

func defaultTarget(t, def TargetSelector) TargetSelector {
	if t == "" {
		return def
	}
	return t
}

func validateOperation(op Operation) error {
	switch o := op.(type) {
	case ModifyStats:
		if !o.Target.selectsCreatures() {
			return fmt.Errorf("modify_stats: bad target %q", o.Target)
		}
		if o.Attack == 0 && o.Defense == 0 {
			return errors.New("modify_stats: no stat change")
		}
	case DestroyCards:
		if !o.Target.selectsCreatures() {
			return fmt.Errorf("destroy: bad target %q", o.Target)
		}
	case MoveCards:
		if !o.Target.selectsCreatures() {
			return fmt.Errorf("move: bad target %q", o.Target)
		}
	case GrantBattleProtection:
		if !o.Target.selectsCreatures() {
			return fmt.Errorf("battle_protection: bad target %q", o.Target)
		}
	case DrawCards:
		if !o.Target.selectsPlayer() {
			return fmt.Errorf("draw: bad target %q", o.Target)
		}
	case InflictDamage:
		if !o.Target.selectsPlayer() || o.Amount <= 0 {
			return fmt.Errorf("damage: bad target %q or amount %d", o.Target, o.Amount)
		}
	case GainLifePoints:
		if !o.Target.selectsPlayer() || o.Amount <= 0 {
			return fmt.Errorf("gain_life_points: bad target %q or amount %d", o.Target, o.Amount)
		}
	}
	return nil
}
