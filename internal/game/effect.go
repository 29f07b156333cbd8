package game

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/sirupsen/logrus"
)

// maxTriggerDepth bounds effects triggering effects (on_destroy chains).
const maxTriggerDepth = 8

// EffectResult reports whether an effect applied. A failed effect changed
// nothing.
type EffectResult struct {
	EffectID         string         `json:"effectId"`
	SourceInstanceID string         `json:"sourceInstanceId"`
	Trigger          Trigger        `json:"trigger"`
	Success          bool           `json:"success"`
	Message          string         `json:"message"`
	Chained          []EffectResult `json:"chained,omitempty"`
}

// Executor applies parsed effects to a match.
type Executor struct {
	engine *Engine
}

// effectRun is the working set for one Execute call: a private snapshot plus
// everything to emit if all operations succeed.
type effectRun struct {
	gs           *GameState
	effect       *ParsedEffect
	controllerID string
	sourceID     string
	targets      []string
	events       []log.GameEvent
	destroyed    []CardRef
	notes        []string
}

// Execute applies effect against a fresh snapshot of tx. Either every
// operation applies and the snapshot is committed, or nothing is. Cards
// destroyed by the effect fire their on_destroy effects once it has committed.
func (x *Executor) Execute(tx *Tx, lobbyID string, effect *ParsedEffect, controllerID, sourceInstanceID string, targets []string) EffectResult {
	res := EffectResult{SourceInstanceID: sourceInstanceID}
	if effect == nil {
		res.Message = "no effect"
		return res
	}
	res.EffectID, res.Trigger = effect.ID, effect.Trigger

	logger := x.engine.log.WithFields(logrus.Fields{
		"lobby_id":  lobbyID,
		"effect_id": effect.ID,
		"player_id": controllerID,
	})

	gs := tx.Snapshot()
	sourceName := x.sourceName(gs, sourceInstanceID)
	fail := func(msg string) EffectResult {
		res.Message = msg
		logger.WithField("reason", msg).Debug("effect failed")
		tx.Record(log.NewEffectActivatedEvent(gs.TurnNumber, string(gs.CurrentPhase), controllerID, sourceName, string(effect.Trigger), false, msg))
		return res
	}

	switch {
	case gs.IsOver():
		return fail("the game is over")
	case gs.Player(controllerID) == nil:
		return fail("controller is not in this game")
	case effect.OncePerTurn && gs.optUsed(effect.ID):
		return fail("already used this turn")
	case tx.depth >= maxTriggerDepth:
		return fail("too many chained effects")
	}

	run := &effectRun{gs: gs, effect: effect, controllerID: controllerID, sourceID: sourceInstanceID, targets: targets}
	for _, op := range effect.Operations {
		if err := x.apply(run, op); err != nil {
			return fail(err.Error())
		}
	}
	if effect.OncePerTurn {
		gs.OptUsedThisTurn = append(slices.Clone(gs.OptUsedThisTurn), effect.ID)
	}

	res.Success = true
	res.Message = strings.Join(run.notes, "; ")
	tx.Commit(gs)
	tx.Record(log.NewEffectActivatedEvent(gs.TurnNumber, string(gs.CurrentPhase), controllerID, sourceName, string(effect.Trigger), true, res.Message))
	tx.Record(run.events...)

	tx.depth++
	defer func() { tx.depth-- }()
	for _, ref := range run.destroyed {
		chained, err := x.engine.fire(tx, ref, ref.OwnerID, TriggerOnDestroy, nil)
		if err != nil {
			logger.WithError(err).Warn("on_destroy effect could not be loaded")
			continue
		}
		if chained != nil {
			res.Chained = append(res.Chained, *chained)
		}
	}
	return res
}

func (x *Executor) sourceName(gs *GameState, instanceID string) string {
	if bc, _, ok := gs.FindBoardCard(instanceID); ok {
		return x.engine.cardName(bc.CardID)
	}
	if st, _, ok := gs.findSpellTrap(instanceID); ok {
		return x.engine.cardName(st.CardID)
	}
	return instanceID
}

var (
	errSourceGone = errors.New("source card is no longer on the field")
	errNoTarget   = errors.New("no valid target")
)

// creatures resolves a creature selector to instance ids on the board.
func (r *effectRun) creatures(sel TargetSelector) ([]string, error) {
	gs := r.gs
	switch sel {
	case TargetSelf:
		if !gs.OnBoard(r.sourceID) {
			return nil, errSourceGone
		}
		return []string{r.sourceID}, nil
	case TargetChosen, TargetBattleOpponent:
		var ids []string
		for _, id := range r.targets {
			if gs.OnBoard(id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil, errNoTarget
		}
		return ids, nil
	case TargetAllOwnCreatures, TargetAllOpponentCreatures:
		owner := r.controllerID
		if sel == TargetAllOpponentCreatures {
			owner = gs.OpponentOf(r.controllerID)
		}
		var ids []string
		for _, bc := range gs.Player(owner).Board {
			ids = append(ids, bc.InstanceID)
		}
		return ids, nil
	}
	return nil, fmt.Errorf("selector %q does not select creatures", sel)
}

func (r *effectRun) player(sel TargetSelector) (*PlayerState, error) {
	switch sel {
	case TargetController:
		return r.gs.Player(r.controllerID), nil
	case TargetOpponent:
		return r.gs.Player(r.gs.OpponentOf(r.controllerID)), nil
	}
	return nil, fmt.Errorf("selector %q does not select a player", sel)
}

func (x *Executor) apply(r *effectRun, op Operation) error {
	gs := r.gs
	turn, phase := gs.TurnNumber, string(gs.CurrentPhase)

	switch o := op.(type) {
	case ModifyStats:
		ids, err := r.creatures(o.Target)
		if err != nil {
			return err
		}
		for _, id := range ids {
			gs.addModifier(TemporaryModifier{
				TargetInstanceID: id,
				SourceInstanceID: r.sourceID,
				Attack:           o.Attack,
				Defense:          o.Defense,
				Expiry:           o.Duration,
			})
		}
		r.notes = append(r.notes, fmt.Sprintf("%d card(s) %s", len(ids), statDelta(o.Attack, o.Defense)))

	case GrantBattleProtection:
		ids, err := r.creatures(o.Target)
		if err != nil {
			return err
		}
		for _, id := range ids {
			gs.addModifier(TemporaryModifier{
				TargetInstanceID:          id,
				SourceInstanceID:          r.sourceID,
				CannotBeDestroyedByBattle: true,
				Expiry:                    o.Duration,
			})
		}
		r.notes = append(r.notes, fmt.Sprintf("%d card(s) cannot be destroyed by battle", len(ids)))

	case DestroyCards:
		ids, err := r.creatures(o.Target)
		if err != nil {
			return err
		}
		for _, id := range ids {
			ref, ok := gs.removeFromBoard(id)
			if !ok {
				continue
			}
			gs.sendTo(ref, ZoneGraveyard)
			r.destroyed = append(r.destroyed, ref)
			r.events = append(r.events, log.NewCardDestroyedEvent(turn, phase, ref.OwnerID, x.engine.cardName(ref.CardID), "effect"))
		}
		r.notes = append(r.notes, fmt.Sprintf("destroyed %d card(s)", len(ids)))

	case MoveCards:
		ids, err := r.creatures(o.Target)
		if err != nil {
			return err
		}
		for _, id := range ids {
			ref, ok := gs.removeFromBoard(id)
			if !ok {
				continue
			}
			gs.sendTo(ref, o.To)
			if o.To == ZoneGraveyard {
				r.events = append(r.events, log.NewSendToGraveyardEvent(turn, phase, ref.OwnerID, x.engine.cardName(ref.CardID), "effect"))
			}
		}
		r.notes = append(r.notes, fmt.Sprintf("moved %d card(s) to %s", len(ids), o.To))

	case DrawCards:
		p, err := r.player(o.Target)
		if err != nil {
			return err
		}
		for i := 0; i < o.Count; i++ {
			deck, ref, ok := drawTop(p.Deck)
			if !ok {
				return fmt.Errorf("%s has no cards left to draw", p.UserID)
			}
			p.Deck = deck
			p.Hand = appendRef(p.Hand, ref)
			r.events = append(r.events, log.NewDrawEvent(turn, phase, p.UserID, x.engine.cardName(ref.CardID)))
		}
		r.notes = append(r.notes, fmt.Sprintf("%s drew %d card(s)", p.UserID, o.Count))

	case InflictDamage:
		p, err := r.player(o.Target)
		if err != nil {
			return err
		}
		old := p.LifePoints
		gs.setLifePoints(p, old-o.Amount)
		r.events = append(r.events, log.NewLifePointsEvent(turn, phase, p.UserID, old, p.LifePoints, "effect damage"))
		r.notes = append(r.notes, fmt.Sprintf("%d damage to %s", o.Amount, p.UserID))

	case GainLifePoints:
		p, err := r.player(o.Target)
		if err != nil {
			return err
		}
		old := p.LifePoints
		gs.setLifePoints(p, old+o.Amount)
		r.events = append(r.events, log.NewLifePointsEvent(turn, phase, p.UserID, old, p.LifePoints, "effect"))
		r.notes = append(r.notes, fmt.Sprintf("%s gained %d life points", p.UserID, o.Amount))

	default:
		return fmt.Errorf("unsupported operation %s", op.Kind())
	}
	return nil
}

func statDelta(atk, def int) string {
	var parts []string
	if atk != 0 {
		parts = append(parts, fmt.Sprintf("%+d ATK", atk))
	}
	if def != 0 {
		parts = append(parts, fmt.Sprintf("%+d DEF", def))
	}
	return strings.Join(parts, " ")
}
