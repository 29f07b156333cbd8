package game

import "fmt"

// Stats are a creature's effective attack and defense.
type Stats struct {
	Attack  int `json:"attack"`
	Defense int `json:"defense"`
}

type activeContinuous struct {
	sourceID     string
	controllerID string
	effect       *ParsedEffect
}

// EffectiveStats combines base stats, live modifiers on the card and the
// bonuses of every active continuous ability. The result is never negative.
func (e *Engine) EffectiveStats(gs *GameState, instanceID string) (Stats, error) {
	bc, ctrl, ok := gs.FindBoardCard(instanceID)
	if !ok {
		return Stats{}, fmt.Errorf("card %s is not on the field", instanceID)
	}
	def, err := e.card(bc.CardID)
	if err != nil {
		return Stats{}, err
	}
	atk, dfn := def.Attack, def.Defense
	for _, m := range gs.modifiersFor(instanceID) {
		atk += m.Attack
		dfn += m.Defense
	}

	active, err := e.continuousEffects(gs)
	if err != nil {
		return Stats{}, err
	}
	for _, ac := range active {
		for _, op := range ac.effect.Operations {
			ms, ok := op.(ModifyStats)
			if ok && continuousApplies(ms.Target, ac, bc.InstanceID, ctrl.UserID) {
				atk += ms.Attack
				dfn += ms.Defense
			}
		}
	}
	return Stats{Attack: max(atk, 0), Defense: max(dfn, 0)}, nil
}

// battleProtected reports whether battle cannot destroy the card.
func (e *Engine) battleProtected(gs *GameState, instanceID string) (bool, error) {
	bc, ctrl, ok := gs.FindBoardCard(instanceID)
	if !ok {
		return false, nil
	}
	if bc.CannotBeDestroyedByBattle {
		return true, nil
	}
	for _, m := range gs.modifiersFor(instanceID) {
		if m.CannotBeDestroyedByBattle {
			return true, nil
		}
	}
	if !bc.FaceDown {
		ab, err := e.ability(bc.CardID)
		if err != nil {
			return false, err
		}
		if ab != nil && ab.CannotBeDestroyedByBattle {
			return true, nil
		}
	}

	active, err := e.continuousEffects(gs)
	if err != nil {
		return false, err
	}
	for _, ac := range active {
		for _, op := range ac.effect.Operations {
			gp, ok := op.(GrantBattleProtection)
			if ok && continuousApplies(gp.Target, ac, instanceID, ctrl.UserID) {
				return true, nil
			}
		}
	}
	return false, nil
}

// continuousEffects scans face-up creatures, face-up spell/trap cards and
// field spells for continuous abilities.
func (e *Engine) continuousEffects(gs *GameState) ([]activeContinuous, error) {
	var out []activeContinuous
	add := func(ref CardRef, controllerID string) error {
		ab, err := e.ability(ref.CardID)
		if err != nil {
			return err
		}
		if eff := ab.Effect(TriggerContinuous); eff != nil {
			out = append(out, activeContinuous{sourceID: ref.InstanceID, controllerID: controllerID, effect: eff})
		}
		return nil
	}
	for _, p := range gs.Players {
		for _, bc := range p.Board {
			if bc.FaceDown {
				continue
			}
			if err := add(bc.CardRef, p.UserID); err != nil {
				return nil, err
			}
		}
		for _, st := range p.SpellTrapZone {
			if st.FaceDown {
				continue
			}
			if err := add(st.CardRef, p.UserID); err != nil {
				return nil, err
			}
		}
		if p.FieldSpell != nil && !p.FieldSpell.FaceDown {
			if err := add(p.FieldSpell.CardRef, p.UserID); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func continuousApplies(sel TargetSelector, ac activeContinuous, targetID, targetController string) bool {
	switch sel {
	case TargetSelf:
		return ac.sourceID == targetID
	case TargetAllOwnCreatures:
		return ac.controllerID == targetController
	case TargetAllOpponentCreatures:
		return ac.controllerID != targetController
	}
	return false
}
