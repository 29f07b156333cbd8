package game

import (
	"slices"

	"github.com/peterkuimelis/duelserver/internal/log"
)

// checkTurn validates that playerID may act as the turn player.
func checkTurn(gs *GameState, playerID string) (*PlayerState, error) {
	if gs.IsOver() {
		return nil, ErrGameOver
	}
	p := gs.Player(playerID)
	if p == nil {
		return nil, ErrNotAPlayer
	}
	if gs.CurrentTurnPlayerID != playerID {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

func checkMainPhase(gs *GameState) error {
	if !gs.CurrentPhase.IsMain() {
		return rejectf(ErrWrongPhase, "only allowed in a main phase, not %s", gs.CurrentPhase)
	}
	return nil
}

// NormalSummon puts a creature from hand onto the board, once per turn. A
// defense-position summon is a face-down set and does not fire on_summon.
func (e *Engine) NormalSummon(tx *Tx, playerID, instanceID string, pos Position) ([]EffectResult, error) {
	gs := tx.Snapshot()
	p, err := checkTurn(gs, playerID)
	if err != nil {
		return nil, err
	}
	if err := checkMainPhase(gs); err != nil {
		return nil, err
	}
	if p.NormalSummonedThisTurn {
		return nil, ErrAlreadySummoned
	}
	hand, ref, ok := withoutRef(p.Hand, instanceID)
	if !ok {
		return nil, ErrCardNotInHand
	}
	def, err := e.card(ref.CardID)
	if err != nil {
		return nil, err
	}
	if !def.IsCreature() {
		return nil, ErrNotACreature
	}
	if len(p.Board) >= MaxBoardSize {
		return nil, ErrZoneFull
	}
	if pos != PositionAttack {
		pos = PositionDefense
	}

	bc := BoardCard{
		CardRef:      ref,
		Position:     pos,
		FaceDown:     pos == PositionDefense,
		SummonedTurn: gs.TurnNumber,
	}
	p.Hand = hand
	p.Board = append(slices.Clone(p.Board), bc)
	p.NormalSummonedThisTurn = true
	tx.Commit(gs)

	turn, phase := gs.TurnNumber, string(gs.CurrentPhase)
	if bc.FaceDown {
		tx.Record(log.NewCardSetEvent(turn, phase, playerID))
		return nil, nil
	}
	tx.Record(log.NewNormalSummonEvent(turn, phase, playerID, def.Name, pos.String()))

	eff, err := e.fire(tx, ref, playerID, TriggerOnSummon, nil)
	if err != nil || eff == nil {
		return nil, err
	}
	return []EffectResult{*eff}, nil
}

// ChangePosition switches a creature between attack and defense. A face-down
// creature is flipped face-up into attack position.
func (e *Engine) ChangePosition(tx *Tx, playerID, instanceID string) error {
	gs := tx.Snapshot()
	p, err := checkTurn(gs, playerID)
	if err != nil {
		return err
	}
	if err := checkMainPhase(gs); err != nil {
		return err
	}
	i := boardIndex(p.Board, instanceID)
	if i < 0 {
		return rejectf(ErrInvalidTarget, "that card is not on your board")
	}
	bc := p.Board[i]
	switch {
	case bc.SummonedTurn == gs.TurnNumber:
		return rejectf(ErrCannotChangePosition, "cannot change position on the turn it was summoned")
	case bc.HasAttacked:
		return rejectf(ErrCannotChangePosition, "cannot change position after attacking")
	case bc.PositionChangedTurn == gs.TurnNumber:
		return rejectf(ErrCannotChangePosition, "position already changed this turn")
	}

	if bc.Position == PositionAttack {
		bc.Position = PositionDefense
	} else {
		bc.Position = PositionAttack
		bc.FaceDown = false
	}
	bc.PositionChangedTurn = gs.TurnNumber
	gs.updateBoardCard(bc)
	tx.Commit(gs)
	tx.Record(log.NewChangePositionEvent(gs.TurnNumber, string(gs.CurrentPhase), playerID, e.cardName(bc.CardID), bc.Position.String()))
	return nil
}

// SetSpellTrap places a spell, trap or equipment card face-down.
func (e *Engine) SetSpellTrap(tx *Tx, playerID, instanceID string) error {
	gs := tx.Snapshot()
	p, err := checkTurn(gs, playerID)
	if err != nil {
		return err
	}
	if err := checkMainPhase(gs); err != nil {
		return err
	}
	hand, ref, ok := withoutRef(p.Hand, instanceID)
	if !ok {
		return ErrCardNotInHand
	}
	def, err := e.card(ref.CardID)
	if err != nil {
		return err
	}
	if def.IsCreature() {
		return rejectf(ErrCannotActivate, "creatures are summoned, not set in the spell/trap zone")
	}
	st := SpellTrapCard{CardRef: ref, FaceDown: true, SetTurn: gs.TurnNumber}
	if def.Subtype == SubtypeField {
		if p.FieldSpell != nil {
			old, _ := gs.removeSpellTrap(p.FieldSpell.InstanceID)
			gs.sendTo(old, ZoneGraveyard)
		}
		p.FieldSpell = &st
	} else {
		if len(p.SpellTrapZone) >= MaxSpellTrapSize {
			return ErrZoneFull
		}
		p.SpellTrapZone = append(slices.Clone(p.SpellTrapZone), st)
	}
	p.Hand = hand
	tx.Commit(gs)
	tx.Record(log.NewCardSetEvent(gs.TurnNumber, string(gs.CurrentPhase), playerID))
	return nil
}

// ActivateCard activates a spell or equipment from hand, a set spell or
// trap, or the on_activate effect of a face-up creature.
func (e *Engine) ActivateCard(tx *Tx, playerID, instanceID string, targets []string) ([]EffectResult, error) {
	gs := tx.Snapshot()
	if gs.IsOver() {
		return nil, ErrGameOver
	}
	p := gs.Player(playerID)
	if p == nil {
		return nil, ErrNotAPlayer
	}
	turn, phase := gs.TurnNumber, string(gs.CurrentPhase)

	// Ignition effect of a creature
	if bc, ctrl, ok := gs.FindBoardCard(instanceID); ok {
		if ctrl.UserID != playerID || bc.FaceDown {
			return nil, ErrCannotActivate
		}
		if _, err := checkTurn(gs, playerID); err != nil {
			return nil, err
		}
		if err := checkMainPhase(gs); err != nil {
			return nil, err
		}
		eff, err := e.activatable(bc.CardID, gs)
		if err != nil {
			return nil, err
		}
		if eff == nil {
			return nil, rejectf(ErrCannotActivate, "%s has no effect to activate", e.cardName(bc.CardID))
		}
		tx.Record(log.NewCardActivatedEvent(turn, phase, playerID, e.cardName(bc.CardID)))
		return []EffectResult{e.Executor.Execute(tx, tx.LobbyID(), eff, playerID, instanceID, targets)}, nil
	}

	var (
		st       SpellTrapCard
		def      *CardDefinition
		fromHand bool
		err      error
	)
	if hand, ref, ok := withoutRef(p.Hand, instanceID); ok {
		if def, err = e.card(ref.CardID); err != nil {
			return nil, err
		}
		switch def.CardType {
		case CardTypeCreature:
			return nil, rejectf(ErrCannotActivate, "creatures are summoned, not activated")
		case CardTypeTrap:
			return nil, rejectf(ErrCannotActivate, "traps must be set before they can be activated")
		}
		if _, err := checkTurn(gs, playerID); err != nil {
			return nil, err
		}
		if err := checkMainPhase(gs); err != nil {
			return nil, err
		}
		p.Hand = hand
		st, fromHand = SpellTrapCard{CardRef: ref}, true
	} else if set, owner, ok := gs.findSpellTrap(instanceID); ok && owner.UserID == playerID && set.FaceDown {
		if def, err = e.card(set.CardID); err != nil {
			return nil, err
		}
		if def.CardType == CardTypeTrap {
			if set.SetTurn == turn {
				return nil, rejectf(ErrCannotActivate, "cannot activate a trap the turn it was set")
			}
		} else {
			if _, err := checkTurn(gs, playerID); err != nil {
				return nil, err
			}
			if err := checkMainPhase(gs); err != nil {
				return nil, err
			}
		}
		gs.removeSpellTrap(instanceID)
		st = set
	} else {
		return nil, rejectf(ErrCannotActivate, "that card is not in your hand or set on your field")
	}

	eff, err := e.activatable(def.ID, gs)
	if err != nil {
		return nil, err
	}
	equipment := def.CardType == CardTypeEquipment
	lingering := equipment || def.Subtype == SubtypeContinuous || def.Subtype == SubtypeField
	if eff == nil && !lingering {
		return nil, rejectf(ErrCannotActivate, "%s has no effect to activate", def.Name)
	}
	if equipment {
		if len(targets) != 1 || !gs.OnBoard(targets[0]) {
			return nil, rejectf(ErrInvalidTarget, "equipment needs exactly one creature on the field as its target")
		}
		st.EquippedTo = targets[0]
	}

	st.FaceDown = false
	if def.Subtype == SubtypeField {
		if p.FieldSpell != nil {
			old, _ := gs.removeSpellTrap(p.FieldSpell.InstanceID)
			gs.sendTo(old, ZoneGraveyard)
		}
		p.FieldSpell = &st
	} else {
		if fromHand && len(p.SpellTrapZone) >= MaxSpellTrapSize {
			return nil, ErrZoneFull
		}
		p.SpellTrapZone = append(slices.Clone(p.SpellTrapZone), st)
	}
	tx.Commit(gs)
	tx.Record(log.NewCardActivatedEvent(turn, phase, playerID, def.Name))

	var results []EffectResult
	resolved := true
	if eff != nil {
		res := e.Executor.Execute(tx, tx.LobbyID(), eff, playerID, instanceID, targets)
		results = append(results, res)
		resolved = res.Success
	}

	// Normal spells and traps leave once resolved; equipment leaves if it
	// had nothing to equip.
	if !lingering || (equipment && !resolved) {
		gs = tx.Snapshot()
		if ref, ok := gs.removeSpellTrap(instanceID); ok {
			gs.sendTo(ref, ZoneGraveyard)
			tx.Commit(gs)
			tx.Record(log.NewSendToGraveyardEvent(turn, phase, playerID, def.Name, "resolved"))
		}
	}
	return results, nil
}

// activatable returns the card's on_activate effect after the once-per-turn
// check, or nil if it has none.
func (e *Engine) activatable(cardID string, gs *GameState) (*ParsedEffect, error) {
	ab, err := e.ability(cardID)
	if err != nil {
		return nil, err
	}
	eff := ab.Effect(TriggerOnActivate)
	if eff != nil && eff.OncePerTurn && gs.optUsed(eff.ID) {
		return nil, ErrOncePerTurn
	}
	return eff, nil
}

// AdvancePhase moves the turn player forward to a later phase of the turn.
func (e *Engine) AdvancePhase(tx *Tx, playerID string, to Phase) error {
	gs := tx.Snapshot()
	if _, err := checkTurn(gs, playerID); err != nil {
		return err
	}
	if !to.Valid() || to == PhaseDraw || to == PhaseStandby {
		return rejectf(ErrInvalidTransition, "cannot move to phase %q", to)
	}
	if phaseOrder[to] <= phaseOrder[gs.CurrentPhase] {
		return rejectf(ErrInvalidTransition, "cannot move from %s back to %s", gs.CurrentPhase, to)
	}
	if to.IsBattle() && gs.TurnNumber == 1 {
		return rejectf(ErrWrongPhase, "the first player cannot battle on turn 1")
	}
	gs.CurrentPhase = to
	tx.Commit(gs)
	tx.Record(log.NewPhaseChangeEvent(gs.TurnNumber, string(to), playerID))
	return nil
}

// EndTurn closes the turn: modifiers expire, per-turn flags reset, and the
// next player draws. A player who cannot draw loses.
func (e *Engine) EndTurn(tx *Tx, playerID string) error {
	gs := tx.Snapshot()
	if _, err := checkTurn(gs, playerID); err != nil {
		return err
	}
	if gs.CurrentPhase != PhaseEnd {
		tx.Record(log.NewPhaseChangeEvent(gs.TurnNumber, string(PhaseEnd), playerID))
	}

	ending := gs.TurnNumber
	gs.TemporaryModifiers = slices.DeleteFunc(slices.Clone(gs.TemporaryModifiers), func(m TemporaryModifier) bool {
		switch m.Expiry {
		case ExpiryEndOfTurn:
			return true
		case ExpiryEndOfNextTurn:
			return m.CreatedTurn < ending
		}
		return false
	})
	for _, p := range gs.Players {
		board := slices.Clone(p.Board)
		for i := range board {
			board[i].HasAttacked = false
		}
		p.Board = board
		p.NormalSummonedThisTurn = false
	}
	gs.OptUsedThisTurn = []string{}
	gs.CurrentChain = []ChainLink{}

	next := gs.OpponentOf(playerID)
	gs.CurrentTurnPlayerID = next
	gs.CurrentPriorityPlayer = next
	gs.TurnNumber++
	gs.CurrentPhase = PhaseDraw
	tx.Record(log.NewTurnEvent(gs.TurnNumber, next))

	np := gs.Player(next)
	deck, ref, ok := drawTop(np.Deck)
	if !ok {
		gs.declareWinner(playerID, next, EndCompleted)
		tx.Commit(gs)
		tx.Record(log.NewDeckOutEvent(gs.TurnNumber, string(PhaseDraw), next))
		return nil
	}
	np.Deck = deck
	np.Hand = appendRef(np.Hand, ref)
	tx.Record(log.NewDrawEvent(gs.TurnNumber, string(PhaseDraw), next, e.cardName(ref.CardID)))

	gs.CurrentPhase = PhaseMain1
	tx.Commit(gs)
	tx.Record(log.NewPhaseChangeEvent(gs.TurnNumber, string(PhaseMain1), next))
	return nil
}

// EndGame makes loserID lose for reason. Used for surrender, forfeit and
// timeout; life-point and deck-out losses happen inside the engine.
func (e *Engine) EndGame(tx *Tx, loserID string, reason EndReason) error {
	gs := tx.Snapshot()
	if gs.IsOver() {
		return ErrGameOver
	}
	if gs.Player(loserID) == nil {
		return ErrNotAPlayer
	}
	gs.declareWinner(gs.OpponentOf(loserID), loserID, reason)
	tx.Commit(gs)
	if reason == EndSurrender {
		tx.Record(log.NewSurrenderEvent(gs.TurnNumber, string(gs.CurrentPhase), loserID))
	}
	return nil
}

// Surrender concedes the match to the other player.
func (e *Engine) Surrender(tx *Tx, playerID string) error {
	return e.EndGame(tx, playerID, EndSurrender)
}
