package game

import (
	"fmt"
	"slices"

	"github.com/peterkuimelis/duelserver/internal/log"
)

// AttackRequest declares an attack. An empty TargetID is a direct attack.
type AttackRequest struct {
	PlayerID   string `json:"playerId"`
	AttackerID string `json:"attackerId"`
	TargetID   string `json:"targetId,omitempty"`
}

type Damage struct {
	PlayerID string `json:"playerId"`
	Amount   int    `json:"amount"`
}

// BattleResult is returned to the caller of DeclareAttack. Destroyed holds
// card instance ids.
type BattleResult struct {
	Destroyed []string       `json:"destroyed"`
	DamageTo  []Damage       `json:"damageTo"`
	GameEnded bool           `json:"gameEnded"`
	WinnerID  string         `json:"winnerId,omitempty"`
	LoserID   string         `json:"loserId,omitempty"`
	Effects   []EffectResult `json:"effects,omitempty"`
}

// Resolver resolves attack declarations.
type Resolver struct {
	engine *Engine
}

// battle identifies the two cards in a fight so triggers can be pointed at
// the other one.
type battle struct {
	attackerID string
	defenderID string
}

func (b battle) other(id string) []string {
	switch {
	case b.defenderID == "":
		return nil
	case id == b.attackerID:
		return []string{b.defenderID}
	default:
		return []string{b.attackerID}
	}
}

// DeclareAttack validates and resolves one attack inside tx. Validation
// failures return an *ActionError and leave tx untouched. Ability failures
// never abort the battle; they only show up in BattleResult.Effects.
func (r *Resolver) DeclareAttack(tx *Tx, req AttackRequest) (*BattleResult, error) {
	e := r.engine
	gs := tx.Snapshot()
	attacker, defender, err := r.validate(gs, req)
	if err != nil {
		return nil, err
	}
	turn, phase := gs.TurnNumber, string(gs.CurrentPhase)
	oppID := gs.OpponentOf(req.PlayerID)
	b := battle{attackerID: attacker.InstanceID}
	onField := gs.boardInstanceIDs()

	// The attack counts as made once declared, even if it is stopped.
	attacker.HasAttacked = true
	gs.updateBoardCard(attacker)

	attackerName := e.cardName(attacker.CardID)
	if defender == nil {
		tx.Record(log.NewDirectAttackDeclareEvent(turn, phase, req.PlayerID, attackerName))
	} else {
		b.defenderID = defender.InstanceID
		defenderName := e.cardName(defender.CardID)
		if defender.FaceDown {
			defenderName = "face-down monster"
			defender.FaceDown = false
			gs.updateBoardCard(*defender)
		}
		tx.Record(log.NewAttackDeclareEvent(turn, phase, req.PlayerID, attackerName, defenderName))
	}
	tx.Commit(gs)

	res := &BattleResult{Destroyed: []string{}, DamageTo: []Damage{}}

	if defender != nil {
		if err := r.trigger(tx, res, defender.CardRef, oppID, TriggerOnBattleAttacked, b.other(defender.InstanceID)); err != nil {
			return nil, err
		}
		// The trigger may have changed anything; work from a fresh read.
		gs = tx.Snapshot()
		switch {
		case gs.IsOver():
			return r.finish(tx, res, onField), nil
		case !gs.OnBoard(attacker.InstanceID):
			tx.Record(log.NewAttackStoppedEvent(turn, phase, req.PlayerID, attackerName, "attacker left the field"))
			return r.finish(tx, res, onField), nil
		case !gs.OnBoard(defender.InstanceID):
			tx.Record(log.NewAttackStoppedEvent(turn, phase, req.PlayerID, attackerName, "target left the field"))
			return r.finish(tx, res, onField), nil
		}
	}

	atk, err := e.EffectiveStats(gs, attacker.InstanceID)
	if err != nil {
		return nil, err
	}

	// Direct attack
	if defender == nil {
		tx.Record(log.NewDamageCalcEvent(turn, phase, req.PlayerID,
			fmt.Sprintf("%s attacks directly for %d", attackerName, atk.Attack),
			map[string]any{"attackerAttack": atk.Attack, "damage": atk.Attack, "direct": true}))
		if r.damage(tx, res, oppID, atk.Attack, "direct attack") {
			if err := r.attackerTrigger(tx, res, attacker.CardRef, req.PlayerID, TriggerOnBattleDamage, nil); err != nil {
				return nil, err
			}
		}
		return r.finish(tx, res, onField), nil
	}

	def, err := e.EffectiveStats(gs, defender.InstanceID)
	if err != nil {
		return nil, err
	}
	current, _, _ := gs.FindBoardCard(defender.InstanceID)
	defenderName := e.cardName(defender.CardID)

	if current.Position == PositionAttack {
		// ATK vs ATK
		diff := atk.Attack - def.Attack
		tx.Record(log.NewDamageCalcEvent(turn, phase, req.PlayerID,
			fmt.Sprintf("%s (ATK %d) vs %s (ATK %d)", attackerName, atk.Attack, defenderName, def.Attack),
			map[string]any{"attackerAttack": atk.Attack, "defenderAttack": def.Attack, "damage": abs(diff)}))

		switch {
		case diff > 0:
			destroyed, err := r.destroyByBattle(tx, res, b, defender.InstanceID)
			if err != nil {
				return nil, err
			}
			damaged := r.damage(tx, res, oppID, diff, "battle")
			if slices.Contains(destroyed, defender.InstanceID) {
				if err := r.attackerTrigger(tx, res, attacker.CardRef, req.PlayerID, TriggerOnBattleDestroy, b.other(attacker.InstanceID)); err != nil {
					return nil, err
				}
			}
			if damaged {
				if err := r.attackerTrigger(tx, res, attacker.CardRef, req.PlayerID, TriggerOnBattleDamage, b.other(attacker.InstanceID)); err != nil {
					return nil, err
				}
			}
		case diff < 0:
			if _, err := r.destroyByBattle(tx, res, b, attacker.InstanceID); err != nil {
				return nil, err
			}
			r.damage(tx, res, req.PlayerID, -diff, "battle")
		default:
			if _, err := r.destroyByBattle(tx, res, b, attacker.InstanceID, defender.InstanceID); err != nil {
				return nil, err
			}
		}
		return r.finish(tx, res, onField), nil
	}

	// ATK vs DEF
	diff := atk.Attack - def.Defense
	tx.Record(log.NewDamageCalcEvent(turn, phase, req.PlayerID,
		fmt.Sprintf("%s (ATK %d) vs %s (DEF %d)", attackerName, atk.Attack, defenderName, def.Defense),
		map[string]any{"attackerAttack": atk.Attack, "defenderDefense": def.Defense}))

	switch {
	case diff > 0:
		destroyed, err := r.destroyByBattle(tx, res, b, defender.InstanceID)
		if err != nil {
			return nil, err
		}
		piercing, err := r.hasPiercing(attacker.CardID)
		if err != nil {
			return nil, err
		}
		damaged := piercing && r.damage(tx, res, oppID, diff, "piercing")
		if slices.Contains(destroyed, defender.InstanceID) {
			if err := r.attackerTrigger(tx, res, attacker.CardRef, req.PlayerID, TriggerOnBattleDestroy, b.other(attacker.InstanceID)); err != nil {
				return nil, err
			}
		}
		if damaged {
			if err := r.attackerTrigger(tx, res, attacker.CardRef, req.PlayerID, TriggerOnBattleDamage, b.other(attacker.InstanceID)); err != nil {
				return nil, err
			}
		}
	case diff < 0:
		r.damage(tx, res, req.PlayerID, -diff, "battle")
	}
	return r.finish(tx, res, onField), nil
}

// validate checks an attack declaration against gs without changing it.
func (r *Resolver) validate(gs *GameState, req AttackRequest) (BoardCard, *BoardCard, error) {
	if gs.IsOver() {
		return BoardCard{}, nil, ErrGameOver
	}
	me := gs.Player(req.PlayerID)
	if me == nil {
		return BoardCard{}, nil, ErrNotAPlayer
	}
	if req.PlayerID != gs.CurrentTurnPlayerID {
		return BoardCard{}, nil, ErrNotYourTurn
	}
	if !gs.CurrentPhase.AllowsAttack() {
		return BoardCard{}, nil, rejectf(ErrWrongPhase, "cannot attack during the %s phase", gs.CurrentPhase)
	}

	i := boardIndex(me.Board, req.AttackerID)
	if i < 0 {
		return BoardCard{}, nil, ErrAttackerNotFound
	}
	attacker := me.Board[i]
	if attacker.HasAttacked {
		return BoardCard{}, nil, ErrAlreadyAttacked
	}
	if attacker.Position != PositionAttack {
		return BoardCard{}, nil, ErrNotInAttackPosition
	}

	opp := gs.Player(gs.OpponentOf(req.PlayerID))
	if req.TargetID == "" {
		if len(opp.Board) > 0 {
			return BoardCard{}, nil, ErrDirectAttackBlocked
		}
		return attacker, nil, nil
	}
	j := boardIndex(opp.Board, req.TargetID)
	if j < 0 {
		return BoardCard{}, nil, ErrTargetNotFound
	}
	defender := opp.Board[j]
	return attacker, &defender, nil
}

func (r *Resolver) hasPiercing(cardID string) (bool, error) {
	ab, err := r.engine.ability(cardID)
	if err != nil {
		return false, err
	}
	return ab != nil && ab.Piercing, nil
}

// destroyByBattle destroys the given cards. Cards that cannot be destroyed by
// battle are skipped entirely. Every on_destroy effect fires before any card
// is moved to the graveyard. It returns the ids actually destroyed.
func (r *Resolver) destroyByBattle(tx *Tx, res *BattleResult, b battle, ids ...string) ([]string, error) {
	e := r.engine
	gs := tx.Snapshot()
	turn, phase := gs.TurnNumber, string(gs.CurrentPhase)

	type doomedCard struct {
		ref          CardRef
		controllerID string
	}
	var doomed []doomedCard
	for _, id := range ids {
		bc, ctrl, ok := gs.FindBoardCard(id)
		if !ok {
			continue
		}
		protected, err := e.battleProtected(gs, id)
		if err != nil {
			return nil, err
		}
		if protected {
			tx.Record(log.NewBattleProtectedEvent(turn, phase, ctrl.UserID, e.cardName(bc.CardID)))
			continue
		}
		doomed = append(doomed, doomedCard{ref: bc.CardRef, controllerID: ctrl.UserID})
	}

	for _, d := range doomed {
		// An earlier on_destroy may already have destroyed this card, in which
		// case its own on_destroy ran as a chained trigger.
		if !tx.Snapshot().OnBoard(d.ref.InstanceID) {
			continue
		}
		if err := r.trigger(tx, res, d.ref, d.controllerID, TriggerOnDestroy, b.other(d.ref.InstanceID)); err != nil {
			return nil, err
		}
	}

	gs = tx.Snapshot()
	var destroyed []string
	for _, d := range doomed {
		ref, ok := gs.removeFromBoard(d.ref.InstanceID)
		if !ok {
			continue // its own effect already removed it
		}
		gs.sendTo(ref, ZoneGraveyard)
		tx.Record(log.NewCardDestroyedEvent(turn, phase, d.controllerID, e.cardName(ref.CardID), "battle"))
		destroyed = append(destroyed, ref.InstanceID)
	}
	tx.Commit(gs)
	res.Destroyed = append(res.Destroyed, destroyed...)
	return destroyed, nil
}

// damage lowers a player's life points. It reports whether damage was dealt.
func (r *Resolver) damage(tx *Tx, res *BattleResult, playerID string, amount int, reason string) bool {
	gs := tx.Snapshot()
	if amount <= 0 || gs.IsOver() {
		return false
	}
	p := gs.Player(playerID)
	old := p.LifePoints
	gs.setLifePoints(p, old-amount)
	tx.Record(log.NewLifePointsEvent(gs.TurnNumber, string(gs.CurrentPhase), playerID, old, p.LifePoints, reason))
	tx.Commit(gs)
	res.DamageTo = append(res.DamageTo, Damage{PlayerID: playerID, Amount: amount})
	return true
}

// attackerTrigger fires an attacker effect if the attacker survived and the
// game is still going.
func (r *Resolver) attackerTrigger(tx *Tx, res *BattleResult, attacker CardRef, controllerID string, trigger Trigger, targets []string) error {
	gs := tx.Snapshot()
	if gs.IsOver() || !gs.OnBoard(attacker.InstanceID) {
		return nil
	}
	return r.trigger(tx, res, attacker, controllerID, trigger, targets)
}

func (r *Resolver) trigger(tx *Tx, res *BattleResult, ref CardRef, controllerID string, trigger Trigger, targets []string) error {
	eff, err := r.engine.fire(tx, ref, controllerID, trigger, targets)
	if err != nil {
		return err
	}
	if eff != nil {
		res.Effects = append(res.Effects, *eff)
	}
	return nil
}

// finish fills in the end-of-game fields and adds cards that were on the
// field when the attack was declared and were destroyed by an effect since.
func (r *Resolver) finish(tx *Tx, res *BattleResult, onField []string) *BattleResult {
	gs := tx.Snapshot()
	for _, id := range onField {
		if !slices.Contains(res.Destroyed, id) && gs.inGraveyard(id) {
			res.Destroyed = append(res.Destroyed, id)
		}
	}
	res.GameEnded = gs.IsOver()
	res.WinnerID = gs.Winner
	res.LoserID = gs.Loser
	return res
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
