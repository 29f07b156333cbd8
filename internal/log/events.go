package log

import "fmt"

// --- Helper constructors for common events ---
//
// Constructors take the turn, phase and acting player; lobby and game ids are
// stamped by the transaction that emits the event.

func NewGameStartedEvent(turn int, phase string, firstPlayer string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: firstPlayer,
		Type:     EventGameStarted,
		Details:  fmt.Sprintf("Duel started, %s goes first", firstPlayer),
	}
}

func NewTurnEvent(turn int, player string) GameEvent {
	return GameEvent{
		Turn:     turn,
		PlayerID: player,
		Type:     EventNewTurn,
		Details:  fmt.Sprintf("=== Turn %d (%s) ===", turn, player),
	}
}

func NewPhaseChangeEvent(turn int, phase string, player string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventPhaseChange,
		Details:  fmt.Sprintf("Phase → %s", phase),
	}
}

func NewDrawEvent(turn int, phase string, player string, cardName string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventDraw,
		Card:     cardName,
		Details:  fmt.Sprintf("%s draws %s", player, cardName),
	}
}

func NewDeckOutEvent(turn int, phase string, player string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventDeckOut,
		Details:  fmt.Sprintf("%s cannot draw and loses", player),
	}
}

func NewCardSetEvent(turn int, phase string, player string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventCardSet,
		Details:  fmt.Sprintf("%s sets a card", player),
	}
}

func NewNormalSummonEvent(turn int, phase string, player string, cardName string, position string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventNormalSummon,
		Card:     cardName,
		Details:  fmt.Sprintf("%s summons %s in %s position", player, cardName, position),
	}
}

func NewChangePositionEvent(turn int, phase string, player string, cardName string, newPos string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventChangePosition,
		Card:     cardName,
		Details:  fmt.Sprintf("%s changes %s to %s position", player, cardName, newPos),
	}
}

func NewCardActivatedEvent(turn int, phase string, player string, cardName string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventCardActivated,
		Card:     cardName,
		Details:  fmt.Sprintf("%s activates %s", player, cardName),
	}
}

func NewAttackDeclareEvent(turn int, phase string, player string, attacker string, defender string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventAttackDeclared,
		Card:     attacker,
		Details:  fmt.Sprintf("%s declares attack: %s → %s", player, attacker, defender),
		Metadata: map[string]any{"attacker": attacker, "defender": defender},
	}
}

func NewDirectAttackDeclareEvent(turn int, phase string, player string, attacker string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventAttackDeclared,
		Card:     attacker,
		Details:  fmt.Sprintf("%s declares direct attack with %s", player, attacker),
		Metadata: map[string]any{"attacker": attacker, "direct": true},
	}
}

func NewAttackStoppedEvent(turn int, phase string, player string, attacker string, reason string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventAttackStopped,
		Card:     attacker,
		Details:  fmt.Sprintf("%s cannot continue its attack (%s)", attacker, reason),
	}
}

func NewDamageCalcEvent(turn int, phase string, player string, details string, metadata map[string]any) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventDamageCalculated,
		Details:  details,
		Metadata: metadata,
	}
}

func NewCardDestroyedEvent(turn int, phase string, controller string, cardName string, reason string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: controller,
		Type:     EventCardDestroyed,
		Card:     cardName,
		Details:  fmt.Sprintf("%s is destroyed (%s)", cardName, reason),
		Metadata: map[string]any{"reason": reason},
	}
}

func NewBattleProtectedEvent(turn int, phase string, controller string, cardName string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: controller,
		Type:     EventBattleProtected,
		Card:     cardName,
		Details:  fmt.Sprintf("%s cannot be destroyed by battle", cardName),
	}
}

func NewSendToGraveyardEvent(turn int, phase string, owner string, cardName string, reason string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: owner,
		Type:     EventSendToGraveyard,
		Card:     cardName,
		Details:  fmt.Sprintf("%s is sent to %s's graveyard (%s)", cardName, owner, reason),
	}
}

func NewLifePointsEvent(turn int, phase string, player string, oldLP, newLP int, reason string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventLifePointsChanged,
		Details:  fmt.Sprintf("%s LP: %d → %d (%s)", player, oldLP, newLP, reason),
		Metadata: map[string]any{"from": oldLP, "to": newLP, "delta": newLP - oldLP},
	}
}

func NewEffectActivatedEvent(turn int, phase string, controller string, cardName string, trigger string, success bool, message string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: controller,
		Type:     EventEffectActivated,
		Card:     cardName,
		Details:  fmt.Sprintf("%s effect (%s): %s", cardName, trigger, message),
		Metadata: map[string]any{"trigger": trigger, "success": success},
	}
}

func NewSurrenderEvent(turn int, phase string, player string) GameEvent {
	return GameEvent{
		Turn:     turn,
		Phase:    phase,
		PlayerID: player,
		Type:     EventSurrender,
		Details:  fmt.Sprintf("%s surrenders", player),
	}
}

func NewGameEndEvent(turn int, winner string, loser string, reason string) GameEvent {
	return GameEvent{
		Turn:     turn,
		PlayerID: winner,
		Type:     EventGameEnd,
		Details:  fmt.Sprintf("%s wins (%s)", winner, reason),
		Metadata: map[string]any{"winner": winner, "loser": loser, "reason": reason},
	}
}
