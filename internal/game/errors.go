package game

import (
	"errors"
	"fmt"
)

// ActionError is a rejected player action. Nothing was mutated when one is
// returned, so the caller may correct the request and retry.
type ActionError struct {
	Code string
	Msg  string
}

func (e *ActionError) Error() string {
	return e.Msg
}

// Is matches on Code so wrapped variants with a more specific message still
// compare equal to their sentinel.
func (e *ActionError) Is(target error) bool {
	t, ok := target.(*ActionError)
	return ok && t.Code == e.Code
}

func newActionError(code, msg string) *ActionError {
	return &ActionError{Code: code, Msg: msg}
}

// rejectf returns a copy of the sentinel with a detailed message.
func rejectf(sentinel *ActionError, format string, args ...any) error {
	return &ActionError{Code: sentinel.Code, Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrGameOver             = newActionError("game_over", "the game is already over")
	ErrNotAPlayer           = newActionError("not_a_player", "you are not a player in this game")
	ErrNotYourTurn          = newActionError("not_your_turn", "it is not your turn")
	ErrWrongPhase           = newActionError("wrong_phase", "that action is not allowed in this phase")
	ErrAttackerNotFound     = newActionError("attacker_not_found", "attacking card is not on your board")
	ErrAlreadyAttacked      = newActionError("already_attacked", "this card has already attacked this turn")
	ErrNotInAttackPosition  = newActionError("not_in_attack_position", "this card is not in attack position")
	ErrTargetNotFound       = newActionError("target_not_found", "target is not on your opponent's board")
	ErrDirectAttackBlocked  = newActionError("direct_attack_blocked", "cannot attack directly while your opponent controls monsters")
	ErrCardNotInHand        = newActionError("card_not_in_hand", "that card is not in your hand")
	ErrNotACreature         = newActionError("not_a_creature", "only creatures can be summoned")
	ErrAlreadySummoned      = newActionError("already_summoned", "you have already normal summoned this turn")
	ErrZoneFull             = newActionError("zone_full", "that zone is full")
	ErrCannotChangePosition = newActionError("cannot_change_position", "this card cannot change position right now")
	ErrCannotActivate       = newActionError("cannot_activate", "this card cannot be activated right now")
	ErrOncePerTurn          = newActionError("once_per_turn", "this effect can only be used once per turn")
	ErrInvalidTarget        = newActionError("invalid_target", "invalid target")
	ErrInvalidTransition    = newActionError("invalid_transition", "cannot move to that phase")
)

// ErrUnknownCard means a card id is missing from the catalog.
var ErrUnknownCard = errors.New("unknown card")

// IsActionError reports whether err is a rejected action rather than a failure.
func IsActionError(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae)
}
