package log

import "time"

// EventType enumerates all observable match events. Values are stored, so
// they are strings rather than iota constants.
type EventType string

const (
	EventGameStarted       EventType = "game_started"
	EventNewTurn           EventType = "new_turn"
	EventPhaseChange       EventType = "phase_change"
	EventDraw              EventType = "draw"
	EventDeckOut           EventType = "deck_out"
	EventNormalSummon      EventType = "normal_summon"
	EventChangePosition    EventType = "change_position"
	EventCardSet           EventType = "card_set"
	EventCardActivated     EventType = "card_activated"
	EventAttackDeclared    EventType = "attack_declared"
	EventAttackStopped     EventType = "attack_stopped"
	EventDamageCalculated  EventType = "damage_calculated"
	EventCardDestroyed     EventType = "card_destroyed"
	EventBattleProtected   EventType = "battle_protected"
	EventSendToGraveyard   EventType = "send_to_graveyard"
	EventLifePointsChanged EventType = "life_points_changed"
	EventEffectActivated   EventType = "effect_activated"
	EventSurrender         EventType = "surrender"
	EventGameEnd           EventType = "game_end"
)

func (e EventType) String() string {
	return string(e)
}

// GameEvent represents a single observable event in a match.
type GameEvent struct {
	Seq      int            `json:"seq"`                // monotonic within a match, assigned by the recorder
	LobbyID  string         `json:"lobbyId"`            // filled in by the transaction
	GameID   string         `json:"gameId"`             // filled in by the transaction
	Turn     int            `json:"turn"`               // 1-based
	Phase    string         `json:"phase,omitempty"`    // phase at the time of the event
	PlayerID string         `json:"playerId,omitempty"` // acting player
	Type     EventType      `json:"type"`
	Card     string         `json:"card,omitempty"` // card name, if applicable
	Details  string         `json:"details"`        // human-readable description
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}
