// Package outbox holds work that must happen after a match ends but must not
// hold up or fail the transaction that ended it: escrow settlement, stopping
// agent streams and progression reports. Tasks are written in the same
// repository transaction as the match result and delivered at least once by
// the Dispatcher.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSettleEscrow     Kind = "settle_escrow"
	KindStopAgentStream  Kind = "stop_agent_stream"
	KindQuestEvent       Kind = "quest_event"
	KindAchievementEvent Kind = "achievement_event"
	KindStageCompletion  Kind = "stage_completion"
)

type Task struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	LobbyID       string          `json:"lobbyId"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("task %s (%s): decode payload: %w", t.ID, t.Kind, err)
	}
	return nil
}

type EscrowSettlement struct {
	LobbyID  string `json:"lobbyId"`
	WinnerID string `json:"winnerId"`
	LoserID  string `json:"loserId"`
}

type AgentStreamStop struct {
	LobbyID string `json:"lobbyId"`
	AgentID string `json:"agentId"`
}

type QuestEvent struct {
	UserID   string `json:"userId"`
	Type     string `json:"type"`
	Value    int    `json:"value"`
	GameMode string `json:"gameMode,omitempty"`
}

type AchievementEvent struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
	Value  int    `json:"value"`
}

type StageCompletion struct {
	UserID          string `json:"userId"`
	StageID         string `json:"stageId"`
	Won             bool   `json:"won"`
	FinalLifePoints int    `json:"finalLifePoints"`
}

var taskNamespace = uuid.MustParse("0b5e8c1e-9a7d-4f3e-8d21-6c4a2f9e7b13")

// newTask builds a task whose id is derived from its lobby, kind and key, so
// enqueueing the same work twice yields the same id.
func newTask(kind Kind, lobbyID, key string, payload any, now time.Time) Task {
	data, err := json.Marshal(payload)
	if err != nil {
		// payloads are plain structs of strings, ints and bools
		panic(fmt.Sprintf("outbox: marshal %s payload: %v", kind, err))
	}
	return Task{
		ID:            uuid.NewSHA1(taskNamespace, []byte(lobbyID+"/"+string(kind)+"/"+key)).String(),
		Kind:          kind,
		LobbyID:       lobbyID,
		Payload:       data,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

func NewSettleEscrowTask(lobbyID, winnerID, loserID string, now time.Time) Task {
	return newTask(KindSettleEscrow, lobbyID, "", EscrowSettlement{LobbyID: lobbyID, WinnerID: winnerID, LoserID: loserID}, now)
}

func NewStopAgentStreamTask(lobbyID, agentID string, now time.Time) Task {
	return newTask(KindStopAgentStream, lobbyID, agentID, AgentStreamStop{LobbyID: lobbyID, AgentID: agentID}, now)
}

func NewQuestEventTask(lobbyID string, ev QuestEvent, now time.Time) Task {
	return newTask(KindQuestEvent, lobbyID, ev.UserID+"/"+ev.Type, ev, now)
}

func NewAchievementEventTask(lobbyID string, ev AchievementEvent, now time.Time) Task {
	return newTask(KindAchievementEvent, lobbyID, ev.UserID+"/"+ev.Type, ev, now)
}

func NewStageCompletionTask(lobbyID string, sc StageCompletion, now time.Time) Task {
	return newTask(KindStageCompletion, lobbyID, sc.UserID, sc, now)
}
