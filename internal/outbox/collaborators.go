package outbox

import (
	"context"

	"github.com/sirupsen/logrus"
)

// EscrowScheduler settles on-chain wagers.
type EscrowScheduler interface {
	ScheduleEscrowSettlement(ctx context.Context, lobbyID, winnerID, loserID string) error
}

// AgentStreams controls live streams of agent-played matches.
type AgentStreams interface {
	StopAgentStream(ctx context.Context, lobbyID, agentID string) error
}

// ProgressionReporter receives quest, achievement and story progress.
// Deliveries may repeat; implementations must be idempotent.
type ProgressionReporter interface {
	ReportQuestEvent(ctx context.Context, ev QuestEvent) error
	ReportAchievementEvent(ctx context.Context, ev AchievementEvent) error
	ReportStageCompletion(ctx context.Context, sc StageCompletion) error
}

type Collaborators struct {
	Escrow      EscrowScheduler
	Streams     AgentStreams
	Progression ProgressionReporter
}

// LogCollaborators only logs what it is asked to do. It stands in for the
// real services in development.
type LogCollaborators struct {
	Log logrus.FieldLogger
}

func (c LogCollaborators) ScheduleEscrowSettlement(_ context.Context, lobbyID, winnerID, loserID string) error {
	c.Log.WithFields(logrus.Fields{"lobby_id": lobbyID, "winner_id": winnerID, "loser_id": loserID}).Info("escrow settlement scheduled")
	return nil
}

func (c LogCollaborators) StopAgentStream(_ context.Context, lobbyID, agentID string) error {
	c.Log.WithFields(logrus.Fields{"lobby_id": lobbyID, "agent_id": agentID}).Info("agent stream stopped")
	return nil
}

func (c LogCollaborators) ReportQuestEvent(_ context.Context, ev QuestEvent) error {
	c.Log.WithFields(logrus.Fields{"player_id": ev.UserID, "type": ev.Type, "value": ev.Value, "mode": ev.GameMode}).Info("quest event")
	return nil
}

func (c LogCollaborators) ReportAchievementEvent(_ context.Context, ev AchievementEvent) error {
	c.Log.WithFields(logrus.Fields{"player_id": ev.UserID, "type": ev.Type, "value": ev.Value}).Info("achievement event")
	return nil
}

func (c LogCollaborators) ReportStageCompletion(_ context.Context, sc StageCompletion) error {
	c.Log.WithFields(logrus.Fields{"player_id": sc.UserID, "stage_id": sc.StageID, "won": sc.Won, "life_points": sc.FinalLifePoints}).Info("stage completed")
	return nil
}

// NewLogCollaborators wires LogCollaborators into every slot.
func NewLogCollaborators(logger logrus.FieldLogger) Collaborators {
	c := LogCollaborators{Log: logger}
	return Collaborators{Escrow: c, Streams: c, Progression: c}
}
