package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/peterkuimelis/duelserver/internal/outbox"
	"github.com/sirupsen/logrus"
)

// StateDeleter removes transient game state once a match is finalised.
type StateDeleter interface {
	Delete(ctx context.Context, lobbyID string) error
}

// GameEnd describes how a match finished.
type GameEnd struct {
	LobbyID         string
	WinnerID        string
	LoserID         string
	Reason          game.EndReason
	FinalTurnNumber int
	// FinalLifePoints by player id; used for story stage reports.
	FinalLifePoints map[string]int
}

// Outcome reports what HandleGameEnd did.
type Outcome struct {
	LobbyID          string         `json:"lobbyId"`
	WinnerID         string         `json:"winnerId"`
	LoserID          string         `json:"loserId"`
	Reason           game.EndReason `json:"reason"`
	AlreadyFinalized bool           `json:"alreadyFinalized"`
	WinnerRating     int            `json:"winnerRating"`
	LoserRating      int            `json:"loserRating"`
	WinnerXP         int            `json:"winnerXp"`
	LoserXP          int            `json:"loserXp"`
	WagerPayout      int64          `json:"wagerPayout"`
	Tasks            int            `json:"tasks"`
}

// LobbySpec describes a lobby about to start playing.
type LobbySpec struct {
	ID          string
	HostID      string
	OpponentID  string
	Mode        Mode
	GameID      string
	StageID     string
	WagerAmount int64
	CryptoWager bool
}

type Orchestrator struct {
	repo    Repository
	states  StateDeleter
	economy Economy
	events  log.Recorder
	rules   Rules
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewOrchestrator(repo Repository, states StateDeleter, economy Economy, events log.Recorder, rules Rules, logger logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		repo:    repo,
		states:  states,
		economy: economy,
		events:  events,
		rules:   rules,
		log:     logger,
		now:     time.Now,
	}
}

// OpenLobby records an active lobby and marks both players in-game,
// creating player records with the default rating on first sight.
func (o *Orchestrator) OpenLobby(ctx context.Context, spec LobbySpec) (*Lobby, error) {
	if !spec.Mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", spec.Mode)
	}
	lobby := &Lobby{
		ID:          spec.ID,
		HostID:      spec.HostID,
		OpponentID:  spec.OpponentID,
		Mode:        spec.Mode,
		Status:      StatusActive,
		GameID:      spec.GameID,
		StageID:     spec.StageID,
		WagerAmount: spec.WagerAmount,
		CryptoWager: spec.CryptoWager,
		CreatedAt:   o.now().UTC(),
	}
	err := o.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		err := tx.CreateLobby(ctx, lobby)
		if errors.Is(err, ErrLobbyExists) {
			prev, lerr := tx.Lobby(ctx, lobby.ID)
			if lerr != nil {
				return lerr
			}
			if prev.Status == StatusCancelled {
				err = tx.SaveLobby(ctx, lobby)
			}
		}
		if err != nil {
			return err
		}
		for _, id := range []string{spec.HostID, spec.OpponentID} {
			p, err := tx.Player(ctx, id)
			if errors.Is(err, ErrPlayerNotFound) {
				p = &Player{ID: id, Username: id, Rating: o.rules.DefaultRating, CasualRating: o.rules.DefaultRating}
			} else if err != nil {
				return err
			}
			p.Presence = PresenceInGame
			if err := tx.SavePlayer(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open lobby %s: %w", spec.ID, err)
	}
	return lobby, nil
}

// CancelLobby undoes OpenLobby for a match whose game state could not be
// created: the lobby is marked cancelled and both players go back online.
// Lobbies that are not active are left alone.
func (o *Orchestrator) CancelLobby(ctx context.Context, lobbyID string) error {
	err := o.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		lobby, err := tx.Lobby(ctx, lobbyID)
		if err != nil {
			return err
		}
		if lobby.Status != StatusActive {
			return nil
		}
		now := o.now().UTC()
		lobby.Status = StatusCancelled
		lobby.EndedAt = &now
		if err := tx.SaveLobby(ctx, lobby); err != nil {
			return err
		}
		for _, id := range []string{lobby.HostID, lobby.OpponentID} {
			p, err := tx.Player(ctx, id)
			if err != nil {
				return err
			}
			p.Presence = PresenceOnline
			if err := tx.SavePlayer(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel lobby %s: %w", lobbyID, err)
	}
	o.log.WithField("lobby_id", lobbyID).Warn("lobby cancelled")
	return nil
}

// HandleGameEnd finalises a match in one repository transaction. Running it
// again for a finalised lobby changes nothing except making sure the game
// state is gone.
func (o *Orchestrator) HandleGameEnd(ctx context.Context, end GameEnd) (*Outcome, error) {
	if !end.Reason.Valid() {
		return nil, fmt.Errorf("unknown end reason %q", end.Reason)
	}
	if end.WinnerID == "" || end.LoserID == "" || end.WinnerID == end.LoserID {
		return nil, errors.New("a game end needs a distinct winner and loser")
	}

	logger := o.log.WithFields(logrus.Fields{
		"lobby_id":  end.LobbyID,
		"winner_id": end.WinnerID,
		"loser_id":  end.LoserID,
		"reason":    end.Reason,
	})
	now := o.now().UTC()

	var out *Outcome
	err := o.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		out = &Outcome{LobbyID: end.LobbyID, WinnerID: end.WinnerID, LoserID: end.LoserID, Reason: end.Reason}
		lobby, err := tx.Lobby(ctx, end.LobbyID)
		if err != nil {
			return err
		}
		if lobby.Terminal() {
			out.AlreadyFinalized = true
			out.WinnerID, out.Reason = lobby.WinnerID, lobby.EndReason
			return nil
		}
		if lobby.Status == StatusCancelled {
			return ErrLobbyCancelled
		}
		seated := (end.WinnerID == lobby.HostID && end.LoserID == lobby.OpponentID) ||
			(end.WinnerID == lobby.OpponentID && end.LoserID == lobby.HostID)
		if !seated {
			return ErrNotInLobby
		}
		return o.finalize(ctx, tx, lobby, end, now, out)
	})
	if err != nil {
		return nil, fmt.Errorf("handle game end for %s: %w", end.LobbyID, err)
	}

	if !out.AlreadyFinalized {
		logger.WithFields(logrus.Fields{
			"final_turn":    end.FinalTurnNumber,
			"winner_rating": out.WinnerRating,
			"loser_rating":  out.LoserRating,
			"payout":        out.WagerPayout,
		}).Info("game ended")
		if o.events != nil {
			ev := log.NewGameEndEvent(end.FinalTurnNumber, end.WinnerID, end.LoserID, string(end.Reason))
			ev.LobbyID = end.LobbyID
			if err := o.events.Record(ctx, ev); err != nil {
				logger.WithError(err).Warn("could not record game end event")
			}
		}
	}

	if err := o.states.Delete(ctx, end.LobbyID); err != nil {
		return out, fmt.Errorf("delete game state for %s: %w", end.LobbyID, err)
	}
	return out, nil
}

func (o *Orchestrator) finalize(ctx context.Context, tx Tx, lobby *Lobby, end GameEnd, now time.Time, out *Outcome) error {
	var tasks []outbox.Task

	// 1. terminal status
	lobby.Status = StatusCompleted
	lobby.WinnerID = end.WinnerID
	lobby.EndReason = end.Reason
	lobby.FinalTurnNumber = end.FinalTurnNumber
	lobby.EndedAt = &now

	// 2. platform counter
	if end.Reason == game.EndCompleted {
		if _, err := tx.IncrementCompletedGames(ctx); err != nil {
			return err
		}
	}

	winner, err := tx.Player(ctx, end.WinnerID)
	if err != nil {
		return fmt.Errorf("winner %s: %w", end.WinnerID, err)
	}
	loser, err := tx.Player(ctx, end.LoserID)
	if err != nil {
		return fmt.Errorf("loser %s: %w", end.LoserID, err)
	}

	// 3. presence
	winner.Presence, loser.Presence = PresenceOnline, PresenceOnline

	// 4. ratings, stats, XP
	hist := MatchHistory{
		ID:              uuid.NewSHA1(uuid.NameSpaceURL, []byte("match-history/"+lobby.ID)).String(),
		LobbyID:         lobby.ID,
		GameID:          lobby.GameID,
		Mode:            lobby.Mode,
		WinnerID:        end.WinnerID,
		LoserID:         end.LoserID,
		Reason:          end.Reason,
		FinalTurnNumber: end.FinalTurnNumber,
		EndedAt:         now,
	}
	switch lobby.Mode {
	case ModeRanked:
		hist.WinnerRatingBefore, hist.LoserRatingBefore = winner.Rating, loser.Rating
		winner.Rating, loser.Rating = Elo(winner.Rating, loser.Rating, o.rules.KFactor, o.rules.RatingFloor)
		hist.WinnerRatingAfter, hist.LoserRatingAfter = winner.Rating, loser.Rating
	case ModeCasual:
		hist.WinnerRatingBefore, hist.LoserRatingBefore = winner.CasualRating, loser.CasualRating
		winner.CasualRating, loser.CasualRating = Elo(winner.CasualRating, loser.CasualRating, o.rules.KFactor, o.rules.RatingFloor)
		hist.WinnerRatingAfter, hist.LoserRatingAfter = winner.CasualRating, loser.CasualRating
	default:
		hist.WinnerRatingBefore, hist.LoserRatingBefore = winner.Rating, loser.Rating
		hist.WinnerRatingAfter, hist.LoserRatingAfter = winner.Rating, loser.Rating
	}
	award := o.rules.XP[lobby.Mode]
	winner.XP += award.Win
	loser.XP += award.Loss
	winner.Wins++
	loser.Losses++
	hist.WinnerXP, hist.LoserXP = award.Win, award.Loss
	out.WinnerRating, out.LoserRating = hist.WinnerRatingAfter, hist.LoserRatingAfter
	out.WinnerXP, out.LoserXP = award.Win, award.Loss

	if err := tx.SavePlayer(ctx, winner); err != nil {
		return err
	}
	if err := tx.SavePlayer(ctx, loser); err != nil {
		return err
	}
	for _, p := range []*Player{winner, loser} {
		won := p.ID == end.WinnerID
		qtype := "game_lost"
		if won {
			qtype = "game_won"
		}
		tasks = append(tasks,
			outbox.NewQuestEventTask(lobby.ID, outbox.QuestEvent{UserID: p.ID, Type: "game_played", Value: 1, GameMode: string(lobby.Mode)}, now),
			outbox.NewQuestEventTask(lobby.ID, outbox.QuestEvent{UserID: p.ID, Type: qtype, Value: 1, GameMode: string(lobby.Mode)}, now),
		)
	}
	tasks = append(tasks, outbox.NewAchievementEventTask(lobby.ID, outbox.AchievementEvent{UserID: winner.ID, Type: "wins", Value: winner.Wins}, now))

	// 5. gold wager: pay before marking paid
	if lobby.WagerAmount > 0 && !lobby.WagerPaid {
		pot, fee, payout := Payout(lobby.WagerAmount, o.rules.WagerFeeBps)
		_, err := o.economy.AdjustCurrency(ctx, tx, end.WinnerID, payout, "wager_payout",
			fmt.Sprintf("wager winnings for lobby %s", lobby.ID),
			map[string]any{"lobby_id": lobby.ID, "pot": pot, "fee": fee})
		if err != nil {
			return err
		}
		lobby.WagerPaid = true
		out.WagerPayout = payout
		hist.WagerPayout = payout
	}

	// 6. crypto escrow
	if lobby.CryptoWager {
		tasks = append(tasks, outbox.NewSettleEscrowTask(lobby.ID, end.WinnerID, end.LoserID, now))
	}

	// 7 and 9. agent counters and live streams
	for _, p := range []*Player{winner, loser} {
		agent, err := tx.AgentByUser(ctx, p.ID)
		if err != nil {
			return err
		}
		if agent == nil {
			continue
		}
		if p.ID == end.WinnerID {
			agent.Wins++
		} else {
			agent.Losses++
		}
		if agent.Streaming {
			agent.Streaming = false
			tasks = append(tasks, outbox.NewStopAgentStreamTask(lobby.ID, agent.ID, now))
		}
		if err := tx.SaveAgent(ctx, agent); err != nil {
			return err
		}
	}

	// 8. history
	if err := tx.AppendHistory(ctx, hist); err != nil {
		return err
	}

	// 10. story progress
	if lobby.Mode == ModeStory {
		human := lobby.HostID
		tasks = append(tasks, outbox.NewStageCompletionTask(lobby.ID, outbox.StageCompletion{
			UserID:          human,
			StageID:         lobby.StageID,
			Won:             human == end.WinnerID,
			FinalLifePoints: end.FinalLifePoints[human],
		}, now))
	}

	if err := tx.SaveLobby(ctx, lobby); err != nil {
		return err
	}
	out.Tasks = len(tasks)
	return tx.Enqueue(ctx, tasks...)
}
