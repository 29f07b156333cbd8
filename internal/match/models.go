// Package match owns everything about a match that outlives its game state:
// the lobby record, player ratings and stats, agent counters, match history
// and the currency ledger. HandleGameEnd finalises a match exactly once.
package match

import (
	"errors"
	"time"

	"github.com/peterkuimelis/duelserver/internal/game"
)

var (
	ErrLobbyNotFound  = errors.New("lobby not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrLobbyExists    = errors.New("lobby already exists")
	ErrLobbyCancelled = errors.New("lobby was cancelled")
	ErrNotInLobby     = errors.New("player is not in this lobby")
)

type Mode string

const (
	ModeRanked Mode = "ranked"
	ModeCasual Mode = "casual"
	ModeStory  Mode = "story"
)

func (m Mode) Valid() bool {
	return m == ModeRanked || m == ModeCasual || m == ModeStory
}

// GameMode maps a lobby mode onto the engine's notion of mode.
func (m Mode) GameMode() game.GameMode {
	if m == ModeStory {
		return game.ModeStory
	}
	return game.ModePvP
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	// StatusCancelled marks a lobby whose match never started. Its id can be
	// opened again.
	StatusCancelled Status = "cancelled"
)

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceInGame  Presence = "in_game"
	PresenceOffline Presence = "offline"
)

type Lobby struct {
	ID              string         `json:"id"`
	HostID          string         `json:"hostId"`
	OpponentID      string         `json:"opponentId"`
	Mode            Mode           `json:"mode"`
	Status          Status         `json:"status"`
	GameID          string         `json:"gameId"`
	StageID         string         `json:"stageId,omitempty"`
	WagerAmount     int64          `json:"wagerAmount"`
	WagerPaid       bool           `json:"wagerPaid"`
	CryptoWager     bool           `json:"cryptoWager"`
	WinnerID        string         `json:"winnerId,omitempty"`
	EndReason       game.EndReason `json:"endReason,omitempty"`
	FinalTurnNumber int            `json:"finalTurnNumber,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
}

// Terminal reports whether the lobby has been finalised.
func (l *Lobby) Terminal() bool {
	return l.Status == StatusCompleted
}

type Player struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Rating       int      `json:"rating"`
	CasualRating int      `json:"casualRating"`
	XP           int      `json:"xp"`
	Wins         int      `json:"wins"`
	Losses       int      `json:"losses"`
	Presence     Presence `json:"presence"`
	IsAgent      bool     `json:"isAgent"`
	Gold         int64    `json:"gold"`
}

// Agent is a non-human player account.
type Agent struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Wins      int    `json:"wins"`
	Losses    int    `json:"losses"`
	Streaming bool   `json:"streaming"`
}

type MatchHistory struct {
	ID                 string         `json:"id"`
	LobbyID            string         `json:"lobbyId"`
	GameID             string         `json:"gameId"`
	Mode               Mode           `json:"mode"`
	WinnerID           string         `json:"winnerId"`
	LoserID            string         `json:"loserId"`
	Reason             game.EndReason `json:"reason"`
	FinalTurnNumber    int            `json:"finalTurnNumber"`
	WinnerRatingBefore int            `json:"winnerRatingBefore"`
	WinnerRatingAfter  int            `json:"winnerRatingAfter"`
	LoserRatingBefore  int            `json:"loserRatingBefore"`
	LoserRatingAfter   int            `json:"loserRatingAfter"`
	WinnerXP           int            `json:"winnerXp"`
	LoserXP            int            `json:"loserXp"`
	WagerPayout        int64          `json:"wagerPayout"`
	EndedAt            time.Time      `json:"endedAt"`
}

// LedgerEntry is one currency movement.
type LedgerEntry struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	Delta           int64          `json:"delta"`
	Balance         int64          `json:"balance"`
	TransactionType string         `json:"transactionType"`
	Description     string         `json:"description"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}
