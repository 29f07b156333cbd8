package match

import (
	"context"

	"github.com/peterkuimelis/duelserver/internal/outbox"
)

// Tx is the set of operations available inside one repository transaction.
// Nothing is visible to other transactions until WithinTx returns nil.
type Tx interface {
	Lobby(ctx context.Context, id string) (*Lobby, error)
	CreateLobby(ctx context.Context, l *Lobby) error
	SaveLobby(ctx context.Context, l *Lobby) error

	Player(ctx context.Context, id string) (*Player, error)
	SavePlayer(ctx context.Context, p *Player) error

	// AgentByUser returns nil when the user is not an agent.
	AgentByUser(ctx context.Context, userID string) (*Agent, error)
	SaveAgent(ctx context.Context, a *Agent) error

	AppendHistory(ctx context.Context, h MatchHistory) error
	IncrementCompletedGames(ctx context.Context) (int64, error)

	// AppendLedger applies entry.Delta to the user's gold and returns the new
	// balance.
	AppendLedger(ctx context.Context, entry LedgerEntry) (int64, error)

	// Enqueue adds outbox tasks. A task whose id is already queued is ignored.
	Enqueue(ctx context.Context, tasks ...outbox.Task) error
}

type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	History(ctx context.Context, lobbyID string) ([]MatchHistory, error)
	Ledger(ctx context.Context, userID string) ([]LedgerEntry, error)
	CompletedGames(ctx context.Context) (int64, error)

	outbox.Queue
}
