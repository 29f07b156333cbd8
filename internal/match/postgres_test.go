package match

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("DUEL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DUEL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, dsn, quietLogger())
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.Migrate(ctx))

	states := store.NewMemoryStore()
	o := NewOrchestrator(repo, states, LedgerEconomy{}, states, DefaultRules(), quietLogger())

	lobbyID := uuid.NewString()
	host, opp := "host-"+lobbyID, "opp-"+lobbyID
	_, err = o.OpenLobby(ctx, LobbySpec{ID: lobbyID, HostID: host, OpponentID: opp, Mode: ModeRanked, WagerAmount: 50})
	require.NoError(t, err)

	before, err := repo.CompletedGames(ctx)
	require.NoError(t, err)

	end := GameEnd{LobbyID: lobbyID, WinnerID: host, LoserID: opp, Reason: game.EndCompleted, FinalTurnNumber: 9}
	out, err := o.HandleGameEnd(ctx, end)
	require.NoError(t, err)
	assert.Equal(t, int64(90), out.WagerPayout)

	again, err := o.HandleGameEnd(ctx, end)
	require.NoError(t, err)
	assert.True(t, again.AlreadyFinalized)

	after, err := repo.CompletedGames(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	hist, err := repo.History(ctx, lobbyID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 1016, hist[0].WinnerRatingAfter)

	ledger, err := repo.Ledger(ctx, host)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(90), ledger[0].Balance)

	tasks, err := repo.Claim(ctx, time.Now().Add(time.Minute), 100)
	require.NoError(t, err)
	var mine int
	for _, task := range tasks {
		if task.LobbyID == lobbyID {
			mine++
			require.NoError(t, repo.Complete(ctx, task.ID))
		}
	}
	assert.Equal(t, 5, mine)
}
