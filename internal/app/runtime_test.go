package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterkuimelis/duelserver/internal/config"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/match"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBuildInMemory(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{
		Env:           "development",
		CatalogFile:   writeCatalog(t, testCatalog),
		OutboxWorkers: 2,
		Game:          game.DefaultRules(),
		Match:         match.DefaultRules(),
	}

	rt, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.Dispatcher)

	res, err := rt.Service.StartMatch(context.Background(), StartRequest{
		HostID: "alice", OpponentID: "bob", HostDeckName: "starter", OpponentDeckName: "starter",
	})
	require.NoError(t, err)
	_, err = rt.Service.Surrender(context.Background(), res.State.LobbyID, "bob")
	require.NoError(t, err)

	delivered, err := rt.Dispatcher.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, delivered, "quest events for both players and the winner's achievement")
}

func TestBuildRejectsBrokenAbilitiesOutsideProduction(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	path := writeCatalog(t, `
cards:
  - id: vague
    name: Vague Spell
    type: spell
    ability: "When the moon is full, draw 1 card."
`)
	cfg := &config.Config{Env: "development", CatalogFile: path, Game: game.DefaultRules(), Match: match.DefaultRules()}
	_, err := Build(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "broken abilities")

	cfg.Env = config.EnvProduction
	rt, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	rt.Close()
}
