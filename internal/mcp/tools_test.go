package mcp

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/peterkuimelis/duelserver/internal/app"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/peterkuimelis/duelserver/internal/match"
	"github.com/peterkuimelis/duelserver/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
cards:
  - id: knight
    name: Iron Knight
    type: creature
    attack: 1800
    defense: 1200
decks:
  - name: starter
    cards:
      - card: knight
        count: 20
`

func newTestSessions(t *testing.T) (agent, rival *Session, svc *app.Service) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cat, err := game.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	engine := game.NewEngine(cat, game.NewAbilityCache(game.Parser{}, logger), game.DefaultRules(), logger)
	states := store.NewMemoryStore()
	hub := app.NewHub(64)
	matches := match.NewOrchestrator(match.NewMemoryRepository(), states, match.LedgerEconomy{}, app.Recorder{Store: states, Hub: hub}, match.DefaultRules(), logger)
	svc = app.NewService(engine, states, matches, hub, logger)

	_, err = svc.StartMatch(context.Background(), app.StartRequest{
		LobbyID:          "lobby-1",
		HostID:           "agent",
		OpponentID:       "rival",
		HostDeckName:     "starter",
		OpponentDeckName: "starter",
	})
	require.NoError(t, err)
	return NewSession(svc, "agent", logger), NewSession(svc, "rival", logger), svc
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func decodeResponse(t *testing.T, res *mcp.CallToolResult) ToolResponse {
	t.Helper()
	require.False(t, res.IsError, text(t, res))
	var resp ToolResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &resp))
	return resp
}

func TestGetMatchStateDrainsEvents(t *testing.T) {
	agent, _, _ := newTestSessions(t)
	ctx := context.Background()

	res, err := agent.handleGetMatchState(ctx, call("get_match_state", map[string]any{"lobby_id": "lobby-1"}))
	require.NoError(t, err)
	resp := decodeResponse(t, res)
	require.NotNil(t, resp.State)
	assert.Equal(t, "agent", resp.State.You.UserID)
	assert.True(t, resp.State.IsYourTurn)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, log.EventGameStarted, resp.Events[0].Type)

	res, err = agent.handleGetMatchState(ctx, call("get_match_state", map[string]any{"lobby_id": "lobby-1"}))
	require.NoError(t, err)
	assert.Empty(t, decodeResponse(t, res).Events)

	res, err = agent.handleGetMatchState(ctx, call("get_match_state", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSummonAndRejections(t *testing.T) {
	agent, rival, svc := newTestSessions(t)
	ctx := context.Background()
	gs, err := svc.State(ctx, "lobby-1")
	require.NoError(t, err)
	knight := gs.Player("agent").Hand[0].InstanceID

	res, err := rival.handleSummon(ctx, call("summon", map[string]any{"lobby_id": "lobby-1", "instance_id": gs.Player("rival").Hand[0].InstanceID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "not_your_turn")

	res, err = agent.handleSummon(ctx, call("summon", map[string]any{"lobby_id": "lobby-1", "instance_id": knight, "position": "defense"}))
	require.NoError(t, err)
	resp := decodeResponse(t, res)
	require.Len(t, resp.State.You.Board, 1)
	assert.True(t, resp.State.You.Board[0].FaceDown)
	assert.Equal(t, log.EventCardSet, resp.Events[len(resp.Events)-1].Type)

	res, err = agent.handleAdvancePhase(ctx, call("advance_phase", map[string]any{"lobby_id": "lobby-1", "phase": "battle"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "wrong_phase")
}

func TestAttackAndSurrender(t *testing.T) {
	agent, rival, svc := newTestSessions(t)
	ctx := context.Background()

	res, err := agent.handleEndTurn(ctx, call("end_turn", map[string]any{"lobby_id": "lobby-1"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	gs, err := svc.State(ctx, "lobby-1")
	require.NoError(t, err)
	knight := gs.Player("rival").Hand[0].InstanceID
	_, err = rival.handleSummon(ctx, call("summon", map[string]any{"lobby_id": "lobby-1", "instance_id": knight}))
	require.NoError(t, err)
	_, err = rival.handleAdvancePhase(ctx, call("advance_phase", map[string]any{"lobby_id": "lobby-1", "phase": "battle"}))
	require.NoError(t, err)

	res, err = rival.handleDeclareAttack(ctx, call("declare_attack", map[string]any{"lobby_id": "lobby-1", "attacker_id": knight}))
	require.NoError(t, err)
	resp := decodeResponse(t, res)
	require.NotNil(t, resp.Battle)
	assert.Equal(t, 8000-1800, resp.State.Opponent.LifePoints)

	res, err = agent.handleSurrender(ctx, call("surrender", map[string]any{"lobby_id": "lobby-1"}))
	require.NoError(t, err)
	resp = decodeResponse(t, res)
	assert.True(t, resp.GameOver)
	assert.Equal(t, "rival", resp.Winner)
	assert.Equal(t, "lose", resp.Result)

	// The state is gone once the match is finalised; the log still answers.
	res, err = rival.handleGetMatchState(ctx, call("get_match_state", map[string]any{"lobby_id": "lobby-1"}))
	require.NoError(t, err)
	resp = decodeResponse(t, res)
	assert.True(t, resp.GameOver)
	assert.Equal(t, "win", resp.Result)
	assert.Nil(t, resp.State)
}
