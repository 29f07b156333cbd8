package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/peterkuimelis/duelserver/internal/app"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/peterkuimelis/duelserver/internal/store"
	"github.com/sirupsen/logrus"
)

// ToolResponse is the JSON envelope returned by all MCP tools.
type ToolResponse struct {
	LobbyID  string              `json:"lobby_id"`
	State    *app.StateView      `json:"state,omitempty"`
	Events   []log.GameEvent     `json:"events"`
	Battle   *game.BattleResult  `json:"battle,omitempty"`
	Effects  []game.EffectResult `json:"effects,omitempty"`
	GameOver bool                `json:"game_over"`
	Winner   string              `json:"winner,omitempty"`
	Result   string              `json:"result,omitempty"`
}

// Session is one agent player's view of the server. It remembers how far
// into each lobby's event log the agent has read, so every response carries
// only what happened since the agent last looked.
type Session struct {
	svc      *app.Service
	playerID string
	log      logrus.FieldLogger

	mu   sync.Mutex
	seen map[string]int // lobby id -> last event seq returned
}

func NewSession(svc *app.Service, playerID string, logger logrus.FieldLogger) *Session {
	return &Session{svc: svc, playerID: playerID, log: logger, seen: make(map[string]int)}
}

func (s *Session) PlayerID() string {
	return s.playerID
}

// drainEvents returns the lobby's events the agent has not seen yet.
func (s *Session) drainEvents(ctx context.Context, lobbyID string) ([]log.GameEvent, error) {
	all, err := s.svc.Events(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []log.GameEvent{}
	for _, e := range all {
		if e.Seq > s.seen[lobbyID] {
			out = append(out, e)
		}
	}
	if n := len(all); n > 0 {
		s.seen[lobbyID] = all[n-1].Seq
	}
	return out, nil
}

// respond builds the tool result after an action (res may be nil for
// read-only calls).
func (s *Session) respond(ctx context.Context, lobbyID string, res *app.Result) (*mcp.CallToolResult, error) {
	events, err := s.drainEvents(ctx, lobbyID)
	if err != nil {
		return toolError(err), nil
	}
	resp := &ToolResponse{LobbyID: lobbyID, Events: events}

	var gs *game.GameState
	if res != nil {
		gs = res.State
		resp.Battle, resp.Effects = res.Battle, res.Effects
	} else if gs, err = s.svc.State(ctx, lobbyID); errors.Is(err, store.ErrNotFound) {
		// A finished match's state is removed; its log remains.
		return s.finished(ctx, resp, err)
	} else if err != nil {
		return toolError(err), nil
	}

	resp.State = app.NewStateView(s.svc.Engine(), gs, s.playerID)
	if gs.IsOver() {
		resp.GameOver = true
		resp.Winner = gs.Winner
		resp.Result = "lose"
		if gs.Winner == s.playerID {
			resp.Result = "win"
		}
	}
	return mcp.NewToolResultText(respondJSON(resp)), nil
}

func (s *Session) finished(ctx context.Context, resp *ToolResponse, notFound error) (*mcp.CallToolResult, error) {
	all, err := s.svc.Events(ctx, resp.LobbyID)
	if err != nil {
		return toolError(err), nil
	}
	ends := log.OfType(all, log.EventGameEnd)
	if len(ends) == 0 {
		return toolError(notFound), nil
	}
	resp.GameOver = true
	resp.Winner = ends[0].PlayerID
	resp.Result = "lose"
	if resp.Winner == s.playerID {
		resp.Result = "win"
	}
	return mcp.NewToolResultText(respondJSON(resp)), nil
}

// toolError reports a failed call to the agent. Rejected actions keep their
// code so the agent can correct itself.
func toolError(err error) *mcp.CallToolResult {
	var ae *game.ActionError
	if errors.As(err, &ae) {
		return mcp.NewToolResultErrorf("%s: %s", ae.Code, ae.Msg)
	}
	return mcp.NewToolResultError(err.Error())
}

// respondJSON marshals a ToolResponse to a JSON string.
func respondJSON(resp *ToolResponse) string {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal error: %v"}`, err)
	}
	return string(data)
}
