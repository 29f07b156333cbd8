package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/peterkuimelis/duelserver/internal/game"
)

// RegisterTools adds all match tools to the MCP server. Every call acts as
// the session's player.
func RegisterTools(s *server.MCPServer, sess *Session) {
	s.AddTool(getMatchStateTool(), sess.handleGetMatchState)
	s.AddTool(summonTool(), sess.handleSummon)
	s.AddTool(changePositionTool(), sess.handleChangePosition)
	s.AddTool(setCardTool(), sess.handleSetCard)
	s.AddTool(activateCardTool(), sess.handleActivateCard)
	s.AddTool(declareAttackTool(), sess.handleDeclareAttack)
	s.AddTool(advancePhaseTool(), sess.handleAdvancePhase)
	s.AddTool(endTurnTool(), sess.handleEndTurn)
	s.AddTool(surrenderTool(), sess.handleSurrender)
}

// --- Tool definitions ---

func lobbyArg() mcp.ToolOption {
	return mcp.WithString("lobby_id", mcp.Required(), mcp.Description("Lobby id of the match"))
}

func instanceArg(desc string) mcp.ToolOption {
	return mcp.WithString("instance_id", mcp.Required(), mcp.Description(desc))
}

func getMatchStateTool() mcp.Tool {
	return mcp.NewTool("get_match_state",
		mcp.WithDescription("Get the match from your side of the table: life points, your hand, both boards "+
			"(face-down opponent cards hidden), the current turn and phase, and every event since your last call. Read-only."),
		lobbyArg(),
	)
}

func summonTool() mcp.Tool {
	return mcp.NewTool("summon",
		mcp.WithDescription("Normal summon a creature from your hand. Once per turn, main phases only. "+
			"Defense position summons face-down."),
		lobbyArg(),
		instanceArg("Instance id of the creature in your hand"),
		mcp.WithString("position", mcp.Enum("attack", "defense"), mcp.Description("Battle position (default attack)")),
	)
}

func changePositionTool() mcp.Tool {
	return mcp.NewTool("change_position",
		mcp.WithDescription("Switch one of your creatures between attack and defense position. Not on the turn it was summoned or after it attacked."),
		lobbyArg(),
		instanceArg("Instance id of your creature on the board"),
	)
}

func setCardTool() mcp.Tool {
	return mcp.NewTool("set_card",
		mcp.WithDescription("Set a spell or trap from your hand face-down. A set trap can be activated from your next turn."),
		lobbyArg(),
		instanceArg("Instance id of the spell or trap in your hand"),
	)
}

func activateCardTool() mcp.Tool {
	return mcp.NewTool("activate_card",
		mcp.WithDescription("Activate a spell from your hand, a set spell or trap, or the ignition effect of a face-up creature."),
		lobbyArg(),
		instanceArg("Instance id of the card to activate"),
		mcp.WithArray("targets", mcp.WithStringItems(), mcp.Description("Instance ids of chosen targets, if the effect targets")),
	)
}

func declareAttackTool() mcp.Tool {
	return mcp.NewTool("declare_attack",
		mcp.WithDescription("Attack with one of your attack-position creatures during the battle phase. "+
			"Omit target_id for a direct attack, allowed only when your opponent controls no creatures."),
		lobbyArg(),
		mcp.WithString("attacker_id", mcp.Required(), mcp.Description("Instance id of your attacking creature")),
		mcp.WithString("target_id", mcp.Description("Instance id of the opponent creature to attack")),
	)
}

func advancePhaseTool() mcp.Tool {
	return mcp.NewTool("advance_phase",
		mcp.WithDescription("Move forward to a later phase of your turn. There is no battle phase on the first turn of the match."),
		lobbyArg(),
		mcp.WithString("phase", mcp.Required(),
			mcp.Enum(string(game.PhaseMain1), string(game.PhaseBattleStart), string(game.PhaseBattle), string(game.PhaseMain2), string(game.PhaseEnd)),
			mcp.Description("Phase to move to")),
	)
}

func endTurnTool() mcp.Tool {
	return mcp.NewTool("end_turn",
		mcp.WithDescription("End your turn. Your opponent draws and takes the next turn."),
		lobbyArg(),
	)
}

func surrenderTool() mcp.Tool {
	return mcp.NewTool("surrender",
		mcp.WithDescription("Concede the match. Your opponent wins immediately."),
		lobbyArg(),
	)
}

// --- Tool handlers ---

func (s *Session) handleGetMatchState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lobbyID, err := request.RequireString("lobby_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.respond(ctx, lobbyID, nil)
}

func (s *Session) handleSummon(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lobbyID, instanceID, bad := cardArgs(request)
	if bad != nil {
		return bad, nil
	}
	pos := game.PositionAttack
	switch request.GetString("position", "attack") {
	case "attack":
	case "defense":
		pos = game.PositionDefense
	default:
		return mcp.NewToolResultError("position must be 'attack' or 'defense'"), nil
	}
	res, err := s.svc.NormalSummon(ctx, lobbyID, s.playerID, instanceID, pos)
	if err != nil {
		return toolError(err), nil
	}
	return s.respond(ctx, lobbyID, res)
}

func (s *Session) handleChangePosition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lobbyID, instanceID, bad := cardArgs(request)
	if bad != nil {
		return bad, nil
	}
	res, err := s.svc.ChangePosition(ctx, lobbyID, s.playerID, instanceID)
	if err != nil {
		return toolError(err), nil
	}
	return s.respond(ctx, lobbyID, res)
}

func (s *Session) handleSetCard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lobbyID, instanceID, bad := cardArgs(request)
	if bad != nil {
		return bad, nil
	}
	res, err := s.svc.SetSpellTrap(ctx, lobbyID, s.playerID, instanceID)
	if err != nil {
		return toolError(err), nil
	}
	return s.respond(ctx, lobbyID, res)
}

func (s *Session) handleActivateCard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lobbyID, instanceID, bad := cardArgs(request)
	if bad != nil {
		return bad, nil
	}
	targets := request.GetStringSlice("targets", nil)
	res, err := s.svc.ActivateCard(ctx, lobbyID, s.playerID, instanceID, targets)
	if err != nil {
		return toolError(err), nil
	}
	return s.respond(ctx, lobbyID, res)
}

func (s *Session) handleDeclareAttack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lobbyID, err := request.RequireString("lobby_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	attacker, err := request.RequireString("attacker_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.DeclareAttack(ctx, lobbyID, game.AttackRequest{
		PlayerID:   s.playerID,
		AttackerID: attacker,
		TargetID:   request.GetString("target_id", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return s.respond(ctx, lobbyID, res)
}

func (s *Session) handleAdvancePhase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lobbyID, err := request.RequireString("lobby_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	phase, err := request.RequireString("phase")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.AdvancePhase(ctx, lobbyID, s.playerID, game.Phase(phase))
	if err != nil {
		return toolError(err), nil
	}
	return s.respond(ctx, lobbyID, res)
}

func (s *Session) handleEndTurn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lobbyID, err := request.RequireString("lobby_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.EndTurn(ctx, lobbyID, s.playerID)
	if err != nil {
		return toolError(err), nil
	}
	return s.respond(ctx, lobbyID, res)
}

func (s *Session) handleSurrender(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lobbyID, err := request.RequireString("lobby_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Surrender(ctx, lobbyID, s.playerID)
	if err != nil {
		return toolError(err), nil
	}
	s.log.WithField("lobby_id", lobbyID).Info("agent surrendered")
	return s.respond(ctx, lobbyID, res)
}

// cardArgs reads the lobby and card arguments shared by the card tools. A
// non-nil result is the error to return to the agent.
func cardArgs(request mcp.CallToolRequest) (lobbyID, instanceID string, bad *mcp.CallToolResult) {
	lobbyID, err := request.RequireString("lobby_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	instanceID, err = request.RequireString("instance_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	return lobbyID, instanceID, nil
}
