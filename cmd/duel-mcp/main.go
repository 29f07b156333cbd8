package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/peterkuimelis/duelserver/internal/app"
	"github.com/peterkuimelis/duelserver/internal/config"
	duelmcp "github.com/peterkuimelis/duelserver/internal/mcp"
)

// The agent shares matches with other processes only through the Redis and
// Postgres backends; with in-memory backends it can only see its own games.
func main() {
	player := flag.String("player", "", "user id the agent plays as")
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	if *player == "" {
		fmt.Fprintln(os.Stderr, "Error: --player is required")
		os.Exit(2)
	}
	if err := run(*player, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(player, envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol.
	logger.SetOutput(os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	go func() {
		if err := rt.Dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("outbox dispatcher stopped")
		}
	}()

	s := server.NewMCPServer("duelserver", "1.0.0", server.WithToolCapabilities(false))
	duelmcp.RegisterTools(s, duelmcp.NewSession(rt.Service, player, logger.WithField("player_id", player)))
	return server.ServeStdio(s)
}
