package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterkuimelis/duelserver/internal/app"
	"github.com/peterkuimelis/duelserver/internal/config"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/log"
	"github.com/peterkuimelis/duelserver/internal/web"
	"golang.org/x/sync/errgroup"
)

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "validate":
		err = runValidate(args)
	case "replay":
		err = runReplay(args)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  duelserver serve [--env FILE]")
	fmt.Println("  duelserver validate [--catalog FILE]")
	fmt.Println("  duelserver replay --lobby ID [--env FILE]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Run the match API, spectator stream and outbox dispatcher")
	fmt.Println("  validate  Strictly parse every card ability in a catalog")
	fmt.Println("  replay    Print a match's recorded event log")
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	envFile := fs.String("env", ".env", "dotenv file to load before reading the environment")
	fs.Parse(args)

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := web.NewServer(rt.Service, logger)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Dispatcher.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.HTTPAddr) })
	return g.Wait()
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	catalogFile := fs.String("catalog", "cards.yaml", "path to the card catalog")
	fs.Parse(args)

	cat, err := game.LoadCatalog(*catalogFile)
	if err != nil {
		return err
	}
	if err := game.ValidateCatalog(cat); err != nil {
		return err
	}
	fmt.Printf("%s: %d cards, %d decks, all abilities parse\n", *catalogFile, len(cat.Cards()), len(cat.DeckNames()))
	return nil
}

func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	lobbyID := fs.String("lobby", "", "lobby id of the match")
	envFile := fs.String("env", ".env", "dotenv file to load before reading the environment")
	fs.Parse(args)
	if *lobbyID == "" {
		return fmt.Errorf("--lobby is required")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	ctx := context.Background()
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	events, err := rt.Service.Events(ctx, *lobbyID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events recorded for lobby %s", *lobbyID)
	}
	return log.NewTextLogger(os.Stdout).Record(ctx, events...)
}
