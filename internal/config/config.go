// Package config loads server settings from the environment (optionally
// seeded from a .env file) and game tuning from a YAML rules file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/match"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const EnvProduction = "production"

type Config struct {
	Env           string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	LogLevel      string
	LogFormat     string
	CatalogFile   string
	RulesFile     string
	OutboxWorkers int
	OutboxPoll    time.Duration

	Game  game.Rules
	Match match.Rules
}

// StrictAbilities reports whether ability definitions must parse cleanly.
func (c *Config) StrictAbilities() bool {
	return c.Env != EnvProduction
}

// rulesFile is the YAML layout of DUEL_RULES_FILE. Both sections share the
// top level.
type rulesFile struct {
	Game  game.Rules  `yaml:",inline"`
	Match match.Rules `yaml:",inline"`
}

// Load reads .env files (missing ones are ignored), then the environment,
// then the rules file if one is named.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Env:           env("DUEL_ENV", "development"),
		HTTPAddr:      env("DUEL_HTTP_ADDR", ":8080"),
		RedisAddr:     os.Getenv("DUEL_REDIS_ADDR"),
		RedisPassword: os.Getenv("DUEL_REDIS_PASSWORD"),
		DatabaseURL:   os.Getenv("DUEL_DATABASE_URL"),
		LogLevel:      env("DUEL_LOG_LEVEL", "info"),
		LogFormat:     env("DUEL_LOG_FORMAT", "text"),
		CatalogFile:   env("DUEL_CATALOG_FILE", "cards.yaml"),
		RulesFile:     os.Getenv("DUEL_RULES_FILE"),
		Game:          game.DefaultRules(),
		Match:         match.DefaultRules(),
	}

	var err error
	if cfg.RedisDB, err = envInt("DUEL_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.OutboxWorkers, err = envInt("DUEL_OUTBOX_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.OutboxPoll, err = envDuration("DUEL_OUTBOX_POLL", 2*time.Second); err != nil {
		return nil, err
	}

	if cfg.RulesFile != "" {
		if err := cfg.loadRules(cfg.RulesFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) loadRules(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}
	rf := rulesFile{Game: c.Game, Match: c.Match}
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("parse rules %s: %w", path, err)
	}
	c.Game, c.Match = rf.Game, rf.Match
	return nil
}

// NewLogger builds the process logger from the configured level and format.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("DUEL_LOG_LEVEL: %w", err)
	}
	logger.SetLevel(level)
	switch c.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("DUEL_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	return logger, nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
