// Package main runs the snakecast server: a Battlesnake webhook API whose games
// are narrated live over a Twilio ConversationRelay phone call.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/snakecast/internal/config"
	"github.com/cory-johannsen/snakecast/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file; empty = environment and defaults only")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}

	code := 0
	if err := run(cfg, logger); err != nil {
		logger.Error("snakecast exited with error", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	os.Exit(code)
}

func run(cfg config.Config, logger *zap.Logger) error {
	start := time.Now()

	for _, w := range cfg.Warnings() {
		logger.Warn("configuration", zap.String("warning", w))
	}

	app, cleanup, err := initializeApp(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("starting snakecast",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("relay_path", cfg.Relay.Path),
		zap.Bool("calls_enabled", app.Calls.Enabled()),
		zap.Bool("commentary_enabled", app.Generator.Enabled()),
		zap.Bool("lua_strategy", cfg.Strategy.ScriptPath != ""),
		zap.Duration("startup", time.Since(start)),
	)
	return app.Lifecycle.Run(context.Background())
}
