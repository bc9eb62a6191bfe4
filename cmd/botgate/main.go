// Package main contains the entrypoint for the botgate proxy.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tgfleet/botgate/internal/config"
	"github.com/tgfleet/botgate/internal/crypto"
	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/entitylog"
	"github.com/tgfleet/botgate/internal/logger"
	"github.com/tgfleet/botgate/internal/server"
	"github.com/tgfleet/botgate/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components (config, logger, db, cipher, sync engine,
// HTTP server), serves until the context is canceled, and returns an exit
// code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db)

	cipher, err := crypto.New(cfg.Crypto.Key)
	if err != nil {
		log.Error("Failed to initialize credential cipher", "error", err)
		return 1
	}

	client := telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.FetchTimeout, log)
	engine := entitylog.NewEngine(store, client, log)
	srv := server.New(cfg, engine, store, cipher, log)

	log.Info("Starting proxy...")
	runErr := srv.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Proxy stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Proxy stopped gracefully.")
	return 0
}
