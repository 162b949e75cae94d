package main

import (
	"context"
	"log"
	"os"
	"time"

	"go-pos-ws/config"
	"go-pos-ws/internal/repository"
	"go-pos-ws/pkg/database"
	"go-pos-ws/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/juju/gnuflag"
	"go.uber.org/zap"
)

// reset-cart drops a terminal's persisted cart, for example after a stuck
// restore on a till.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, relying on system env")
	}
	cfg := config.LoadEnv()

	var key string
	var dryRun bool
	flags := gnuflag.NewFlagSet("reset-cart", gnuflag.ExitOnError)
	flags.StringVar(&key, "key", cfg.POS.SessionKey, "session key of the cart snapshot to remove")
	flags.BoolVar(&dryRun, "dry-run", false, "show the stored snapshot without removing it")
	if err := flags.Parse(true, os.Args[1:]); err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Server.AppEnv, cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer appLogger.Sync()

	db, err := database.ConnectDB(cfg.Postgres, appLogger)
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	store := repository.NewCartSnapshotRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	value, ok, err := store.Get(ctx, key)
	if err != nil {
		appLogger.Fatal("Failed to read cart snapshot", zap.String("key", key), zap.Error(err))
	}
	if !ok {
		appLogger.Info("No cart snapshot stored", zap.String("key", key))
		return
	}
	appLogger.Info("Found cart snapshot", zap.String("key", key), zap.String("value", value))
	if dryRun {
		return
	}

	if err := store.Remove(ctx, key); err != nil {
		appLogger.Fatal("Failed to remove cart snapshot", zap.String("key", key), zap.Error(err))
	}
	appLogger.Info("Cart snapshot removed", zap.String("key", key))
}
