package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"tabcoin-ledger-go/internal/api"
	"tabcoin-ledger-go/internal/cache"
	"tabcoin-ledger-go/internal/database"
	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/rating"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService     *database.Service
	Cache         *cache.BalanceCache
	Coordinator   *rating.Coordinator
	LedgerService *api.LedgerService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the ledger database and the optional balance
// cache, and wires the rating coordinator and read API on top of them.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	balanceCache := cache.Connect(ctx, cfg.Cache)
	coordinator := rating.NewCoordinator(dbService, cfg.Rating, rating.WithCache(balanceCache))

	zap.L().Info("Rating policy loaded",
		zap.Int64("cost", cfg.Rating.Cost),
		zap.Int64("reward", cfg.Rating.Reward),
		zap.Int("max_actions", cfg.Rating.MaxActions),
		zap.Duration("window", cfg.Rating.Window),
		zap.Int("max_attempts", cfg.Rating.MaxAttempts))

	return &Services{
		DbService:     dbService,
		Cache:         balanceCache,
		Coordinator:   coordinator,
		LedgerService: api.NewLedgerService(dbService, balanceCache, coordinator),
	}, nil
}

// InitializeDatabaseOnly opens the ledger database and creates its schema
// without the cache or the rating coordinator.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := dbService.Ping(ctx); err != nil {
		dbService.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.Cache != nil {
		cs.Cache.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
