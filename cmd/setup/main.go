package main

import (
	"context"
	"flag"

	"tabcoin-ledger-go/internal/common"
	"tabcoin-ledger-go/internal/config"

	"go.uber.org/zap"
)

func runSeed(ctx context.Context, services *common.Services, seedFile string) {
	zap.L().Info("Loading seed configuration", zap.String("file", seedFile))
	seed, err := common.LoadSeedConfig(seedFile)
	if err != nil {
		zap.L().Fatal("Failed to load seed config", zap.Error(err))
	}
	zap.L().Info("Seed configuration loaded",
		zap.Int("users", len(seed.Users)),
		zap.Int("contents", len(seed.Contents)))

	stats, err := common.ApplySeed(ctx, services.LedgerService, seed)
	if err != nil {
		zap.L().Fatal("Failed to apply seed",
			zap.Int("published", stats.Published),
			zap.Int("grants", stats.Grants),
			zap.Error(err))
	}

	zap.L().Info("Seeding complete",
		zap.Int("published", stats.Published),
		zap.Int("grants", stats.Grants),
		zap.Int("skipped", stats.Skipped))
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	seedFlag := flag.String("seed", "", "YAML file with users and contents to seed (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Opening the database creates the schema
	zap.L().Info("Initializing ledger database", zap.String("driver", cfg.Database.Driver))
	if *seedFlag == "" {
		dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
		if err != nil {
			zap.L().Fatal("Failed to initialize database", zap.Error(err))
		}
		dbService.Close()
		zap.L().Info("Initialization complete")
		return
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.LedgerService.HealthCheck(ctx); err != nil {
		zap.L().Fatal("Health check failed", zap.Error(err))
	}

	runSeed(ctx, services, *seedFlag)

	zap.L().Info("Initialization complete")
}
