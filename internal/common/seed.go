package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tabcoin-ledger-go/internal/api"
	"tabcoin-ledger-go/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type SeedUser struct {
	Id       string `yaml:"id"`
	TabCoins int64  `yaml:"tabcoins"`
	TabCash  int64  `yaml:"tabcash"`
}

type SeedContent struct {
	Id      string `yaml:"id"`
	OwnerId string `yaml:"owner_id"`
}

type SeedConfig struct {
	Users    []SeedUser    `yaml:"users"`
	Contents []SeedContent `yaml:"contents"`
}

func LoadSeedConfig(seedFile string) (*SeedConfig, error) {
	var seedPath string
	if filepath.IsAbs(seedFile) {
		seedPath = seedFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		seedPath = filepath.Join(wd, seedFile)
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", seedFile, err)
	}

	var config SeedConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", seedFile, err)
	}

	for i, user := range config.Users {
		if user.Id == "" {
			return nil, fmt.Errorf("user at index %d missing id", i)
		}
		if user.TabCoins < 0 || user.TabCash < 0 {
			return nil, fmt.Errorf("user %s has a negative seed balance", user.Id)
		}
	}
	for i, content := range config.Contents {
		if content.Id == "" {
			return nil, fmt.Errorf("content at index %d missing id", i)
		}
		if content.OwnerId == "" {
			return nil, fmt.Errorf("content %s missing owner_id", content.Id)
		}
	}

	return &config, nil
}

// SeedStats counts what ApplySeed wrote
type SeedStats struct {
	Published int
	Grants    int
	Skipped   int
}

// ApplySeed tops every seeded user up to its listed balances and publishes
// every listed content once. Running it again writes nothing new.
func ApplySeed(ctx context.Context, svc *api.LedgerService, seed *SeedConfig) (SeedStats, error) {
	var stats SeedStats

	for _, user := range seed.Users {
		wallet, err := svc.GetUserWallet(ctx, user.Id)
		if err != nil {
			return stats, fmt.Errorf("failed to read wallet of %s: %w", user.Id, err)
		}

		targets := []struct {
			currency models.Currency
			want     int64
			have     int64
		}{
			{models.TabCoin, user.TabCoins, wallet.TabCoins},
			{models.TabCash, user.TabCash, wallet.TabCash},
		}
		for _, target := range targets {
			if target.want <= target.have {
				stats.Skipped++
				continue
			}
			result, err := svc.GrantCurrency(ctx, user.Id, target.currency, target.want-target.have)
			if err != nil {
				return stats, err
			}
			if !result.Success {
				return stats, fmt.Errorf("grant to %s failed: %s", user.Id, result.Error)
			}
			stats.Grants++
		}
	}

	for _, content := range seed.Contents {
		result, err := svc.PublishContent(ctx, content.Id)
		if err != nil {
			return stats, err
		}
		if result.Duplicate {
			stats.Skipped++
			continue
		}
		if !result.Success {
			return stats, fmt.Errorf("publish of %s failed: %s", content.Id, result.Error)
		}
		stats.Published++
	}

	zap.L().Info("Seed applied",
		zap.Int("published", stats.Published),
		zap.Int("grants", stats.Grants),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// RecipientInfo is a user or content listed by the command-line utilities
type RecipientInfo struct {
	Id      string
	Type    models.RecipientType
	OwnerId string
}

// InitializeRecipients returns the recipients a report should cover. An
// explicit user or content id wins; otherwise everything in the seed file.
func InitializeRecipients(userFilter, contentFilter, seedFile string) ([]RecipientInfo, error) {
	if userFilter != "" || contentFilter != "" {
		var recipients []RecipientInfo
		if userFilter != "" {
			recipients = append(recipients, RecipientInfo{Id: userFilter, Type: models.RecipientUser})
		}
		if contentFilter != "" {
			recipients = append(recipients, RecipientInfo{Id: contentFilter, Type: models.RecipientContent})
		}
		return recipients, nil
	}

	if seedFile == "" {
		return nil, fmt.Errorf("either -user, -content or -seed is required")
	}

	seed, err := LoadSeedConfig(seedFile)
	if err != nil {
		return nil, err
	}

	recipients := make([]RecipientInfo, 0, len(seed.Users)+len(seed.Contents))
	for _, user := range seed.Users {
		recipients = append(recipients, RecipientInfo{Id: user.Id, Type: models.RecipientUser})
	}
	for _, content := range seed.Contents {
		recipients = append(recipients, RecipientInfo{Id: content.Id, Type: models.RecipientContent, OwnerId: content.OwnerId})
	}
	return recipients, nil
}
