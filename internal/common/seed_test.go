package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tabcoin-ledger-go/internal/api"
	"tabcoin-ledger-go/internal/cache"
	"tabcoin-ledger-go/internal/database"
	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/rating"
)

const testSeed = `
users:
  - id: alice
    tabcoins: 8
  - id: bob
    tabcoins: 2
    tabcash: 1
contents:
  - id: post-1
    owner_id: alice
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}
	return path
}

func TestLoadSeedConfig(t *testing.T) {
	seed, err := LoadSeedConfig(writeSeed(t, testSeed))
	if err != nil {
		t.Fatalf("LoadSeedConfig failed: %v", err)
	}
	if len(seed.Users) != 2 || len(seed.Contents) != 1 {
		t.Fatalf("Expected 2 users and 1 content, got %d and %d", len(seed.Users), len(seed.Contents))
	}
	if seed.Users[1].TabCash != 1 {
		t.Errorf("Expected bob to have 1 tabcash, got %d", seed.Users[1].TabCash)
	}
	if seed.Contents[0].OwnerId != "alice" {
		t.Errorf("Expected post-1 owner alice, got %s", seed.Contents[0].OwnerId)
	}
}

func TestLoadSeedConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing user id", "users:\n  - tabcoins: 2\n"},
		{"negative balance", "users:\n  - id: alice\n    tabcoins: -2\n"},
		{"missing owner", "contents:\n  - id: post-1\n"},
		{"not yaml", "users: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadSeedConfig(writeSeed(t, tt.yaml)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}

	if _, err := LoadSeedConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func setupLedgerService(t *testing.T) *api.LedgerService {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "tabcoins.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
		NodeId:       1,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	balanceCache := cache.New(nil, time.Minute)
	coordinator := rating.NewCoordinator(db, models.DefaultRatingConfig(), rating.WithCache(balanceCache))
	return api.NewLedgerService(db, balanceCache, coordinator)
}

func TestApplySeed_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := setupLedgerService(t)

	seed, err := LoadSeedConfig(writeSeed(t, testSeed))
	if err != nil {
		t.Fatalf("LoadSeedConfig failed: %v", err)
	}

	stats, err := ApplySeed(ctx, svc, seed)
	if err != nil {
		t.Fatalf("ApplySeed failed: %v", err)
	}
	if stats.Grants != 3 || stats.Published != 1 {
		t.Errorf("Expected 3 grants and 1 publish, got %+v", stats)
	}

	stats, err = ApplySeed(ctx, svc, seed)
	if err != nil {
		t.Fatalf("second ApplySeed failed: %v", err)
	}
	if stats.Grants != 0 || stats.Published != 0 {
		t.Errorf("Expected nothing written on second run, got %+v", stats)
	}

	wallet, err := svc.GetUserWallet(ctx, "bob")
	if err != nil {
		t.Fatalf("GetUserWallet failed: %v", err)
	}
	if wallet.TabCoins != 2 || wallet.TabCash != 1 {
		t.Errorf("Expected bob 2/1, got %d/%d", wallet.TabCoins, wallet.TabCash)
	}

	content, err := svc.GetContentTabCoins(ctx, "post-1")
	if err != nil {
		t.Fatalf("GetContentTabCoins failed: %v", err)
	}
	if content.TabCoins != 1 {
		t.Errorf("Expected post-1 to hold 1 tabcoin, got %d", content.TabCoins)
	}
}

func TestInitializeRecipients(t *testing.T) {
	recipients, err := InitializeRecipients("alice", "", "")
	if err != nil {
		t.Fatalf("InitializeRecipients failed: %v", err)
	}
	if len(recipients) != 1 || recipients[0].Type != models.RecipientUser {
		t.Errorf("Expected a single user recipient, got %+v", recipients)
	}

	recipients, err = InitializeRecipients("", "", writeSeed(t, testSeed))
	if err != nil {
		t.Fatalf("InitializeRecipients failed: %v", err)
	}
	if len(recipients) != 3 {
		t.Errorf("Expected 3 recipients from seed, got %d", len(recipients))
	}

	if _, err := InitializeRecipients("", "", ""); err == nil {
		t.Error("Expected error without filters or seed")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[int64]string{1: "+1", -2: "-2", 0: "0"}
	for amount, expected := range tests {
		if got := FormatAmount(amount); got != expected {
			t.Errorf("FormatAmount(%d) = %s, want %s", amount, got, expected)
		}
	}
}

func TestInitializeDatabaseOnly_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	cfg := &models.Config{Database: models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "tabcoins.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
		NodeId:       1,
	}}

	db, err := InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		t.Fatalf("InitializeDatabaseOnly failed: %v", err)
	}
	defer db.Close()

	if _, err := db.Append(ctx, rating.PublishEvent("post-1")); err != nil {
		t.Fatalf("Append on fresh schema failed: %v", err)
	}
	balance, err := db.GetBalance(ctx, "post-1", models.TabCoin)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 1 {
		t.Errorf("Expected balance 1, got %d", balance)
	}
}

func TestInitializeDatabaseOnly_UnknownDriver(t *testing.T) {
	cfg := &models.Config{Database: models.DatabaseConfig{Driver: "oracle"}}
	if _, err := InitializeDatabaseOnly(context.Background(), cfg); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
