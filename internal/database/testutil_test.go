package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tabcoin-ledger-go/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestDb(t *testing.T) (*Service, *testClock) {
	t.Helper()

	clock := newTestClock()
	service, err := NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 8,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
		NodeId:       1,
	}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(service.Close)

	return service, clock
}

func grant(t *testing.T, s *Service, userId string, currency models.Currency, amount int64) {
	t.Helper()
	_, err := s.Append(context.Background(), models.LedgerEvent{
		Type: models.EventGrant,
		Entries: []models.LedgerEntry{
			{RecipientId: userId, RecipientType: models.RecipientUser, Currency: currency, Amount: amount},
		},
	})
	if err != nil {
		t.Fatalf("Failed to grant %d %s to %s: %v", amount, currency, userId, err)
	}
}

func ratingEvent(voterId, contentId, ownerId string, sign int64) models.LedgerEvent {
	return models.LedgerEvent{
		Type:      models.EventRateContent,
		VoterId:   voterId,
		ContentId: contentId,
		Entries: []models.LedgerEntry{
			{RecipientId: contentId, RecipientType: models.RecipientContent, Currency: models.TabCoin, Amount: sign},
			{RecipientId: ownerId, RecipientType: models.RecipientUser, Currency: models.TabCoin, Amount: sign},
			{RecipientId: voterId, RecipientType: models.RecipientUser, Currency: models.TabCoin, Amount: -2},
			{RecipientId: voterId, RecipientType: models.RecipientUser, Currency: models.TabCash, Amount: 1},
		},
	}
}
