package rating

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tabcoin-ledger-go/internal/database"
	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
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

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (r *recordingCache) Invalidate(_ context.Context, recipientIds ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, recipientIds...)
	return nil
}

type fixture struct {
	store       *database.Service
	coordinator *Coordinator
	clock       *testClock
	cache       *recordingCache
}

func setupCoordinator(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "tabcoins.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 8,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
		NodeId:       1,
	}, database.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	cfg := models.DefaultRatingConfig()
	cfg.RetryBackoff = time.Millisecond
	cache := &recordingCache{}

	return &fixture{
		store:       s,
		coordinator: NewCoordinator(s, cfg, WithClock(clock.Now), WithCache(cache)),
		clock:       clock,
		cache:       cache,
	}
}

func (f *fixture) publish(t *testing.T, contentId string) {
	t.Helper()
	_, err := f.coordinator.Publish(context.Background(), contentId)
	require.NoError(t, err)
}

func (f *fixture) grant(t *testing.T, userId string, amount int64) {
	t.Helper()
	_, err := f.coordinator.Grant(context.Background(), userId, models.TabCoin, amount)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, recipientId string, currency models.Currency) int64 {
	t.Helper()
	balance, err := f.store.GetBalance(context.Background(), recipientId, currency)
	require.NoError(t, err)
	return balance
}

func rate(voter, content, owner string, direction models.Direction) RateRequest {
	return RateRequest{VoterId: voter, ContentId: content, OwnerId: owner, Direction: direction}
}

func TestRate_Credit(t *testing.T) {
	f := setupCoordinator(t)
	f.publish(t, "content")
	f.grant(t, "voter", 2)

	result, err := f.coordinator.Rate(context.Background(), rate("voter", "content", "owner", models.Credit))
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.TabCoins)
	assert.Equal(t, int64(1), result.TabCoinsCredit)
	assert.Equal(t, int64(0), result.TabCoinsDebit)
	assert.NotEmpty(t, result.OriginEventId)

	assert.Equal(t, int64(2), f.balance(t, "content", models.TabCoin))
	assert.Equal(t, int64(1), f.balance(t, "owner", models.TabCoin))
	assert.Equal(t, int64(0), f.balance(t, "voter", models.TabCoin))
	assert.Equal(t, int64(1), f.balance(t, "voter", models.TabCash))

	assert.Subset(t, f.cache.invalidated, []string{"content", "owner", "voter"})
}

func TestRate_Debit(t *testing.T) {
	f := setupCoordinator(t)
	f.publish(t, "content")
	f.grant(t, "voter", 2)

	result, err := f.coordinator.Rate(context.Background(), rate("voter", "content", "owner", models.Debit))
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.TabCoins)
	assert.Equal(t, int64(0), result.TabCoinsCredit)
	assert.Equal(t, int64(-1), result.TabCoinsDebit)

	assert.Equal(t, int64(0), f.balance(t, "content", models.TabCoin))
	assert.Equal(t, int64(-1), f.balance(t, "owner", models.TabCoin))
	assert.Equal(t, int64(0), f.balance(t, "voter", models.TabCoin))
	assert.Equal(t, int64(1), f.balance(t, "voter", models.TabCash))
}

func TestRate_ContentCanGoNegative(t *testing.T) {
	f := setupCoordinator(t)
	f.publish(t, "content")
	f.grant(t, "voter1", 2)
	f.grant(t, "voter2", 2)

	_, err := f.coordinator.Rate(context.Background(), rate("voter1", "content", "owner", models.Debit))
	require.NoError(t, err)
	result, err := f.coordinator.Rate(context.Background(), rate("voter2", "content", "owner", models.Debit))
	require.NoError(t, err)

	assert.Equal(t, int64(-1), result.TabCoins)
	assert.Equal(t, int64(-2), result.TabCoinsDebit)
	assert.Equal(t, int64(-2), f.balance(t, "owner", models.TabCoin))
}

func TestRate_InsufficientFunds(t *testing.T) {
	f := setupCoordinator(t)
	f.publish(t, "content")

	_, err := f.coordinator.Rate(context.Background(), rate("voter", "content", "owner", models.Credit))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, KindInsufficientFunds, Classify(err))

	assert.Equal(t, int64(1), f.balance(t, "content", models.TabCoin))
	assert.Equal(t, int64(0), f.balance(t, "owner", models.TabCoin))
	assert.Equal(t, int64(0), f.balance(t, "voter", models.TabCoin))
	assert.Equal(t, int64(0), f.balance(t, "voter", models.TabCash))

	history, err := f.store.GetEntryHistory(context.Background(), "voter", models.TabCoin, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRate_MissingDirection(t *testing.T) {
	f := setupCoordinator(t)
	f.grant(t, "voter", 2)

	_, err := f.coordinator.Rate(context.Background(), RateRequest{VoterId: "voter", ContentId: "content", OwnerId: "owner"})
	require.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, "transaction_type", Describe(err).Key)
	assert.Equal(t, int64(2), f.balance(t, "voter", models.TabCoin))
}

func TestRate_FourthActionInWindowIsRejected(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	f.publish(t, "content")
	f.grant(t, "voter", 8)

	for i := 0; i < 3; i++ {
		_, err := f.coordinator.Rate(ctx, rate("voter", "content", "owner", models.Credit))
		require.NoError(t, err, "rating %d", i+1)
		f.clock.Advance(time.Minute)
	}

	_, err := f.coordinator.Rate(ctx, rate("voter", "content", "owner", models.Credit))
	require.ErrorIs(t, err, ErrTooManyActions)
	assert.False(t, Classify(err).Retryable())

	assert.Equal(t, int64(3), f.balance(t, "owner", models.TabCoin))
	assert.Equal(t, int64(4), f.balance(t, "content", models.TabCoin))
	assert.Equal(t, int64(2), f.balance(t, "voter", models.TabCoin))
	assert.Equal(t, int64(3), f.balance(t, "voter", models.TabCash))
}

func TestRate_QuotaCountsBothDirections(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	f.publish(t, "content")
	f.grant(t, "voter", 8)

	for _, direction := range []models.Direction{models.Credit, models.Debit, models.Credit} {
		_, err := f.coordinator.Rate(ctx, rate("voter", "content", "owner", direction))
		require.NoError(t, err)
	}

	_, err := f.coordinator.Rate(ctx, rate("voter", "content", "owner", models.Debit))
	assert.ErrorIs(t, err, ErrTooManyActions)
}

func TestRate_QuotaIsPerContent(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	f.grant(t, "voter", 8)

	for i := 0; i < 3; i++ {
		_, err := f.coordinator.Rate(ctx, rate("voter", "content1", "owner", models.Credit))
		require.NoError(t, err)
	}

	_, err := f.coordinator.Rate(ctx, rate("voter", "content2", "owner", models.Credit))
	assert.NoError(t, err)
}

func TestRate_WindowBoundary(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	f.grant(t, "voter", 10)

	for i := 0; i < 3; i++ {
		_, err := f.coordinator.Rate(ctx, rate("voter", "content", "owner", models.Credit))
		require.NoError(t, err)
	}

	// Exactly 72h later the first actions are still inside the window
	f.clock.Advance(72 * time.Hour)
	_, err := f.coordinator.Rate(ctx, rate("voter", "content", "owner", models.Credit))
	require.ErrorIs(t, err, ErrTooManyActions)

	// One tick later they have left it
	f.clock.Advance(time.Nanosecond)
	_, err = f.coordinator.Rate(ctx, rate("voter", "content", "owner", models.Credit))
	require.NoError(t, err)

	assert.Equal(t, int64(2), f.balance(t, "voter", models.TabCoin))
	assert.Equal(t, int64(4), f.balance(t, "voter", models.TabCash))
}

func TestRate_SingleWinnerUnderScarcity(t *testing.T) {
	for _, sameContent := range []bool{true, false} {
		t.Run(fmt.Sprintf("sameContent=%v", sameContent), func(t *testing.T) {
			f := setupCoordinator(t)
			ctx := context.Background()
			f.grant(t, "voter", 2)

			const requests = 20
			var wg sync.WaitGroup
			errs := make([]error, requests)
			for i := 0; i < requests; i++ {
				contentId := "content"
				if !sameContent {
					contentId = fmt.Sprintf("content-%d", i)
				}
				wg.Add(1)
				go func(i int, contentId string) {
					defer wg.Done()
					_, errs[i] = f.coordinator.Rate(ctx, rate("voter", contentId, "owner", models.Credit))
				}(i, contentId)
			}
			wg.Wait()

			successes := 0
			for _, err := range errs {
				switch {
				case err == nil:
					successes++
				case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrTooManyConcurrentRequests):
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}

			assert.Equal(t, 1, successes)
			assert.Equal(t, int64(0), f.balance(t, "voter", models.TabCoin))
			assert.Equal(t, int64(1), f.balance(t, "voter", models.TabCash))
			assert.Equal(t, int64(1), f.balance(t, "owner", models.TabCoin))
		})
	}
}

func TestRate_NoDoubleSpend(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	f.grant(t, "voter", 9)

	const requests = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.coordinator.Rate(ctx, rate("voter", fmt.Sprintf("content-%d", i), "owner", models.Debit))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	after := f.balance(t, "voter", models.TabCoin)
	assert.LessOrEqual(t, successes, 4)
	assert.Equal(t, int64(9-2*successes), after)
	assert.GreaterOrEqual(t, after, int64(0))
	assert.Equal(t, int64(successes), f.balance(t, "voter", models.TabCash))
}

// conflictingStore fails every Update with a write conflict.
type conflictingStore struct {
	store.LedgerStore
	calls int
}

func (s *conflictingStore) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.calls++
	return fmt.Errorf("commit: %w", store.ErrSerializationConflict)
}

func TestRate_RetriesAreBounded(t *testing.T) {
	cfg := models.DefaultRatingConfig()
	cfg.RetryBackoff = 0
	s := &conflictingStore{}
	c := NewCoordinator(s, cfg)

	_, err := c.Rate(context.Background(), rate("voter", "content", "owner", models.Credit))
	require.ErrorIs(t, err, ErrTooManyConcurrentRequests)
	assert.True(t, Classify(err).Retryable())
	assert.Equal(t, cfg.MaxAttempts, s.calls)
}

func TestRate_CancelledDuringBackoff(t *testing.T) {
	cfg := models.DefaultRatingConfig()
	cfg.RetryBackoff = time.Hour
	c := NewCoordinator(&conflictingStore{}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Rate(ctx, rate("voter", "content", "owner", models.Credit))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommittedEventsVerify(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()
	f.publish(t, "content")
	f.grant(t, "voter", 2)

	result, err := f.coordinator.Rate(ctx, rate("voter", "content", "owner", models.Debit))
	require.NoError(t, err)

	event, err := f.store.GetEvent(ctx, result.OriginEventId)
	require.NoError(t, err)
	require.Len(t, event.Entries, 4)
	assert.NoError(t, f.coordinator.Policy().VerifyEvent(*event))

	for _, entry := range event.Entries {
		assert.Equal(t, event.Id, entry.OriginEventId)
		assert.True(t, entry.CreatedAt.Equal(event.CreatedAt))
	}
}

func TestPublish_CreditsOnce(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()

	event, err := f.coordinator.Publish(ctx, "content")
	require.NoError(t, err)
	assert.Equal(t, "content", event.ContentId)

	_, err = f.coordinator.Publish(ctx, "content")
	assert.ErrorIs(t, err, ErrAlreadyPublished)
	assert.Equal(t, KindAlreadyPublished, Classify(err))
	assert.Equal(t, int64(1), f.balance(t, "content", models.TabCoin))

	// Ratings still land on top of the single base credit
	f.grant(t, "voter", 2)
	result, err := f.coordinator.Rate(ctx, rate("voter", "content", "owner", models.Credit))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TabCoins)
}

func TestPublish_ConcurrentCallsCreditOnce(t *testing.T) {
	f := setupCoordinator(t)
	ctx := context.Background()

	const callers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coordinator.Publish(ctx, "content")
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case errors.Is(err, ErrAlreadyPublished), errors.Is(err, ErrTooManyConcurrentRequests):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), f.balance(t, "content", models.TabCoin))
}
