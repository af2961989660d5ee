package rating

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/store"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Invalidator drops cached state for recipients after a committed write.
type Invalidator interface {
	Invalidate(ctx context.Context, recipientIds ...string) error
}

// Coordinator runs rating requests against the ledger: rate check, funds
// check and transfer in one store transaction, retried on write conflicts.
type Coordinator struct {
	store    store.LedgerStore
	cache    Invalidator
	cfg      models.RatingConfig
	policy   Policy
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Coordinator)

func WithCache(cache Invalidator) Option {
	return func(c *Coordinator) {
		c.cache = cache
	}
}

// WithClock sets the clock the rate window is anchored to.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func NewCoordinator(s store.LedgerStore, cfg models.RatingConfig, opts ...Option) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	c := &Coordinator{
		store:    s,
		cfg:      cfg,
		policy:   NewPolicy(cfg),
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Rate performs one rating action. Policy rejections (ErrTooManyActions,
// ErrInsufficientFunds) are returned as soon as they are observed. Write
// conflicts restart the whole check-then-append sequence, up to MaxAttempts
// times, after which ErrTooManyConcurrentRequests is returned.
func (c *Coordinator) Rate(ctx context.Context, req RateRequest) (*models.RatingResult, error) {
	if err := validateRequest(c.validate, req); err != nil {
		zap.L().Info("Rating request rejected",
			zap.String("voter_id", req.VoterId),
			zap.String("content_id", req.ContentId),
			zap.Error(err))
		return nil, err
	}

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		result, err := c.attempt(ctx, req)
		if err == nil {
			c.invalidate(ctx, req.ContentId, req.OwnerId, req.VoterId)

			zap.L().Info("Rating committed",
				zap.String("origin_event_id", result.OriginEventId),
				zap.String("voter_id", req.VoterId),
				zap.String("content_id", req.ContentId),
				zap.String("direction", string(req.Direction)),
				zap.Int("attempt", attempt),
				zap.Int64("content_tabcoins", result.TabCoins))
			return result, nil
		}

		if !errors.Is(err, store.ErrSerializationConflict) {
			if errors.Is(err, ErrTooManyActions) || errors.Is(err, ErrInsufficientFunds) {
				zap.L().Info("Rating rejected",
					zap.String("voter_id", req.VoterId),
					zap.String("content_id", req.ContentId),
					zap.String("direction", string(req.Direction)),
					zap.String("reason", Classify(err).String()))
			} else {
				zap.L().Error("Rating failed",
					zap.String("voter_id", req.VoterId),
					zap.String("content_id", req.ContentId),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
			return nil, err
		}

		zap.L().Warn("Rating hit a write conflict",
			zap.String("voter_id", req.VoterId),
			zap.String("content_id", req.ContentId),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.MaxAttempts),
			zap.Error(err))

		if attempt < c.cfg.MaxAttempts {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	zap.L().Warn("Rating gave up under contention",
		zap.String("voter_id", req.VoterId),
		zap.String("content_id", req.ContentId),
		zap.Int("attempts", c.cfg.MaxAttempts))
	return nil, fmt.Errorf("%w: gave up after %d attempts", ErrTooManyConcurrentRequests, c.cfg.MaxAttempts)
}

// attempt is one check-then-append unit. Everything it reads is validated
// against the append in the same transaction.
func (c *Coordinator) attempt(ctx context.Context, req RateRequest) (*models.RatingResult, error) {
	var result *models.RatingResult

	err := c.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		since := c.now().Add(-c.cfg.Window)
		count, err := tx.CountRatings(ctx, req.VoterId, req.ContentId, since)
		if err != nil {
			return err
		}
		if count >= c.cfg.MaxActions {
			return fmt.Errorf("%w: %d actions since %s", ErrTooManyActions, count, since.UTC().Format(time.RFC3339))
		}

		balance, err := tx.GetBalance(ctx, req.VoterId, models.TabCoin)
		if err != nil {
			return err
		}
		if balance < c.policy.Cost {
			return fmt.Errorf("%w: balance %d, cost %d", ErrInsufficientFunds, balance, c.policy.Cost)
		}

		event, err := tx.Append(ctx, c.policy.Transfer(req.VoterId, req.ContentId, req.OwnerId, req.Direction))
		if err != nil {
			return err
		}

		contentBalance, err := tx.GetBalance(ctx, req.ContentId, models.TabCoin)
		if err != nil {
			return err
		}
		credit, debit, err := tx.GetContentRatingTotals(ctx, req.ContentId)
		if err != nil {
			return err
		}

		result = &models.RatingResult{
			OriginEventId:  event.Id,
			TabCoins:       contentBalance,
			TabCoinsCredit: credit,
			TabCoinsDebit:  debit,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// backoff sleeps attempt*RetryBackoff plus up to one RetryBackoff of jitter.
func (c *Coordinator) backoff(ctx context.Context, attempt int) error {
	if c.cfg.RetryBackoff <= 0 {
		return ctx.Err()
	}

	delay := time.Duration(attempt)*c.cfg.RetryBackoff + time.Duration(rand.Int63n(int64(c.cfg.RetryBackoff)))
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Publish appends the base credit of a newly published content. A content
// is credited once; later calls fail with ErrAlreadyPublished.
func (c *Coordinator) Publish(ctx context.Context, contentId string) (*models.LedgerEvent, error) {
	if contentId == "" {
		return nil, &FieldError{Field: "content_id", Err: ErrMissingField}
	}
	committed, err := c.append(ctx, PublishEvent(contentId))
	if errors.Is(err, store.ErrDuplicateEvent) {
		zap.L().Info("Content already published", zap.String("content_id", contentId))
		return nil, fmt.Errorf("%w: %w", ErrAlreadyPublished, err)
	}
	return committed, err
}

// Grant credits a user wallet outside of rating.
func (c *Coordinator) Grant(ctx context.Context, userId string, currency models.Currency, amount int64) (*models.LedgerEvent, error) {
	if userId == "" {
		return nil, &FieldError{Field: "user_id", Err: ErrMissingField}
	}
	if !currency.Valid() {
		return nil, &FieldError{Field: "currency", Err: ErrInvalidField}
	}
	if amount == 0 {
		return nil, &FieldError{Field: "amount", Err: ErrInvalidField}
	}
	return c.append(ctx, GrantEvent(userId, currency, amount))
}

func (c *Coordinator) append(ctx context.Context, event models.LedgerEvent) (*models.LedgerEvent, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		committed, err := c.store.Append(ctx, event)
		if err == nil {
			c.invalidate(ctx, committed.Recipients()...)
			zap.L().Info("Ledger event committed",
				zap.String("origin_event_id", committed.Id),
				zap.String("type", string(committed.Type)),
				zap.Int("attempt", attempt))
			return committed, nil
		}
		if !errors.Is(err, store.ErrSerializationConflict) {
			return nil, err
		}
		lastErr = err
		if attempt < c.cfg.MaxAttempts {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrTooManyConcurrentRequests, lastErr)
}

// invalidate is best effort: a stale cache entry only lives until its TTL.
func (c *Coordinator) invalidate(ctx context.Context, recipientIds ...string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, recipientIds...); err != nil {
		zap.L().Warn("Failed to invalidate cached balances",
			zap.Strings("recipients", recipientIds),
			zap.Error(err))
	}
}
