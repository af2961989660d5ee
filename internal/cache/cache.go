package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tabcoin-ledger-go/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const keyPrefix = "tabcoins"

// generationTTL bounds how long an invalidation is remembered. It has to
// outlive any read that started before the invalidation.
const generationTTL = 24 * time.Hour

// setScript stores a balance only when the recipient's generation still
// matches the one observed before the ledger was read.
var setScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '0' end
if gen ~= ARGV[2] then return 0 end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// invalidateScript drops both currencies and bumps the generation so that
// in-flight reads can no longer store what they folded.
var invalidateScript = redis.NewScript(`
redis.call('DEL', KEYS[1], KEYS[2])
local gen = redis.call('INCR', KEYS[3])
redis.call('PEXPIRE', KEYS[3], ARGV[1])
return gen
`)

// BalanceCache is a read-through cache for folded balances. The ledger stays
// the source of truth: entries are dropped after every committed write and a
// miss always falls back to the store. A nil client turns every call into a
// miss or a no-op.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Lookup is the result of a cache read. Generation must be passed back to
// Set when the miss is filled from the ledger.
type Lookup struct {
	Balance    int64
	Hit        bool
	Generation string
}

// New returns a cache backed by client. client may be nil.
func New(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

// Connect opens a Redis client and pings it. An empty address disables
// caching. When Redis is unreachable the service keeps running uncached.
func Connect(ctx context.Context, cfg models.CacheConfig) *BalanceCache {
	if cfg.Addr == "" {
		zap.L().Info("Balance cache disabled")
		return New(nil, cfg.TTL)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zap.L().Warn("Redis connection failed, continuing without balance cache",
			zap.String("addr", cfg.Addr), zap.Error(err))
		if closeErr := client.Close(); closeErr != nil {
			zap.L().Debug("Failed to close redis client", zap.Error(closeErr))
		}
		return New(nil, cfg.TTL)
	}

	zap.L().Info("Redis connection established", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.TTL))
	return New(client, cfg.TTL)
}

// Key is the balance key of a recipient. Keys of one recipient share a hash
// slot so the scripts stay valid on a cluster.
func Key(recipientId string, currency models.Currency) string {
	return fmt.Sprintf("%s:{%s}:%s", keyPrefix, recipientId, currency)
}

func GenerationKey(recipientId string) string {
	return fmt.Sprintf("%s:{%s}:gen", keyPrefix, recipientId)
}

func (c *BalanceCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get reads a cached balance together with the recipient's generation.
func (c *BalanceCache) Get(ctx context.Context, recipientId string, currency models.Currency) (Lookup, error) {
	if !c.Enabled() {
		return Lookup{}, nil
	}

	values, err := c.client.MGet(ctx, Key(recipientId, currency), GenerationKey(recipientId)).Result()
	if err != nil {
		return Lookup{}, fmt.Errorf("failed to read cached balance: %w", err)
	}
	if len(values) != 2 {
		return Lookup{}, fmt.Errorf("failed to read cached balance: unexpected reply of %d values", len(values))
	}

	lookup := Lookup{Generation: "0"}
	if gen, ok := values[1].(string); ok {
		lookup.Generation = gen
	}
	if raw, ok := values[0].(string); ok {
		lookup.Balance, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Lookup{}, fmt.Errorf("failed to parse cached balance %q: %w", raw, err)
		}
		lookup.Hit = true
	}
	return lookup, nil
}

// Set stores a balance folded after lookup. It reports false without error
// when the recipient was invalidated in between and the value was dropped.
func (c *BalanceCache) Set(ctx context.Context, recipientId string, currency models.Currency, balance int64, generation string) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	stored, err := setScript.Run(ctx, c.client,
		[]string{Key(recipientId, currency), GenerationKey(recipientId)},
		balance, generation, c.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to cache balance: %w", err)
	}
	if stored == 0 {
		zap.L().Debug("Skipped caching balance read before invalidation",
			zap.String("recipient_id", recipientId),
			zap.String("currency", string(currency)))
		return false, nil
	}
	return true, nil
}

// Invalidate drops both currencies of every recipient.
func (c *BalanceCache) Invalidate(ctx context.Context, recipientIds ...string) error {
	if !c.Enabled() || len(recipientIds) == 0 {
		return nil
	}

	for _, id := range recipientIds {
		keys := []string{Key(id, models.TabCoin), Key(id, models.TabCash), GenerationKey(id)}
		if err := invalidateScript.Run(ctx, c.client, keys, generationTTL.Milliseconds()).Err(); err != nil {
			return fmt.Errorf("failed to invalidate cached balances of %s: %w", id, err)
		}
	}

	zap.L().Debug("Invalidated cached balances", zap.Strings("recipients", recipientIds))
	return nil
}

func (c *BalanceCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *BalanceCache) Close() {
	if !c.Enabled() {
		return
	}
	if err := c.client.Close(); err != nil {
		zap.L().Warn("Failed to close redis client", zap.Error(err))
	}
}
