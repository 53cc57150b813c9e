package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

const dayLayout = "2006-01-02"

type usageKey struct {
	account int64
	day     string
}

// MemoryUsageTracker keeps daily usage for the lifetime of the process.
type MemoryUsageTracker struct {
	mu    sync.Mutex
	usage map[usageKey]decimal.Decimal
}

func NewMemoryUsageTracker() *MemoryUsageTracker {
	return &MemoryUsageTracker{usage: make(map[usageKey]decimal.Decimal)}
}

func (t *MemoryUsageTracker) Used(_ context.Context, accountNumber int64, day time.Time) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage[usageKey{accountNumber, day.Format(dayLayout)}], nil
}

func (t *MemoryUsageTracker) Add(_ context.Context, accountNumber int64, day time.Time, amount decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := usageKey{accountNumber, day.Format(dayLayout)}
	t.usage[k] = t.usage[k].Add(amount)
	return nil
}

// RedisUsageTracker stores daily usage in Redis so the limit survives restarts.
// Keys expire two days after first use.
type RedisUsageTracker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisUsageTracker(client redis.UniversalClient, logger *slog.Logger) *RedisUsageTracker {
	return &RedisUsageTracker{
		client: client,
		prefix: "ledger:usage",
		ttl:    48 * time.Hour,
		logger: logger,
	}
}

func (t *RedisUsageTracker) key(accountNumber int64, day time.Time) string {
	return fmt.Sprintf("%s:%d:%s", t.prefix, accountNumber, day.Format(dayLayout))
}

func (t *RedisUsageTracker) Used(ctx context.Context, accountNumber int64, day time.Time) (decimal.Decimal, error) {
	val, err := t.client.Get(ctx, t.key(accountNumber, day)).Result()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		t.logger.Error("Failed to read daily usage", "account_number", accountNumber, "error", err)
		return decimal.Zero, errors.NewAppError(errors.InternalError, "failed to read daily usage").WithDetails(err.Error())
	}
	used, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, errors.NewAppError(errors.InternalError, "corrupt daily usage value").WithDetails(err.Error())
	}
	return used, nil
}

// Add stores the running total as a decimal string; INCRBYFLOAT would
// introduce binary rounding into money amounts.
func (t *RedisUsageTracker) Add(ctx context.Context, accountNumber int64, day time.Time, amount decimal.Decimal) error {
	key := t.key(accountNumber, day)
	err := t.client.Watch(ctx, func(tx *redis.Tx) error {
		current := decimal.Zero
		val, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			if current, err = decimal.NewFromString(val); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, current.Add(amount).String(), t.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		t.logger.Error("Failed to record daily usage", "account_number", accountNumber, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to record daily usage").WithDetails(err.Error())
	}
	return nil
}

var (
	_ domain.UsageTracker = (*MemoryUsageTracker)(nil)
	_ domain.UsageTracker = (*RedisUsageTracker)(nil)
)
