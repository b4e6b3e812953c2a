package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/clock"
)

const (
	DefaultQueueKey     = "gatepass:pass-expiry"
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// RedisQueue keeps pass deadlines in a sorted set scored by unix millis,
// rounded up so a member is never due before its deadline.
// Instances poll for due members and claim each with ZREM, so a pass is
// expired by exactly one poller.
type RedisQueue struct {
	client   redis.Cmdable
	key      string
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	batch    int64

	mu      sync.RWMutex
	expirer Expirer
}

type QueueOption func(*RedisQueue)

func WithPollInterval(d time.Duration) QueueOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.interval = d
		}
	}
}

func WithBatchSize(n int) QueueOption {
	return func(q *RedisQueue) {
		if n > 0 {
			q.batch = int64(n)
		}
	}
}

func WithKey(key string) QueueOption {
	return func(q *RedisQueue) {
		if key != "" {
			q.key = key
		}
	}
}

func NewRedisQueue(client redis.Cmdable, c clock.Clock, logger *slog.Logger, opts ...QueueOption) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &RedisQueue{
		client:   client,
		key:      DefaultQueueKey,
		clock:    c,
		logger:   logger,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) Bind(e Expirer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.expirer = e
}

func (q *RedisQueue) Schedule(ctx context.Context, passID id.PassID, deadline time.Time) error {
	err := q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(scoreOf(deadline)),
		Member: passID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule expiry: %w", err)
	}
	return nil
}

func scoreOf(deadline time.Time) int64 {
	return (deadline.UnixNano() + int64(time.Millisecond) - 1) / int64(time.Millisecond)
}

func (q *RedisQueue) Cancel(ctx context.Context, passID id.PassID) error {
	if err := q.client.ZRem(ctx, q.key, passID.String()).Err(); err != nil {
		return fmt.Errorf("cancel expiry: %w", err)
	}
	return nil
}

// Run polls until ctx is cancelled.
func (q *RedisQueue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	q.logger.InfoContext(ctx, "expiry queue started", "key", q.key, "interval", q.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := q.Poll(ctx); err != nil && ctx.Err() == nil {
				q.logger.WarnContext(ctx, "expiry poll failed", "error", err)
			}
		}
	}
}

// Poll claims and expires every due pass in one batch. It returns how many
// passes this instance claimed.
func (q *RedisQueue) Poll(ctx context.Context) (int, error) {
	q.mu.RLock()
	expirer := q.expirer
	q.mu.RUnlock()
	if expirer == nil {
		return 0, fmt.Errorf("expiry queue has no expirer bound")
	}

	due, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.clock.Now().UnixMilli(), 10),
		Count: q.batch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read due passes: %w", err)
	}

	claimed := 0
	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.key, member).Result()
		if err != nil {
			return claimed, fmt.Errorf("claim %s: %w", member, err)
		}
		if removed == 0 {
			continue
		}
		claimed++
		passID, err := id.ParsePassID(member)
		if err != nil {
			q.logger.WarnContext(ctx, "dropping malformed expiry member", "member", member)
			continue
		}
		expire(ctx, q.logger, expirer, passID)
	}
	return claimed, nil
}

// Len reports how many deadlines are queued.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}
