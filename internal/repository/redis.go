package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cabinres/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// снимаем блокировку только если она всё ещё наша
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// продлеваем аренду только если она всё ещё наша
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisCabinLocker holds a per-cabin lease in redis so several API processes can share one
// booking store. The lease is renewed while the callback runs. It only keeps writers from
// queueing on the database; the immediate sqlite transaction inside the callback is what
// serializes the availability check and the write.
type RedisCabinLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  RetryPolicy
	logger *zerolog.Logger
}

func NewRedisCabinLocker(client *redis.Client, ttl time.Duration, retry RetryPolicy, logger *zerolog.Logger) *RedisCabinLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisCabinLocker{
		client: client,
		ttl:    ttl,
		retry:  retry,
		logger: logger,
	}
}

func lockKey(cabinID int64) string {
	return fmt.Sprintf("cabin_lock:%d", cabinID)
}

func (l *RedisCabinLocker) WithCabinLock(ctx context.Context, cabinID int64, fn func(ctx context.Context) error) error {
	if l.client == nil {
		return fmt.Errorf("%w: redis client is nil", ErrLockUnavailable)
	}

	token := uuid.NewString()
	if err := l.acquire(ctx, cabinID, token); err != nil {
		return err
	}
	defer l.release(cabinID, token)

	leaseCtx, cancel := context.WithCancelCause(ctx)
	renewing := make(chan struct{})
	go func() {
		defer close(renewing)
		l.keepAlive(leaseCtx, cabinID, token, cancel)
	}()

	err := fn(leaseCtx)
	cancel(nil)
	<-renewing
	return err
}

// keepAlive extends the lease every third of its ttl until ctx ends. A lease that is no
// longer ours cancels ctx with ErrLockLost.
func (l *RedisCabinLocker) keepAlive(ctx context.Context, cabinID int64, token string, cancel context.CancelCauseFunc) {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	key := lockKey(cabinID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn().Err(err).Int64("cabin_id", cabinID).Msg("failed to extend cabin lock")
			continue
		}
		if n == 0 {
			l.logger.Warn().Int64("cabin_id", cabinID).Msg("cabin lock lost while held")
			cancel(fmt.Errorf("cabin %d: %w", cabinID, ErrLockLost))
			return
		}
	}
}

func (l *RedisCabinLocker) acquire(ctx context.Context, cabinID int64, token string) error {
	key := lockKey(cabinID)
	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("acquire cabin %d: %w", cabinID, ctx.Err())
			}
			return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if ok {
			return nil
		}
		if attempt >= l.retry.MaxRetries {
			return fmt.Errorf("cabin %d: %w", cabinID, ErrLockBusy)
		}

		timer := time.NewTimer(l.retry.NextDelay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("acquire cabin %d: %w", cabinID, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *RedisCabinLocker) release(cabinID int64, token string) {
	// снятие не должно зависеть от отменённого контекста запроса
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{lockKey(cabinID)}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn().Err(err).Int64("cabin_id", cabinID).Msg("failed to release cabin lock")
		return
	}
	if n == 0 {
		l.logger.Warn().Int64("cabin_id", cabinID).Dur("ttl", l.ttl).Msg("cabin lock expired before release")
	}
}
