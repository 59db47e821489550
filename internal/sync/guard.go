package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/logger"
)

// JobGuard keeps a named scheduled job from running twice at once. Do
// reports false when someone else holds the job.
type JobGuard interface {
	Do(ctx context.Context, job string, fn func(ctx context.Context)) (bool, error)
}

// LocalGuard serializes jobs within one process.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]bool)}
}

func (g *LocalGuard) Do(ctx context.Context, job string, fn func(ctx context.Context)) (bool, error) {
	g.mu.Lock()
	if g.held[job] {
		g.mu.Unlock()
		return false, nil
	}
	g.held[job] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.held, job)
		g.mu.Unlock()
	}()
	fn(ctx)
	return true, nil
}

// RedisGuard holds a redis lock per job so that only one replica runs it.
// The in-process guard is checked first so a replica never blocks itself.
type RedisGuard struct {
	client *redis.Client
	locker *redislock.Client
	ttl    time.Duration
	local  *LocalGuard
}

func NewRedisGuard(cfg config.RedisConfig) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	logger.Log.Info("Connected to redis", zap.String("addr", cfg.Addr))
	return &RedisGuard{
		client: client,
		locker: redislock.New(client),
		ttl:    ttl,
		local:  NewLocalGuard(),
	}, nil
}

func (g *RedisGuard) Do(ctx context.Context, job string, fn func(ctx context.Context)) (bool, error) {
	var obtainErr error
	ran, err := g.local.Do(ctx, job, func(ctx context.Context) {
		lock, err := g.locker.Obtain(ctx, "erpsync:job:"+job, g.ttl, nil)
		if err != nil {
			obtainErr = err
			return
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Log.Warn("Failed to release job lock", zap.String("job", job), zap.Error(err))
			}
		}()
		stop := keepAlive(ctx, lock, job, g.ttl)
		defer stop()
		fn(ctx)
	})
	if err != nil || !ran {
		return ran, err
	}
	if errors.Is(obtainErr, redislock.ErrNotObtained) {
		return false, nil
	}
	if obtainErr != nil {
		return false, fmt.Errorf("failed to obtain job lock: %w", obtainErr)
	}
	return true, nil
}

type lockRefresher interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
}

// keepAlive extends lock to ttl every third of ttl until stop is called, so
// a job may run longer than the lock's initial lifetime.
func keepAlive(ctx context.Context, lock lockRefresher, job string, ttl time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	interval := max(ttl/3, time.Millisecond)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := lock.Refresh(ctx, ttl, nil)
			if err == nil || ctx.Err() != nil {
				continue
			}
			logger.Log.Warn("Failed to refresh job lock", zap.String("job", job), zap.Error(err))
			if errors.Is(err, redislock.ErrNotObtained) {
				// Someone else owns the key now.
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
