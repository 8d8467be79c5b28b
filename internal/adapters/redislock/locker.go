// Package redislock guards definitions against concurrent runs across processes with Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	"github.com/SscSPs/recurring_journal_engine/internal/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed run can keep a definition locked.
	DefaultTTL = 2 * time.Minute

	keyPrefix         = "rje:run-lock:"
	connectionTimeout = 5 * time.Second
	releaseTimeout    = 5 * time.Second
)

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Config holds Redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Locker is a gateways.RunLocker backed by SET NX with a TTL.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker creates a Locker. A non-positive ttl uses DefaultTTL.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{client: client, ttl: ttl}
}

var _ gateways.RunLocker = (*Locker)(nil)

// TryAcquire implements gateways.RunLocker.
func (l *Locker) TryAcquire(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock for %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRunInProgress, key)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// released even when the run's context was cancelled
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			n, err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Int()
			logger := middleware.GetLoggerFromCtx(ctx)
			if err != nil {
				logger.Error("Failed to release run lock", "key", redisKey, "error", err)
				return
			}
			if n == 0 {
				logger.Warn("Run lock expired before release", "key", redisKey, "ttl", l.ttl)
			}
		})
	}
	return release, nil
}
