package lock

import (
	"context"
	"fmt"
	"time"

	"deal_staleness_monitor/internal/infra/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "deal-staleness:lock:"

// Deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	logger *logrus.Entry
}

// NewRedisLocker parses the URL and pings the server.
func NewRedisLocker(ctx context.Context, url string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisLocker{client: client, logger: logger.Component("redis_locker")}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return func() {
		// The run context may already be cancelled; release with a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
			l.logger.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Failed to release run lock")
		}
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
