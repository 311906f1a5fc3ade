package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "lock:stock:%s"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker shares per-product locks between terminals that point at the
// same redis.
type RedisLocker struct {
	client   redis.UniversalClient
	ttl      time.Duration
	attempts int
	backoff  time.Duration
	logger   logger.ZapLogger
}

func NewRedisLocker(client redis.UniversalClient, log logger.ZapLogger) *RedisLocker {
	return &RedisLocker{
		client:   client,
		ttl:      5 * time.Second,
		attempts: 3,
		backoff:  100 * time.Millisecond,
		logger:   log,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf(keyPrefix, key)
	token := uuid.New().String()

	acquired := false
	for i := 0; i < l.attempts; i++ {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			l.logger.Error("failed to acquire lock redis error", zap.String("key", lockKey), zap.Error(err))
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}

	if !acquired {
		return nil, apperror.Conflict("lock.Redis", "system busy, please try again later (lock %s)", key)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The caller's ctx may already be cancelled; release regardless.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{lockKey}, token).Err(); err != nil {
			l.logger.Warn("failed to release redis lock", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}
