package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/pkg/logger"
)

// DefaultTTL bounds how long a crashed replica can keep a thread locked.
const DefaultTTL = 5 * time.Minute

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedis connects to the server at url (redis://...) and checks it responds.
func NewRedis(ctx context.Context, url string, ttl time.Duration, log *logger.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedis(client, ttl, log), nil
}

func newRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, logger: log}
}

func lockKey(threadID string) string {
	return "lock:thread:" + threadID
}

// Acquire locks threadID or returns ErrHeld.
func (r *Redis) Acquire(ctx context.Context, threadID string) (func(), error) {
	key := lockKey(threadID)
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Warn("failed to release thread lock",
					zap.String("thread_id", threadID),
					zap.Error(err),
				)
			}
		})
	}, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
