package locker

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

const keyPrefix = "fusion-bridge:lock:"

var ErrLockBusy = errors.New("lock is held by another process")

// releaseScript deletes the key only if it still carries our token, so a
// lock that expired and was taken over is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SETNX lock with a TTL, shared between processes.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger

	// maxWait bounds how long Lock retries a busy key.
	maxWait time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{client: client, ttl: ttl, logger: logger, maxWait: ttl}
}

// Dial parses url, applies password when set and pings the server.
func Dial(url, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if password != "" {
		opts.Password = password
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	storageKey := keyPrefix + key
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = r.maxWait

	err := backoff.Retry(func() error {
		ok, err := r.client.SetNX(ctx, storageKey, token, r.ttl).Result()
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "redis setnx"))
		}
		if !ok {
			return ErrLockBusy
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{storageKey}, token).Err(); err != nil {
				r.logger.Error("[Redis.Lock][releaseScript.Run] failed to release lock", map[string]string{
					"key":   storageKey,
					"error": err.Error(),
				})
			}
		})
	}, nil
}
