package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "eventinsight:lease:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease that was taken over elsewhere is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrNotHeld is returned by a release func when the lease expired or moved
// to another holder before release.
var ErrNotHeld = errors.New("lease no longer held")

// Redis hands out named leases stored as expiring keys.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a new lease provider backed by client
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Dial parses a redis:// URL and verifies the server is reachable.
func Dial(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedis(client), nil
}

// Acquire takes the named lease for ttl. ok is false when another holder
// owns it.
func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := keyPrefix + name
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %q: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release lease %q: %w", name, err)
		}
		if n == 0 {
			return ErrNotHeld
		}
		return nil
	}
	return release, true, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Noop always grants the lease. It is used when no redis is configured and
// a single process runs the aggregator.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
