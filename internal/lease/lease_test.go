package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), mr
}

func TestRedis_AcquireIsExclusive(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	release, ok, err := r.Acquire(ctx, "aggregate-events", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(keyPrefix+"aggregate-events"))

	_, ok, err = r.Acquire(ctx, "aggregate-events", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, err = r.Acquire(ctx, "other-job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "leases are per name")

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(keyPrefix+"aggregate-events"))

	_, ok, err = r.Acquire(ctx, "aggregate-events", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ExpiredLeaseCanBeTakenOver(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	staleRelease, ok, err := r.Acquire(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = r.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, staleRelease(ctx), ErrNotHeld)
	assert.True(t, mr.Exists(keyPrefix+"job"), "stale holder must not release the new lease")
}

func TestRedis_AcquireFailsWhenServerDown(t *testing.T) {
	r, mr := newTestRedis(t)
	mr.Close()

	_, ok, err := r.Acquire(context.Background(), "job", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := Dial(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer r.Close()

	_, err = Dial(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	release, ok, err := Noop{}.Acquire(context.Background(), "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, release(context.Background()))
}
