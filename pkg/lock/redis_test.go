package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps keys in a map and ignores TTLs
type fakeRedis struct {
	keys    map[string]string
	failSet bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]string{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	if f.failSet {
		return redis.NewBoolResult(false, fmt.Errorf("connection refused"))
	}
	if _, exists := f.keys[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	locker := &RedisLocker{rdb: rdb}

	token, ok, err := locker.Acquire(ctx, "reservation:sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = locker.Acquire(ctx, "reservation:sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, locker.Release(ctx, "reservation:sweep", "someone-else"))
	_, stillHeld := rdb.keys["reservation:sweep"]
	assert.True(t, stillHeld, "foreign token must not release the lease")

	require.NoError(t, locker.Release(ctx, "reservation:sweep", token))

	_, ok, err = locker.Acquire(ctx, "reservation:sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_AcquireError(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failSet = true
	locker := &RedisLocker{rdb: rdb}

	_, ok, err := locker.Acquire(context.Background(), "reservation:sweep", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
