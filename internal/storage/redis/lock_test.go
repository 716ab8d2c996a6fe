package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memClient emulates SET NX and the release script on a map.
type memClient struct {
	values  map[string]string
	ttls    map[string]time.Duration
	setErr  error
	scripts int
}

func newMemClient() *memClient {
	return &memClient{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memClient) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if c.setErr != nil {
		return redis.NewBoolResult(false, c.setErr)
	}
	if _, ok := c.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	c.values[key] = fmt.Sprint(value)
	c.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (c *memClient) release(keys []string, args []any) *redis.Cmd {
	c.scripts++
	if c.values[keys[0]] == fmt.Sprint(args[0]) {
		delete(c.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (c *memClient) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return c.release(keys, args)
}

func (c *memClient) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return c.release(keys, args)
}

func (c *memClient) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return c.Eval(ctx, script, keys, args...)
}

func (c *memClient) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return c.EvalSha(ctx, sha, keys, args...)
}

func (c *memClient) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (c *memClient) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestSubmitLock_Exclusive(t *testing.T) {
	ctx := context.Background()
	c := newMemClient()
	lock := newSubmitLock(c, 0)

	release, err := lock.Acquire(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, c.ttls["checkout:submit:{order-1}"])

	_, err = lock.Acquire(ctx, "order-1")
	assert.ErrorIs(t, err, ErrLocked)

	other, err := lock.Acquire(ctx, "order-2")
	require.NoError(t, err)
	other()

	release()
	release()
	assert.Equal(t, 1, c.scripts)

	again, err := lock.Acquire(ctx, "order-1")
	require.NoError(t, err)
	again()
}

func TestSubmitLock_ReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	c := newMemClient()
	lock := newSubmitLock(c, time.Second)

	release, err := lock.Acquire(ctx, "order-1")
	require.NoError(t, err)

	// The lock expired and another holder took it over.
	c.values["checkout:submit:{order-1}"] = "someone-else"
	release()

	assert.Equal(t, "someone-else", c.values["checkout:submit:{order-1}"])
}

func TestSubmitLock_Error(t *testing.T) {
	c := newMemClient()
	c.setErr = errors.New("connection refused")

	_, err := newSubmitLock(c, time.Second).Acquire(context.Background(), "order-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, c.setErr)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestNoopLock(t *testing.T) {
	release, err := NoopLock{}.Acquire(context.Background(), "order-1")
	require.NoError(t, err)
	release()
}
