// Package redis serializes checkout submissions per order with a Redis lock.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another submission for the same order is in
// flight.
var ErrLocked = errors.New("checkout submission in progress")

// DefaultTTL bounds how long a crashed holder can block an order.
const DefaultTTL = 30 * time.Second

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
end
return 0
`)

// SubmitLock grants one in-flight step update per order.
type SubmitLock struct {
	client client
	ttl    time.Duration
	token  func() string
}

type client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// NewSubmitLock returns a SubmitLock on c. A non-positive ttl selects
// DefaultTTL.
func NewSubmitLock(c *redis.Client, ttl time.Duration) *SubmitLock {
	return newSubmitLock(c, ttl)
}

func newSubmitLock(c client, ttl time.Duration) *SubmitLock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SubmitLock{
		client: c,
		ttl:    ttl,
		token:  uuid.NewString,
	}
}

// Acquire takes the lock for orderID. It returns ErrLocked when the lock is
// held elsewhere. The returned release is safe to call more than once and
// never deletes a lock taken over after expiry.
func (l *SubmitLock) Acquire(ctx context.Context, orderID string) (release func(), err error) {
	key := lockKey(orderID)
	token := l.token()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "acquire submit lock for order %s", orderID)
	}
	if !ok {
		return nil, ErrLocked
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}, nil
}

// Ping reports whether Redis is reachable.
func Ping(ctx context.Context, c *redis.Client) error {
	return c.Ping(ctx).Err()
}

func lockKey(orderID string) string {
	return "checkout:submit:{" + orderID + "}"
}

// NoopLock never blocks.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
