package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis distributed lock: SET key value NX EX for acquisition, a Lua
// check-and-delete for release so a holder can never delete someone else's
// lock after its own expired.
//
// In this system the lock is a throughput guard against duplicate
// submissions (same user hammering redeem/activate); ledger correctness
// comes from the store transaction, not from the lock.

var (
	ErrLockFailed = errors.New("failed to acquire distributed lock")
)

type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // holder identity, verified on release
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts a non-blocking acquisition.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock acquires with retries, honoring ctx cancellation.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock if this instance still holds it.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewRedeemLock serializes redemption attempts per redeemer. Different
// users redeem concurrently; one user cannot double-submit.
func NewRedeemLock(client *redis.Client, redeemerID int64, token string) *DistributedLock {
	key := fmt.Sprintf("redeem:lock:user:%d", redeemerID)
	return NewDistributedLock(client, key, token, 30*time.Second)
}

// NewActivateLock serializes activation attempts per credit key code.
func NewActivateLock(client *redis.Client, code, token string) *DistributedLock {
	key := fmt.Sprintf("creditkey:lock:code:%s", code)
	return NewDistributedLock(client, key, token, 30*time.Second)
}
