package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes the lock only when it still holds the caller's token,
// so an expired lock re-acquired by another request is left alone.
const releaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockNotConfigured = errors.New("session_lock_not_configured")
	ErrLockOwnerRequired = errors.New("session_lock_owner_required")
)

// sessionLock is a per-user mutual exclusion on checkout session creation.
// Entries expire after ttl so a crashed request cannot block a user forever.
type sessionLock struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func newSessionLock(client *redis.Client, ttl time.Duration) *sessionLock {
	if client == nil {
		return nil
	}
	return &sessionLock{
		client: client,
		script: redis.NewScript(releaseIfOwner),
		ttl:    ttl,
	}
}

// Acquire returns a release token and whether the lock was taken.
func (l *sessionLock) Acquire(ctx context.Context, owner string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotConfigured
	}
	key, err := lockKey(owner)
	if err != nil {
		return "", false, err
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *sessionLock) Release(ctx context.Context, owner, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	key, err := lockKey(owner)
	if err != nil {
		return err
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

func lockKey(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", ErrLockOwnerRequired
	}
	return fmt.Sprintf(keyCheckoutLock, owner), nil
}
