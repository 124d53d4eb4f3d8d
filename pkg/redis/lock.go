package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock
var ErrLockHeld = errors.New("lock already held")

// releaseScript deletes the key only if the caller still owns it
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Locker hands out short-lived mutual-exclusion locks.
// Redis가 비활성이면 프로세스 내부 잠금으로 대체
type Locker struct {
	client *Client
	prefix string

	mu    sync.Mutex
	local map[string]string
}

// NewLocker creates a new locker
func NewLocker(client *Client, prefix string) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
		local:  make(map[string]string),
	}
}

// Acquire takes the named lock for ttl and returns its release function
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	key := fmt.Sprintf("%s:lock:%s", l.prefix, name)

	if !l.client.Enabled() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, held := l.local[key]; held {
			return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
		}
		l.local[key] = token
		return func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.local[key] == token {
				delete(l.local, key)
			}
		}, nil
	}

	ok, err := l.client.Redis().SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
	}

	return func() {
		// 요청 컨텍스트가 취소돼도 해제는 수행
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client.Redis(), []string{key}, token).Err()
	}, nil
}
