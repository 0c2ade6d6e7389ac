package waitlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"academy/internal/shared/constants"
	"academy/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker provides the per-session critical section. Different sessions never contend.
type Locker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// LocalLocker serialises sessions inside one process
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
	wait  time.Duration
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker returns a keyed mutex. wait bounds how long Lock blocks, zero means until ctx is done.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*sessionLock),
		wait:  wait,
	}
}

func (l *LocalLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[sessionID]
	if !ok {
		sl = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[sessionID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case sl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, sl)
		return nil, fmt.Errorf("%w: %w", ErrSessionBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-sl.sem
			l.release(sessionID, sl)
		})
	}, nil
}

func (l *LocalLocker) release(sessionID string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// Lua script releasing the lock only when we still own it
const luaReleaseLock = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker serialises sessions across instances with SET NX PX and a random token
type RedisLocker struct {
	redis   *redis.Client
	ttl     time.Duration
	wait    time.Duration
	retry   time.Duration
	release *redis.Script
	logger  *logger.Logger
}

// NewRedisLocker builds a distributed lock. ttl must exceed the longest critical section.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, log *logger.Logger) *RedisLocker {
	if log == nil {
		log = logger.GetDefault()
	}
	return &RedisLocker{
		redis:   client,
		ttl:     ttl,
		wait:    wait,
		retry:   25 * time.Millisecond,
		release: redis.NewScript(luaReleaseLock),
		logger:  log.WithComponent("session_lock"),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := constants.WaitlistLockKey(sessionID)
	token := uuid.NewString()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrSessionBusy, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-time.After(l.retry):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrSessionBusy, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			released, err := l.release.Run(releaseCtx, l.redis, []string{key}, token).Int()
			switch {
			case err != nil:
				// the lease still expires after ttl
				l.logger.ErrorWithContext(releaseCtx, "Failed to release session lock", err,
					map[string]interface{}{"session_id": sessionID, "ttl": l.ttl.String()})
			case released == 0:
				l.logger.WarnContext(releaseCtx, "Session lock lease expired before release", "session_id", sessionID)
			}
		})
	}, nil
}
