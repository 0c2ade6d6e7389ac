package waitlist

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"academy/internal/shared/constants"
	"academy/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisLocker(t *testing.T, ttl, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	return newMiniredisLockerWithLogger(t, ttl, wait, logger.NewNop())
}

func newMiniredisLockerWithLogger(t *testing.T, ttl, wait time.Duration, log *logger.Logger) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl, wait, log), mr
}

func lockerFactories() map[string]func(t *testing.T) Locker {
	return map[string]func(t *testing.T) Locker{
		"local": func(t *testing.T) Locker { return NewLocalLocker(time.Second) },
		"redis": func(t *testing.T) Locker {
			l, _ := newMiniredisLocker(t, 5*time.Second, time.Second)
			return l
		},
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	for name, factory := range lockerFactories() {
		t.Run(name, func(t *testing.T) {
			locker := factory(t)
			var inside, maxInside int32
			var wg sync.WaitGroup

			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := locker.Lock(context.Background(), "s1")
					if !assert.NoError(t, err) {
						return
					}
					n := atomic.AddInt32(&inside, 1)
					for {
						m := atomic.LoadInt32(&maxInside)
						if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					unlock()
				}()
			}
			wg.Wait()

			assert.EqualValues(t, 1, maxInside)
		})
	}
}

func TestLocker_SessionsAreIndependent(t *testing.T) {
	for name, factory := range lockerFactories() {
		t.Run(name, func(t *testing.T) {
			locker := factory(t)

			unlock1, err := locker.Lock(context.Background(), "s1")
			require.NoError(t, err)
			defer unlock1()

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			unlock2, err := locker.Lock(ctx, "s2")
			require.NoError(t, err)
			unlock2()
		})
	}
}

func TestLocker_TimesOutWhenBusy(t *testing.T) {
	for name, factory := range lockerFactories() {
		t.Run(name, func(t *testing.T) {
			locker := factory(t)

			unlock, err := locker.Lock(context.Background(), "s1")
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err = locker.Lock(ctx, "s1")
			assert.ErrorIs(t, err, ErrSessionBusy)

			unlock()
			unlock() // second call is a no-op

			again, err := locker.Lock(context.Background(), "s1")
			require.NoError(t, err)
			again()
		})
	}
}

func TestLocalLocker_ForgetsIdleSessions(t *testing.T) {
	locker := NewLocalLocker(0)

	unlock, err := locker.Lock(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, locker.locks, 1)
	unlock()
	assert.Empty(t, locker.locks)
}

func TestRedisLocker_DoesNotReleaseForeignLock(t *testing.T) {
	locker, mr := newMiniredisLocker(t, time.Second, 100*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "s1")
	require.NoError(t, err)

	// the lease ran out and another instance took over
	key := constants.WaitlistLockKey("s1")
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists(key))
	require.NoError(t, mr.Set(key, "someone-else"))

	unlock()
	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestRedisLocker_LogsFailedRelease(t *testing.T) {
	var buf bytes.Buffer
	locker, mr := newMiniredisLockerWithLogger(t, time.Second, 100*time.Millisecond, logger.NewWithWriter(&buf, "debug", true))

	unlock, err := locker.Lock(context.Background(), "s1")
	require.NoError(t, err)
	mr.Close()
	unlock()

	assert.Contains(t, buf.String(), "Failed to release session lock")
	assert.Contains(t, buf.String(), `"session_id":"s1"`)
}

func TestRedisLocker_LogsExpiredLease(t *testing.T) {
	var buf bytes.Buffer
	locker, mr := newMiniredisLockerWithLogger(t, time.Second, 100*time.Millisecond, logger.NewWithWriter(&buf, "debug", true))

	unlock, err := locker.Lock(context.Background(), "s1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	unlock()

	assert.Contains(t, buf.String(), "Session lock lease expired before release")
	assert.NotContains(t, buf.String(), "Failed to release session lock")
}
