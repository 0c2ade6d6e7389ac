package sessions

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&SessionCapacity{}))
	return NewPostgresStore(db)
}

func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory":   func(t *testing.T) Store { return NewMemoryStore() },
		"redis":    func(t *testing.T) Store { return newRedisStore(t) },
		"postgres": func(t *testing.T) Store { return newPostgresStore(t) },
	}
}

func TestStore_UnknownSession(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			_, err := store.GetCapacity(ctx, "missing")
			assert.ErrorIs(t, err, ErrSessionNotFound)

			_, err = store.IncrementConfirmed(ctx, "missing")
			assert.ErrorIs(t, err, ErrSessionNotFound)

			_, err = store.DecrementConfirmed(ctx, "missing")
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStore_IncrementStopsAtMax(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			_, err := store.SetMaxCapacity(ctx, "s1", 2)
			require.NoError(t, err)

			n, err := store.IncrementConfirmed(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = store.IncrementConfirmed(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, err = store.IncrementConfirmed(ctx, "s1")
			assert.ErrorIs(t, err, ErrSessionFull)

			capacity, err := store.GetCapacity(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 2, capacity.ConfirmedCount)
			assert.Equal(t, 2, capacity.MaxCapacity)
			assert.True(t, capacity.IsFull())
		})
	}
}

func TestStore_DecrementFloorsAtZero(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			_, err := store.SetMaxCapacity(ctx, "s1", 1)
			require.NoError(t, err)
			_, err = store.IncrementConfirmed(ctx, "s1")
			require.NoError(t, err)

			n, err := store.DecrementConfirmed(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			n, err = store.DecrementConfirmed(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestStore_SetMaxCapacityBelowConfirmed(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			_, err := store.SetMaxCapacity(ctx, "s1", 3)
			require.NoError(t, err)
			for i := 0; i < 3; i++ {
				_, err = store.IncrementConfirmed(ctx, "s1")
				require.NoError(t, err)
			}

			_, err = store.SetMaxCapacity(ctx, "s1", 2)
			assert.ErrorIs(t, err, ErrInvalidCapacity)

			capacity, err := store.SetMaxCapacity(ctx, "s1", 5)
			require.NoError(t, err)
			assert.Equal(t, 3, capacity.ConfirmedCount)
			assert.Equal(t, 5, capacity.MaxCapacity)
			assert.Equal(t, 2, capacity.Available())

			_, err = store.SetMaxCapacity(ctx, "s1", -1)
			assert.ErrorIs(t, err, ErrInvalidCapacity)
		})
	}
}

func TestStore_ConcurrentIncrementNeverExceedsMax(t *testing.T) {
	for name, factory := range map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis":  func(t *testing.T) Store { return newRedisStore(t) },
	} {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			_, err := store.SetMaxCapacity(ctx, "s1", 5)
			require.NoError(t, err)

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				granted int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := store.IncrementConfirmed(ctx, "s1"); err == nil {
						mu.Lock()
						granted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 5, granted)
			capacity, err := store.GetCapacity(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 5, capacity.ConfirmedCount)
		})
	}
}

func TestRedisStore_PreloadScripts(t *testing.T) {
	store := newRedisStore(t)
	require.NoError(t, store.PreloadScripts(context.Background()))
}

func TestCapacity_Available(t *testing.T) {
	assert.Equal(t, 0, Capacity{ConfirmedCount: 4, MaxCapacity: 3}.Available())
	assert.Equal(t, 2, Capacity{ConfirmedCount: 1, MaxCapacity: 3}.Available())
}
