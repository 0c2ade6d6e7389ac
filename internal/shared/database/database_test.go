package database

import (
	"context"
	"testing"

	"academy/internal/notifications"
	"academy/internal/sessions"
	"academy/internal/waitlist"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMigrate_CreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	for _, model := range []interface{}{
		&sessions.SessionCapacity{},
		&waitlist.Entry{},
		&notifications.DeliveryLog{},
		&notifications.DeadLetter{},
	} {
		assert.True(t, db.Migrator().HasTable(model))
	}
	assert.True(t, db.Migrator().HasIndex(&waitlist.Entry{}, "idx_waitlist_active_entrant"))

	// a second run is a no-op
	require.NoError(t, Migrate(db))
}

func TestDB_HealthCheckAndClose(t *testing.T) {
	pg, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	mr := miniredis.RunT(t)

	db := &DB{PostgreSQL: pg, Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	require.NoError(t, db.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, db.HealthCheck(context.Background()))

	assert.NoError(t, db.Close())
}
