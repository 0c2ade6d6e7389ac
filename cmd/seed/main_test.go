package main

import (
	"context"
	"testing"
	"time"

	"academy/internal/sessions"
	"academy/internal/shared/database"
	"academy/internal/waitlist"
	"academy/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestSeeder(t *testing.T) (*Seeder, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	store := sessions.NewPostgresStore(db)
	return NewSeeder(db, store, waitlist.NewLocalLocker(time.Second), waitlist.DefaultManagerConfig(), logger.NewNop()), db
}

func TestSeeder_SeedAll(t *testing.T) {
	seeder, db := newTestSeeder(t)
	ctx := context.Background()

	require.NoError(t, seeder.SeedAll(ctx, defaultSessions))

	full, err := seeder.capacity.GetCapacity(ctx, "junior-clinic-sat-0900")
	require.NoError(t, err)
	assert.Equal(t, 8, full.ConfirmedCount)
	assert.True(t, full.IsFull())

	var entries []waitlist.Entry
	require.NoError(t, db.Where("session_id = ?", "junior-clinic-sat-0900").Order("position").Find(&entries).Error)
	require.Len(t, entries, 3)
	assert.Equal(t, "student-ava", entries[0].EntrantID)
	assert.Equal(t, 3, entries[2].Position)

	open, err := seeder.capacity.GetCapacity(ctx, "private-lesson-fri-1500")
	require.NoError(t, err)
	assert.Equal(t, 1, open.Available())
}

func TestSeeder_Reseed(t *testing.T) {
	seeder, db := newTestSeeder(t)
	ctx := context.Background()

	require.NoError(t, seeder.SeedAll(ctx, defaultSessions))
	require.NoError(t, seeder.CleanDatabase(ctx))

	var count int64
	require.NoError(t, db.Model(&waitlist.Entry{}).Count(&count).Error)
	assert.Zero(t, count)

	// a smaller ceiling over existing counters still applies
	require.NoError(t, seeder.SeedAll(ctx, defaultSessions))
	require.NoError(t, seeder.SeedAll(ctx, []sessionSeed{{ID: "junior-clinic-sat-1100", MaxCapacity: 2, Confirmed: 1}}))
	c, err := seeder.capacity.GetCapacity(ctx, "junior-clinic-sat-1100")
	require.NoError(t, err)
	assert.Equal(t, 2, c.MaxCapacity)
	assert.Equal(t, 1, c.ConfirmedCount)
}
