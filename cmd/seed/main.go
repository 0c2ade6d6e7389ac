package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"academy/api/routes"
	"academy/internal/notifications"
	"academy/internal/sessions"
	"academy/internal/shared/config"
	"academy/internal/shared/database"
	"academy/internal/waitlist"
	"academy/pkg/logger"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

// sessionSeed is one academy session and how many of its slots are already taken
type sessionSeed struct {
	ID          string
	MaxCapacity int
	Confirmed   int
	Waiting     []waitlistSeed
}

type waitlistSeed struct {
	EntrantID string
	Contact   waitlist.Contact
}

var defaultSessions = []sessionSeed{
	{ID: "junior-clinic-sat-0900", MaxCapacity: 8, Confirmed: 8, Waiting: []waitlistSeed{
		{EntrantID: "student-ava", Contact: waitlist.Contact{Phone: "+15550100001", Email: "ava.parent@example.com"}},
		{EntrantID: "student-leo", Contact: waitlist.Contact{Phone: "+15550100002"}},
		{EntrantID: "student-mia", Contact: waitlist.Contact{Email: "mia.parent@example.com"}},
	}},
	{ID: "junior-clinic-sat-1100", MaxCapacity: 8, Confirmed: 5},
	{ID: "short-game-wed-1600", MaxCapacity: 6, Confirmed: 6, Waiting: []waitlistSeed{
		{EntrantID: "student-noah", Contact: waitlist.Contact{Phone: "+15550100004"}},
	}},
	{ID: "private-lesson-fri-1500", MaxCapacity: 1, Confirmed: 0},
}

// Seeder fills the capacity store and demo queues
type Seeder struct {
	db       *gorm.DB
	capacity sessions.Store
	manager  *waitlist.Manager
	logger   *logger.Logger
}

func main() {
	appLogger := logger.GetDefault()
	if err := godotenv.Load(); err != nil {
		appLogger.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("Failed to initialize database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	capacity, err := routes.NewCapacityStore(cfg, db, appLogger)
	if err != nil {
		appLogger.Error("Failed to open capacity store", slog.Any("error", err))
		os.Exit(1)
	}

	seeder := NewSeeder(db.GetPostgreSQL(), capacity, routes.NewLocker(cfg, db, appLogger), routes.NewManagerConfig(cfg), appLogger)
	ctx := context.Background()

	appLogger.Info("Cleaning database")
	if err := seeder.CleanDatabase(ctx); err != nil {
		appLogger.Error("Failed to clean database", slog.Any("error", err))
		os.Exit(1)
	}

	appLogger.Info("Seeding sessions", slog.Int("sessions", len(defaultSessions)))
	if err := seeder.SeedAll(ctx, defaultSessions); err != nil {
		appLogger.Error("Failed to seed database", slog.Any("error", err))
		os.Exit(1)
	}

	appLogger.Info("Seeding completed")
}

// NewSeeder builds a manager without a gateway, joins send no messages
func NewSeeder(db *gorm.DB, capacity sessions.Store, locker waitlist.Locker, mc *waitlist.ManagerConfig, log *logger.Logger) *Seeder {
	manager := waitlist.NewManager(waitlist.NewGormRepository(db), capacity, nil, locker, waitlist.SystemClock{}, mc, log)
	return &Seeder{db: db, capacity: capacity, manager: manager, logger: log}
}

// CleanDatabase removes queue and delivery history. Capacity rows are rewritten by SeedAll.
func (s *Seeder) CleanDatabase(ctx context.Context) error {
	for _, model := range []interface{}{
		&waitlist.Entry{},
		&notifications.DeliveryLog{},
		&notifications.DeadLetter{},
		&sessions.SessionCapacity{},
	} {
		if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clean %T: %w", model, err)
		}
	}
	return nil
}

// SeedAll sets every session's capacity, fills its confirmed slots and queues the demo entrants
func (s *Seeder) SeedAll(ctx context.Context, seeds []sessionSeed) error {
	for _, seed := range seeds {
		if err := s.seedSession(ctx, seed); err != nil {
			return fmt.Errorf("session %s: %w", seed.ID, err)
		}
	}
	return nil
}

func (s *Seeder) seedSession(ctx context.Context, seed sessionSeed) error {
	current, err := s.capacity.GetCapacity(ctx, seed.ID)
	switch {
	case err == nil:
		// lower the counter first so the new ceiling is accepted
		for i := current.ConfirmedCount; i > 0; i-- {
			if _, err := s.capacity.DecrementConfirmed(ctx, seed.ID); err != nil {
				return err
			}
		}
	case !errors.Is(err, sessions.ErrSessionNotFound):
		return err
	}

	if _, err := s.capacity.SetMaxCapacity(ctx, seed.ID, seed.MaxCapacity); err != nil {
		return err
	}
	for i := 0; i < seed.Confirmed; i++ {
		if _, err := s.capacity.IncrementConfirmed(ctx, seed.ID); err != nil {
			return err
		}
	}

	for _, w := range seed.Waiting {
		result, err := s.manager.JoinWaitlist(ctx, seed.ID, w.EntrantID, w.Contact)
		if err != nil {
			return fmt.Errorf("join %s: %w", w.EntrantID, err)
		}
		s.logger.Info("Seeded waitlist entry",
			slog.String("session_id", seed.ID),
			slog.String("entrant_id", w.EntrantID),
			slog.String("status", string(result.Status)),
			slog.Int("position", result.Position),
		)
	}
	return nil
}
