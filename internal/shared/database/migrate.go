package database

import (
	"academy/internal/notifications"
	"academy/internal/sessions"
	"academy/internal/waitlist"

	"gorm.io/gorm"
)

// Migrate creates or updates every table the service owns
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&sessions.SessionCapacity{},
		&waitlist.Entry{},
		&notifications.DeliveryLog{},
		&notifications.DeadLetter{},
	)
}
