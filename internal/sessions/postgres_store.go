package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PostgresStore keeps counters in session_capacities and relies on conditional
// UPDATE statements so concurrent writers can never push confirmed_count past max_capacity.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetCapacity(ctx context.Context, sessionID string) (*Capacity, error) {
	row, err := s.find(s.db.WithContext(ctx), sessionID)
	if err != nil {
		return nil, err
	}
	return row.toCapacity(), nil
}

func (s *PostgresStore) IncrementConfirmed(ctx context.Context, sessionID string) (int, error) {
	var newCount int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SessionCapacity{}).
			Where("session_id = ? AND confirmed_count < max_capacity", sessionID).
			Updates(map[string]interface{}{
				"confirmed_count": gorm.Expr("confirmed_count + 1"),
				"updated_at":      time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to increment confirmed count: %w", res.Error)
		}

		row, err := s.find(tx, sessionID)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return ErrSessionFull
		}
		newCount = row.ConfirmedCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

func (s *PostgresStore) DecrementConfirmed(ctx context.Context, sessionID string) (int, error) {
	var newCount int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SessionCapacity{}).
			Where("session_id = ? AND confirmed_count > 0", sessionID).
			Updates(map[string]interface{}{
				"confirmed_count": gorm.Expr("confirmed_count - 1"),
				"updated_at":      time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to decrement confirmed count: %w", res.Error)
		}

		row, err := s.find(tx, sessionID)
		if err != nil {
			return err
		}
		newCount = row.ConfirmedCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

func (s *PostgresStore) SetMaxCapacity(ctx context.Context, sessionID string, maxCapacity int) (*Capacity, error) {
	if maxCapacity < 0 {
		return nil, ErrInvalidCapacity
	}

	var result *Capacity
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SessionCapacity{}).
			Where("session_id = ? AND confirmed_count <= ?", sessionID, maxCapacity).
			Updates(map[string]interface{}{
				"max_capacity": maxCapacity,
				"updated_at":   time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update max capacity: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			_, err := s.find(tx, sessionID)
			switch {
			case err == nil:
				return ErrInvalidCapacity
			case !errors.Is(err, ErrSessionNotFound):
				return err
			}
			if err := tx.Create(&SessionCapacity{SessionID: sessionID, MaxCapacity: maxCapacity}).Error; err != nil {
				return fmt.Errorf("failed to create session capacity: %w", err)
			}
		}

		row, err := s.find(tx, sessionID)
		if err != nil {
			return err
		}
		result = row.toCapacity()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) find(tx *gorm.DB, sessionID string) (*SessionCapacity, error) {
	var row SessionCapacity
	if err := tx.Where("session_id = ?", sessionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session capacity: %w", err)
	}
	return &row, nil
}
