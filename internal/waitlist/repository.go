package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists waitlist entries. Terminal entries stay in storage but are
// excluded from every active query.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	Update(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// GetActive returns the waiting or notified entry for the pair
	GetActive(ctx context.Context, sessionID, entrantID string) (*Entry, error)

	// ListByStatus orders waiting entries by position and notified entries by deadline
	ListByStatus(ctx context.Context, sessionID string, status Status) ([]*Entry, error)
	CountByStatus(ctx context.Context, sessionID string, status Status) (int, error)

	// UpdatePositions writes the position column of every entry in one transaction
	UpdatePositions(ctx context.Context, entries []*Entry) error

	// ListExpired returns notified entries whose deadline is strictly before now
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Entry, error)
	FindNotifiedByPhone(ctx context.Context, phone string) ([]*Entry, error)

	// ListSessionsWithWaiting returns the distinct sessions that have at least one waiting entry
	ListSessionsWithWaiting(ctx context.Context) ([]string, error)
}

// GormRepository implements Repository on PostgreSQL
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, entry *Entry) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}
	return nil
}

func (r *GormRepository) Update(ctx context.Context, entry *Entry) error {
	if err := r.db.WithContext(ctx).Save(entry).Error; err != nil {
		return fmt.Errorf("failed to update waitlist entry: %w", err)
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Entry{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete waitlist entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *GormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	var entry Entry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *GormRepository) GetActive(ctx context.Context, sessionID, entrantID string) (*Entry, error) {
	var entry Entry
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND entrant_id = ? AND status IN ?", sessionID, entrantID, []Status{StatusWaiting, StatusNotified}).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get active waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *GormRepository) ListByStatus(ctx context.Context, sessionID string, status Status) ([]*Entry, error) {
	query := r.db.WithContext(ctx).Where("session_id = ? AND status = ?", sessionID, status)
	if status == StatusNotified {
		query = query.Order("response_deadline ASC")
	} else {
		query = query.Order("position ASC, joined_at ASC")
	}

	var entries []*Entry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	return entries, nil
}

func (r *GormRepository) CountByStatus(ctx context.Context, sessionID string, status Status) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Entry{}).
		Where("session_id = ? AND status = ?", sessionID, status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count waitlist entries: %w", err)
	}
	return int(count), nil
}

func (r *GormRepository) UpdatePositions(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			err := tx.Model(&Entry{}).Where("id = ?", e.ID).Update("position", e.Position).Error
			if err != nil {
				return fmt.Errorf("failed to update position of entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (r *GormRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Entry, error) {
	var entries []*Entry
	query := r.db.WithContext(ctx).
		Where("status = ? AND response_deadline < ?", StatusNotified, now).
		Order("response_deadline ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired entries: %w", err)
	}
	return entries, nil
}

func (r *GormRepository) ListSessionsWithWaiting(ctx context.Context) ([]string, error) {
	var sessionIDs []string
	err := r.db.WithContext(ctx).
		Model(&Entry{}).
		Where("status = ?", StatusWaiting).
		Distinct().
		Order("session_id ASC").
		Pluck("session_id", &sessionIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions with waiting entries: %w", err)
	}
	return sessionIDs, nil
}

func (r *GormRepository) FindNotifiedByPhone(ctx context.Context, phone string) ([]*Entry, error) {
	var entries []*Entry
	err := r.db.WithContext(ctx).
		Where("contact_phone = ? AND status = ?", phone, StatusNotified).
		Order("response_deadline ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find notified entries by phone: %w", err)
	}
	return entries, nil
}
