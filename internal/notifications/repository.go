package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeliveryLogRepository interface {
	Create(ctx context.Context, log *DeliveryLog) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type DeadLetterRepository interface {
	Create(ctx context.Context, dl *DeadLetter) error
	GetByID(ctx context.Context, id uuid.UUID) (*DeadLetter, error)
	List(ctx context.Context, includeResolved bool, limit, offset int) ([]*DeadLetter, int64, error)
	MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordRetryFailure(ctx context.Context, id uuid.UUID, lastErr string) error
}

type GormDeliveryLogRepository struct {
	db *gorm.DB
}

func NewGormDeliveryLogRepository(db *gorm.DB) *GormDeliveryLogRepository {
	return &GormDeliveryLogRepository{db: db}
}

func (r *GormDeliveryLogRepository) Create(ctx context.Context, log *DeliveryLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// DeleteBefore purges logs delivered before cutoff and returns how many were removed
func (r *GormDeliveryLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("delivered_at < ?", cutoff).Delete(&DeliveryLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge delivery logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

type GormDeadLetterRepository struct {
	db *gorm.DB
}

func NewGormDeadLetterRepository(db *gorm.DB) *GormDeadLetterRepository {
	return &GormDeadLetterRepository{db: db}
}

func (r *GormDeadLetterRepository) Create(ctx context.Context, dl *DeadLetter) error {
	if err := r.db.WithContext(ctx).Create(dl).Error; err != nil {
		return fmt.Errorf("failed to store dead letter: %w", err)
	}
	return nil
}

func (r *GormDeadLetterRepository) GetByID(ctx context.Context, id uuid.UUID) (*DeadLetter, error) {
	var dl DeadLetter
	err := r.db.WithContext(ctx).First(&dl, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeadLetterNotFound
		}
		return nil, err
	}
	return &dl, nil
}

func (r *GormDeadLetterRepository) List(ctx context.Context, includeResolved bool, limit, offset int) ([]*DeadLetter, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeadLetter{})
	if !includeResolved {
		query = query.Where("resolved_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []*DeadLetter
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *GormDeadLetterRepository) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&DeadLetter{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]interface{}{
			"resolved_at": at,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDeadLetterNotFound
	}
	return nil
}

func (r *GormDeadLetterRepository) RecordRetryFailure(ctx context.Context, id uuid.UUID, lastErr string) error {
	result := r.db.WithContext(ctx).Model(&DeadLetter{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_error":  lastErr,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDeadLetterNotFound
	}
	return nil
}
