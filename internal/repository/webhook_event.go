package repository

import (
	"context"
	"errors"
	"time"

	"zentrust-donations/internal/model"

	"gorm.io/gorm"
)

type WebhookEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType, objectID string) error
}

type webhookEventRepositoryImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepositoryImpl{db: db}
}

func (r *webhookEventRepositoryImpl) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error

	return count > 0, err
}

// MarkProcessed records the event. A concurrent delivery of the same event
// that already recorded it is not an error.
func (r *webhookEventRepositoryImpl) MarkProcessed(ctx context.Context, eventID, eventType, objectID string) error {
	err := r.db.WithContext(ctx).Create(&model.WebhookEvent{
		EventID:     eventID,
		EventType:   eventType,
		ObjectID:    objectID,
		ProcessedAt: time.Now(),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}
