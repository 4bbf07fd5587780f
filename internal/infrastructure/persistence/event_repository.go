package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/convo/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEventRepository implements conversation.EventRepository using GORM.
// Claim relies on the unique index over (channel, external_event_id): the
// insert uses ON CONFLICT DO NOTHING, so of any number of concurrent claims
// for the same pair exactly one affects a row.
type GormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository creates a new GormEventRepository
func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

// Claim inserts the event if its (channel, externalEventID) pair is unseen
func (r *GormEventRepository) Claim(ctx context.Context, event *conversation.ExternalEvent) (*conversation.ClaimResult, error) {
	var model models.ExternalEventModel
	model.FromDomain(event)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel"}, {Name: "external_event_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		existing, err := r.FindByKey(ctx, event.Channel, event.ExternalEventID)
		if err != nil {
			return nil, err
		}
		return &conversation.ClaimResult{Duplicate: true, Event: existing}, nil
	}

	return &conversation.ClaimResult{Duplicate: false, Event: event}, nil
}

// MarkProcessed moves a received event to processed. Calling it on an event
// already in a terminal state is a no-op.
func (r *GormEventRepository) MarkProcessed(ctx context.Context, channel conversation.Channel, externalEventID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.ExternalEventModel{}).
		Where("channel = ? AND external_event_id = ? AND status = ?",
			string(channel), externalEventID, string(conversation.EventReceived)).
		Updates(map[string]any{
			"status":       string(conversation.EventProcessed),
			"processed_at": &now,
			"updated_at":   now,
		}).Error
}

// MarkFailed moves a received event to failed. Calling it on an event
// already in a terminal state is a no-op.
func (r *GormEventRepository) MarkFailed(ctx context.Context, channel conversation.Channel, externalEventID string, cause string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.ExternalEventModel{}).
		Where("channel = ? AND external_event_id = ? AND status = ?",
			string(channel), externalEventID, string(conversation.EventReceived)).
		Updates(map[string]any{
			"status":       string(conversation.EventFailed),
			"processed_at": &now,
			"error":        cause,
			"updated_at":   now,
		}).Error
}

// FindByKey returns the stored event for the pair
func (r *GormEventRepository) FindByKey(ctx context.Context, channel conversation.Channel, externalEventID string) (*conversation.ExternalEvent, error) {
	var model models.ExternalEventModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND external_event_id = ?", string(channel), externalEventID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
