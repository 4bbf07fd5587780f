package persistence

import (
	"context"
	"errors"

	"github.com/convo/backend/internal/domain/conversation"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/convo/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUserRepository implements conversation.UserRepository using GORM
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GormUserRepository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Upsert finds the user by (channel, externalID) or creates it. A found
// user picks up the caller's auth subject and display name when those
// changed since the last turn.
func (r *GormUserRepository) Upsert(ctx context.Context, user *conversation.User) (*conversation.User, error) {
	var model models.UserModel
	model.FromDomain(user)

	// Insert may race with a concurrent upsert for the same identity;
	// DO NOTHING keeps exactly one row, then the read below wins either way.
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel"}, {Name: "external_id"}},
			DoNothing: true,
		}).
		Create(&model).Error; err != nil {
		return nil, err
	}

	var stored models.UserModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND external_id = ?", string(user.Channel), user.ExternalID).
		First(&stored).Error; err != nil {
		return nil, err
	}

	if stored.AuthSubject != user.AuthSubject ||
		stored.DisplayName != user.DisplayName ||
		stored.Authenticated != user.Authenticated {
		updates := map[string]any{
			"auth_subject":  user.AuthSubject,
			"display_name":  user.DisplayName,
			"authenticated": user.Authenticated,
		}
		if err := r.db.WithContext(ctx).
			Model(&models.UserModel{}).
			Where("id = ?", stored.ID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
		stored.AuthSubject = user.AuthSubject
		stored.DisplayName = user.DisplayName
		stored.Authenticated = user.Authenticated
	}

	return stored.ToDomain(), nil
}

// FindByID finds a user by its ID
func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*conversation.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
