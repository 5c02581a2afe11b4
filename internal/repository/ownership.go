package repository

import (
	"context"

	"sophia/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OwnershipRepository defines the interface for conversation-ownership data
// operations.
type OwnershipRepository interface {
	Create(ctx context.Context, o *models.ConversationOwnership) error
	// GetActiveByChannel returns the single active ownership record for the
	// channel, or gorm.ErrRecordNotFound.
	GetActiveByChannel(ctx context.Context, channelID uuid.UUID) (*models.ConversationOwnership, error)
	Save(ctx context.Context, o *models.ConversationOwnership) error
	ListOverdueCandidates(ctx context.Context) ([]*models.ConversationOwnership, error)
}

type ownershipRepository struct {
	db *gorm.DB
}

// NewOwnershipRepository creates a new ownership repository.
func NewOwnershipRepository(db *gorm.DB) OwnershipRepository {
	return &ownershipRepository{db: db}
}

func (r *ownershipRepository) Create(ctx context.Context, o *models.ConversationOwnership) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *ownershipRepository) GetActiveByChannel(ctx context.Context, channelID uuid.UUID) (*models.ConversationOwnership, error) {
	var o models.ConversationOwnership
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND active = ?", channelID, true).
		Order("created_at DESC").
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *ownershipRepository) Save(ctx context.Context, o *models.ConversationOwnership) error {
	return r.db.WithContext(ctx).Save(o).Error
}

func (r *ownershipRepository) ListOverdueCandidates(ctx context.Context) ([]*models.ConversationOwnership, error) {
	var records []*models.ConversationOwnership
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&records).Error
	return records, err
}
