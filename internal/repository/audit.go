package repository

import (
	"context"

	"sophia/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditFilter narrows audit trail queries.
type AuditFilter struct {
	UserID    *uuid.UUID
	ChannelID *uuid.UUID
	Action    models.AuditAction
}

// AuditRepository is the append-only sink for compliance records. The trail
// has no update or delete operations.
type AuditRepository interface {
	Append(ctx context.Context, e *models.AuditEntry) error
	List(ctx context.Context, filter AuditFilter, limit, offset int) ([]*models.AuditEntry, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, e *models.AuditEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, limit, offset int) ([]*models.AuditEntry, error) {
	q := r.db.WithContext(ctx).Model(&models.AuditEntry{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.ChannelID != nil {
		q = q.Where("channel_id = ?", *filter.ChannelID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	var entries []*models.AuditEntry
	err := q.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}
