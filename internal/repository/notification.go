package repository

import (
	"context"
	"time"

	"sophia/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRepository defines the interface for notification inbox data
// operations.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	CreateBatch(ctx context.Context, ns []*models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit, offset int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) CreateBatch(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&ns).Error
}

func (r *notificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit, offset int) ([]*models.Notification, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if onlyUnread {
		q = q.Where("read = ?", false)
	}
	var ns []*models.Notification
	err := q.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&ns).Error
	return ns, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"read":    true,
			"read_at": at,
		}).Error
}

func (r *notificationRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}
