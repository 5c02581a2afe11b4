package service

import (
	"context"
	"errors"
	"time"

	"sophia/internal/authz"
	"sophia/internal/models"
	"sophia/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationService serves each user's notification inbox.
type NotificationService struct {
	db *gorm.DB

	// now is injectable for tests.
	now func() time.Time
}

// NewNotificationService creates a new notification service.
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db, now: time.Now}
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor authz.Actor, onlyUnread bool, page, perPage int) ([]*models.Notification, error) {
	if perPage <= 0 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return repository.NewNotificationRepository(s.db).
		ListByUser(ctx, actor.UserID, onlyUnread, perPage, (page-1)*perPage)
}

// MarkRead flips one of the caller's notifications to read. Other users'
// notifications behave as missing.
func (s *NotificationService) MarkRead(ctx context.Context, actor authz.Actor, notificationID uuid.UUID) error {
	repo := repository.NewNotificationRepository(s.db)
	n, err := repo.GetByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Notification", notificationID)
		}
		return err
	}
	if n.UserID != actor.UserID {
		return models.NewNotFoundError("Notification", notificationID)
	}
	if n.Read {
		return nil
	}
	return repo.MarkRead(ctx, notificationID, s.now().UTC())
}

// UnreadCount returns the caller's unread notification count.
func (s *NotificationService) UnreadCount(ctx context.Context, actor authz.Actor) (int64, error) {
	return repository.NewNotificationRepository(s.db).UnreadCount(ctx, actor.UserID)
}
