// Package service provides the messaging core's business logic: channels,
// membership, messages, escalation, notifications and the audit trail.
package service

import (
	"context"
	"log/slog"

	"sophia/internal/middleware"
	"sophia/internal/models"
	"sophia/internal/notifications"
	"sophia/internal/observability"
	"sophia/internal/repository"

	"gorm.io/gorm"
)

// Dispatcher turns qualifying events into Notification rows and best-effort
// Redis events. Persistence happens inside the caller's transaction; the
// pub/sub publish happens after commit so a rollback never reaches clients
// with a notification whose inbox row does not exist.
type Dispatcher struct {
	notifier *notifications.Notifier
}

// NewDispatcher returns a Dispatcher. notifier may be nil (publishing disabled).
func NewDispatcher(notifier *notifications.Notifier) *Dispatcher {
	return &Dispatcher{notifier: notifier}
}

// Persist stores the notification rows within tx.
func (d *Dispatcher) Persist(ctx context.Context, tx *gorm.DB, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	if err := repository.NewNotificationRepository(tx).CreateBatch(ctx, ns); err != nil {
		return err
	}
	for _, n := range ns {
		observability.NotificationsDispatched.WithLabelValues(string(n.Kind)).Inc()
	}
	return nil
}

// Publish pushes the events to Redis. Failures are logged, never propagated:
// the inbox rows are the source of truth.
func (d *Dispatcher) Publish(ctx context.Context, ns []*models.Notification) {
	if d == nil || d.notifier == nil {
		return
	}
	for _, n := range ns {
		ev := notifications.Event{
			Kind:      n.Kind,
			UserID:    n.UserID,
			ChannelID: n.ChannelID,
			MessageID: n.MessageID,
			Title:     n.Title,
			Body:      n.Body,
		}
		if err := d.notifier.PublishUser(ctx, n.UserID, ev); err != nil {
			middleware.Logger.WarnContext(ctx, "notification publish failed",
				slog.String("kind", string(n.Kind)),
				slog.String("user_id", n.UserID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
