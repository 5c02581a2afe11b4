package repository

import (
	"context"
	"time"

	"sophia/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines the interface for message data operations.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// List returns non-deleted messages of a channel, newest first, ordered
	// by (sent_at, seq) so timestamp ties resolve by insertion order. A
	// non-nil after restricts the listing to messages sent at or after it
	// (participants without history access).
	List(ctx context.Context, channelID uuid.UUID, after *time.Time, limit, offset int) ([]*models.Message, error)
	Save(ctx context.Context, msg *models.Message) error
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkChannelRead flips the coarse read flag on every unread message in
	// the channel not sent by userID.
	MarkChannelRead(ctx context.Context, channelID, userID uuid.UUID, at time.Time) error
	UnreadCount(ctx context.Context, channelID, userID uuid.UUID) (int64, error)

	// CreateView inserts the (message,user) view row if absent and reports
	// whether this was the user's first view.
	CreateView(ctx context.Context, messageID, userID uuid.UUID) (created bool, err error)
	IncrementViewCount(ctx context.Context, messageID uuid.UUID) error
	ListViews(ctx context.Context, messageID uuid.UUID) ([]models.MessageView, error)

	Acknowledge(ctx context.Context, messageID, userID uuid.UUID) error
	CreateAttachments(ctx context.Context, atts []models.Attachment) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("Attachments").
		First(&msg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) List(ctx context.Context, channelID uuid.UUID, after *time.Time, limit, offset int) ([]*models.Message, error) {
	var messages []*models.Message
	q := r.db.WithContext(ctx).
		Where("channel_id = ? AND deleted = ?", channelID, false)
	if after != nil {
		q = q.Where("sent_at >= ?", *after)
	}
	err := q.
		Preload("Sender").
		Preload("Attachments").
		Order("sent_at DESC").
		Order("seq DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepository) Save(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Save(msg).Error
}

func (r *messageRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_at": at,
		}).Error
}

func (r *messageRepository) MarkChannelRead(ctx context.Context, channelID, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("channel_id = ? AND read = ?", channelID, false).
		Where("sender_id IS NULL OR sender_id <> ?", userID).
		Updates(map[string]interface{}{
			"read":    true,
			"read_at": at,
		}).Error
}

func (r *messageRepository) UnreadCount(ctx context.Context, channelID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("channel_id = ? AND read = ? AND deleted = ?", channelID, false, false).
		Where("sender_id IS NULL OR sender_id <> ?", userID).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) CreateView(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	view := models.MessageView{
		MessageID: messageID,
		UserID:    userID,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&view)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *messageRepository) IncrementViewCount(ctx context.Context, messageID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", messageID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

func (r *messageRepository) ListViews(ctx context.Context, messageID uuid.UUID) ([]models.MessageView, error) {
	var views []models.MessageView
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("viewed_at ASC").
		Find(&views).Error
	return views, err
}

func (r *messageRepository) Acknowledge(ctx context.Context, messageID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(
		"INSERT INTO mensagem_confirmacoes (message_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		messageID, userID,
	).Error
}

func (r *messageRepository) CreateAttachments(ctx context.Context, atts []models.Attachment) error {
	if len(atts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&atts).Error
}
