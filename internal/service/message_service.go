package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"sophia/internal/authz"
	"sophia/internal/models"
	"sophia/internal/observability"
	"sophia/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxMessageLength  = 10000
	defaultPageSize   = 50
	maxPageSize       = 100
	maxAttachmentsPer = 10
)

var mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_.\-]+)`)

// MessageService handles sending, listing, editing and read-tracking of
// messages.
type MessageService struct {
	db         *gorm.DB
	policy     *authz.Policy
	dispatcher *Dispatcher

	// now is injectable for tests.
	now func() time.Time
}

// NewMessageService creates a new message service.
func NewMessageService(db *gorm.DB, policy *authz.Policy, dispatcher *Dispatcher) *MessageService {
	return &MessageService{db: db, policy: policy, dispatcher: dispatcher, now: time.Now}
}

// AttachmentInput describes one uploaded file reference. Files are uploaded to
// the storage service beforehand; only their metadata is submitted here.
type AttachmentInput struct {
	Kind         models.AttachmentKind `json:"tipo"`
	FileName     string                `json:"nome_arquivo"`
	URL          string                `json:"url"`
	Size         int64                 `json:"tamanho"`
	MimeType     string                `json:"mime_type"`
	AssignmentID *uuid.UUID            `json:"atividade_id"`
}

// SendMessageInput carries the request payload for message creation.
type SendMessageInput struct {
	Kind        models.MessageKind     `json:"tipo"`
	Content     string                 `json:"conteudo"`
	Priority    models.MessagePriority `json:"prioridade"`
	ReplyToID   *uuid.UUID             `json:"respondendo_a"`
	RequiresAck bool                   `json:"requer_confirmacao"`
	Attachments []AttachmentInput      `json:"anexos"`

	IP string `json:"-"`
}

// SendMessage validates and persists a message, updates the channel's last
// activity, audits the send and fans out notifications to every active
// participant who has not muted the channel. Participants mentioned by
// @username receive a mention notification instead of the regular one.
func (s *MessageService) SendMessage(ctx context.Context, actor authz.Actor, channelID uuid.UUID, in SendMessageInput) (*models.Message, error) {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanSendMessage(actor, ch) {
		return nil, models.NewForbiddenError("You may not send messages in this channel")
	}
	if ch.Status == models.ChannelArchived {
		return nil, models.NewDependentStateError("Channel is archived")
	}

	kind := in.Kind
	if kind == "" {
		kind = models.MessageText
	}
	if !kind.Valid() || kind == models.MessageSystem {
		return nil, models.NewValidationError(fmt.Sprintf("Unknown message kind %q", in.Kind))
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.Valid() {
		return nil, models.NewValidationError(fmt.Sprintf("Unknown priority %q", in.Priority))
	}
	if in.Content == "" && len(in.Attachments) == 0 {
		return nil, models.NewValidationError("Message content is required")
	}
	if len(in.Content) > maxMessageLength {
		return nil, models.NewValidationError("Message content exceeds the maximum length")
	}
	if len(in.Attachments) > 0 && !ch.AllowsAttachments {
		return nil, models.NewForbiddenError("This channel does not accept attachments")
	}
	if len(in.Attachments) > maxAttachmentsPer {
		return nil, models.NewValidationError("Too many attachments")
	}
	for _, a := range in.Attachments {
		if a.FileName == "" || a.URL == "" {
			return nil, models.NewValidationError("Attachments require nome_arquivo and url")
		}
		if a.Kind != "" && !a.Kind.Valid() {
			return nil, models.NewValidationError(fmt.Sprintf("Unknown attachment kind %q", a.Kind))
		}
		if a.AssignmentID != nil && !ch.AllowsSubmissions {
			return nil, models.NewForbiddenError("This channel does not accept assignment submissions")
		}
	}

	msg := &models.Message{
		ChannelID:   channelID,
		SenderID:    &actor.UserID,
		Kind:        kind,
		Content:     in.Content,
		Priority:    priority,
		RequiresAck: in.RequiresAck,
		SenderIP:    in.IP,
		SentAt:      s.now().UTC(),
	}

	var notices []*models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := repository.NewMessageRepository(tx)

		if in.ReplyToID != nil {
			parent, err := messages.GetByID(ctx, *in.ReplyToID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return models.NewValidationError("Replied-to message does not exist")
				}
				return err
			}
			if parent.ChannelID != channelID || parent.Deleted {
				return models.NewValidationError("Replied-to message does not exist")
			}
			msg.ReplyToID = in.ReplyToID
		}

		if err := messages.Create(ctx, msg); err != nil {
			return err
		}

		if len(in.Attachments) > 0 {
			atts := make([]models.Attachment, 0, len(in.Attachments))
			for _, a := range in.Attachments {
				kind := a.Kind
				if kind == "" {
					kind = models.AttachmentOther
				}
				atts = append(atts, models.Attachment{
					MessageID:    msg.ID,
					Kind:         kind,
					FileName:     a.FileName,
					URL:          a.URL,
					Size:         a.Size,
					MimeType:     a.MimeType,
					AssignmentID: a.AssignmentID,
				})
			}
			if err := messages.CreateAttachments(ctx, atts); err != nil {
				return err
			}
			msg.Attachments = atts
		}

		if err := repository.NewChannelRepository(tx).SetLastMessageAt(ctx, channelID, msg.SentAt); err != nil {
			return err
		}

		entry := &models.AuditEntry{
			UserID:    &actor.UserID,
			Action:    models.AuditMessageSent,
			ChannelID: &channelID,
			MessageID: &msg.ID,
			IP:        in.IP,
			Details: auditDetails(map[string]interface{}{
				"tipo":       msg.Kind,
				"prioridade": msg.Priority,
			}),
		}
		if err := repository.NewAuditRepository(tx).Append(ctx, entry); err != nil {
			return err
		}

		notices = s.fanOut(ch, msg)
		return s.dispatcher.Persist(ctx, tx, notices)
	})
	if err != nil {
		return nil, err
	}

	observability.MessagesSent.WithLabelValues(string(ch.Kind), string(msg.Priority)).Inc()
	s.dispatcher.Publish(ctx, notices)
	return msg, nil
}

// fanOut builds one notification per active, notify-enabled participant who
// has not muted the channel, excluding the sender. Mentioned usernames get a
// mention notification.
func (s *MessageService) fanOut(ch *models.Channel, msg *models.Message) []*models.Notification {
	muted := make(map[uuid.UUID]struct{}, len(ch.MutedBy))
	for _, u := range ch.MutedBy {
		muted[u.ID] = struct{}{}
	}

	mentioned := make(map[string]struct{})
	for _, m := range mentionPattern.FindAllStringSubmatch(msg.Content, -1) {
		mentioned[m[1]] = struct{}{}
	}

	title := "Nova mensagem"
	if ch.Name != "" {
		title = fmt.Sprintf("Nova mensagem em %s", ch.Name)
	}

	var notices []*models.Notification
	for i := range ch.Participants {
		p := &ch.Participants[i]
		if !p.Active || !p.Notify {
			continue
		}
		if msg.SenderID != nil && p.UserID == *msg.SenderID {
			continue
		}
		if _, m := muted[p.UserID]; m {
			continue
		}

		kind := models.NotifyNewMessage
		noticeTitle := title
		if p.User != nil {
			if _, hit := mentioned[p.User.Username]; hit {
				kind = models.NotifyMention
				noticeTitle = "Você foi mencionado"
			}
		}
		notices = append(notices, &models.Notification{
			UserID:    p.UserID,
			Kind:      kind,
			ChannelID: ch.ID,
			MessageID: &msg.ID,
			Title:     noticeTitle,
			Body:      truncate(msg.Content, 140),
		})
	}
	return notices
}

// ListMessages returns a page of the channel's messages, newest first.
// Participants without history access only see messages sent since they
// joined. Listing marks the channel read for the caller.
func (s *MessageService) ListMessages(ctx context.Context, actor authz.Actor, channelID uuid.UUID, page, perPage int) ([]*models.Message, error) {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return nil, err
	}

	if perPage <= 0 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	if page <= 0 {
		page = 1
	}

	var after *time.Time
	participant := ch.ActiveParticipant(actor.UserID)
	if participant != nil && !participant.CanViewHistory {
		joined := participant.CreatedAt
		after = &joined
	}

	msgs, err := repository.NewMessageRepository(s.db).
		List(ctx, channelID, after, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}

	if participant != nil {
		if err := s.markRead(ctx, channelID, actor.UserID); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// MarkChannelRead flips every unread message of the channel (not sent by the
// caller) to read and stamps the participant's last view time.
func (s *MessageService) MarkChannelRead(ctx context.Context, actor authz.Actor, channelID uuid.UUID) error {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return err
	}
	if ch.ActiveParticipant(actor.UserID) == nil {
		return models.NewForbiddenError("Only participants track read state")
	}
	return s.markRead(ctx, channelID, actor.UserID)
}

func (s *MessageService) markRead(ctx context.Context, channelID, userID uuid.UUID) error {
	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewMessageRepository(tx).MarkChannelRead(ctx, channelID, userID, now); err != nil {
			return err
		}
		return tx.Model(&models.Participant{}).
			Where("channel_id = ? AND user_id = ?", channelID, userID).
			Update("last_view_at", now).Error
	})
}

// UnreadCount returns the caller's unread message count for a channel.
func (s *MessageService) UnreadCount(ctx context.Context, actor authz.Actor, channelID uuid.UUID) (int64, error) {
	if _, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID); err != nil {
		return 0, err
	}
	return repository.NewMessageRepository(s.db).UnreadCount(ctx, channelID, actor.UserID)
}

// EditMessage replaces a message's content. The sender may edit within the
// edit window; channel admins at any time. Edits are flagged, never silent.
func (s *MessageService) EditMessage(ctx context.Context, actor authz.Actor, channelID, messageID uuid.UUID, content, ip string) (*models.Message, error) {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return nil, err
	}
	msg, err := s.messageInChannel(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanEditMessage(actor, ch, msg, s.now()) {
		return nil, models.NewForbiddenError("The edit window for this message has closed")
	}
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}
	if len(content) > maxMessageLength {
		return nil, models.NewValidationError("Message content exceeds the maximum length")
	}

	now := s.now().UTC()
	previous := msg.Content
	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewMessageRepository(tx).Save(ctx, msg); err != nil {
			return err
		}
		entry := &models.AuditEntry{
			UserID:    &actor.UserID,
			Action:    models.AuditMessageEdited,
			ChannelID: &channelID,
			MessageID: &messageID,
			IP:        ip,
			Details: auditDetails(map[string]interface{}{
				"conteudo_anterior": previous,
			}),
		}
		return repository.NewAuditRepository(tx).Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage soft-deletes a message. Content is retained in storage for the
// audit trail but never served again.
func (s *MessageService) DeleteMessage(ctx context.Context, actor authz.Actor, channelID, messageID uuid.UUID, ip string) error {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return err
	}
	msg, err := s.messageInChannel(ctx, channelID, messageID)
	if err != nil {
		return err
	}
	if !s.policy.CanDeleteMessage(actor, ch, msg) {
		return models.NewForbiddenError("You may not delete this message")
	}

	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewMessageRepository(tx).SoftDelete(ctx, messageID, now); err != nil {
			return err
		}
		entry := &models.AuditEntry{
			UserID:    &actor.UserID,
			Action:    models.AuditMessageDeleted,
			ChannelID: &channelID,
			MessageID: &messageID,
			IP:        ip,
		}
		return repository.NewAuditRepository(tx).Append(ctx, entry)
	})
}

// RecordView registers that the caller read a specific message. The first
// view by each user bumps the view counter; any view by someone other than
// the sender flips the coarse read flag.
func (s *MessageService) RecordView(ctx context.Context, actor authz.Actor, channelID, messageID uuid.UUID) error {
	if _, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID); err != nil {
		return err
	}
	msg, err := s.messageInChannel(ctx, channelID, messageID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := repository.NewMessageRepository(tx)
		created, err := messages.CreateView(ctx, messageID, actor.UserID)
		if err != nil {
			return err
		}
		if created {
			if err := messages.IncrementViewCount(ctx, messageID); err != nil {
				return err
			}
		}
		if !msg.Read && (msg.SenderID == nil || *msg.SenderID != actor.UserID) {
			return tx.Model(&models.Message{}).
				Where("id = ? AND read = ?", messageID, false).
				Updates(map[string]interface{}{"read": true, "read_at": now}).Error
		}
		return nil
	})
}

// ListViews returns the per-user read receipts of a message. Restricted to the
// sender, channel admins and the coordinator-and-above roles.
func (s *MessageService) ListViews(ctx context.Context, actor authz.Actor, channelID, messageID uuid.UUID) ([]models.MessageView, error) {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return nil, err
	}
	msg, err := s.messageInChannel(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	isSender := msg.SenderID != nil && *msg.SenderID == actor.UserID
	if !isSender && !s.policy.CanManageParticipants(actor, ch) {
		return nil, models.NewForbiddenError("You may not list read receipts for this message")
	}
	return repository.NewMessageRepository(s.db).ListViews(ctx, messageID)
}

// Acknowledge records the caller's explicit confirmation of a message that
// requires one. Acknowledging twice is a no-op.
func (s *MessageService) Acknowledge(ctx context.Context, actor authz.Actor, channelID, messageID uuid.UUID) error {
	if _, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID); err != nil {
		return err
	}
	msg, err := s.messageInChannel(ctx, channelID, messageID)
	if err != nil {
		return err
	}
	if !msg.RequiresAck {
		return models.NewDependentStateError("Message does not require acknowledgement")
	}
	return repository.NewMessageRepository(s.db).Acknowledge(ctx, messageID, actor.UserID)
}

// messageInChannel loads a live message and verifies it belongs to the
// channel. Deleted messages behave as missing.
func (s *MessageService) messageInChannel(ctx context.Context, channelID, messageID uuid.UUID) (*models.Message, error) {
	msg, err := repository.NewMessageRepository(s.db).GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Message", messageID)
		}
		return nil, err
	}
	if msg.ChannelID != channelID || msg.Deleted {
		return nil, models.NewNotFoundError("Message", messageID)
	}
	return msg, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
