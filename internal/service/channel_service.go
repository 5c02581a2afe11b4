package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sophia/internal/authz"
	"sophia/internal/directory"
	"sophia/internal/models"
	"sophia/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxChannelNameLength = 120

// ChannelService handles channel lifecycle and visibility.
type ChannelService struct {
	db         *gorm.DB
	policy     *authz.Policy
	dir        directory.Directory
	dispatcher *Dispatcher
	slaHours   int

	// now is injectable for tests.
	now func() time.Time
}

// NewChannelService creates a new channel service. slaHours seeds the response
// window of every new channel's ownership record.
func NewChannelService(db *gorm.DB, policy *authz.Policy, dir directory.Directory, dispatcher *Dispatcher, slaHours int) *ChannelService {
	return &ChannelService{
		db:         db,
		policy:     policy,
		dir:        dir,
		dispatcher: dispatcher,
		slaHours:   slaHours,
		now:        time.Now,
	}
}

// CreateChannelInput carries the request payload for channel creation.
type CreateChannelInput struct {
	SchoolID    uuid.UUID          `json:"escola_id"`
	Kind        models.ChannelKind `json:"tipo"`
	Name        string             `json:"nome"`
	Description string             `json:"descricao"`
	ClassID     *uuid.UUID         `json:"turma_id"`
	SubjectID   *uuid.UUID         `json:"disciplina_id"`

	// ParticipantIDs are the initial members besides the creator. A Direct
	// channel takes exactly one.
	ParticipantIDs []uuid.UUID `json:"participantes"`

	VisibleToManagement   *bool `json:"visivel_gestao"`
	VisibleToCoordination *bool `json:"visivel_coordenacao"`
	AllowsAttachments     *bool `json:"permite_anexos"`
	AllowsSubmissions     *bool `json:"permite_entrega_atividade"`

	IP string `json:"-"`
}

// CreateChannel creates a channel with the caller as its admin, seeds the
// conversation ownership record and notifies the initial members. Creating a
// Direct channel for a pair that already has one returns the existing channel
// instead; created reports which case happened.
func (s *ChannelService) CreateChannel(ctx context.Context, actor authz.Actor, in CreateChannelInput) (ch *models.Channel, created bool, err error) {
	if !in.Kind.Valid() {
		return nil, false, models.NewValidationError(fmt.Sprintf("Unknown channel kind %q", in.Kind))
	}
	if in.Kind.IsGroup() && in.Name == "" {
		return nil, false, models.NewValidationError("Group channels require a name")
	}
	if len(in.Name) > maxChannelNameLength {
		return nil, false, models.NewValidationError("Channel name is too long")
	}
	if in.SchoolID == uuid.Nil {
		return nil, false, models.NewValidationError("escola_id is required")
	}
	if actor.Role != models.RoleSuperuser && !actor.MemberOfSchool(in.SchoolID) {
		return nil, false, models.NewForbiddenError("You are not a member of this school")
	}
	if in.Kind == models.ChannelClassGroup && in.ClassID == nil {
		return nil, false, models.NewValidationError("Class channels require turma_id")
	}

	members := dedupeIDs(in.ParticipantIDs, actor.UserID)
	if in.Kind == models.ChannelDirect {
		if len(members) != 1 {
			return nil, false, models.NewValidationError("Direct channels take exactly one other participant")
		}
		// A stored name would leak across the two inboxes; each side derives
		// the counterpart's name instead.
		in.Name = ""
	}

	ok, err := s.dir.UsersExist(ctx, members)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, models.NewValidationError("One or more participants do not exist or are inactive")
	}

	if in.Kind == models.ChannelDirect {
		existing, err := repository.NewChannelRepository(s.db).
			GetDirectBetween(ctx, in.SchoolID, actor.UserID, members[0])
		switch {
		case err == nil:
			return existing, false, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, err
		}
	}

	channel := &models.Channel{
		SchoolID:              in.SchoolID,
		Kind:                  in.Kind,
		Name:                  in.Name,
		Description:           in.Description,
		ClassID:               in.ClassID,
		SubjectID:             in.SubjectID,
		CreatedByID:           actor.UserID,
		Status:                models.ChannelActive,
		VisibleToManagement:   boolOr(in.VisibleToManagement, true),
		VisibleToCoordination: boolOr(in.VisibleToCoordination, true),
		AllowsAttachments:     boolOr(in.AllowsAttachments, true),
		AllowsSubmissions:     boolOr(in.AllowsSubmissions, false),
	}

	var notices []*models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		channels := repository.NewChannelRepository(tx)
		if err := channels.Create(ctx, channel); err != nil {
			return err
		}

		creator := &models.Participant{
			ChannelID: channel.ID,
			UserID:    actor.UserID,
			Role:      models.ParticipantAdmin,
			Active:    true,
			CanSend:   true, CanViewHistory: true, Notify: true,
		}
		if _, err := channels.AddParticipant(ctx, creator); err != nil {
			return err
		}
		for _, userID := range members {
			p := &models.Participant{
				ChannelID: channel.ID,
				UserID:    userID,
				Role:      models.ParticipantMember,
				Active:    true,
				CanSend:   true, CanViewHistory: true, Notify: true,
				AddedByID: &actor.UserID,
			}
			if _, err := channels.AddParticipant(ctx, p); err != nil {
				return err
			}
			notices = append(notices, &models.Notification{
				UserID:    userID,
				Kind:      models.NotifyAddedToChannel,
				ChannelID: channel.ID,
				Title:     "Você foi adicionado a um canal",
				Body:      channelNoticeBody(channel),
			})
		}

		ownership := &models.ConversationOwnership{
			ChannelID:       channel.ID,
			OriginalOwnerID: actor.UserID,
			Active:          true,
			SLAHours:        s.slaHours,
		}
		if err := repository.NewOwnershipRepository(tx).Create(ctx, ownership); err != nil {
			return err
		}

		entry := &models.AuditEntry{
			UserID:    &actor.UserID,
			Action:    models.AuditChannelCreated,
			ChannelID: &channel.ID,
			IP:        in.IP,
			Details: auditDetails(map[string]interface{}{
				"tipo": channel.Kind,
				"nome": channel.Name,
			}),
		}
		if err := repository.NewAuditRepository(tx).Append(ctx, entry); err != nil {
			return err
		}

		return s.dispatcher.Persist(ctx, tx, notices)
	})
	if err != nil {
		return nil, false, err
	}
	s.dispatcher.Publish(ctx, notices)

	full, err := repository.NewChannelRepository(s.db).GetByID(ctx, channel.ID)
	if err != nil {
		return nil, false, err
	}
	return full, true, nil
}

// ListVisibleChannels returns the channels the actor may see per the
// visibility table, newest activity first, each with the actor's unread count.
func (s *ChannelService) ListVisibleChannels(ctx context.Context, actor authz.Actor, filter repository.ChannelFilter) ([]*models.Channel, error) {
	scope := s.policy.VisibleChannelScope(actor)
	channels, err := repository.NewChannelRepository(s.db).ListVisible(ctx, scope, actor.UserID, filter)
	if err != nil {
		return nil, err
	}

	messages := repository.NewMessageRepository(s.db)
	for _, ch := range channels {
		ch.Name = ch.DisplayNameFor(actor.UserID)
		if ch.ActiveParticipant(actor.UserID) == nil {
			continue
		}
		count, err := messages.UnreadCount(ctx, ch.ID, actor.UserID)
		if err != nil {
			return nil, err
		}
		ch.UnreadCount = count
	}
	return channels, nil
}

// GetChannelForUser returns the channel if the actor may view it. A missing
// channel and a forbidden one produce the same not-found error.
func (s *ChannelService) GetChannelForUser(ctx context.Context, actor authz.Actor, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return nil, err
	}
	ch.Name = ch.DisplayNameFor(actor.UserID)
	if ch.ActiveParticipant(actor.UserID) != nil {
		count, err := repository.NewMessageRepository(s.db).UnreadCount(ctx, ch.ID, actor.UserID)
		if err != nil {
			return nil, err
		}
		ch.UnreadCount = count
	}
	return ch, nil
}

// ArchiveChannel retires a channel from active messaging. Channel admins,
// managers and superusers may archive.
func (s *ChannelService) ArchiveChannel(ctx context.Context, actor authz.Actor, channelID uuid.UUID, ip string) error {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return err
	}
	if !s.canAdministerChannel(actor, ch) {
		return models.NewForbiddenError("You may not archive this channel")
	}
	if ch.Status == models.ChannelArchived {
		return models.NewDependentStateError("Channel is already archived")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewChannelRepository(tx).SetStatus(ctx, channelID, models.ChannelArchived); err != nil {
			return err
		}
		entry := &models.AuditEntry{
			UserID:    &actor.UserID,
			Action:    models.AuditChannelArchived,
			ChannelID: &channelID,
			IP:        ip,
		}
		return repository.NewAuditRepository(tx).Append(ctx, entry)
	})
}

// DeleteChannel hard-deletes a channel and everything it owns. Restricted to
// superusers and managers; the audit entry and ownership history survive.
func (s *ChannelService) DeleteChannel(ctx context.Context, actor authz.Actor, channelID uuid.UUID, ip string) error {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleSuperuser && actor.Role != models.RoleManager {
		return models.NewForbiddenError("Only management may delete channels")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := &models.AuditEntry{
			UserID:    &actor.UserID,
			Action:    models.AuditChannelDeleted,
			ChannelID: &channelID,
			IP:        ip,
			Details: auditDetails(map[string]interface{}{
				"tipo": ch.Kind,
				"nome": ch.Name,
			}),
		}
		if err := repository.NewAuditRepository(tx).Append(ctx, entry); err != nil {
			return err
		}
		return repository.NewChannelRepository(tx).Delete(ctx, channelID)
	})
}

// SetMuted toggles the actor's notification silencing for a channel they can
// view. Muted users keep full access.
func (s *ChannelService) SetMuted(ctx context.Context, actor authz.Actor, channelID uuid.UUID, muted bool) error {
	if _, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID); err != nil {
		return err
	}
	return repository.NewChannelRepository(s.db).SetMuted(ctx, channelID, actor.UserID, muted)
}

// SetPinned pins or unpins a channel in the inbox ordering.
func (s *ChannelService) SetPinned(ctx context.Context, actor authz.Actor, channelID uuid.UUID, pinned bool) error {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return err
	}
	if !s.canAdministerChannel(actor, ch) {
		return models.NewForbiddenError("You may not pin this channel")
	}
	return s.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", channelID).
		Update("pinned", pinned).Error
}

func (s *ChannelService) canAdministerChannel(actor authz.Actor, ch *models.Channel) bool {
	if ch.IsAdmin(actor.UserID) {
		return true
	}
	return actor.Role == models.RoleSuperuser || actor.Role == models.RoleManager
}

// channelForViewer loads a channel and enforces the visibility table. Both a
// missing channel and a hidden one return the same error so existence is not
// leaked.
func channelForViewer(ctx context.Context, repo repository.ChannelRepository, policy *authz.Policy, actor authz.Actor, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := repo.GetByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewChannelHiddenError()
		}
		return nil, err
	}
	if !policy.CanViewChannel(actor, ch) {
		return nil, models.NewChannelHiddenError()
	}
	return ch, nil
}

func channelNoticeBody(ch *models.Channel) string {
	if ch.Name != "" {
		return fmt.Sprintf("Canal: %s", ch.Name)
	}
	return "Nova conversa direta"
}

// dedupeIDs removes duplicates and the excluded ID while preserving order.
func dedupeIDs(ids []uuid.UUID, exclude uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == exclude || id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func auditDetails(v map[string]interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
