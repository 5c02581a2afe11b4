package service

import (
	"context"
	"errors"

	"sophia/internal/authz"
	"sophia/internal/directory"
	"sophia/internal/models"
	"sophia/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MembershipService handles participant enrollment in channels.
type MembershipService struct {
	db         *gorm.DB
	policy     *authz.Policy
	dir        directory.Directory
	dispatcher *Dispatcher
}

// NewMembershipService creates a new membership service.
func NewMembershipService(db *gorm.DB, policy *authz.Policy, dir directory.Directory, dispatcher *Dispatcher) *MembershipService {
	return &MembershipService{db: db, policy: policy, dir: dir, dispatcher: dispatcher}
}

// AddParticipantsInput carries the payload for bulk enrollment.
type AddParticipantsInput struct {
	UserIDs []uuid.UUID            `json:"usuarios"`
	Role    models.ParticipantRole `json:"papel"`
	IP      string                 `json:"-"`
}

// AddParticipants enrolls users into a channel. Enrollment is idempotent:
// users already active are skipped silently, inactive rows are reactivated,
// and only genuinely new members are notified and audited.
func (s *MembershipService) AddParticipants(ctx context.Context, actor authz.Actor, channelID uuid.UUID, in AddParticipantsInput) ([]uuid.UUID, error) {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanManageParticipants(actor, ch) {
		return nil, models.NewForbiddenError("You may not manage participants of this channel")
	}
	if ch.Kind == models.ChannelDirect {
		return nil, models.NewValidationError("Direct channels have a fixed pair of participants")
	}
	if ch.Status != models.ChannelActive {
		return nil, models.NewDependentStateError("Channel is not active")
	}

	role := in.Role
	if role == "" {
		role = models.ParticipantMember
	}
	if !role.Valid() {
		return nil, models.NewValidationError("Unknown participant role")
	}

	userIDs := dedupeIDs(in.UserIDs, uuid.Nil)
	if len(userIDs) == 0 {
		return nil, models.NewValidationError("usuarios is required")
	}
	ok, err := s.dir.UsersExist(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewValidationError("One or more users do not exist or are inactive")
	}

	var added []uuid.UUID
	var notices []*models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		channels := repository.NewChannelRepository(tx)
		audits := repository.NewAuditRepository(tx)

		for _, userID := range userIDs {
			wasActive := false
			if existing, err := channels.GetParticipant(ctx, channelID, userID); err == nil {
				wasActive = existing.Active
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if wasActive {
				continue
			}

			p := &models.Participant{
				ChannelID: channelID,
				UserID:    userID,
				Role:      role,
				Active:    true,
				CanSend:   true, CanViewHistory: true, Notify: true,
				AddedByID: &actor.UserID,
			}
			if _, err := channels.AddParticipant(ctx, p); err != nil {
				return err
			}

			added = append(added, userID)
			notices = append(notices, &models.Notification{
				UserID:    userID,
				Kind:      models.NotifyAddedToChannel,
				ChannelID: channelID,
				Title:     "Você foi adicionado a um canal",
				Body:      channelNoticeBody(ch),
			})
			entry := &models.AuditEntry{
				UserID:    &actor.UserID,
				Action:    models.AuditParticipantAdded,
				ChannelID: &channelID,
				IP:        in.IP,
				Details: auditDetails(map[string]interface{}{
					"usuario_id": userID,
					"papel":      role,
				}),
			}
			if err := audits.Append(ctx, entry); err != nil {
				return err
			}
		}
		return s.dispatcher.Persist(ctx, tx, notices)
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.Publish(ctx, notices)
	return added, nil
}

// RemoveParticipant soft-removes a user from a channel. The participant row
// stays (active=false) so message attribution survives; re-adding reactivates
// it. Participants may always remove themselves.
func (s *MembershipService) RemoveParticipant(ctx context.Context, actor authz.Actor, channelID, userID uuid.UUID, ip string) error {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return err
	}
	if userID != actor.UserID && !s.policy.CanManageParticipants(actor, ch) {
		return models.NewForbiddenError("You may not manage participants of this channel")
	}
	if ch.Kind == models.ChannelDirect {
		return models.NewValidationError("Direct channels have a fixed pair of participants")
	}
	if p := ch.ActiveParticipant(userID); p == nil {
		return models.NewNotFoundError("Participant", userID)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewChannelRepository(tx).DeactivateParticipant(ctx, channelID, userID); err != nil {
			return err
		}
		entry := &models.AuditEntry{
			UserID:    &actor.UserID,
			Action:    models.AuditParticipantRemoved,
			ChannelID: &channelID,
			IP:        ip,
			Details: auditDetails(map[string]interface{}{
				"usuario_id": userID,
			}),
		}
		return repository.NewAuditRepository(tx).Append(ctx, entry)
	})
}

// ParticipantUpdateInput carries the per-member flag updates.
type ParticipantUpdateInput struct {
	Role           *models.ParticipantRole `json:"papel"`
	CanSend        *bool                   `json:"pode_enviar"`
	CanViewHistory *bool                   `json:"pode_ver_historico"`
	Notify         *bool                   `json:"notificar"`
}

// UpdateParticipant changes a member's channel role or permission flags.
// Participants may change their own Notify flag; everything else requires
// management rights.
func (s *MembershipService) UpdateParticipant(ctx context.Context, actor authz.Actor, channelID, userID uuid.UUID, in ParticipantUpdateInput) (*models.Participant, error) {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return nil, err
	}

	selfNotifyOnly := userID == actor.UserID &&
		in.Role == nil && in.CanSend == nil && in.CanViewHistory == nil
	if !selfNotifyOnly && !s.policy.CanManageParticipants(actor, ch) {
		return nil, models.NewForbiddenError("You may not manage participants of this channel")
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, models.NewValidationError("Unknown participant role")
	}

	channels := repository.NewChannelRepository(s.db)
	p, err := channels.GetParticipant(ctx, channelID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Participant", userID)
		}
		return nil, err
	}
	if !p.Active {
		return nil, models.NewDependentStateError("Participant is not active in this channel")
	}

	if in.Role != nil {
		p.Role = *in.Role
	}
	if in.CanSend != nil {
		p.CanSend = *in.CanSend
	}
	if in.CanViewHistory != nil {
		p.CanViewHistory = *in.CanViewHistory
	}
	if in.Notify != nil {
		p.Notify = *in.Notify
	}

	if err := channels.UpdateParticipant(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
