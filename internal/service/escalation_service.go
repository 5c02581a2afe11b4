package service

import (
	"context"
	"errors"
	"time"

	"sophia/internal/authz"
	"sophia/internal/models"
	"sophia/internal/observability"
	"sophia/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EscalationService handles conversation ownership: takeover by coordination
// or management, hand-back, and the response-time (SLA) state derived from
// channel activity.
type EscalationService struct {
	db         *gorm.DB
	policy     *authz.Policy
	dispatcher *Dispatcher
	slaHours   int

	// now is injectable for tests.
	now func() time.Time
}

// NewEscalationService creates a new escalation service.
func NewEscalationService(db *gorm.DB, policy *authz.Policy, dispatcher *Dispatcher, slaHours int) *EscalationService {
	return &EscalationService{db: db, policy: policy, dispatcher: dispatcher, slaHours: slaHours, now: time.Now}
}

// Escalate transfers response duty for the channel to the caller. Escalating
// an already escalated conversation re-points it and clears any previous
// hand-back, so the record always reflects the latest takeover.
func (s *EscalationService) Escalate(ctx context.Context, actor authz.Actor, channelID uuid.UUID, reason, ip string) (*models.ConversationOwnership, error) {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanEscalate(actor) {
		return nil, models.NewForbiddenError("Only coordination and management may take over conversations")
	}

	now := s.now().UTC()
	var ownership *models.ConversationOwnership
	var notices []*models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ownerships := repository.NewOwnershipRepository(tx)

		ownership, err = ownerships.GetActiveByChannel(ctx, channelID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Channels created before ownership tracking get a record seeded
			// from the channel creator on first takeover.
			ownership = &models.ConversationOwnership{
				ChannelID:       channelID,
				OriginalOwnerID: ch.CreatedByID,
				Active:          true,
				SLAHours:        s.slaHours,
			}
			if err := ownerships.Create(ctx, ownership); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if ownership.EscalatedToID != nil && *ownership.EscalatedToID == actor.UserID && ownership.Escalated() {
			return models.NewConflictError("You already own this conversation")
		}

		ownership.EscalatedToID = &actor.UserID
		ownership.EscalatedAt = &now
		ownership.Reason = reason
		ownership.Returned = false
		ownership.ReturnedAt = nil
		ownership.Alerted = false
		if err := ownerships.Save(ctx, ownership); err != nil {
			return err
		}

		entry := &models.AuditEntry{
			UserID:    &actor.UserID,
			Action:    models.AuditOwnershipTaken,
			ChannelID: &channelID,
			IP:        ip,
			Details: auditDetails(map[string]interface{}{
				"motivo": reason,
			}),
		}
		if err := repository.NewAuditRepository(tx).Append(ctx, entry); err != nil {
			return err
		}

		if ownership.OriginalOwnerID != actor.UserID {
			notices = append(notices, &models.Notification{
				UserID:    ownership.OriginalOwnerID,
				Kind:      models.NotifyEscalation,
				ChannelID: channelID,
				Title:     "Conversa assumida pela coordenação",
				Body:      reason,
			})
		}
		return s.dispatcher.Persist(ctx, tx, notices)
	})
	if err != nil {
		return nil, err
	}

	observability.EscalationsTotal.WithLabelValues("assumida").Inc()
	s.dispatcher.Publish(ctx, notices)
	return ownership, nil
}

// ReturnOwnership hands response duty back to the original owner. Only the
// current holder may return, and only while the conversation is actually
// escalated; the takeover itself stays visible in the audit trail.
func (s *EscalationService) ReturnOwnership(ctx context.Context, actor authz.Actor, channelID uuid.UUID, ip string) (*models.ConversationOwnership, error) {
	if _, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var ownership *models.ConversationOwnership
	var notices []*models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ownerships := repository.NewOwnershipRepository(tx)

		var err error
		ownership, err = ownerships.GetActiveByChannel(ctx, channelID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewDependentStateError("Conversation is not escalated")
			}
			return err
		}
		if !ownership.Escalated() {
			return models.NewDependentStateError("Conversation is not escalated")
		}

		if *ownership.EscalatedToID != actor.UserID {
			return models.NewDependentStateError("Only the current holder may return this conversation")
		}

		ownership.EscalatedToID = nil
		ownership.Returned = true
		ownership.ReturnedAt = &now
		if err := ownerships.Save(ctx, ownership); err != nil {
			return err
		}

		entry := &models.AuditEntry{
			UserID:    &actor.UserID,
			Action:    models.AuditOwnershipReturned,
			ChannelID: &channelID,
			IP:        ip,
		}
		if err := repository.NewAuditRepository(tx).Append(ctx, entry); err != nil {
			return err
		}

		if ownership.OriginalOwnerID != actor.UserID {
			notices = append(notices, &models.Notification{
				UserID:    ownership.OriginalOwnerID,
				Kind:      models.NotifyOwnershipBack,
				ChannelID: channelID,
				Title:     "Conversa devolvida a você",
			})
		}
		return s.dispatcher.Persist(ctx, tx, notices)
	})
	if err != nil {
		return nil, err
	}

	observability.EscalationsTotal.WithLabelValues("devolvida").Inc()
	s.dispatcher.Publish(ctx, notices)
	return ownership, nil
}

// GetOwnership returns the channel's active ownership record with its SLA
// state freshly derived from the last message time.
func (s *EscalationService) GetOwnership(ctx context.Context, actor authz.Actor, channelID uuid.UUID) (*models.ConversationOwnership, error) {
	ch, err := channelForViewer(ctx, repository.NewChannelRepository(s.db), s.policy, actor, channelID)
	if err != nil {
		return nil, err
	}
	ownership, err := repository.NewOwnershipRepository(s.db).GetActiveByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Ownership record for channel", channelID)
		}
		return nil, err
	}
	if _, err := s.refreshOne(ctx, ownership, ch.LastMessageAt); err != nil {
		return nil, err
	}
	return ownership, nil
}

// RefreshSLA sweeps every active ownership record, recomputes the overdue
// state from channel activity and dispatches a one-shot breach notification
// per record. It returns the records that breached during this sweep.
func (s *EscalationService) RefreshSLA(ctx context.Context) ([]*models.ConversationOwnership, error) {
	records, err := repository.NewOwnershipRepository(s.db).ListOverdueCandidates(ctx)
	if err != nil {
		return nil, err
	}

	var breached []*models.ConversationOwnership
	for _, o := range records {
		var ch models.Channel
		err := s.db.WithContext(ctx).
			Select("id", "last_message_at").
			First(&ch, "id = ?", o.ChannelID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		newlyOverdue, err := s.refreshOne(ctx, o, ch.LastMessageAt)
		if err != nil {
			return nil, err
		}
		if newlyOverdue {
			breached = append(breached, o)
		}
	}
	return breached, nil
}

// refreshOne persists the derived overdue state and, on the first breach,
// latches the alert flag and notifies the current response holder.
func (s *EscalationService) refreshOne(ctx context.Context, o *models.ConversationOwnership, lastMessageAt *time.Time) (newlyOverdue bool, err error) {
	overdue := o.IsOverdue(lastMessageAt, s.now().UTC())
	if overdue == o.Overdue && (!overdue || o.Alerted) {
		return false, nil
	}

	newlyOverdue = overdue && !o.Alerted
	var notices []*models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o.Overdue = overdue
		if newlyOverdue {
			o.Alerted = true
			holder := o.OriginalOwnerID
			if o.Escalated() {
				holder = *o.EscalatedToID
			}
			notices = append(notices, &models.Notification{
				UserID:    holder,
				Kind:      models.NotifySLABreach,
				ChannelID: o.ChannelID,
				Title:     "Conversa sem resposta dentro do prazo",
			})
		}
		if err := repository.NewOwnershipRepository(tx).Save(ctx, o); err != nil {
			return err
		}
		return s.dispatcher.Persist(ctx, tx, notices)
	})
	if err != nil {
		return false, err
	}

	if newlyOverdue {
		observability.SLABreachesTotal.Inc()
	}
	s.dispatcher.Publish(ctx, notices)
	return newlyOverdue, nil
}
