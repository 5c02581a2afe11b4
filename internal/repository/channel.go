// Package repository contains data-access interfaces and their GORM
// implementations. Constructors are cheap; services build repositories over a
// transaction handle when a request needs atomicity.
package repository

import (
	"context"
	"errors"

	"sophia/internal/authz"
	"sophia/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChannelFilter narrows channel listings.
type ChannelFilter struct {
	Kind   models.ChannelKind
	Status models.ChannelStatus
}

// ChannelRepository defines the interface for channel and participant data
// operations.
type ChannelRepository interface {
	Create(ctx context.Context, ch *models.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	// GetDirectBetween finds the Direct channel containing exactly the two
	// given users, or gorm.ErrRecordNotFound.
	GetDirectBetween(ctx context.Context, schoolID, userA, userB uuid.UUID) (*models.Channel, error)
	ListVisible(ctx context.Context, scope authz.ChannelScope, userID uuid.UUID, filter ChannelFilter) ([]*models.Channel, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.ChannelStatus) error
	SetLastMessageAt(ctx context.Context, id uuid.UUID, at interface{}) error
	// Delete hard-deletes the channel and everything it owns: participants,
	// messages, attachments, views and acknowledgement rows. Audit entries,
	// notifications and ownership records are deliberately retained.
	Delete(ctx context.Context, id uuid.UUID) error

	// AddParticipant inserts the (channel,user) row if absent and reports
	// whether a new row was created. Existing inactive rows are reactivated.
	AddParticipant(ctx context.Context, p *models.Participant) (created bool, err error)
	GetParticipant(ctx context.Context, channelID, userID uuid.UUID) (*models.Participant, error)
	DeactivateParticipant(ctx context.Context, channelID, userID uuid.UUID) error
	UpdateParticipant(ctx context.Context, p *models.Participant) error
	SetMuted(ctx context.Context, channelID, userID uuid.UUID, muted bool) error
}

type channelRepository struct {
	db *gorm.DB
}

// NewChannelRepository creates a new channel repository.
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) Create(ctx context.Context, ch *models.Channel) error {
	return r.db.WithContext(ctx).Create(ch).Error
}

func (r *channelRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Preload("Participants.User").
		Preload("MutedBy").
		First(&ch, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *channelRepository) GetDirectBetween(ctx context.Context, schoolID, userA, userB uuid.UUID) (*models.Channel, error) {
	var existing models.Channel
	err := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Joins(
			"JOIN participantes pa ON pa.channel_id = canais.id AND pa.user_id = ?",
			userA,
		).
		Joins(
			"JOIN participantes pb ON pb.channel_id = canais.id AND pb.user_id = ?",
			userB,
		).
		Where("canais.kind = ?", models.ChannelDirect).
		Where("canais.school_id = ?", schoolID).
		Where(
			"NOT EXISTS (SELECT 1 FROM participantes px WHERE px.channel_id = canais.id AND px.user_id NOT IN (?, ?))",
			userA, userB,
		).
		Order("canais.created_at ASC").
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, existing.ID)
}

func (r *channelRepository) ListVisible(ctx context.Context, scope authz.ChannelScope, userID uuid.UUID, filter ChannelFilter) ([]*models.Channel, error) {
	q := r.db.WithContext(ctx).Model(&models.Channel{})

	switch {
	case scope.All:
		// no tenant restriction
	case len(scope.SchoolIDs) > 0 && !scope.Participant:
		q = q.Where("canais.school_id IN ?", scope.SchoolIDs)
	default:
		member := "EXISTS (SELECT 1 FROM participantes p WHERE p.channel_id = canais.id AND p.user_id = ? AND p.active = ?)"
		if len(scope.CoordinatedClassIDs) > 0 {
			q = q.Where(
				member+" OR (canais.visible_to_coordination = ? AND canais.class_id IN ?)",
				userID, true, true, scope.CoordinatedClassIDs,
			)
		} else {
			q = q.Where(member, userID, true)
		}
	}

	if filter.Kind != "" {
		q = q.Where("canais.kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		q = q.Where("canais.status = ?", filter.Status)
	}

	var channels []*models.Channel
	err := q.
		Preload("Participants").
		Preload("Participants.User").
		Order("canais.pinned DESC").
		// Channels that never received a message sort after active ones on
		// Postgres, where plain DESC puts NULLs first.
		Order("canais.last_message_at DESC NULLS LAST").
		Find(&channels).Error
	return channels, err
}

func (r *channelRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.ChannelStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *channelRepository) SetLastMessageAt(ctx context.Context, id uuid.UUID, at interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", id).
		Update("last_message_at", at).Error
}

func (r *channelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	// Explicit bottom-up deletes keep the cascade identical across Postgres
	// and the SQLite test driver.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msgIDs := tx.Model(&models.Message{}).Select("id").Where("channel_id = ?", id)
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&models.MessageView{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", msgIDs).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			"DELETE FROM mensagem_confirmacoes WHERE message_id IN (SELECT id FROM mensagens WHERE channel_id = ?)", id,
		).Error; err != nil {
			return err
		}
		if err := tx.Where("channel_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("channel_id = ?", id).Delete(&models.Participant{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM canal_silenciados WHERE channel_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Channel{}, "id = ?", id).Error
	})
}

func (r *channelRepository) AddParticipant(ctx context.Context, p *models.Participant) (bool, error) {
	var existing models.Participant
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", p.ChannelID, p.UserID).
		First(&existing).Error
	switch {
	case err == nil:
		if existing.Active {
			return false, nil
		}
		existing.Active = true
		existing.Role = p.Role
		existing.AddedByID = p.AddedByID
		return false, r.db.WithContext(ctx).Save(&existing).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Insert-if-absent under the unique (channel,user) index; a
		// concurrent duplicate resolves to "already present".
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p)
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected > 0, nil
	default:
		return false, err
	}
}

func (r *channelRepository) GetParticipant(ctx context.Context, channelID, userID uuid.UUID) (*models.Participant, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *channelRepository) DeactivateParticipant(ctx context.Context, channelID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Update("active", false).Error
}

func (r *channelRepository) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *channelRepository) SetMuted(ctx context.Context, channelID, userID uuid.UUID, muted bool) error {
	if muted {
		return r.db.WithContext(ctx).Exec(
			"INSERT INTO canal_silenciados (channel_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			channelID, userID,
		).Error
	}
	return r.db.WithContext(ctx).Exec(
		"DELETE FROM canal_silenciados WHERE channel_id = ? AND user_id = ?",
		channelID, userID,
	).Error
}
