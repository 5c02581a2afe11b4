package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationOwnership tracks who currently owns response duty for a
// channel. The original owner is immutable once set; a coordinator or manager
// may take over (escalate) and later hand the duty back. The service layer
// keeps at most one active record per channel.
type ConversationOwnership struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID uuid.UUID `gorm:"type:uuid;not null;index" json:"canal_id"`

	OriginalOwnerID uuid.UUID  `gorm:"type:uuid;not null" json:"responsavel_original"`
	EscalatedToID   *uuid.UUID `gorm:"type:uuid" json:"escalada_para,omitempty"`

	EscalatedAt *time.Time `json:"escalada_em,omitempty"`
	ReturnedAt  *time.Time `json:"devolvida_em,omitempty"`
	Reason      string     `gorm:"type:text" json:"motivo,omitempty"`

	Active   bool `gorm:"default:true;index" json:"ativa"`
	Returned bool `gorm:"default:false" json:"devolvida"`

	// SLAHours is the configured response window. Alerted latches once a
	// breach notification has been dispatched; Overdue is the last computed
	// breach state, refreshed from the channel's last message time.
	SLAHours int  `gorm:"default:24" json:"sla_horas"`
	Alerted  bool `gorm:"default:false" json:"alertada"`
	Overdue  bool `gorm:"default:false" json:"atrasada"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ConversationOwnership) TableName() string { return "responsaveis_conversa" }

func (o *ConversationOwnership) BeforeCreate(_ *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Escalated reports whether the record is currently in the escalated state.
func (o *ConversationOwnership) Escalated() bool {
	return o.Active && !o.Returned && o.EscalatedToID != nil
}

// IsOverdue derives the SLA breach state from the channel's last message
// time. A channel that never received a message is never overdue.
func (o *ConversationOwnership) IsOverdue(lastMessageAt *time.Time, now time.Time) bool {
	if lastMessageAt == nil {
		return false
	}
	return now.Sub(*lastMessageAt) > time.Duration(o.SLAHours)*time.Hour
}
