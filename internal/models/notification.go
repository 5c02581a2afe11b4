package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationKind identifies the event that produced a notification.
type NotificationKind string

const (
	NotifyNewMessage     NotificationKind = "NOVA_MENSAGEM"
	NotifyMention        NotificationKind = "MENCAO"
	NotifyEscalation     NotificationKind = "ESCALACAO"
	NotifyOwnershipBack  NotificationKind = "CONVERSA_DEVOLVIDA"
	NotifySLABreach      NotificationKind = "SLA_ESTOURADO"
	NotifyAddedToChannel NotificationKind = "ADICIONADO_AO_CANAL"
)

// Notification is a fire-and-forget inbox record. Email/SMS delivery is
// performed by an external collaborator; the delivery flags exist as its
// hand-off hook and are never set by this core.
//
// ChannelID and MessageID are plain references without a cascading
// constraint: notifications survive channel deletion for compliance.
type Notification struct {
	ID     uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID        `gorm:"type:uuid;not null;index:idx_notif_inbox,priority:1" json:"usuario_id"`
	Kind   NotificationKind `gorm:"type:varchar(30);not null" json:"tipo"`

	ChannelID uuid.UUID  `gorm:"type:uuid;not null" json:"canal_id"`
	MessageID *uuid.UUID `gorm:"type:uuid" json:"mensagem_id,omitempty"`

	Title string `gorm:"not null" json:"titulo"`
	Body  string `gorm:"type:text" json:"corpo"`

	Read   bool       `gorm:"default:false;index:idx_notif_inbox,priority:2" json:"lida"`
	ReadAt *time.Time `json:"lida_em,omitempty"`

	SentByEmail bool `gorm:"default:false" json:"enviada_por_email"`
	SentBySMS   bool `gorm:"default:false" json:"enviada_por_sms"`

	CreatedAt time.Time `gorm:"index:idx_notif_inbox,priority:3,sort:desc" json:"created_at"`
}

func (Notification) TableName() string { return "notificacoes" }

func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
