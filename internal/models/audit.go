package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditAction identifies a state-changing operation in the audit trail.
type AuditAction string

const (
	AuditChannelCreated     AuditAction = "CANAL_CRIADO"
	AuditChannelArchived    AuditAction = "CANAL_ARQUIVADO"
	AuditChannelDeleted     AuditAction = "CANAL_EXCLUIDO"
	AuditParticipantAdded   AuditAction = "PARTICIPANTE_ADICIONADO"
	AuditParticipantRemoved AuditAction = "PARTICIPANTE_REMOVIDO"
	AuditMessageSent        AuditAction = "MENSAGEM_ENVIADA"
	AuditMessageEdited      AuditAction = "MENSAGEM_EDITADA"
	AuditMessageDeleted     AuditAction = "MENSAGEM_EXCLUIDA"
	AuditOwnershipTaken     AuditAction = "CONVERSA_ASSUMIDA"
	AuditOwnershipReturned  AuditAction = "CONVERSA_DEVOLVIDA"
)

// AuditEntry is an append-only compliance record. There is no update or
// delete path. Channel and message references are plain UUID columns without
// foreign keys so entries are retained when their subject is purged.
type AuditEntry struct {
	ID     uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID *uuid.UUID  `gorm:"type:uuid;index" json:"usuario_id,omitempty"`
	Action AuditAction `gorm:"type:varchar(40);not null;index" json:"acao"`

	ChannelID *uuid.UUID `gorm:"type:uuid;index" json:"canal_id,omitempty"`
	MessageID *uuid.UUID `gorm:"type:uuid" json:"mensagem_id,omitempty"`

	Details json.RawMessage `gorm:"type:json" json:"detalhes,omitempty"`
	IP      string          `gorm:"type:varchar(45)" json:"ip,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AuditEntry) TableName() string { return "auditoria" }

func (e *AuditEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
