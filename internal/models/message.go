package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageKind classifies a message.
type MessageKind string

const (
	MessageText       MessageKind = "TEXTO"
	MessageFile       MessageKind = "ARQUIVO"
	MessageAssignment MessageKind = "ATIVIDADE"
	MessageNotice     MessageKind = "AVISO"
	MessageSystem     MessageKind = "SISTEMA"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageFile, MessageAssignment, MessageNotice, MessageSystem:
		return true
	}
	return false
}

// MessagePriority is the sender-declared urgency of a message.
type MessagePriority string

const (
	PriorityLow    MessagePriority = "BAIXA"
	PriorityNormal MessagePriority = "NORMAL"
	PriorityHigh   MessagePriority = "ALTA"
	PriorityUrgent MessagePriority = "URGENTE"
)

// Valid reports whether p is a known priority.
func (p MessagePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Message belongs to exactly one channel. Edits and deletes are append-only
// state transitions: flags are set and content retained so the audit trail
// stays reconstructable. Rows are never hard-deleted except by channel
// cascade.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID uuid.UUID `gorm:"type:uuid;not null;index:idx_canal_enviada,priority:1" json:"canal_id"`

	// Seq is a monotonically increasing insertion sequence used to break
	// ordering ties between messages sharing a send timestamp.
	Seq int64 `gorm:"autoIncrement;index" json:"-"`

	// SenderID is nullable: it is preserved as NULL if the sender's account
	// is later removed from the directory.
	SenderID *uuid.UUID `gorm:"type:uuid;index" json:"remetente_id,omitempty"`
	Sender   *User      `gorm:"foreignKey:SenderID" json:"remetente,omitempty"`

	Kind     MessageKind     `gorm:"type:varchar(20);not null;default:'TEXTO'" json:"tipo"`
	Content  string          `gorm:"type:text;not null" json:"conteudo"`
	Priority MessagePriority `gorm:"type:varchar(10);not null;default:'NORMAL'" json:"prioridade"`

	// ReplyToID references a strictly earlier message in the same channel,
	// which rules out cycles by construction.
	ReplyToID *uuid.UUID `gorm:"type:uuid" json:"respondendo_a,omitempty"`
	ReplyTo   *Message   `gorm:"foreignKey:ReplyToID" json:"resposta,omitempty"`

	Edited   bool       `gorm:"default:false" json:"editada"`
	EditedAt *time.Time `json:"editada_em,omitempty"`

	Deleted   bool       `gorm:"default:false;index" json:"excluida"`
	DeletedAt *time.Time `json:"excluida_em,omitempty"`

	// Read is the coarse "someone besides the sender has read it" marker.
	// Per-user receipts live in MessageView rows.
	Read   bool       `gorm:"default:false;index" json:"lida"`
	ReadAt *time.Time `json:"lida_em,omitempty"`

	ViewCount int64  `gorm:"default:0" json:"visualizacoes"`
	SenderIP  string `gorm:"type:varchar(45)" json:"-"`

	RequiresAck    bool   `gorm:"default:false" json:"requer_confirmacao"`
	AcknowledgedBy []User `gorm:"many2many:mensagem_confirmacoes;constraint:OnDelete:CASCADE" json:"confirmada_por,omitempty"`

	SentAt    time.Time `gorm:"index:idx_canal_enviada,priority:2,sort:desc" json:"enviada_em"`
	UpdatedAt time.Time `json:"-"`

	Attachments []Attachment  `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"anexos,omitempty"`
	Views       []MessageView `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Message) TableName() string { return "mensagens" }

func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	return nil
}

// AttachmentKind classifies an attachment by media type.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "IMAGEM"
	AttachmentDocument AttachmentKind = "DOCUMENTO"
	AttachmentVideo    AttachmentKind = "VIDEO"
	AttachmentAudio    AttachmentKind = "AUDIO"
	AttachmentOther    AttachmentKind = "OUTRO"
)

// Valid reports whether k is a known attachment kind.
func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachmentImage, AttachmentDocument, AttachmentVideo, AttachmentAudio, AttachmentOther:
		return true
	}
	return false
}

// Attachment belongs to exactly one message. The file itself lives in the
// external storage service; clients upload first and submit the resulting
// URL, so the messaging core never performs blocking uploads.
type Attachment struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID uuid.UUID      `gorm:"type:uuid;not null;index" json:"mensagem_id"`
	Kind      AttachmentKind `gorm:"type:varchar(20);not null;default:'OUTRO'" json:"tipo"`
	FileName  string         `gorm:"not null" json:"nome_arquivo"`
	URL       string         `gorm:"not null" json:"url"`
	Size      int64          `json:"tamanho"`
	MimeType  string         `json:"mime_type"`

	// Assignment-submission linkage (the Assignment entity itself is an
	// external collaborator).
	AssignmentID    *uuid.UUID `gorm:"type:uuid" json:"atividade_id,omitempty"`
	Grade           *float64   `json:"nota,omitempty"`
	TeacherFeedback string     `json:"feedback_professor,omitempty"`

	Downloads int64     `gorm:"default:0" json:"downloads"`
	CreatedAt time.Time `json:"created_at"`
}

func (Attachment) TableName() string { return "anexos" }

func (a *Attachment) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// MessageView records the first time a user read a message. The
// (message,user) pair is unique and inserted with ON CONFLICT DO NOTHING so
// concurrent views from the same user collapse to one row.
type MessageView struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"mensagem_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"usuario_id"`
	ViewedAt  time.Time `gorm:"autoCreateTime" json:"visualizada_em"`
}

func (MessageView) TableName() string { return "mensagem_visualizacoes" }
