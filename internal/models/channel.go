package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChannelKind classifies a messaging channel.
type ChannelKind string

const (
	ChannelDirect       ChannelKind = "DIRETO"
	ChannelClassGroup   ChannelKind = "GRUPO_TURMA"
	ChannelSubjectGroup ChannelKind = "GRUPO_DISCIPLINA"
	ChannelProjectGroup ChannelKind = "GRUPO_PROJETO"
	ChannelOfficial     ChannelKind = "OFICIAL"
)

// Valid reports whether k is a known channel kind.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelDirect, ChannelClassGroup, ChannelSubjectGroup, ChannelProjectGroup, ChannelOfficial:
		return true
	}
	return false
}

// IsGroup reports whether the kind requires an explicit display name.
func (k ChannelKind) IsGroup() bool { return k != ChannelDirect }

// ChannelStatus is the channel lifecycle state.
type ChannelStatus string

const (
	ChannelActive   ChannelStatus = "ATIVO"
	ChannelArchived ChannelStatus = "ARQUIVADO"
	ChannelBlocked  ChannelStatus = "BLOQUEADO"
)

// ParticipantRole is the per-channel role of a participant.
type ParticipantRole string

const (
	ParticipantMember    ParticipantRole = "MEMBRO"
	ParticipantModerator ParticipantRole = "MODERADOR"
	ParticipantAdmin     ParticipantRole = "ADMIN"
)

// Valid reports whether r is a known participant role.
func (r ParticipantRole) Valid() bool {
	switch r {
	case ParticipantMember, ParticipantModerator, ParticipantAdmin:
		return true
	}
	return false
}

// Channel is a messaging thread: a one-to-one conversation or a group scoped
// to a class, subject or project. Participants and messages are owned by the
// channel and removed with it; audit entries, notifications and ownership
// records reference the channel but survive its deletion.
type Channel struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	SchoolID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"escola_id"`
	Kind        ChannelKind `gorm:"type:varchar(20);not null;index" json:"tipo"`
	Name        string      `json:"nome"`
	Description string      `json:"descricao,omitempty"`
	ClassID     *uuid.UUID  `gorm:"type:uuid;index" json:"turma_id,omitempty"`
	SubjectID   *uuid.UUID  `gorm:"type:uuid" json:"disciplina_id,omitempty"`
	CreatedByID uuid.UUID   `gorm:"type:uuid;not null" json:"criado_por"`

	// Flag columns carry no schema defaults: every create path sets them
	// explicitly, so a false value survives the INSERT.
	VisibleToManagement   bool `json:"visivel_gestao"`
	VisibleToCoordination bool `json:"visivel_coordenacao"`
	AllowsAttachments     bool `json:"permite_anexos"`
	AllowsSubmissions     bool `json:"permite_entrega_atividade"`

	Status ChannelStatus `gorm:"type:varchar(20);not null;default:'ATIVO';index" json:"status"`
	Pinned bool          `gorm:"default:false" json:"fixado"`

	// MutedBy holds users who silenced this channel; they keep access but
	// receive no notifications.
	MutedBy []User `gorm:"many2many:canal_silenciados;constraint:OnDelete:CASCADE" json:"-"`

	// LastMessageAt is denormalized from messages for inbox ordering and SLA
	// computation. Refreshed in the same transaction as every send.
	LastMessageAt *time.Time `gorm:"index" json:"ultima_mensagem_em,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Participants []Participant `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE" json:"participantes,omitempty"`
	Messages     []Message     `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE" json:"mensagens,omitempty"`

	// UnreadCount is computed per caller, never persisted.
	UnreadCount int64 `gorm:"-" json:"nao_lidas"`
}

func (Channel) TableName() string { return "canais" }

func (c *Channel) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ActiveParticipant returns the active participant row for userID, or nil.
func (c *Channel) ActiveParticipant(userID uuid.UUID) *Participant {
	for i := range c.Participants {
		p := &c.Participants[i]
		if p.UserID == userID && p.Active {
			return p
		}
	}
	return nil
}

// IsAdmin reports whether userID holds an active ADMIN participant row.
func (c *Channel) IsAdmin(userID uuid.UUID) bool {
	p := c.ActiveParticipant(userID)
	return p != nil && p.Role == ParticipantAdmin
}

// DisplayNameFor returns the channel name as seen by viewerID. Direct
// channels have no stored name; the counterpart's name is derived instead.
// Participants and their users must be preloaded.
func (c *Channel) DisplayNameFor(viewerID uuid.UUID) string {
	if c.Kind != ChannelDirect || c.Name != "" {
		return c.Name
	}
	for i := range c.Participants {
		p := &c.Participants[i]
		if p.UserID != viewerID && p.User != nil {
			return p.User.Name
		}
	}
	return c.Name
}

// Participant is a user's membership record in a channel. The (channel,user)
// pair is unique; removal is soft (active=false) so message attribution and
// history survive.
type Participant struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_canal_usuario" json:"canal_id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_canal_usuario;index" json:"usuario_id"`
	User      *User           `gorm:"foreignKey:UserID" json:"usuario,omitempty"`
	Role      ParticipantRole `gorm:"type:varchar(20);not null;default:'MEMBRO'" json:"papel"`
	Active    bool            `json:"ativo"`

	CanSend        bool `json:"pode_enviar"`
	CanViewHistory bool `json:"pode_ver_historico"`
	Notify         bool `json:"notificar"`

	AddedByID  *uuid.UUID `gorm:"type:uuid" json:"adicionado_por,omitempty"`
	LastViewAt *time.Time `json:"ultima_visualizacao,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Participant) TableName() string { return "participantes" }

func (p *Participant) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
