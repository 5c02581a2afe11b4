// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the closed set of global user roles, ordered from most to least
// privileged. Values match the directory service's wire format.
type Role string

const (
	RoleSuperuser   Role = "SUPERUSER"
	RoleManager     Role = "GESTOR"
	RoleCoordinator Role = "COORDENADOR"
	RoleTeacher     Role = "PROFESSOR"
	RoleGuardian    Role = "RESPONSAVEL"
	RoleStudent     Role = "ALUNO"
)

// IsStaff reports whether the role is a school-staff role with elevated
// channel access (manager and above, or coordinator).
func (r Role) IsStaff() bool {
	switch r {
	case RoleSuperuser, RoleManager, RoleCoordinator:
		return true
	}
	return false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperuser, RoleManager, RoleCoordinator, RoleTeacher, RoleGuardian, RoleStudent:
		return true
	}
	return false
}

// User mirrors the directory service's user record. The messaging core
// consumes it read-only; account management lives in the directory.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Name      string    `gorm:"not null" json:"nome"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Role      Role      `gorm:"type:varchar(20);not null;index" json:"role"`
	PhotoURL  string    `json:"foto,omitempty"`
	Phone     string    `json:"telefone,omitempty"`
	Active    bool      `gorm:"default:true" json:"ativo"`

	// PasswordHash belongs to the auth system that shares this table. The
	// messaging core never reads it; only bootstrap and seeding write it.
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName matches the directory schema.
func (User) TableName() string { return "users" }

// BeforeCreate assigns a UUID primary key when absent.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// School is the tenant (escola). Every channel belongs to exactly one school.
type School struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"nome"`
	Active    bool      `gorm:"default:true" json:"ativo"`
	CreatedAt time.Time `json:"created_at"`
}

func (School) TableName() string { return "escolas" }

func (s *School) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SchoolMembership links a user to a school. A user may belong to several
// schools, possibly with a different role in each.
type SchoolMembership struct {
	SchoolID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"escola_id"`
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"usuario_id"`
	RoleAtSchool Role      `gorm:"type:varchar(20)" json:"role_na_escola"`
}

func (SchoolMembership) TableName() string { return "escola_usuarios" }

// SchoolClass is a class (turma) inside a school. Coordinators are attached
// per class and gain visibility into coordination-flagged channels of their
// classes.
type SchoolClass struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SchoolID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"escola_id"`
	Name          string     `gorm:"not null" json:"nome"`
	Grade         string     `json:"serie,omitempty"`
	CoordinatorID *uuid.UUID `gorm:"type:uuid;index" json:"coordenador_id,omitempty"`
}

func (SchoolClass) TableName() string { return "turmas" }

func (c *SchoolClass) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Subject is a school subject (disciplina) a channel may be linked to.
type Subject struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SchoolID uuid.UUID `gorm:"type:uuid;not null;index" json:"escola_id"`
	Name     string    `gorm:"not null" json:"nome"`
	Code     string    `json:"codigo,omitempty"`
}

func (Subject) TableName() string { return "disciplinas" }

func (s *Subject) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
