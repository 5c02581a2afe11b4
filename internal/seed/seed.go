// Package seed provides database seeding utilities for development and
// testing. It populates a small but realistic tenant: schools, classes,
// users of every role, channels and message history.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"sophia/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configure the seeder.
type Options struct {
	NumSchools          int
	ClassesPerSchool    int
	GuardiansPerClass   int
	MessagesPerChannel  int
	ShouldClean         bool
	DefaultUserPassword string
}

// DefaultOptions returns a small development dataset.
func DefaultOptions() Options {
	return Options{
		NumSchools:          2,
		ClassesPerSchool:    3,
		GuardiansPerClass:   8,
		MessagesPerChannel:  25,
		DefaultUserPassword: "senha-dev-123",
	}
}

var subjectNames = []string{
	"Matemática", "Português", "História", "Geografia", "Ciências",
	"Inglês", "Educação Física", "Artes",
}

// Run populates the database with demo data.
func Run(db *gorm.DB, opts Options) error {
	gofakeit.Seed(time.Now().UnixNano())
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if opts.ShouldClean {
		if err := clean(db); err != nil {
			return fmt.Errorf("clean failed: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.DefaultUserPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	passwordHash := string(hash)

	for i := 0; i < opts.NumSchools; i++ {
		school := &models.School{
			Name:   fmt.Sprintf("Escola %s", gofakeit.LastName()),
			Active: true,
		}
		if err := db.Create(school).Error; err != nil {
			return err
		}

		manager, err := createUser(db, models.RoleManager, passwordHash)
		if err != nil {
			return err
		}
		if err := enroll(db, school.ID, manager); err != nil {
			return err
		}

		var subjects []*models.Subject
		for _, name := range subjectNames[:4] {
			subject := &models.Subject{SchoolID: school.ID, Name: name}
			if err := db.Create(subject).Error; err != nil {
				return err
			}
			subjects = append(subjects, subject)
		}

		for j := 0; j < opts.ClassesPerSchool; j++ {
			coordinator, err := createUser(db, models.RoleCoordinator, passwordHash)
			if err != nil {
				return err
			}
			if err := enroll(db, school.ID, coordinator); err != nil {
				return err
			}

			class := &models.SchoolClass{
				SchoolID:      school.ID,
				Name:          fmt.Sprintf("%dº Ano %s", j+1, string(rune('A'+j))),
				Grade:         fmt.Sprintf("%dº ano", j+1),
				CoordinatorID: &coordinator.ID,
			}
			if err := db.Create(class).Error; err != nil {
				return err
			}

			teacher, err := createUser(db, models.RoleTeacher, passwordHash)
			if err != nil {
				return err
			}
			if err := enroll(db, school.ID, teacher); err != nil {
				return err
			}

			var guardians []*models.User
			for k := 0; k < opts.GuardiansPerClass; k++ {
				guardian, err := createUser(db, models.RoleGuardian, passwordHash)
				if err != nil {
					return err
				}
				if err := enroll(db, school.ID, guardian); err != nil {
					return err
				}
				guardians = append(guardians, guardian)
			}

			subject := subjects[r.Intn(len(subjects))]
			if err := seedClassChannel(db, r, school.ID, class, subject, teacher, guardians, opts); err != nil {
				return err
			}
			if err := seedDirectChannels(db, r, school.ID, teacher, guardians, opts); err != nil {
				return err
			}
		}
	}

	log.Println("Seeding completed")
	return nil
}

func createUser(db *gorm.DB, role models.Role, passwordHash string) (*models.User, error) {
	first := gofakeit.FirstName()
	last := gofakeit.LastName()
	user := &models.User{
		Username:     strings.ToLower(fmt.Sprintf("%s.%s%d", first, last, gofakeit.Number(1, 9999))),
		Name:         fmt.Sprintf("%s %s", first, last),
		Email:        strings.ToLower(fmt.Sprintf("%s.%s%d@sophia.local", first, last, gofakeit.Number(1, 99999))),
		Role:         role,
		Phone:        gofakeit.Phone(),
		Active:       true,
		PasswordHash: passwordHash,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func enroll(db *gorm.DB, schoolID uuid.UUID, user *models.User) error {
	return db.Create(&models.SchoolMembership{
		SchoolID:     schoolID,
		UserID:       user.ID,
		RoleAtSchool: user.Role,
	}).Error
}

func seedClassChannel(db *gorm.DB, r *rand.Rand, schoolID uuid.UUID, class *models.SchoolClass, subject *models.Subject, teacher *models.User, guardians []*models.User, opts Options) error {
	channel := &models.Channel{
		SchoolID:              schoolID,
		Kind:                  models.ChannelClassGroup,
		Name:                  fmt.Sprintf("Turma %s - Avisos", class.Name),
		ClassID:               &class.ID,
		SubjectID:             &subject.ID,
		CreatedByID:           teacher.ID,
		Status:                models.ChannelActive,
		VisibleToManagement:   true,
		VisibleToCoordination: true,
		AllowsAttachments:     true,
	}
	if err := db.Create(channel).Error; err != nil {
		return err
	}

	participants := []*models.Participant{{
		ChannelID: channel.ID,
		UserID:    teacher.ID,
		Role:      models.ParticipantAdmin,
		Active:    true,
		CanSend:   true, CanViewHistory: true, Notify: true,
	}}
	for _, g := range guardians {
		participants = append(participants, &models.Participant{
			ChannelID: channel.ID,
			UserID:    g.ID,
			Role:      models.ParticipantMember,
			Active:    true,
			CanSend:   true, CanViewHistory: true, Notify: true,
			AddedByID: &teacher.ID,
		})
	}
	for _, p := range participants {
		if err := db.Create(p).Error; err != nil {
			return err
		}
	}

	if err := db.Create(&models.ConversationOwnership{
		ChannelID:       channel.ID,
		OriginalOwnerID: teacher.ID,
		Active:          true,
		SLAHours:        24,
	}).Error; err != nil {
		return err
	}

	senders := append([]*models.User{teacher}, guardians...)
	return seedMessages(db, r, channel, senders, opts.MessagesPerChannel)
}

func seedDirectChannels(db *gorm.DB, r *rand.Rand, schoolID uuid.UUID, teacher *models.User, guardians []*models.User, opts Options) error {
	// A couple of teacher/guardian conversations per class.
	n := 2
	if n > len(guardians) {
		n = len(guardians)
	}
	for _, g := range guardians[:n] {
		channel := &models.Channel{
			SchoolID:    schoolID,
			Kind:        models.ChannelDirect,
			CreatedByID: g.ID,
			Status:      models.ChannelActive,
		}
		if err := db.Create(channel).Error; err != nil {
			return err
		}
		pair := []*models.Participant{
			{ChannelID: channel.ID, UserID: g.ID, Role: models.ParticipantAdmin, Active: true,
				CanSend: true, CanViewHistory: true, Notify: true},
			{ChannelID: channel.ID, UserID: teacher.ID, Role: models.ParticipantMember, Active: true,
				CanSend: true, CanViewHistory: true, Notify: true, AddedByID: &g.ID},
		}
		for _, p := range pair {
			if err := db.Create(p).Error; err != nil {
				return err
			}
		}
		if err := db.Create(&models.ConversationOwnership{
			ChannelID:       channel.ID,
			OriginalOwnerID: g.ID,
			Active:          true,
			SLAHours:        24,
		}).Error; err != nil {
			return err
		}
		if err := seedMessages(db, r, channel, []*models.User{g, teacher}, opts.MessagesPerChannel/2); err != nil {
			return err
		}
	}
	return nil
}

func seedMessages(db *gorm.DB, r *rand.Rand, channel *models.Channel, senders []*models.User, count int) error {
	var last time.Time
	for i := 0; i < count; i++ {
		sender := senders[r.Intn(len(senders))]
		sentAt := time.Now().UTC().
			Add(-time.Duration(r.Intn(14*24)) * time.Hour).
			Add(-time.Duration(r.Intn(60)) * time.Minute)
		msg := &models.Message{
			ChannelID: channel.ID,
			SenderID:  &sender.ID,
			Kind:      models.MessageText,
			Content:   gofakeit.Sentence(r.Intn(12) + 3),
			Priority:  models.PriorityNormal,
			Read:      r.Intn(3) > 0,
			SentAt:    sentAt,
		}
		if err := db.Create(msg).Error; err != nil {
			return err
		}
		if sentAt.After(last) {
			last = sentAt
		}
	}
	if count > 0 {
		return db.Model(&models.Channel{}).
			Where("id = ?", channel.ID).
			Update("last_message_at", last).Error
	}
	return nil
}

func clean(db *gorm.DB) error {
	tables := []string{
		"auditoria", "notificacoes", "responsaveis_conversa",
		"mensagem_confirmacoes", "mensagem_visualizacoes", "anexos", "mensagens",
		"canal_silenciados", "participantes", "canais",
		"escola_usuarios", "disciplinas", "turmas", "escolas", "users",
	}
	for _, t := range tables {
		if err := db.Exec("DELETE FROM " + t).Error; err != nil {
			return err
		}
	}
	return nil
}
