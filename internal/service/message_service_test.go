package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"sophia/internal/authz"
	"sophia/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageFixture struct {
	env      *testEnv
	school   *models.School
	teacher  *models.User
	guardian *models.User
	channel  *models.Channel
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	guardian := seedUser(t, env.db, models.RoleGuardian, school.ID)

	ch, _, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelProjectGroup,
		Name:           "Mensagens",
		ParticipantIDs: []uuid.UUID{guardian.ID},
	})
	require.NoError(t, err)

	return &messageFixture{env: env, school: school, teacher: teacher, guardian: guardian, channel: ch}
}

func (f *messageFixture) teacherActor() authz.Actor  { return actorFor(f.teacher, f.school.ID) }
func (f *messageFixture) guardianActor() authz.Actor { return actorFor(f.guardian, f.school.ID) }

func TestSendMessage(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{
		Content:  "Boa tarde a todos",
		Priority: models.PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageText, msg.Kind)
	assert.Equal(t, models.PriorityHigh, msg.Priority)
	assert.False(t, msg.Read)

	var ch models.Channel
	require.NoError(t, f.env.db.First(&ch, "id = ?", f.channel.ID).Error)
	require.NotNil(t, ch.LastMessageAt)
	assert.WithinDuration(t, msg.SentAt, *ch.LastMessageAt, time.Second)

	assert.EqualValues(t, 1, countAudit(t, f.env.db, f.channel.ID, models.AuditMessageSent))
	assert.EqualValues(t, 1, countNotifications(t, f.env.db, f.guardian.ID, models.NotifyNewMessage))
	assert.EqualValues(t, 0, countNotifications(t, f.env.db, f.teacher.ID, models.NotifyNewMessage))
}

func TestSendMessage_Validation(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	t.Run("empty content", func(t *testing.T) {
		_, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{})
		assertAppCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("content too long", func(t *testing.T) {
		_, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{
			Content: strings.Repeat("a", maxMessageLength+1),
		})
		assertAppCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("system kind is reserved", func(t *testing.T) {
		_, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{
			Kind:    models.MessageSystem,
			Content: "x",
		})
		assertAppCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("reply must target the same channel", func(t *testing.T) {
		other, _, err := f.env.channels.CreateChannel(ctx, f.teacherActor(), CreateChannelInput{
			SchoolID: f.school.ID,
			Kind:     models.ChannelProjectGroup,
			Name:     "Outro",
		})
		require.NoError(t, err)
		foreign, err := f.env.messages.SendMessage(ctx, f.teacherActor(), other.ID, SendMessageInput{Content: "lá"})
		require.NoError(t, err)

		_, err = f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{
			Content:   "resposta",
			ReplyToID: &foreign.ID,
		})
		assertAppCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("attachments rejected when channel disallows them", func(t *testing.T) {
		off := false
		noFiles, _, err := f.env.channels.CreateChannel(ctx, f.teacherActor(), CreateChannelInput{
			SchoolID:          f.school.ID,
			Kind:              models.ChannelProjectGroup,
			Name:              "Sem anexos",
			AllowsAttachments: &off,
		})
		require.NoError(t, err)

		_, err = f.env.messages.SendMessage(ctx, f.teacherActor(), noFiles.ID, SendMessageInput{
			Content: "segue arquivo",
			Attachments: []AttachmentInput{
				{FileName: "prova.pdf", URL: "https://files.local/prova.pdf"},
			},
		})
		assertAppCode(t, err, "FORBIDDEN")
	})
}

func TestSendMessage_WithAttachments(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{
		Kind:    models.MessageFile,
		Content: "material da aula",
		Attachments: []AttachmentInput{
			{Kind: models.AttachmentDocument, FileName: "apostila.pdf", URL: "https://files.local/apostila.pdf", Size: 2048},
		},
	})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, models.AttachmentDocument, msg.Attachments[0].Kind)

	var stored int64
	require.NoError(t, f.env.db.Model(&models.Attachment{}).Where("message_id = ?", msg.ID).Count(&stored).Error)
	assert.EqualValues(t, 1, stored)
}

func TestSendMessage_MentionNotification(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	_, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{
		Content: "@" + f.guardian.Username + " pode confirmar presença?",
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, countNotifications(t, f.env.db, f.guardian.ID, models.NotifyMention))
	assert.EqualValues(t, 0, countNotifications(t, f.env.db, f.guardian.ID, models.NotifyNewMessage))
}

func TestSendMessage_NonParticipantGetsNotFound(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	stranger := seedUser(t, f.env.db, models.RoleGuardian, f.school.ID)
	_, err := f.env.messages.SendMessage(ctx, actorFor(stranger, f.school.ID), f.channel.ID, SendMessageInput{Content: "oi"})
	assertAppCode(t, err, "NOT_FOUND")
}

func TestEditMessage_Window(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	base := time.Now().UTC()
	f.env.messages.now = func() time.Time { return base }

	msg, err := f.env.messages.SendMessage(ctx, f.guardianActor(), f.channel.ID, SendMessageInput{Content: "orginal"})
	require.NoError(t, err)

	// Within the window the sender may fix their typo.
	f.env.messages.now = func() time.Time { return base.Add(authz.EditWindow - time.Minute) }
	edited, err := f.env.messages.EditMessage(ctx, f.guardianActor(), f.channel.ID, msg.ID, "original", "")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)
	assert.EqualValues(t, 1, countAudit(t, f.env.db, f.channel.ID, models.AuditMessageEdited))

	// Past the window the sender is locked out.
	f.env.messages.now = func() time.Time { return base.Add(authz.EditWindow + time.Minute) }
	_, err = f.env.messages.EditMessage(ctx, f.guardianActor(), f.channel.ID, msg.ID, "tarde", "")
	assertAppCode(t, err, "FORBIDDEN")

	// Channel admins are not bound by the window.
	_, err = f.env.messages.EditMessage(ctx, f.teacherActor(), f.channel.ID, msg.ID, "corrigido pelo admin", "")
	require.NoError(t, err)
}

func TestDeleteMessage_Soft(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.env.messages.SendMessage(ctx, f.guardianActor(), f.channel.ID, SendMessageInput{Content: "apaga isso"})
	require.NoError(t, err)

	other := seedUser(t, f.env.db, models.RoleGuardian, f.school.ID)
	_, err = f.env.memberships.AddParticipants(ctx, f.teacherActor(), f.channel.ID, AddParticipantsInput{
		UserIDs: []uuid.UUID{other.ID},
	})
	require.NoError(t, err)

	err = f.env.messages.DeleteMessage(ctx, actorFor(other, f.school.ID), f.channel.ID, msg.ID, "")
	assertAppCode(t, err, "FORBIDDEN")

	require.NoError(t, f.env.messages.DeleteMessage(ctx, f.guardianActor(), f.channel.ID, msg.ID, ""))

	// The row survives with its content for compliance, but is never listed.
	var stored models.Message
	require.NoError(t, f.env.db.First(&stored, "id = ?", msg.ID).Error)
	assert.True(t, stored.Deleted)
	assert.Equal(t, "apaga isso", stored.Content)

	listed, err := f.env.messages.ListMessages(ctx, f.teacherActor(), f.channel.ID, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, listed)

	err = f.env.messages.DeleteMessage(ctx, f.guardianActor(), f.channel.ID, msg.ID, "")
	assertAppCode(t, err, "NOT_FOUND")
}

func TestRecordView_Idempotent(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "viram?"})
	require.NoError(t, err)

	require.NoError(t, f.env.messages.RecordView(ctx, f.guardianActor(), f.channel.ID, msg.ID))
	require.NoError(t, f.env.messages.RecordView(ctx, f.guardianActor(), f.channel.ID, msg.ID))

	var stored models.Message
	require.NoError(t, f.env.db.First(&stored, "id = ?", msg.ID).Error)
	assert.EqualValues(t, 1, stored.ViewCount)
	assert.True(t, stored.Read)

	views, err := f.env.messages.ListViews(ctx, f.teacherActor(), f.channel.ID, msg.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, f.guardian.ID, views[0].UserID)
}

func TestRecordView_SenderDoesNotMarkRead(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "auto-leitura"})
	require.NoError(t, err)

	require.NoError(t, f.env.messages.RecordView(ctx, f.teacherActor(), f.channel.ID, msg.ID))

	var stored models.Message
	require.NoError(t, f.env.db.First(&stored, "id = ?", msg.ID).Error)
	assert.False(t, stored.Read)
	assert.EqualValues(t, 1, stored.ViewCount)
}

func TestMarkChannelRead(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "aviso"})
		require.NoError(t, err)
	}
	_, err := f.env.messages.SendMessage(ctx, f.guardianActor(), f.channel.ID, SendMessageInput{Content: "resposta"})
	require.NoError(t, err)

	count, err := f.env.messages.UnreadCount(ctx, f.guardianActor(), f.channel.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)

	require.NoError(t, f.env.messages.MarkChannelRead(ctx, f.guardianActor(), f.channel.ID))

	count, err = f.env.messages.UnreadCount(ctx, f.guardianActor(), f.channel.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	var p models.Participant
	require.NoError(t, f.env.db.First(&p, "channel_id = ? AND user_id = ?", f.channel.ID, f.guardian.ID).Error)
	assert.NotNil(t, p.LastViewAt)
}

func TestListMessages_HonorsHistoryFlag(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	old, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "antes"})
	require.NoError(t, err)
	// Backdate so the new member's join time falls after it.
	require.NoError(t, f.env.db.Model(&models.Message{}).
		Where("id = ?", old.ID).
		Update("sent_at", time.Now().UTC().Add(-time.Hour)).Error)

	newcomer := seedUser(t, f.env.db, models.RoleGuardian, f.school.ID)
	_, err = f.env.memberships.AddParticipants(ctx, f.teacherActor(), f.channel.ID, AddParticipantsInput{
		UserIDs: []uuid.UUID{newcomer.ID},
	})
	require.NoError(t, err)
	off := false
	_, err = f.env.memberships.UpdateParticipant(ctx, f.teacherActor(), f.channel.ID, newcomer.ID, ParticipantUpdateInput{
		CanViewHistory: &off,
	})
	require.NoError(t, err)

	_, err = f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "depois"})
	require.NoError(t, err)

	visible, err := f.env.messages.ListMessages(ctx, actorFor(newcomer, f.school.ID), f.channel.ID, 1, 50)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "depois", visible[0].Content)

	full, err := f.env.messages.ListMessages(ctx, f.guardianActor(), f.channel.ID, 1, 50)
	require.NoError(t, err)
	assert.Len(t, full, 2)
}

func TestListMessages_OrderAndPagination(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	for i, content := range []string{"um", "dois", "três"} {
		msg, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: content})
		require.NoError(t, err)
		require.NoError(t, f.env.db.Model(&models.Message{}).
			Where("id = ?", msg.ID).
			Update("sent_at", time.Now().UTC().Add(time.Duration(i-10)*time.Minute)).Error)
	}

	page, err := f.env.messages.ListMessages(ctx, f.teacherActor(), f.channel.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "três", page[0].Content)
	assert.Equal(t, "dois", page[1].Content)

	page, err = f.env.messages.ListMessages(ctx, f.teacherActor(), f.channel.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "um", page[0].Content)
}

func TestAcknowledge(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	plain, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "sem confirmação"})
	require.NoError(t, err)
	err = f.env.messages.Acknowledge(ctx, f.guardianActor(), f.channel.ID, plain.ID)
	assertAppCode(t, err, "DEPENDENT_STATE")

	notice, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{
		Kind:        models.MessageNotice,
		Content:     "Reunião amanhã",
		RequiresAck: true,
	})
	require.NoError(t, err)

	require.NoError(t, f.env.messages.Acknowledge(ctx, f.guardianActor(), f.channel.ID, notice.ID))
	// Acknowledging twice is a no-op.
	require.NoError(t, f.env.messages.Acknowledge(ctx, f.guardianActor(), f.channel.ID, notice.ID))

	var count int64
	require.NoError(t, f.env.db.Table("mensagem_confirmacoes").
		Where("message_id = ?", notice.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSendMessage_BlockedChannel(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	require.NoError(t, f.env.db.Model(&models.Channel{}).
		Where("id = ?", f.channel.ID).
		Update("status", models.ChannelBlocked).Error)

	_, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "bloqueado"})
	assertAppCode(t, err, "FORBIDDEN")
}

func TestMessageInChannel_WrongChannel(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	other, _, err := f.env.channels.CreateChannel(ctx, f.teacherActor(), CreateChannelInput{
		SchoolID: f.school.ID,
		Kind:     models.ChannelProjectGroup,
		Name:     "Outro canal",
	})
	require.NoError(t, err)
	msg, err := f.env.messages.SendMessage(ctx, f.teacherActor(), other.ID, SendMessageInput{Content: "aqui"})
	require.NoError(t, err)

	err = f.env.messages.RecordView(ctx, f.teacherActor(), f.channel.ID, msg.ID)
	assertAppCode(t, err, "NOT_FOUND")
}
