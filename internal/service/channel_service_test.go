package service

import (
	"context"
	"testing"

	"sophia/internal/models"
	"sophia/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannel_Group(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	guardian := seedUser(t, env.db, models.RoleGuardian, school.ID)

	ch, created, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelProjectGroup,
		Name:           "Feira de Ciências",
		ParticipantIDs: []uuid.UUID{guardian.ID},
	})
	require.NoError(t, err)
	assert.True(t, created)

	creator := ch.ActiveParticipant(teacher.ID)
	require.NotNil(t, creator)
	assert.Equal(t, models.ParticipantAdmin, creator.Role)

	member := ch.ActiveParticipant(guardian.ID)
	require.NotNil(t, member)
	assert.Equal(t, models.ParticipantMember, member.Role)

	ownership, err := repository.NewOwnershipRepository(env.db).GetActiveByChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, ownership.OriginalOwnerID)
	assert.Equal(t, testSLAHours, ownership.SLAHours)
	assert.False(t, ownership.Escalated())

	assert.EqualValues(t, 1, countAudit(t, env.db, ch.ID, models.AuditChannelCreated))
	assert.EqualValues(t, 1, countNotifications(t, env.db, guardian.ID, models.NotifyAddedToChannel))
	// The creator is not notified about their own channel.
	assert.EqualValues(t, 0, countNotifications(t, env.db, teacher.ID, models.NotifyAddedToChannel))
}

func TestCreateChannel_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	guardian := seedUser(t, env.db, models.RoleGuardian, school.ID)
	actor := actorFor(teacher, school.ID)

	t.Run("group requires a name", func(t *testing.T) {
		_, _, err := env.channels.CreateChannel(ctx, actor, CreateChannelInput{
			SchoolID: school.ID,
			Kind:     models.ChannelClassGroup,
		})
		assertAppCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, _, err := env.channels.CreateChannel(ctx, actor, CreateChannelInput{
			SchoolID: school.ID,
			Kind:     "GRUPO_SECRETO",
			Name:     "x",
		})
		assertAppCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("direct requires exactly one other participant", func(t *testing.T) {
		_, _, err := env.channels.CreateChannel(ctx, actor, CreateChannelInput{
			SchoolID: school.ID,
			Kind:     models.ChannelDirect,
		})
		assertAppCode(t, err, "VALIDATION_ERROR")

		other := seedUser(t, env.db, models.RoleGuardian, school.ID)
		_, _, err = env.channels.CreateChannel(ctx, actor, CreateChannelInput{
			SchoolID:       school.ID,
			Kind:           models.ChannelDirect,
			ParticipantIDs: []uuid.UUID{guardian.ID, other.ID},
		})
		assertAppCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("creator must belong to the school", func(t *testing.T) {
		outsider := seedUser(t, env.db, models.RoleTeacher)
		_, _, err := env.channels.CreateChannel(ctx, actorFor(outsider), CreateChannelInput{
			SchoolID: school.ID,
			Kind:     models.ChannelProjectGroup,
			Name:     "x",
		})
		assertAppCode(t, err, "FORBIDDEN")
	})

	t.Run("unknown participant", func(t *testing.T) {
		_, _, err := env.channels.CreateChannel(ctx, actor, CreateChannelInput{
			SchoolID:       school.ID,
			Kind:           models.ChannelProjectGroup,
			Name:           "x",
			ParticipantIDs: []uuid.UUID{uuid.New()},
		})
		assertAppCode(t, err, "VALIDATION_ERROR")
	})
}

func TestCreateChannel_FlagsPersist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)

	off := false
	ch, _, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID:              school.ID,
		Kind:                  models.ChannelProjectGroup,
		Name:                  "Restrito",
		VisibleToManagement:   &off,
		VisibleToCoordination: &off,
		AllowsAttachments:     &off,
	})
	require.NoError(t, err)

	// The disabled flags must round-trip through the database, not be
	// swallowed by a column default.
	var stored models.Channel
	require.NoError(t, env.db.First(&stored, "id = ?", ch.ID).Error)
	assert.False(t, stored.VisibleToManagement)
	assert.False(t, stored.VisibleToCoordination)
	assert.False(t, stored.AllowsAttachments)
}

func TestCreateChannel_DirectIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	guardian := seedUser(t, env.db, models.RoleGuardian, school.ID)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)

	first, created, err := env.channels.CreateChannel(ctx, actorFor(guardian, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelDirect,
		ParticipantIDs: []uuid.UUID{teacher.ID},
	})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := env.channels.CreateChannel(ctx, actorFor(guardian, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelDirect,
		ParticipantIDs: []uuid.UUID{teacher.ID},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// The pair resolves to the same channel regardless of who initiates.
	third, created, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelDirect,
		ParticipantIDs: []uuid.UUID{guardian.ID},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, third.ID)
}

func TestGetChannelForUser_HidesExistence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	stranger := seedUser(t, env.db, models.RoleGuardian, school.ID)

	ch, _, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID: school.ID,
		Kind:     models.ChannelProjectGroup,
		Name:     "Reservado",
	})
	require.NoError(t, err)

	_, err = env.channels.GetChannelForUser(ctx, actorFor(stranger, school.ID), ch.ID)
	assertAppCode(t, err, "NOT_FOUND")

	_, err = env.channels.GetChannelForUser(ctx, actorFor(stranger, school.ID), uuid.New())
	assertAppCode(t, err, "NOT_FOUND")
}

func TestListVisibleChannels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	guardian := seedUser(t, env.db, models.RoleGuardian, school.ID)
	manager := seedUser(t, env.db, models.RoleManager, school.ID)

	visible, _, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelProjectGroup,
		Name:           "Com responsável",
		ParticipantIDs: []uuid.UUID{guardian.ID},
	})
	require.NoError(t, err)

	_, _, err = env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID: school.ID,
		Kind:     models.ChannelProjectGroup,
		Name:     "Só professores",
	})
	require.NoError(t, err)

	guardianChannels, err := env.channels.ListVisibleChannels(ctx, actorFor(guardian, school.ID), repository.ChannelFilter{})
	require.NoError(t, err)
	require.Len(t, guardianChannels, 1)
	assert.Equal(t, visible.ID, guardianChannels[0].ID)

	managerChannels, err := env.channels.ListVisibleChannels(ctx, actorFor(manager, school.ID), repository.ChannelFilter{})
	require.NoError(t, err)
	assert.Len(t, managerChannels, 2)
}

func TestListVisibleChannels_QuietChannelsSortLast(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	actor := actorFor(teacher, school.ID)

	quiet, _, err := env.channels.CreateChannel(ctx, actor, CreateChannelInput{
		SchoolID: school.ID,
		Kind:     models.ChannelProjectGroup,
		Name:     "Sem movimento",
	})
	require.NoError(t, err)

	busy, _, err := env.channels.CreateChannel(ctx, actor, CreateChannelInput{
		SchoolID: school.ID,
		Kind:     models.ChannelProjectGroup,
		Name:     "Com movimento",
	})
	require.NoError(t, err)

	_, err = env.messages.SendMessage(ctx, actor, busy.ID, SendMessageInput{Content: "oi"})
	require.NoError(t, err)

	// A channel that never received a message sorts after active ones.
	channels, err := env.channels.ListVisibleChannels(ctx, actor, repository.ChannelFilter{})
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, busy.ID, channels[0].ID)
	assert.Equal(t, quiet.ID, channels[1].ID)
}

func TestListVisibleChannels_UnreadCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	guardian := seedUser(t, env.db, models.RoleGuardian, school.ID)

	ch, _, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelProjectGroup,
		Name:           "Avisos",
		ParticipantIDs: []uuid.UUID{guardian.ID},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = env.messages.SendMessage(ctx, actorFor(teacher, school.ID), ch.ID, SendMessageInput{Content: "oi"})
		require.NoError(t, err)
	}

	guardianView, err := env.channels.ListVisibleChannels(ctx, actorFor(guardian, school.ID), repository.ChannelFilter{})
	require.NoError(t, err)
	require.Len(t, guardianView, 1)
	assert.EqualValues(t, 3, guardianView[0].UnreadCount)

	teacherView, err := env.channels.ListVisibleChannels(ctx, actorFor(teacher, school.ID), repository.ChannelFilter{})
	require.NoError(t, err)
	require.Len(t, teacherView, 1)
	assert.EqualValues(t, 0, teacherView[0].UnreadCount)
}

func TestArchiveChannel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	guardian := seedUser(t, env.db, models.RoleGuardian, school.ID)

	ch, _, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelProjectGroup,
		Name:           "Encerrando",
		ParticipantIDs: []uuid.UUID{guardian.ID},
	})
	require.NoError(t, err)

	err = env.channels.ArchiveChannel(ctx, actorFor(guardian, school.ID), ch.ID, "")
	assertAppCode(t, err, "FORBIDDEN")

	require.NoError(t, env.channels.ArchiveChannel(ctx, actorFor(teacher, school.ID), ch.ID, ""))
	assert.EqualValues(t, 1, countAudit(t, env.db, ch.ID, models.AuditChannelArchived))

	err = env.channels.ArchiveChannel(ctx, actorFor(teacher, school.ID), ch.ID, "")
	assertAppCode(t, err, "DEPENDENT_STATE")

	// Archived channels reject new messages.
	_, err = env.messages.SendMessage(ctx, actorFor(teacher, school.ID), ch.ID, SendMessageInput{Content: "tarde demais"})
	assertAppCode(t, err, "DEPENDENT_STATE")
}

func TestDeleteChannel_RetainsAuditAndNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	guardian := seedUser(t, env.db, models.RoleGuardian, school.ID)
	manager := seedUser(t, env.db, models.RoleManager, school.ID)

	ch, _, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelProjectGroup,
		Name:           "Efêmero",
		ParticipantIDs: []uuid.UUID{guardian.ID},
	})
	require.NoError(t, err)

	_, err = env.messages.SendMessage(ctx, actorFor(teacher, school.ID), ch.ID, SendMessageInput{Content: "alguma coisa"})
	require.NoError(t, err)

	err = env.channels.DeleteChannel(ctx, actorFor(teacher, school.ID), ch.ID, "")
	assertAppCode(t, err, "FORBIDDEN")

	require.NoError(t, env.channels.DeleteChannel(ctx, actorFor(manager, school.ID), ch.ID, ""))

	var channels, messages, participants int64
	require.NoError(t, env.db.Model(&models.Channel{}).Where("id = ?", ch.ID).Count(&channels).Error)
	require.NoError(t, env.db.Model(&models.Message{}).Where("channel_id = ?", ch.ID).Count(&messages).Error)
	require.NoError(t, env.db.Model(&models.Participant{}).Where("channel_id = ?", ch.ID).Count(&participants).Error)
	assert.Zero(t, channels)
	assert.Zero(t, messages)
	assert.Zero(t, participants)

	// Compliance records survive the purge.
	assert.EqualValues(t, 1, countAudit(t, env.db, ch.ID, models.AuditChannelDeleted))
	assert.EqualValues(t, 1, countAudit(t, env.db, ch.ID, models.AuditChannelCreated))
	assert.EqualValues(t, 1, countNotifications(t, env.db, guardian.ID, models.NotifyAddedToChannel))

	var ownerships int64
	require.NoError(t, env.db.Model(&models.ConversationOwnership{}).Where("channel_id = ?", ch.ID).Count(&ownerships).Error)
	assert.EqualValues(t, 1, ownerships)
}

func TestSetMuted_SkipsNotificationsOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	school := seedSchool(t, env.db)
	teacher := seedUser(t, env.db, models.RoleTeacher, school.ID)
	guardian := seedUser(t, env.db, models.RoleGuardian, school.ID)

	ch, _, err := env.channels.CreateChannel(ctx, actorFor(teacher, school.ID), CreateChannelInput{
		SchoolID:       school.ID,
		Kind:           models.ChannelProjectGroup,
		Name:           "Silencioso",
		ParticipantIDs: []uuid.UUID{guardian.ID},
	})
	require.NoError(t, err)

	require.NoError(t, env.channels.SetMuted(ctx, actorFor(guardian, school.ID), ch.ID, true))

	_, err = env.messages.SendMessage(ctx, actorFor(teacher, school.ID), ch.ID, SendMessageInput{Content: "ping"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, countNotifications(t, env.db, guardian.ID, models.NotifyNewMessage))

	// Muting does not affect unread tracking or access.
	count, err := env.messages.UnreadCount(ctx, actorFor(guardian, school.ID), ch.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.NoError(t, env.channels.SetMuted(ctx, actorFor(guardian, school.ID), ch.ID, false))
	_, err = env.messages.SendMessage(ctx, actorFor(teacher, school.ID), ch.ID, SendMessageInput{Content: "pong"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, countNotifications(t, env.db, guardian.ID, models.NotifyNewMessage))
}
