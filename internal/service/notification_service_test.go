package service

import (
	"context"
	"testing"

	"sophia/internal/authz"
	"sophia/internal/models"
	"sophia/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationInbox(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	inbox := NewNotificationService(f.env.db)

	for i := 0; i < 3; i++ {
		_, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "aviso"})
		require.NoError(t, err)
	}

	guardian := f.guardianActor()

	count, err := inbox.UnreadCount(ctx, guardian)
	require.NoError(t, err)
	// Three message notices plus the enrollment notice from channel creation.
	assert.EqualValues(t, 4, count)

	list, err := inbox.List(ctx, guardian, true, 1, 50)
	require.NoError(t, err)
	require.Len(t, list, 4)

	require.NoError(t, inbox.MarkRead(ctx, guardian, list[0].ID))
	// Marking twice is a no-op.
	require.NoError(t, inbox.MarkRead(ctx, guardian, list[0].ID))

	count, err = inbox.UnreadCount(ctx, guardian)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	unread, err := inbox.List(ctx, guardian, true, 1, 50)
	require.NoError(t, err)
	assert.Len(t, unread, 3)

	all, err := inbox.List(ctx, guardian, false, 1, 50)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestNotificationMarkRead_OtherUsers(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	inbox := NewNotificationService(f.env.db)

	_, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "oi"})
	require.NoError(t, err)

	list, err := inbox.List(ctx, f.guardianActor(), true, 1, 50)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	// Someone else's notification behaves as missing, same as a random ID.
	err = inbox.MarkRead(ctx, f.teacherActor(), list[0].ID)
	assertAppCode(t, err, "NOT_FOUND")
	err = inbox.MarkRead(ctx, f.guardianActor(), uuid.New())
	assertAppCode(t, err, "NOT_FOUND")
}

func TestAuditQuery(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	audits := NewAuditService(f.env.db, authz.NewPolicy())

	msg, err := f.env.messages.SendMessage(ctx, f.teacherActor(), f.channel.ID, SendMessageInput{Content: "registrada"})
	require.NoError(t, err)
	_, err = f.env.messages.EditMessage(ctx, f.teacherActor(), f.channel.ID, msg.ID, "editada", "")
	require.NoError(t, err)

	manager := seedUser(t, f.env.db, models.RoleManager, f.school.ID)

	t.Run("teacher may not query", func(t *testing.T) {
		_, err := audits.Query(ctx, f.teacherActor(), repository.AuditFilter{}, 1, 50)
		assertAppCode(t, err, "FORBIDDEN")
	})

	t.Run("filter by channel", func(t *testing.T) {
		entries, err := audits.Query(ctx, actorFor(manager, f.school.ID), repository.AuditFilter{
			ChannelID: &f.channel.ID,
		}, 1, 50)
		require.NoError(t, err)
		// Channel creation, send and edit.
		assert.Len(t, entries, 3)
	})

	t.Run("filter by action", func(t *testing.T) {
		entries, err := audits.Query(ctx, actorFor(manager, f.school.ID), repository.AuditFilter{
			ChannelID: &f.channel.ID,
			Action:    models.AuditMessageEdited,
		}, 1, 50)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NotNil(t, entries[0].MessageID)
		assert.Equal(t, msg.ID, *entries[0].MessageID)
	})

	t.Run("filter by user", func(t *testing.T) {
		entries, err := audits.Query(ctx, actorFor(manager, f.school.ID), repository.AuditFilter{
			UserID: &f.teacher.ID,
		}, 1, 50)
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})
}
