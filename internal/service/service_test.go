package service

import (
	"fmt"
	"testing"

	"sophia/internal/authz"
	"sophia/internal/database"
	"sophia/internal/directory"
	"sophia/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSLAHours = 24

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

var userSeq int

func seedUser(t *testing.T, db *gorm.DB, role models.Role, schoolIDs ...uuid.UUID) *models.User {
	t.Helper()
	userSeq++
	user := &models.User{
		Username: fmt.Sprintf("user%d", userSeq),
		Name:     fmt.Sprintf("User %d", userSeq),
		Email:    fmt.Sprintf("user%d@sophia.local", userSeq),
		Role:     role,
		Active:   true,
	}
	require.NoError(t, db.Create(user).Error)
	for _, schoolID := range schoolIDs {
		require.NoError(t, db.Create(&models.SchoolMembership{
			SchoolID:     schoolID,
			UserID:       user.ID,
			RoleAtSchool: role,
		}).Error)
	}
	return user
}

func seedSchool(t *testing.T, db *gorm.DB) *models.School {
	t.Helper()
	school := &models.School{Name: "Escola Teste", Active: true}
	require.NoError(t, db.Create(school).Error)
	return school
}

func actorFor(user *models.User, schoolIDs ...uuid.UUID) authz.Actor {
	return authz.Actor{UserID: user.ID, Role: user.Role, SchoolIDs: schoolIDs}
}

type testEnv struct {
	db          *gorm.DB
	channels    *ChannelService
	memberships *MembershipService
	messages    *MessageService
	escalations *EscalationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	policy := authz.NewPolicy()
	dir := directory.NewDirectory(db)
	dispatcher := NewDispatcher(nil)
	return &testEnv{
		db:          db,
		channels:    NewChannelService(db, policy, dir, dispatcher, testSLAHours),
		memberships: NewMembershipService(db, policy, dir, dispatcher),
		messages:    NewMessageService(db, policy, dispatcher),
		escalations: NewEscalationService(db, policy, dispatcher, testSLAHours),
	}
}

func assertAppCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func countNotifications(t *testing.T, db *gorm.DB, userID uuid.UUID, kind models.NotificationKind) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ? AND kind = ?", userID, kind).
		Count(&count).Error)
	return count
}

func countAudit(t *testing.T, db *gorm.DB, channelID uuid.UUID, action models.AuditAction) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.AuditEntry{}).
		Where("channel_id = ? AND action = ?", channelID, action).
		Count(&count).Error)
	return count
}
