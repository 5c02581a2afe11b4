package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// mockDB wires gorm's Postgres dialect over a sqlmock connection so the SQL
// the repository emits can be asserted without a database.
func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return db, mock
}

func TestUnreadCountQuery(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewMessageRepository(db)

	channelID := uuid.New()
	userID := uuid.New()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "mensagens"`).
		WithArgs(channelID, false, false, userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.UnreadCount(context.Background(), channelID, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkChannelReadExcludesOwnMessages(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "mensagens" SET .+ WHERE \(channel_id = \$\d AND read = \$\d\) AND \(sender_id IS NULL OR sender_id <> \$\d\)`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.MarkChannelRead(context.Background(), uuid.New(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledgeIsIdempotentSQL(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewMessageRepository(db)

	messageID := uuid.New()
	userID := uuid.New()

	mock.ExpectExec(`INSERT INTO mensagem_confirmacoes .+ ON CONFLICT DO NOTHING`).
		WithArgs(messageID, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Acknowledge(context.Background(), messageID, userID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
