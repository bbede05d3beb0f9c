package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"chat-sync-service/internal/models"
)

func TestGetMessageMapsRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	sentAt := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	deletedAt := sentAt.Add(time.Minute)
	mock.ExpectQuery(`SELECT id, conversation_id, sender_id, sent_at, .* FROM messages WHERE id=\$1`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "conversation_id", "sender_id", "sent_at", "content_type",
			"content", "message", "reply_to_id", "metadata", "action", "deleted_at", "created_at",
		}).AddRow(
			"m1", "alice_bob", "alice", sentAt, models.ContentTypeText,
			[]byte(`{"text":"hi"}`), "hi", nil, nil, models.ActionDelete, deletedAt, sentAt,
		))

	msg, err := repo.Get(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, models.ActionDelete, msg.Action)
	// Soft delete: the tombstone is set but the content survives.
	require.NotNil(t, msg.DeletedAt)
	require.NotNil(t, msg.Text)
	require.Equal(t, "hi", *msg.Text)
	require.JSONEq(t, `{"text":"hi"}`, string(msg.Content))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMessageNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(`SELECT id, conversation_id, .* FROM messages WHERE id=\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestInsertReportsDuplicateAsNoNewRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectExec(`INSERT INTO messages\s+\(id, conversation_id, .*\s+ON CONFLICT \(id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	written, err := repo.Insert(context.Background(), models.Message{
		ID:             "m1",
		ConversationID: "alice_bob",
		SenderID:       "alice",
		SentAt:         time.Now().UTC(),
		ContentType:    models.ContentTypeText,
	})
	require.NoError(t, err)
	require.False(t, written, "retransmit must not count as a new row")
	require.NoError(t, mock.ExpectationsWereMet())
}
