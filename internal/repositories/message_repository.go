package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-sync-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Insert(ctx context.Context, msg models.Message) (bool, error)
	Update(ctx context.Context, msg models.Message) error
	SoftDelete(ctx context.Context, messageID string, at time.Time) error
	Get(ctx context.Context, messageID string) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Insert stores a message keyed by its client-supplied id. A retransmit
// of an id that already exists is a no-op success and never overwrites
// the stored content; the bool reports whether a new row was written.
func (r *MessageRepo) Insert(ctx context.Context, msg models.Message) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO messages
        (id, conversation_id, sender_id, sent_at, content_type, content, message, reply_to_id, metadata, action)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SentAt, msg.ContentType,
		nullableJSON(msg.Content), msg.Text, msg.ReplyToID, nullableJSON(msg.Metadata), models.ActionInsert)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update overwrites the mutable fields of an existing message. There is
// no implicit insert: a missing id fails with ErrMessageNotFound.
func (r *MessageRepo) Update(ctx context.Context, msg models.Message) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages
        SET content=$2, message=$3, metadata=$4, content_type=$5, action=$6
        WHERE id=$1`,
		msg.ID, nullableJSON(msg.Content), msg.Text, nullableJSON(msg.Metadata), msg.ContentType, models.ActionUpdate)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SoftDelete marks the message deleted; content is preserved for audit.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted_at=$2, action=$3 WHERE id=$1`, messageID, at, models.ActionDelete)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, conversation_id, sender_id, sent_at, content_type, content, message, reply_to_id, metadata, action, deleted_at, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// nullableJSON maps an absent raw payload to SQL NULL instead of the
// invalid empty jsonb literal.
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
