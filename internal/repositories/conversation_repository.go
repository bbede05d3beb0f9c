package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-sync-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation and participant persistence.
type ConversationRepository interface {
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	CreateDirect(ctx context.Context, conversationID, userA, userB string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	UpdateLastRead(ctx context.Context, conversationID, userID string, at time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, is_group, created_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// CreateDirect creates a direct conversation and both participant rows
// atomically. The deterministic id acts as the idempotency key: when two
// senders race to create the same conversation the loser's insert is a
// no-op and both end up fetching the same row.
func (r *ConversationRepo) CreateDirect(ctx context.Context, conversationID, userA, userB string) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO conversations (id, is_group) VALUES ($1, FALSE)
        ON CONFLICT (id) DO NOTHING`, conversationID); err != nil {
		return models.Conversation{}, err
	}

	for _, userID := range []string{userA, userB} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO participants (conversation_id, user_id, last_read_at)
            VALUES ($1, $2, 'epoch') ON CONFLICT (conversation_id, user_id) DO NOTHING`, conversationID, userID); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return r.Get(ctx, conversationID)
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM participants WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	return exists, err
}

// ParticipantIDs returns the current member ids of a conversation.
func (r *ConversationRepo) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM participants WHERE conversation_id=$1 ORDER BY user_id`, conversationID)
	return ids, err
}

// UpdateLastRead moves the reader's watermark with a targeted write.
func (r *ConversationRepo) UpdateLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE participants SET last_read_at=$3 WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
