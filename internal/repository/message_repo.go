package repository

import (
	"context"

	"github.com/jophinbabu/Chatty/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessageParams carries the optional payload parts of a message.
// Text arrives already encrypted.
type CreateMessageParams struct {
	Text            *string
	ImageURL        *string
	AudioURL        *string
	DurationSeconds int
}

func (r *MessageRepository) Create(
	ctx context.Context,
	conversationID int64,
	senderID int64,
	params CreateMessageParams,
) (*models.Message, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, text, image_url, audio_url, duration_seconds, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING id, conversation_id, sender_id, text, image_url, audio_url, duration_seconds, is_read, created_at
	`

	var message models.Message
	err := r.db.QueryRow(
		ctx,
		query,
		conversationID,
		senderID,
		params.Text,
		params.ImageURL,
		params.AudioURL,
		params.DurationSeconds,
	).Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.Text,
		&message.ImageURL,
		&message.AudioURL,
		&message.DurationSeconds,
		&message.IsRead,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// ListByConversation returns the full history in stable ascending order.
func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID int64,
) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, text, image_url, audio_url, duration_seconds, is_read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.Text,
			&message.ImageURL,
			&message.AudioURL,
			&message.DurationSeconds,
			&message.IsRead,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkReadFromSender flips unread messages from the given sender to read.
// Idempotent: already-read rows are untouched.
func (r *MessageRepository) MarkReadFromSender(
	ctx context.Context,
	conversationID int64,
	senderID int64,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE conversation_id = $1
		  AND sender_id = $2
		  AND is_read = FALSE
	`, conversationID, senderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
