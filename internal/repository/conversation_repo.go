package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jophinbabu/Chatty/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `
	c.id,
	c.is_group,
	c.group_name,
	c.group_admin_id,
	c.last_message_text,
	c.last_message_sender_id,
	c.last_message_at,
	c.created_at,
	c.updated_at,
	ARRAY(
		SELECT p.user_id
		FROM conversation_participants p
		WHERE p.conversation_id = c.id
		ORDER BY p.user_id
	)
`

// directKey gives every direct conversation a canonical identity for the
// unordered user pair, so concurrent first sends upsert the same row.
func directKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("d:%d:%d", userA, userB)
}

// CreateOrGetDirect finds the unique non-group conversation between the two
// users, creating it on first contact. Idempotent under concurrent sends.
func (r *ConversationRepository) CreateOrGetDirect(
	ctx context.Context,
	userA int64,
	userB int64,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (is_group, direct_key)
		VALUES (FALSE, $1)
		ON CONFLICT (direct_key)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING id, created_at, updated_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, directKey(userA, userB)).Scan(
		&conversation.ID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id)
		VALUES ($1, $2), ($1, $3)
		ON CONFLICT DO NOTHING
	`, conversation.ID, userA, userB)
	if err != nil {
		return nil, err
	}

	conversation.Participants = []int64{userA, userB}
	if userA > userB {
		conversation.Participants = []int64{userB, userA}
	}
	return &conversation, nil
}

// FindDirect returns the direct conversation for the pair without creating
// one. pgx.ErrNoRows when the users have never talked.
func (r *ConversationRepository) FindDirect(
	ctx context.Context,
	userA int64,
	userB int64,
) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.direct_key = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, directKey(userA, userB)))
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, conversationID))
}

func (r *ConversationRepository) GetByIDForParticipant(
	ctx context.Context,
	conversationID int64,
	participantID int64,
) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.id = $1
		  AND EXISTS (
			SELECT 1 FROM conversation_participants p
			WHERE p.conversation_id = c.id AND p.user_id = $2
		  )
	`
	return r.scanOne(r.db.QueryRow(ctx, query, conversationID, participantID))
}

// CreateGroup inserts the conversation row, its participant set and the
// initial last-message summary. Callers run it inside a transaction.
func (r *ConversationRepository) CreateGroup(
	ctx context.Context,
	adminID int64,
	name string,
	participantIDs []int64,
	summaryText string,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (
			is_group, group_name, group_admin_id,
			last_message_text, last_message_sender_id, last_message_at
		)
		VALUES (TRUE, $1, $2, $3, $2, NOW())
		RETURNING id, last_message_at, created_at, updated_at
	`

	var conversation models.Conversation
	var lastMessageAt time.Time
	err := r.db.QueryRow(ctx, query, name, adminID, summaryText).Scan(
		&conversation.ID,
		&lastMessageAt,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, participantID := range participantIDs {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, conversation.ID, participantID); err != nil {
			return nil, err
		}
	}

	conversation.IsGroup = true
	conversation.GroupName = &name
	conversation.GroupAdminID = &adminID
	conversation.Participants = participantIDs
	conversation.LastMessage = &models.LastMessage{
		Text:      summaryText,
		SenderID:  adminID,
		CreatedAt: lastMessageAt,
	}
	return &conversation, nil
}

func (r *ConversationRepository) ListGroupsForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.is_group = TRUE
		  AND EXISTS (
			SELECT 1 FROM conversation_participants p
			WHERE p.conversation_id = c.id AND p.user_id = $1
		  )
		ORDER BY c.updated_at DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]models.Conversation, 0)
	for rows.Next() {
		conversation, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *conversation)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return groups, nil
}

// ListForParticipant returns sidebar summaries with unread counts, newest
// activity first.
func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT ` + conversationColumns + `,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages m
			WHERE m.conversation_id = c.id
			  AND m.sender_id <> $1
			  AND m.is_read = FALSE
		) uc ON TRUE
		WHERE EXISTS (
			SELECT 1 FROM conversation_participants p
			WHERE p.conversation_id = c.id AND p.user_id = $1
		)
		ORDER BY COALESCE(c.last_message_at, c.updated_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var lastText sql.NullString
		var lastSender sql.NullInt64
		var lastAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.IsGroup,
			&summary.GroupName,
			&summary.GroupAdminID,
			&lastText,
			&lastSender,
			&lastAt,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&summary.Participants,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if lastSender.Valid {
			summary.LastMessage = &models.LastMessage{
				Text:      lastText.String,
				SenderID:  lastSender.Int64,
				CreatedAt: lastAt.Time,
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// UpdateLastMessage refreshes the denormalized summary after an append.
func (r *ConversationRepository) UpdateLastMessage(
	ctx context.Context,
	conversationID int64,
	previewText string,
	senderID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_text = $2,
		    last_message_sender_id = $3,
		    last_message_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`, conversationID, previewText, senderID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ConversationRepository) scanOne(row rowScanner) (*models.Conversation, error) {
	var conversation models.Conversation
	var lastText sql.NullString
	var lastSender sql.NullInt64
	var lastAt sql.NullTime

	if err := row.Scan(
		&conversation.ID,
		&conversation.IsGroup,
		&conversation.GroupName,
		&conversation.GroupAdminID,
		&lastText,
		&lastSender,
		&lastAt,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
		&conversation.Participants,
	); err != nil {
		return nil, err
	}

	if lastSender.Valid {
		conversation.LastMessage = &models.LastMessage{
			Text:      lastText.String,
			SenderID:  lastSender.Int64,
			CreatedAt: lastAt.Time,
		}
	}

	return &conversation, nil
}
