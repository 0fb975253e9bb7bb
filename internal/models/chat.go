package models

import "time"

// LastMessage is the denormalized preview kept on a conversation for the
// sidebar listing. Text is plain preview text, never ciphertext.
type LastMessage struct {
	Text      string    `json:"text"`
	SenderID  int64     `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID           int64        `json:"id"`
	Participants []int64      `json:"participants"`
	IsGroup      bool         `json:"is_group"`
	GroupName    *string      `json:"group_name,omitempty"`
	GroupAdminID *int64       `json:"group_admin_id,omitempty"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Message text is stored encrypted at rest and returned as stored; clients
// hold the shared key and decrypt on their side.
type Message struct {
	ID              int64     `json:"id"`
	ConversationID  int64     `json:"conversation_id"`
	SenderID        int64     `json:"sender_id"`
	Text            *string   `json:"text,omitempty"`
	ImageURL        *string   `json:"image_url,omitempty"`
	AudioURL        *string   `json:"audio_url,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
}

type ConversationSummary struct {
	Conversation
	UnreadCount int `json:"unread_count"`
}
