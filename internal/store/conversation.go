package store

import (
	"database/sql"
	"time"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/model"
)

// UpsertConversation inserts or updates a cached conversation.
func (db *DB) UpsertConversation(c *model.Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (conversation_id, other_user_id, other_user_name, job_title, last_message_preview, last_message_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			other_user_id = excluded.other_user_id,
			other_user_name = excluded.other_user_name,
			job_title = excluded.job_title,
			last_message_preview = excluded.last_message_preview,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ID, c.Other.ID, c.Other.Name, c.JobTitle, c.LastMessagePreview, c.LastMessageAt, c.UnreadCount, now)
	return err
}

// ListConversations returns cached conversations sorted by last message
// timestamp descending.
func (db *DB) ListConversations(limit int) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT conversation_id, other_user_id, other_user_name, job_title, last_message_preview, last_message_at, unread_count
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.Other.ID, &c.Other.Name, &c.JobTitle, &c.LastMessagePreview, &c.LastMessageAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single cached conversation, or nil if it
// has never been seen.
func (db *DB) GetConversation(id string) (*model.Conversation, error) {
	var c model.Conversation
	err := db.QueryRow(`
		SELECT conversation_id, other_user_id, other_user_name, job_title, last_message_preview, last_message_at, unread_count
		FROM conversations
		WHERE conversation_id = ?`, id).
		Scan(&c.ID, &c.Other.ID, &c.Other.Name, &c.JobTitle, &c.LastMessagePreview, &c.LastMessageAt, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
