package store

import (
	"time"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/model"
)

// UpsertMessage inserts or updates a message (idempotent on
// conversation_id + message_id).
func (db *DB) UpsertMessage(m *model.Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, message_id, sender_id, sender_name, body, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, message_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			timestamp = excluded.timestamp`,
		m.ConversationID, m.ID, m.SenderID, m.SenderName, m.Text, m.Timestamp, now)
	return err
}

// DeleteMessage removes a single message. Used when a provisional
// client id is replaced by the server-assigned one.
func (db *DB) DeleteMessage(conversationID, messageID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ? AND message_id = ?`,
		conversationID, messageID)
	return err
}

// ListMessages returns messages for a conversation using keyset
// pagination by timestamp, newest first.
func (db *DB) ListMessages(conversationID string, beforeTs int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT conversation_id, message_id, sender_id, sender_name, body, timestamp
		FROM messages
		WHERE conversation_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ConversationID, &m.ID, &m.SenderID, &m.SenderName, &m.Text, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
