package model

// Participant identifies the other party in a conversation.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Conversation represents a message thread with another user,
// optionally linked to a job posting.
type Conversation struct {
	ID                 string      `json:"conversationId"`
	Other              Participant `json:"otherUser"`
	JobTitle           string      `json:"jobTitle,omitempty"`
	LastMessagePreview string      `json:"lastMessage"`
	LastMessageAt      int64       `json:"lastMessageAt"`
	UnreadCount        int         `json:"unreadCount"`
}

// Message represents a single message within a conversation.
// Timestamp is milliseconds since epoch.
type Message struct {
	ID             string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"`
}

// TypingIndicator is the ephemeral "other user is typing" signal for
// a conversation. ExpiresAt is milliseconds since epoch; indicators
// self-expire even if no stop event ever arrives.
type TypingIndicator struct {
	ConversationID string
	UserName       string
	ExpiresAt      int64
}
