package wire

import (
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/model"
)

// OutboundType enumerates client→server request types.
type OutboundType string

const (
	SendMessage      OutboundType = "SEND_MESSAGE"
	TypingStart      OutboundType = "TYPING_START"
	TypingStop       OutboundType = "TYPING_STOP"
	ReadReceipt      OutboundType = "READ_RECEIPT"
	GetConversations OutboundType = "GET_CONVERSATIONS"
	GetMessages      OutboundType = "GET_MESSAGES"
	MarkRead         OutboundType = "MARK_READ"
)

// Outbound is the client→server envelope. RequestID correlates a
// request with its RESPONSE frame; fire-and-forget types (typing,
// read receipts) leave it empty.
type Outbound struct {
	Type           OutboundType `json:"type"`
	RequestID      string       `json:"requestId,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`
	Text           string       `json:"text,omitempty"`
	MessageID      string       `json:"messageId,omitempty"`
	Limit          int          `json:"limit,omitempty"`
	Before         int64        `json:"before,omitempty"`
}

// EventType enumerates inbound event categories. EventStatus is
// synthesized locally on connection state changes; it never arrives
// on the wire.
type EventType string

const (
	EventNewMessage       EventType = "NEW_MESSAGE"
	EventTyping           EventType = "TYPING"
	EventConversationRead EventType = "CONVERSATION_READ"
	EventResponse         EventType = "RESPONSE"
	EventStatus           EventType = "STATUS"
	EventRaw              EventType = "RAW"
)

// Inbound is a closed tagged variant over inbound event categories.
// Exactly one payload field matching Type is non-nil. Frames that
// fail to parse become EventRaw carrying the original bytes so no
// inbound data is silently lost.
type Inbound struct {
	Type             EventType
	NewMessage       *NewMessage
	Typing           *Typing
	ConversationRead *ConversationRead
	Response         *Response
	Status           *StatusChange
	Raw              []byte
}

// NewMessage is the payload of a new-message push event.
type NewMessage struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"`
}

// Typing is the payload of a typing start/stop push event.
type Typing struct {
	ConversationID string `json:"conversationId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
}

// ConversationRead is the payload of a conversation-read push event.
type ConversationRead struct {
	ConversationID string `json:"conversationId"`
	ReadByUserID   string `json:"readByUserId"`
}

// Response is the server's reply to a correlated Outbound request.
type Response struct {
	RequestID     string               `json:"requestId"`
	OK            bool                 `json:"ok"`
	Error         string               `json:"error,omitempty"`
	Message       *model.Message       `json:"message,omitempty"`
	Messages      []model.Message      `json:"messages,omitempty"`
	Conversations []model.Conversation `json:"conversations,omitempty"`
	Conversation  *model.Conversation  `json:"conversation,omitempty"`
}

// StatusChange is the payload of a locally synthesized connection
// status event. From and To are realtime connection state names.
type StatusChange struct {
	From string
	To   string
}

// ToMessage converts a new-message payload into the domain type.
func (n *NewMessage) ToMessage() model.Message {
	return model.Message{
		ID:             n.MessageID,
		ConversationID: n.ConversationID,
		SenderID:       n.SenderID,
		SenderName:     n.SenderName,
		Text:           n.Text,
		Timestamp:      n.Timestamp,
	}
}
