package bus

import "time"

// Event kinds published by the messaging subsystem. Subscribers
// filter by namespace prefix, e.g. "conv." for everything touching
// the conversation view.
const (
	KindConversationsUpdated = "conv.updated"
	KindMessagesUpdated      = "conv.messages"
	KindTyping               = "conv.typing"
	KindConversationRead     = "conv.read"
	KindStatusChanged        = "sync.status"
	KindSyncError            = "sync.error"
	KindSendFailed           = "sync.send_failed"
)

// Event is a notification published for UI surfaces.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
