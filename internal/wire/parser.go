package wire

import (
	"encoding/json"
	"strings"
)

// frame is the loose shape of an inbound wire frame. The discriminant
// may arrive under "type", "event" or "action" depending on which
// server component emitted it; the payload may be nested under
// "payload" or spread across the top level.
type frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// ParseInbound parses a raw frame into a typed Inbound event. It
// never fails: anything that does not match a known category comes
// back as EventRaw with the original bytes attached.
func ParseInbound(data []byte) *Inbound {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return &Inbound{Type: EventRaw, Raw: data}
	}

	disc := f.Type
	if disc == "" {
		disc = f.Event
	}
	if disc == "" {
		disc = f.Action
	}
	disc = strings.ToUpper(disc)

	payload := []byte(f.Payload)
	if len(payload) == 0 {
		payload = data
	}

	switch disc {
	case string(EventNewMessage):
		var p NewMessage
		if err := json.Unmarshal(payload, &p); err != nil {
			return &Inbound{Type: EventRaw, Raw: data}
		}
		return &Inbound{Type: EventNewMessage, NewMessage: &p}
	case string(EventTyping), "TYPING_START", "TYPING_STOP":
		var p Typing
		if err := json.Unmarshal(payload, &p); err != nil {
			return &Inbound{Type: EventRaw, Raw: data}
		}
		// Explicit start/stop discriminants override the payload flag.
		if disc == "TYPING_START" {
			p.IsTyping = true
		} else if disc == "TYPING_STOP" {
			p.IsTyping = false
		}
		return &Inbound{Type: EventTyping, Typing: &p}
	case string(EventConversationRead):
		var p ConversationRead
		if err := json.Unmarshal(payload, &p); err != nil {
			return &Inbound{Type: EventRaw, Raw: data}
		}
		return &Inbound{Type: EventConversationRead, ConversationRead: &p}
	case string(EventResponse):
		var p Response
		if err := json.Unmarshal(payload, &p); err != nil {
			return &Inbound{Type: EventRaw, Raw: data}
		}
		return &Inbound{Type: EventResponse, Response: &p}
	default:
		return &Inbound{Type: EventRaw, Raw: data}
	}
}
