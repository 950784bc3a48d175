// Package bridge connects the embedded chat frame to the session, inactivity
// and run machinery of one widget.
package bridge

import (
	"bytes"
	"encoding/json"
	"strings"
)

// InboundType discriminates frames received from the chat frame.
type InboundType string

const (
	// InboundMessage is a free-text visitor message.
	InboundMessage         InboundType = "message"
	InboundChatInitialized InboundType = "chatInitialized"
	InboundUserInputFocus  InboundType = "userInputFocus"
	InboundSendToGuest     InboundType = "sendToGuest"
	InboundPlayAudio       InboundType = "playAudio"
	// InboundPing is answered by the transport and never reaches a widget.
	InboundPing InboundType = "ping"
)

// Inbound is one decoded frame.
type Inbound struct {
	Type     InboundType `json:"type"`
	Text     string      `json:"text,omitempty"`
	Email    string      `json:"email,omitempty"`
	Language string      `json:"language,omitempty"`
}

// DecodeInbound turns a raw frame into an event. A JSON string or any
// non-object payload is a visitor message; objects are dispatched on their
// type field. The second result is false for frames that carry nothing to
// act on (blank messages, objects without a type).
func DecodeInbound(data []byte) (Inbound, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Inbound{}, false
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err == nil {
			return message(text)
		}
	case '{':
		var ev Inbound
		if err := json.Unmarshal(trimmed, &ev); err == nil {
			if ev.Type == "" {
				return Inbound{}, false
			}
			return ev, true
		}
	}
	return message(string(trimmed))
}

func message(text string) (Inbound, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Inbound{}, false
	}
	return Inbound{Type: InboundMessage, Text: text}, true
}
