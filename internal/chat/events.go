// Package chat implements the realtime core of the lease chat service: the
// room registry, the per-connection session, and the gateway that routes
// events between sessions and the stores.
//
// This file defines the wire protocol. Every frame is a JSON Envelope with a
// type tag and a raw payload; the gateway decodes the payload according to
// the tag. Client-declared identity fields inside payloads are never trusted:
// the user id comes from the authenticated connection and the room id from
// the session's verified membership.
package chat

import (
	"encoding/json"

	"github.com/leaseline/lease-chat-backend/internal/services"
)

// Client→server event types.
const (
	EventJoinLeaseChat = "joinLeaseChat"
	EventSendMessage   = "sendMessage"
	EventMarkRead      = "markRead"
)

// Server→client event types.
const (
	EventChatHistory = "chatHistory"
	EventNewMessage  = "newMessage"
	EventReadReceipt = "readReceipt"
	EventError       = "error"
)

// Stable wire error codes carried by EventError payloads.
const (
	CodeBadPayload       = "bad_payload"
	CodeForbidden        = "forbidden"
	CodeNotInRoom        = "not_in_room"
	CodeNotFound         = "not_found"
	CodeRoomMismatch     = "room_mismatch"
	CodeStoreUnavailable = "store_unavailable"
)

// Envelope is the frame exchanged in both directions over a connection.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope of the given type. Payloads
// are plain data types; marshaling them cannot fail at runtime, so errors
// here indicate a programming bug and surface as an empty payload.
func NewEnvelope(eventType string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{Type: eventType}
	}
	return Envelope{Type: eventType, Payload: raw}
}

// JoinPayload asks to join the room of a lease. The server re-verifies the
// lease id against the membership directory before honoring it.
type JoinPayload struct {
	LeaseID string `json:"leaseId" validate:"required,max=64"`
}

// SendPayload posts a message into the session's current room.
type SendPayload struct {
	Content string `json:"content" validate:"required,max=8000"`
}

// MarkReadPayload acknowledges that the session's user has observed a
// message in their current room.
type MarkReadPayload struct {
	MessageID string `json:"messageId" validate:"required,max=64"`
}

// HistoryPayload is the chatHistory reply delivered after a successful join:
// the room's replay window in chronological order.
type HistoryPayload struct {
	LeaseID  string                 `json:"leaseId"`
	Messages []services.MessageView `json:"messages"`
}

// ErrorPayload reports a rejected operation without dropping the connection.
// Event names the client event that triggered the rejection.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
