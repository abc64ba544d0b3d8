package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypePing    = "ping"
	TypeDismiss = "dismiss"

	// Server -> Client
	TypeNotification = "notification"
	TypeClear        = "clear"
	TypePaperUpdated = "paper_updated"
	TypePong         = "pong"
	TypeError        = "error"
)

// Notification kinds.
const (
	KindInfo    = "info"
	KindSuccess = "success"
	KindError   = "error"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a Message of the given type.
func NewMessage(msgType string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: msgType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// NotificationPayload is a transient toast anchored to a page control.
type NotificationPayload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	// Target is the id of the control the toast is positioned next to.
	Target string `json:"target"`
	// DurationMs of zero keeps the toast until it is cleared or replaced.
	DurationMs int `json:"durationMs,omitempty"`
	// Replaces names an earlier toast to remove when this one is shown.
	Replaces string `json:"replaces,omitempty"`
}

// ClearPayload removes a persistent toast.
type ClearPayload struct {
	ID string `json:"id"`
}

// PaperUpdatedPayload tells open pages to reload the paper.
type PaperUpdatedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
